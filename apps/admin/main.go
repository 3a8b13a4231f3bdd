package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/services/logger"
	"github.com/trezcool/schoolfees/storage/database"
	"github.com/trezcool/schoolfees/storage/database/inmem"
	"github.com/trezcool/schoolfees/storage/database/sqlx"
	"github.com/trezcool/schoolfees/storage/idempotency"
)

func main() {
	os.Exit(start())
}

func start() int {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	cli := commandLine{conf: conf, out: os.Stdout}

	// set up DB
	var repo fee.Repository
	if conf.Database.Engine == "memory" {
		repo = inmemdb.NewFeeRepository(inmemdb.Open())
	} else {
		if err := database.CreateIfNotExist(conf); err != nil {
			logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
		}
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = db.Close() }()
		cli.db = db.DB
		repo = sqlxrepos.NewFeeRepository(db)
	}
	cli.feeSvc = fee.NewService(repo, nil /* no receipts */, nil)

	if conf.Idempotency.Path != "" {
		store, err := idempotency.Open(conf.Idempotency.Path)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening idempotency store: %v", err), err)
		}
		defer func() { _ = store.Close() }()
		cli.keys = store
	}

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("%s: %v", os.Args[1], err), err)
		}
		return 1
	}
	return 0
}
