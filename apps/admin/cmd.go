package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolfees/apps/api/echo"
	"github.com/trezcool/schoolfees/core"
)

var (
	errHelp          = errors.New("help provided")
	errNoIdempotency = errors.New("idempotency store is not configured (idempotency.path)")
)

type (
	renormalizer interface {
		Renormalize(ctx context.Context) (int, error)
	}

	keyPurger interface {
		Purge(before time.Time) (int, error)
	}

	commandLine struct {
		conf   *core.Config
		out    io.Writer
		db     *sql.DB // nil with database.engine=memory
		feeSvc renormalizer
		keys   keyPurger // nil when no idempotency store is configured
	}
)

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...]                     - run a goose command (up, down, status, version, redo...)")
	fmt.Fprintln(cli.out, "  renormalize                                   - re-derive every fee record status from its amounts")
	fmt.Fprintln(cli.out, "  token -subject ID -role ROLE[,ROLE...]        - mint an API token signed with the secret key")
	fmt.Fprintln(cli.out, "  purge-keys -older-than DURATION               - forget idempotency keys older than DURATION")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenSubject := tokenCmd.String("subject", "", "The user ID the token is issued for.")
	tokenRoles := tokenCmd.String("role", "", "Comma separated roles, e.g.: admin:,school:")
	tokenUsername := tokenCmd.String("username", "", "The user's username.")
	tokenEmail := tokenCmd.String("email", "", "The user's email.")

	purgeCmd := flag.NewFlagSet("purge-keys", flag.ContinueOnError)
	purgeCmd.SetOutput(cli.out)
	purgeOlderThan := purgeCmd.Duration("older-than", 30*24*time.Hour, "Keys recorded before now minus this duration are removed.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "renormalize":
		return cli.renormalize()

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *tokenSubject == "" || *tokenRoles == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenSubject, *tokenUsername, *tokenEmail, strings.Split(*tokenRoles, ","))

	case "purge-keys":
		if err := purgeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *purgeOlderThan <= 0 {
			purgeCmd.Usage()
			return errHelp
		}
		return cli.purgeKeys(*purgeOlderThan)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) renormalize() error {
	n, err := cli.feeSvc.Renormalize(context.Background())
	if err != nil {
		return errors.Wrap(err, "renormalizing fee records")
	}
	fmt.Fprintf(cli.out, "%d fee record(s) renormalized\n", n)
	return nil
}

func (cli *commandLine) token(subject, username, email string, roles []string) error {
	cleaned := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = core.CleanString(role, true); role != "" {
			cleaned = append(cleaned, role)
		}
	}
	claims := echoapi.NewClaims(cli.conf, subject, username, email, cleaned...)
	token, err := echoapi.GenerateToken(cli.conf, claims)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func (cli *commandLine) purgeKeys(olderThan time.Duration) error {
	if cli.keys == nil {
		return errNoIdempotency
	}
	n, err := cli.keys.Purge(time.Now().Add(-olderThan))
	if err != nil {
		return errors.Wrap(err, "purging idempotency keys")
	}
	fmt.Fprintf(cli.out, "%d idempotency key(s) purged\n", n)
	return nil
}
