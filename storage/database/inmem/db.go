package inmemdb

import (
	"sync"

	"github.com/trezcool/schoolfees/core/fee"
)

type (
	DB struct {
		fee *feeTable
	}

	feeTable struct {
		sync.RWMutex
		table map[string]*fee.FeeRecord
	}
)

// Open returns an empty in-memory database, used in tests and with database.engine=memory.
func Open() *DB {
	return &DB{
		fee: &feeTable{table: make(map[string]*fee.FeeRecord)},
	}
}
