//go:build !cgo

package db

import (
	"github.com/glebarez/sqlite" // pure go, без cgo
	"gorm.io/gorm"
)

// DSN для modernc: прагмы передаются через _pragma.
func (db *DB) DSN(path string) string {
	return withParams(path, "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
}

func OpenSQLite(path string) (*DB, error) {
	g, err := gorm.Open(sqlite.Open((&DB{}).DSN(path)), gormConfig())
	if err != nil {
		return nil, err
	}
	return finishSQLite(g)
}
