//go:build cgo

package db

import (
	"gorm.io/driver/sqlite" // mattn/go-sqlite3
	"gorm.io/gorm"
)

func (db *DB) DSN(path string) string {
	// WAL + FK + нормальная синхронизация
	return withParams(path, "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
}

func OpenSQLite(path string) (*DB, error) {
	g, err := gorm.Open(sqlite.Open((&DB{}).DSN(path)), gormConfig())
	if err != nil {
		return nil, err
	}
	return finishSQLite(g)
}
