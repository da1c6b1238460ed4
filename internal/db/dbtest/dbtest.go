// Package dbtest открывает временную sqlite базу для тестов.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/DanikLP1/filevault/internal/db"
	"github.com/stretchr/testify/require"
)

func Open(t testing.TB) *db.DB {
	t.Helper()
	d, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := d.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return d
}

// User создаёт пользователя с заданной квотой.
func User(t testing.TB, d *db.DB, email string, quota int64) *db.User {
	t.Helper()
	u := &db.User{Email: email, StorageQuota: quota}
	require.NoError(t, d.Create(u).Error)
	return u
}
