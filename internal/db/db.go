package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type DB struct {
	*gorm.DB
}

func New(gormDB *gorm.DB) *DB { return &DB{gormDB} }

func gormConfig() *gorm.Config {
	// TranslateError: нарушения уникальности приходят как gorm.ErrDuplicatedKey
	return &gorm.Config{TranslateError: true}
}

// Open выбирает драйвер по DSN: postgres:// (или postgresql://) означает PostgreSQL, иначе sqlite.
func Open(dsn string) (*DB, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(dsn)
	}
	return OpenSQLite(dsn)
}

func OpenPostgres(dsn string) (*DB, error) {
	g, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	db := New(g)
	return db, db.AutoMigrate()
}

func (db *DB) AutoMigrate() error {
	if err := db.DB.AutoMigrate(&User{}, &PromoCode{}, &PromoRedemption{}, &DropFile{}, &File{}); err != nil {
		return err
	}
	return db.ensureIndexes()
}

func (db *DB) ensureIndexes() error {
	stmts := []string{
		// --- promo_codes ---
		// поиск по коду без учёта регистра
		`CREATE INDEX IF NOT EXISTS ix_promo_codes_code_upper ON promo_codes (UPPER(code))`,
		`CREATE INDEX IF NOT EXISTS ix_promo_codes_created ON promo_codes (created_at DESC)`,

		// --- promo_redemptions ---
		`CREATE INDEX IF NOT EXISTS ix_redemptions_user_discount ON promo_redemptions (user_id, discount_percent DESC, redeemed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS ix_redemptions_promo ON promo_redemptions (promo_id)`,

		// --- drop_files ---
		`CREATE INDEX IF NOT EXISTS ix_drop_files_expires ON drop_files (expires_at)`,

		// --- files ---
		`CREATE INDEX IF NOT EXISTS ix_files_owner_deleted ON files (owner_id, is_deleted)`,
		`CREATE INDEX IF NOT EXISTS ix_files_owner_uploaded ON files (owner_id, uploaded_at DESC)`,
	}

	for i, s := range stmts {
		if err := db.DB.Exec(s).Error; err != nil {
			return fmt.Errorf("ensureIndexes step %d failed: %w", i, err)
		}
	}
	return nil
}

// Ping: для /readyz.
func (db *DB) Ping() error {
	return db.DB.Exec("SELECT 1").Error
}

func withParams(path string, params string) string {
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}
