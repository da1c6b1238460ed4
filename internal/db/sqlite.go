package db

import "gorm.io/gorm"

// sqlite пишет одним писателем: одно соединение сериализует транзакции
// вместо SQLITE_BUSY на конкурентных запросах.
func finishSQLite(g *gorm.DB) (*DB, error) {
	sqlDB, err := g.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	db := New(g)
	return db, db.AutoMigrate()
}
