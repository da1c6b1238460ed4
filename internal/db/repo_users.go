package db

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureUser: найти по email или создать с квотой по умолчанию.
func (db *DB) EnsureUser(ctx context.Context, email string, defaultQuota int64, staff bool) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u User
	err := db.WithContext(ctx).Where("email = ?", email).Take(&u).Error
	if err == nil {
		if staff && !u.IsStaff {
			if err := db.WithContext(ctx).Model(&u).Update("is_staff", true).Error; err != nil {
				return nil, err
			}
		}
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	u = User{Email: email, StorageQuota: defaultQuota, IsStaff: staff}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&u).Error; err != nil {
		return nil, err
	}
	if u.ID == 0 {
		// параллельный запрос успел создать
		if err := db.WithContext(ctx).Where("email = ?", email).Take(&u).Error; err != nil {
			return nil, notFound(err)
		}
	}
	return &u, nil
}

func (db *DB) FindUserByID(ctx context.Context, id uint) (*User, error) {
	return db.FindUserByIDTx(db.WithContext(ctx), id)
}

func (db *DB) FindUserByIDTx(tx *gorm.DB, id uint) (*User, error) {
	var u User
	if err := tx.Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// LockUserTx: SELECT ... FOR UPDATE (в sqlite блокировку даёт сама транзакция).
func (db *DB) LockUserTx(tx *gorm.DB, id uint) (*User, error) {
	var u User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UpdateUserFieldsTx пишет только переданные колонки.
func (db *DB) UpdateUserFieldsTx(tx *gorm.DB, id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := tx.Model(&User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
