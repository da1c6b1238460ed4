package db

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (db *DB) CreatePromoTx(tx *gorm.DB, p *PromoCode) error {
	if err := tx.Create(p).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindPromoByCode: без учёта регистра.
func (db *DB) FindPromoByCode(ctx context.Context, code string) (*PromoCode, error) {
	var p PromoCode
	err := db.WithContext(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(code)).
		Take(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (db *DB) FindPromoByID(ctx context.Context, id uint) (*PromoCode, error) {
	return db.FindPromoByIDTx(db.WithContext(ctx), id)
}

func (db *DB) FindPromoByIDTx(tx *gorm.DB, id uint) (*PromoCode, error) {
	var p PromoCode
	if err := tx.Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (db *DB) LockPromoTx(tx *gorm.DB, id uint) (*PromoCode, error) {
	var p PromoCode
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (db *DB) ListPromos(ctx context.Context, limit int) ([]PromoCode, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var out []PromoCode
	err := db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// IncrementPromoUseTx: атомарный use_count = use_count + 1 на стороне БД.
func (db *DB) IncrementPromoUseTx(tx *gorm.DB, id uint) error {
	res := tx.Model(&PromoCode{}).
		Where("id = ?", id).
		UpdateColumn("use_count", gorm.Expr("use_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimPromoUseTx: тот же инкремент, но только пока лимит не исчерпан.
// false => max_uses уже достигнут (или промокод выключен).
func (db *DB) ClaimPromoUseTx(tx *gorm.DB, id uint) (bool, error) {
	res := tx.Model(&PromoCode{}).
		Where("id = ? AND active = ? AND (max_uses IS NULL OR use_count < max_uses)", id, true).
		UpdateColumn("use_count", gorm.Expr("use_count + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (db *DB) PromoUseCountTx(tx *gorm.DB, id uint) (int64, error) {
	var p PromoCode
	if err := tx.Select("use_count").Where("id = ?", id).Take(&p).Error; err != nil {
		return 0, notFound(err)
	}
	return p.UseCount, nil
}

func (db *DB) DeletePromoTx(tx *gorm.DB, id uint) error {
	res := tx.Delete(&PromoCode{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
