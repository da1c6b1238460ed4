package db

import (
	"context"

	"gorm.io/gorm"
)

// CreateRedemptionTx: уникальность (promo_id, user_id) держит индекс; дубль => ErrAlreadyExists.
func (db *DB) CreateRedemptionTx(tx *gorm.DB, r *PromoRedemption) error {
	if err := tx.Omit("Promo", "User").Create(r).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (db *DB) RedemptionExistsTx(tx *gorm.DB, promoID, userID uint) (bool, error) {
	var n int64
	err := tx.Model(&PromoRedemption{}).
		Where("promo_id = ? AND user_id = ?", promoID, userID).
		Count(&n).Error
	return n > 0, err
}

func (db *DB) ListRedemptionsByPromoTx(tx *gorm.DB, promoID uint) ([]PromoRedemption, error) {
	var out []PromoRedemption
	err := tx.Where("promo_id = ?", promoID).Order("id ASC").Find(&out).Error
	return out, err
}

// HasOtherSubscriptionGrantTx: есть ли у пользователя другая активация, дающая подписку.
func (db *DB) HasOtherSubscriptionGrantTx(tx *gorm.DB, userID, excludePromoID uint) (bool, error) {
	var n int64
	err := tx.Model(&PromoRedemption{}).
		Where("user_id = ? AND promo_id <> ? AND granted_subscription = ?", userID, excludePromoID, true).
		Count(&n).Error
	return n > 0, err
}

func (db *DB) DeleteRedemptionsByPromoTx(tx *gorm.DB, promoID uint) (int64, error) {
	res := tx.Where("promo_id = ?", promoID).Delete(&PromoRedemption{})
	return res.RowsAffected, res.Error
}

// ListUserRedemptions: последние активации пользователя вместе с промокодом.
func (db *DB) ListUserRedemptions(ctx context.Context, userID uint, limit int) ([]PromoRedemption, error) {
	if limit <= 0 {
		limit = 5
	}
	var out []PromoRedemption
	err := db.WithContext(ctx).
		Preload("Promo").
		Where("user_id = ?", userID).
		Order("redeemed_at DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// BestDiscountRedemption: максимальная скидка, при равенстве самая свежая активация.
func (db *DB) BestDiscountRedemption(ctx context.Context, userID uint) (*PromoRedemption, error) {
	var r PromoRedemption
	err := db.WithContext(ctx).
		Preload("Promo").
		Where("user_id = ? AND discount_percent > 0", userID).
		Order("discount_percent DESC").Order("redeemed_at DESC").Order("id DESC").
		Take(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}
