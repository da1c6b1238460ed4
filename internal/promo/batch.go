package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanikLP1/filevault/internal/db"
	"gorm.io/gorm"
)

const (
	MaxBatchQuantity = 50
	MinCodeLength    = 6
	MaxCodeLength    = 24
	MaxPrefixLength  = 12
	MaxExtraGB       = 10240
	MaxValidDays     = 365

	collisionRetries = 5
)

type BatchRequest struct {
	Quantity          int    `json:"quantity"`
	Length            int    `json:"length"`
	Prefix            string `json:"prefix"`
	Description       string `json:"description"`
	DiscountPercent   int    `json:"discount_percent"`
	GrantSubscription bool   `json:"grant_subscription"`
	ExtraStorageGB    int64  `json:"extra_storage_gb"`
	ValidDays         *int   `json:"valid_days,omitempty"`
	MaxUses           *int64 `json:"max_uses,omitempty"`
	CreatedByID       *uint  `json:"-"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidBatch, fmt.Sprintf(format, args...))
}

// Validate проверяет параметры до любых изменений. Length == 0 => DefaultCodeLength.
func (r *BatchRequest) Validate() error {
	if r.Length == 0 {
		r.Length = DefaultCodeLength
	}
	switch {
	case r.Quantity < 1 || r.Quantity > MaxBatchQuantity:
		return invalid("quantity must be 1..%d", MaxBatchQuantity)
	case r.Length < MinCodeLength || r.Length > MaxCodeLength:
		return invalid("length must be %d..%d", MinCodeLength, MaxCodeLength)
	case len(r.Prefix) > MaxPrefixLength:
		return invalid("prefix longer than %d", MaxPrefixLength)
	case !isAlnum(r.Prefix):
		return invalid("prefix must be alphanumeric")
	case r.DiscountPercent < 0 || r.DiscountPercent > 100:
		return invalid("discount_percent must be 0..100")
	case r.ExtraStorageGB < 0 || r.ExtraStorageGB > MaxExtraGB:
		return invalid("extra_storage_gb must be 0..%d", MaxExtraGB)
	case r.ValidDays != nil && (*r.ValidDays < 1 || *r.ValidDays > MaxValidDays):
		return invalid("valid_days must be 1..%d", MaxValidDays)
	case r.MaxUses != nil && *r.MaxUses < 1:
		return invalid("max_uses must be >= 1")
	case r.DiscountPercent == 0 && !r.GrantSubscription && r.ExtraStorageGB == 0:
		return invalid("at least one benefit is required")
	}
	return nil
}

func isAlnum(s string) bool {
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// GenerateBatch создаёт пачку промокодов в одной транзакции: либо все, либо ни одного.
// Совпадение кода с существующим лечится повторной генерацией внутри savepoint.
func (s *Service) GenerateBatch(ctx context.Context, req BatchRequest) ([]db.PromoCode, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var until *time.Time
	if req.ValidDays != nil {
		t := now.Add(time.Duration(*req.ValidDays) * 24 * time.Hour)
		until = &t
	}

	out := make([]db.PromoCode, 0, req.Quantity)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		for len(out) < req.Quantity {
			p, err := s.createUnique(tx, req, now, until)
			if err != nil {
				return err
			}
			out = append(out, *p)
		}
		return nil
	})
	if err != nil {
		s.log.Error("promo_generate.fail", "quantity", req.Quantity, "err", err)
		return nil, err
	}
	s.log.Info("promo_generate.ok", "quantity", len(out), "prefix", req.Prefix)
	return out, nil
}

func (s *Service) createUnique(tx *gorm.DB, req BatchRequest, now time.Time, until *time.Time) (*db.PromoCode, error) {
	for attempt := 0; attempt < collisionRetries; attempt++ {
		code, err := GenerateCode(req.Length, req.Prefix)
		if err != nil {
			return nil, err
		}
		p := &db.PromoCode{
			Code:              code,
			Description:       req.Description,
			DiscountPercent:   req.DiscountPercent,
			GrantSubscription: req.GrantSubscription,
			ExtraStorageBytes: req.ExtraStorageGB << 30,
			MaxUses:           req.MaxUses,
			ValidUntil:        until,
			Active:            true,
			CreatedByID:       req.CreatedByID,
			CreatedAt:         now,
		}
		err = tx.Transaction(func(sp *gorm.DB) error { return s.db.CreatePromoTx(sp, p) })
		if errors.Is(err, db.ErrAlreadyExists) {
			s.log.Warn("promo_generate.collision", "code", code, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("promo: no unique code after %d attempts", collisionRetries)
}
