package promo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DanikLP1/filevault/internal/clock"
	"github.com/DanikLP1/filevault/internal/db"
	"github.com/dustin/go-humanize"
	"gorm.io/gorm"
)

type Options struct {
	// QuotaFloor: ниже этого значения откат бонусов квоту не опускает.
	QuotaFloor int64
}

type Service struct {
	db    *db.DB
	clock clock.Clock
	log   *slog.Logger
	opts  Options

	// beforeInsert вызывается внутри транзакции активации перед вставкой строки активации.
	beforeInsert func(tx *gorm.DB, promoID, userID uint) error
}

func NewService(store *db.DB, clk clock.Clock, log *slog.Logger, opts Options) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.QuotaFloor < 0 {
		opts.QuotaFloor = 0
	}
	return &Service{db: store, clock: clk, log: log.With("comp", "promo"), opts: opts}
}

type RedeemResult struct {
	Promo      *db.PromoCode
	Redemption *db.PromoRedemption
	User       *db.User
	Effects    []string
}

// Redeem активирует промокод для пользователя: запись активации, бонусы и
// счётчик использований меняются в одной транзакции.
func (s *Service) Redeem(ctx context.Context, userID uint, rawCode string) (*RedeemResult, error) {
	code, err := NormalizeCode(rawCode)
	if err != nil {
		return nil, err
	}
	log := s.log.With("user_id", userID, "code", code)

	p, err := s.db.FindPromoByCode(ctx, code)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if !IsAvailable(p, now) {
		return nil, ErrCodeUnavailable
	}

	res := &RedeemResult{}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		exists, err := s.db.RedemptionExistsTx(tx, p.ID, userID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyRedeemed
		}
		// значения бонусов берём из свежей строки, а не из прочитанной до транзакции
		cur, err := s.db.FindPromoByIDTx(tx, p.ID)
		if errors.Is(err, db.ErrNotFound) {
			return ErrCodeNotFound
		}
		if err != nil {
			return err
		}
		if !IsAvailable(cur, now) {
			return ErrCodeUnavailable
		}

		r := &db.PromoRedemption{
			PromoID:             cur.ID,
			UserID:              userID,
			RedeemedAt:          now,
			DiscountPercent:     cur.DiscountPercent,
			ExtraStorageBytes:   cur.ExtraStorageBytes,
			GrantedSubscription: cur.GrantSubscription,
		}
		if s.beforeInsert != nil {
			if err := s.beforeInsert(tx, cur.ID, userID); err != nil {
				return err
			}
		}
		if err := s.db.CreateRedemptionTx(tx, r); err != nil {
			return err
		}

		u, err := s.db.LockUserTx(tx, userID)
		if err != nil {
			return err
		}
		changed, notes := ApplyToUser(u, cur)
		if err := s.db.UpdateUserFieldsTx(tx, u.ID, changed); err != nil {
			return err
		}

		ok, err := s.db.ClaimPromoUseTx(tx, cur.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCodeUnavailable
		}

		if cur.DiscountPercent > 0 {
			notes = append(notes, fmt.Sprintf("discount %d%%", cur.DiscountPercent))
		}
		res.Redemption = r
		res.User = u
		res.Effects = dedupe(notes)
		return nil
	})
	if err != nil {
		mapped := mapRedeemErr(err)
		switch {
		case errors.Is(mapped, ErrAlreadyRedeemed), errors.Is(mapped, ErrCodeUnavailable):
			log.Info("redeem.rejected", "reason", mapped.Error())
		case errors.Is(mapped, ErrTransientConflict):
			log.Warn("redeem.conflict", "err", err)
		default:
			log.Error("redeem.fail", "err", err)
		}
		return nil, mapped
	}

	// счётчик показываем после коммита
	if fresh, err := s.db.FindPromoByID(ctx, p.ID); err == nil {
		p = fresh
	}
	res.Promo = p
	log.Info("redeem.ok",
		"promo_id", p.ID,
		"use_count", p.UseCount,
		"quota", humanize.IBytes(uint64(max(0, res.User.StorageQuota))),
		"effects", len(res.Effects),
	)
	return res, nil
}

func mapRedeemErr(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyRedeemed), errors.Is(err, ErrCodeUnavailable), errors.Is(err, ErrCodeNotFound):
		return err
	case errors.Is(err, db.ErrAlreadyExists), db.IsUniqueViolation(err):
		// параллельная активация тем же пользователем
		return ErrAlreadyRedeemed
	case db.IsTransient(err):
		return ErrTransientConflict
	}
	return err
}

// RegisterUse: атомарный инкремент use_count на стороне БД, возвращает новое значение.
func (s *Service) RegisterUse(ctx context.Context, promoID uint) (int64, error) {
	var n int64
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.db.IncrementPromoUseTx(tx, promoID); err != nil {
			return err
		}
		var err error
		n, err = s.db.PromoUseCountTx(tx, promoID)
		return err
	})
	if errors.Is(err, db.ErrNotFound) {
		return 0, ErrPromoNotFound
	}
	return n, err
}

type DeleteReport struct {
	PromoID              uint   `json:"promo_id"`
	Code                 string `json:"code"`
	Redemptions          int    `json:"redemptions"`
	ReleasedBytes        int64  `json:"released_bytes"`
	SubscriptionsRevoked int    `json:"subscriptions_revoked"`
}

// Delete удаляет промокод, сначала откатывая бонусы каждой его активации.
// Подписка снимается, только если её не даёт другая оставшаяся активация.
func (s *Service) Delete(ctx context.Context, promoID uint) (*DeleteReport, error) {
	rep := &DeleteReport{PromoID: promoID}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		p, err := s.db.LockPromoTx(tx, promoID)
		if err != nil {
			return err
		}
		rep.Code = p.Code

		rs, err := s.db.ListRedemptionsByPromoTx(tx, promoID)
		if err != nil {
			return err
		}
		for _, r := range rs {
			u, err := s.db.LockUserTx(tx, r.UserID)
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			changed := map[string]any{}
			if r.ExtraStorageBytes > 0 {
				q := max(min(s.opts.QuotaFloor, u.StorageQuota), u.StorageQuota-r.ExtraStorageBytes)
				if q != u.StorageQuota {
					rep.ReleasedBytes += u.StorageQuota - q
					changed["storage_quota"] = q
				}
			}
			if r.GrantedSubscription && u.IsSubscribed {
				other, err := s.db.HasOtherSubscriptionGrantTx(tx, u.ID, promoID)
				if err != nil {
					return err
				}
				if !other {
					changed["is_subscribed"] = false
					rep.SubscriptionsRevoked++
				}
			}
			if err := s.db.UpdateUserFieldsTx(tx, u.ID, changed); err != nil {
				return err
			}
		}

		n, err := s.db.DeleteRedemptionsByPromoTx(tx, promoID)
		if err != nil {
			return err
		}
		rep.Redemptions = int(n)
		return s.db.DeletePromoTx(tx, promoID)
	})
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrPromoNotFound
	}
	if err != nil {
		s.log.Error("promo_delete.fail", "promo_id", promoID, "err", err)
		return nil, err
	}
	s.log.Info("promo_delete.reversed",
		"promo_id", promoID,
		"code", rep.Code,
		"redemptions", rep.Redemptions,
		"released", humanize.IBytes(uint64(rep.ReleasedBytes)),
		"subscriptions_revoked", rep.SubscriptionsRevoked,
	)
	return rep, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]db.PromoCode, error) {
	return s.db.ListPromos(ctx, limit)
}

// RecentRedemptions: последние активации пользователя (по умолчанию пять).
func (s *Service) RecentRedemptions(ctx context.Context, userID uint, limit int) ([]db.PromoRedemption, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.db.ListUserRedemptions(ctx, userID, limit)
}
