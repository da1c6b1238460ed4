package promo

import (
	"context"
	"errors"

	"github.com/DanikLP1/filevault/internal/db"
	"github.com/shopspring/decimal"
)

type Plan struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Plans: базовые цены платных тарифов.
var Plans = []Plan{
	{Name: "standard", Price: 299},
	{Name: "premium", Price: 899},
}

var hundred = decimal.NewFromInt(100)

// ApplyDiscount: price*(100-percent)/100, половина округляется вверх.
func ApplyDiscount(price int64, percent int) int64 {
	percent = min(max(percent, 0), 100)
	return decimal.NewFromInt(price).
		Mul(decimal.NewFromInt(int64(100 - percent))).
		Div(hundred).
		Round(0).
		IntPart()
}

type Discount struct {
	Percent       int    `json:"percent"`
	Code          string `json:"code"`
	StandardPrice int64  `json:"standard_price"`
	PremiumPrice  int64  `json:"premium_price"`
}

type Quote struct {
	StandardPrice int64     `json:"standard_price"`
	PremiumPrice  int64     `json:"premium_price"`
	Discount      *Discount `json:"discount,omitempty"`
}

func planPrice(name string) int64 {
	for _, p := range Plans {
		if p.Name == name {
			return p.Price
		}
	}
	return 0
}

// Quote: цены для пользователя с лучшей из его скидок. userID == 0 => базовые цены.
func (s *Service) Quote(ctx context.Context, userID uint) (*Quote, error) {
	q := &Quote{StandardPrice: planPrice("standard"), PremiumPrice: planPrice("premium")}
	if userID == 0 {
		return q, nil
	}
	r, err := s.db.BestDiscountRedemption(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return q, nil
	}
	if err != nil {
		return nil, err
	}
	d := &Discount{
		Percent:       r.DiscountPercent,
		StandardPrice: ApplyDiscount(q.StandardPrice, r.DiscountPercent),
		PremiumPrice:  ApplyDiscount(q.PremiumPrice, r.DiscountPercent),
	}
	if r.Promo != nil {
		d.Code = r.Promo.Code
	}
	q.Discount = d
	return q, nil
}
