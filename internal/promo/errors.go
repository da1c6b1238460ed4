package promo

import "errors"

var (
	ErrInvalidCode       = errors.New("invalid promo code")
	ErrCodeNotFound      = errors.New("promo code not found")
	ErrCodeUnavailable   = errors.New("promo code unavailable")
	ErrAlreadyRedeemed   = errors.New("promo code already redeemed")
	ErrTransientConflict = errors.New("transient conflict, retry")
	ErrInvalidBatch      = errors.New("invalid batch request")
	ErrPromoNotFound     = errors.New("promo not found")
)
