package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/DanikLP1/filevault/internal/db"
	"github.com/DanikLP1/filevault/internal/promo"
)

type promoView struct {
	ID                uint       `json:"id"`
	Code              string     `json:"code"`
	Description       string     `json:"description,omitempty"`
	DiscountPercent   int        `json:"discount_percent"`
	GrantSubscription bool       `json:"grant_subscription"`
	ExtraStorageBytes int64      `json:"extra_storage_bytes"`
	ExtraStorage      string     `json:"extra_storage,omitempty"`
	MaxUses           *int64     `json:"max_uses"`
	UseCount          int64      `json:"use_count"`
	ValidFrom         *time.Time `json:"valid_from,omitempty"`
	ValidUntil        *time.Time `json:"valid_until,omitempty"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toPromoView(p *db.PromoCode) promoView {
	v := promoView{
		ID:                p.ID,
		Code:              p.Code,
		Description:       p.Description,
		DiscountPercent:   p.DiscountPercent,
		GrantSubscription: p.GrantSubscription,
		ExtraStorageBytes: p.ExtraStorageBytes,
		MaxUses:           p.MaxUses,
		UseCount:          p.UseCount,
		ValidFrom:         p.ValidFrom,
		ValidUntil:        p.ValidUntil,
		Active:            p.Active,
		CreatedAt:         p.CreatedAt,
	}
	if p.ExtraStorageBytes > 0 {
		v.ExtraStorage = promo.FormatStorage(p.ExtraStorageBytes)
	}
	return v
}

type redeemRequest struct {
	Code string `json:"code"`
}

type redeemResponse struct {
	Effects      []string  `json:"effects"`
	Promo        promoView `json:"promo"`
	IsSubscribed bool      `json:"is_subscribed"`
	StorageQuota int64     `json:"storage_quota"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	log := loggerFrom(r).With("user_id", u.ID)
	log.Info("redeem.start")

	var req redeemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := s.promos.Redeem(r.Context(), u.ID, req.Code)
	if err != nil {
		writeServiceError(w, r, "redeem", err)
		return
	}
	effects := res.Effects
	if effects == nil {
		effects = []string{}
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		Effects:      effects,
		Promo:        toPromoView(res.Promo),
		IsSubscribed: res.User.IsSubscribed,
		StorageQuota: res.User.StorageQuota,
	})
}

type redemptionView struct {
	ID                  uint      `json:"id"`
	Code                string    `json:"code"`
	RedeemedAt          time.Time `json:"redeemed_at"`
	DiscountPercent     int       `json:"discount_percent"`
	ExtraStorageBytes   int64     `json:"extra_storage_bytes"`
	ExtraStorage        string    `json:"extra_storage,omitempty"`
	GrantedSubscription bool      `json:"granted_subscription"`
}

func (s *Server) handleRedemptions(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	rs, err := s.promos.RecentRedemptions(r.Context(), u.ID, 0)
	if err != nil {
		writeServiceError(w, r, "redemptions", err)
		return
	}
	out := make([]redemptionView, 0, len(rs))
	for _, rd := range rs {
		v := redemptionView{
			ID:                  rd.ID,
			RedeemedAt:          rd.RedeemedAt,
			DiscountPercent:     rd.DiscountPercent,
			ExtraStorageBytes:   rd.ExtraStorageBytes,
			GrantedSubscription: rd.GrantedSubscription,
		}
		if rd.Promo != nil {
			v.Code = rd.Promo.Code
		}
		if rd.ExtraStorageBytes > 0 {
			v.ExtraStorage = promo.FormatStorage(rd.ExtraStorageBytes)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	var uid uint
	if u := userFrom(r); u != nil {
		uid = u.ID
	}
	q, err := s.promos.Quote(r.Context(), uid)
	if err != nil {
		writeServiceError(w, r, "pricing", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleListPromos(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ps, err := s.promos.List(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, "list_promos", err)
		return
	}
	out := make([]promoView, 0, len(ps))
	for i := range ps {
		out = append(out, toPromoView(&ps[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleGeneratePromos(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	var req promo.BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.CreatedByID = &u.ID
	ps, err := s.promos.GenerateBatch(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, "promo_generate", err)
		return
	}
	codes := make([]string, 0, len(ps))
	for _, p := range ps {
		codes = append(codes, p.Code)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"codes": codes})
}

func (s *Server) handleDeletePromo(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "promo not found")
		return
	}
	rep, err := s.promos.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "promo_delete", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
