package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/DanikLP1/filevault/internal/drop"
	"github.com/DanikLP1/filevault/internal/files"
	"github.com/DanikLP1/filevault/internal/promo"
	"github.com/DanikLP1/filevault/internal/storage"
	"github.com/go-chi/chi/v5"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

type errMapping struct {
	err    error
	status int
	code   string
}

var errTable = []errMapping{
	{promo.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{promo.ErrCodeNotFound, http.StatusNotFound, "code_not_found"},
	{promo.ErrCodeUnavailable, http.StatusConflict, "code_unavailable"},
	{promo.ErrAlreadyRedeemed, http.StatusConflict, "already_redeemed"},
	{promo.ErrTransientConflict, http.StatusServiceUnavailable, "transient_conflict"},
	{promo.ErrInvalidBatch, http.StatusBadRequest, "invalid_request"},
	{promo.ErrPromoNotFound, http.StatusNotFound, "not_found"},
	{drop.ErrNotFound, http.StatusNotFound, "not_found"},
	{drop.ErrEmptyUpload, http.StatusBadRequest, "empty_upload"},
	{files.ErrNotFound, http.StatusNotFound, "not_found"},
	{files.ErrEmptyUpload, http.StatusBadRequest, "empty_upload"},
	{files.ErrQuotaExceeded, http.StatusRequestEntityTooLarge, "quota_exceeded"},
	{files.ErrSubscriptionRequired, http.StatusForbidden, "subscription_required"},
	{storage.ErrTooLarge, http.StatusRequestEntityTooLarge, "too_large"},
}

// writeServiceError: известные ошибки => статус и код, остальное 500 с записью в лог.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
		return
	}
	for _, m := range errTable {
		if errors.Is(err, m.err) {
			msg := err.Error()
			if m.status == http.StatusServiceUnavailable {
				// текст драйвера наружу не отдаём
				w.Header().Set("Retry-After", "1")
				msg = m.err.Error()
			}
			loggerFrom(r).Info(op+".rejected", "reason", m.code)
			writeError(w, m.status, m.code, msg)
			return
		}
	}
	loggerFrom(r).Error(op+".fail", "err", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func idParam(r *http.Request) (uint, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

// baseURL: PUBLIC_BASE_URL или схема и хост запроса.
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
