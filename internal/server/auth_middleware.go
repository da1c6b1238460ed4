package server

import (
	"errors"
	"net/http"

	"github.com/DanikLP1/filevault/internal/auth"
)

// authenticate: без заголовка запрос возвращается как есть (аноним), битый токен => ошибка.
func (s *Server) authenticate(r *http.Request) (*http.Request, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return r, nil
	}
	tok, err := auth.BearerToken(h)
	if err != nil {
		return nil, err
	}
	email, err := auth.EmailFromToken(tok, []byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, err
	}
	u, err := s.db.EnsureUser(r.Context(), email, s.cfg.DefaultQuotaBytes, s.cfg.IsAdminEmail(email))
	if err != nil {
		return nil, err
	}
	return r.WithContext(withUser(r.Context(), u)), nil
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrMissingToken) || errors.Is(err, auth.ErrInvalidToken) {
		loggerFrom(r).Info("auth.rejected", "err", err)
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing bearer token")
		return
	}
	loggerFrom(r).Error("auth.ensure_user_fail", "err", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

// OptionalUser пропускает анонимные запросы, но отклоняет неверный токен.
func (s *Server) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2, err := s.authenticate(r)
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r2)
	})
}

func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2, err := s.authenticate(r)
		if err == nil && userFrom(r2) == nil {
			err = auth.ErrMissingToken
		}
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}
		next.ServeHTTP(w, r2)
	})
}

// RequireStaff ставится после RequireUser.
func (s *Server) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := userFrom(r)
		if u == nil || !u.IsStaff {
			writeError(w, http.StatusForbidden, "forbidden", "staff only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
