package server

import (
	"context"
	"net/http"

	"github.com/DanikLP1/filevault/internal/db"
)

type ctxKeyRequestID struct{}
type ctxKeyUser struct{}

// WithRequestID кладёт requestID в context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, id)
}

// RequestIDFrom достаёт requestID из context или возвращает пустую строку
func RequestIDFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyRequestID{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func requestIDFrom(r *http.Request) string {
	return RequestIDFrom(r.Context())
}

func withUser(ctx context.Context, u *db.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser{}, u)
}

// userFrom возвращает текущего пользователя или nil для анонимного запроса.
func userFrom(r *http.Request) *db.User {
	u, _ := r.Context().Value(ctxKeyUser{}).(*db.User)
	return u
}
