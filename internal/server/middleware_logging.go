package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const ctxLoggerKey ctxKey = "logger"

type statusWriter struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *statusWriter) HeaderWritten() bool { return w.wroteHeader }

func (s *Server) WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				loggerFrom(r).Error("panic", "req_id", requestIDFrom(r), "err", rec)
				if responseAlreadyWritten(w) {
					return
				}
				writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) WithRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.NewString()
		}
		ctx := WithRequestID(r.Context(), reqID)

		l := s.Logger.With(
			slog.String("req_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
		)
		ctx = context.WithValue(ctx, ctxLoggerKey, l)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		ww.Header().Set("X-Request-Id", reqID)

		next.ServeHTTP(ww, r.WithContext(ctx))

		l.Info("request",
			slog.Int("status", ww.status),
			slog.Duration("dur", time.Since(start)),
			slog.Int64("bytes", ww.written),
		)
	})
}

// helper: взять логгер из контекста
func loggerFrom(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(ctxLoggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
