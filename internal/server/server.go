package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DanikLP1/filevault/internal/config"
	"github.com/DanikLP1/filevault/internal/db"
	"github.com/DanikLP1/filevault/internal/drop"
	"github.com/DanikLP1/filevault/internal/files"
	"github.com/DanikLP1/filevault/internal/promo"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Deps struct {
	DB     *db.DB
	Promos *promo.Service
	Drops  *drop.Service
	Files  *files.Service
	Config config.Config
	Logger *slog.Logger
}

type Server struct {
	db     *db.DB
	promos *promo.Service
	drops  *drop.Service
	files  *files.Service
	cfg    config.Config
	Logger *slog.Logger
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		db:     d.DB,
		promos: d.Promos,
		drops:  d.Drops,
		files:  d.Files,
		cfg:    d.Config,
		Logger: logger,
	}
}

// Router возвращает http.Handler, который вешается в main.go
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.WithRequestLogger)
	r.Use(s.WithRecover)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", "database unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	// анонимные drop-ссылки
	r.Post("/drop/upload", s.handleDropUpload)
	r.Get("/s/{token}", s.handleDropDownload)

	r.Route("/api", func(r chi.Router) {
		r.With(s.OptionalUser).Get("/pricing", s.handlePricing)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireUser)
			r.Get("/me", s.handleMe)
			r.Post("/promos/redeem", s.handleRedeem)
			r.Get("/redemptions", s.handleRedemptions)

			r.Get("/files", s.handleListFiles)
			r.Post("/files", s.handleUploadFile)
			r.Get("/trash", s.handleTrash)
			r.Get("/files/{id}", s.handleDownloadFile)
			r.Post("/files/{id}/delete", s.handleDeleteFile)
			r.Post("/files/{id}/restore", s.handleRestoreFile)
			r.Post("/files/{id}/purge", s.handlePurgeFile)

			r.Group(func(r chi.Router) {
				r.Use(s.RequireStaff)
				r.Get("/promos", s.handleListPromos)
				r.Post("/promos/generate", s.handleGeneratePromos)
				r.Delete("/promos/{id}", s.handleDeletePromo)
			})
		})
	})

	return r
}

// Handler отдаёт роутер, обёрнутый для отслеживания начатого ответа.
func (s *Server) Handler() http.Handler {
	return WrapWriteCheck(s.Router())
}

// HTTPServer собирает http.Server с таймаутами на заголовки; тело не ограничено по времени (большие загрузки).
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
