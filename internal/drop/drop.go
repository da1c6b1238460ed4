// Package drop: анонимные загрузки по короткой ссылке с ограниченным сроком жизни.
// Просроченные записи чистятся в начале каждой загрузки и скачивания, фонового таймера нет.
package drop

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/DanikLP1/filevault/internal/clock"
	"github.com/DanikLP1/filevault/internal/db"
	"github.com/DanikLP1/filevault/internal/storage"
	"github.com/dustin/go-humanize"
)

const (
	tokenAlphabet   = "abcdefghjkmnpqrstuvwxyz23456789"
	TokenLength     = 10
	DefaultLifetime = 72 * time.Hour

	reserveRetries    = 5
	defaultSweepBatch = 256
)

var (
	ErrNotFound    = errors.New("drop not found")
	ErrEmptyUpload = errors.New("empty upload")
)

type Options struct {
	Lifetime   time.Duration // 0 => DefaultLifetime
	MaxBytes   int64         // 0 => без ограничения
	SweepBatch int
}

type Service struct {
	db    *db.DB
	store *storage.Storage
	clock clock.Clock
	log   *slog.Logger
	opts  Options
}

func NewService(store *db.DB, blobs *storage.Storage, clk clock.Clock, log *slog.Logger, opts Options) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultLifetime
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = defaultSweepBatch
	}
	return &Service{db: store, store: blobs, clock: clk, log: log.With("comp", "drop"), opts: opts}
}

func NewToken() (string, error) {
	b := make([]byte, TokenLength)
	n := big.NewInt(int64(len(tokenAlphabet)))
	for i := range b {
		k, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("drop: random: %w", err)
		}
		b[i] = tokenAlphabet[k.Int64()]
	}
	return string(b), nil
}

func IsExpired(f *db.DropFile, now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

type UploadRequest struct {
	Body        io.Reader
	UploadName  string // имя части multipart
	Name        string // явно переданное имя
	ContentType string
	ExpiresAt   *time.Time
}

// Upload резервирует токен (pending), пишет байты и только потом помечает запись готовой.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*db.DropFile, error) {
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Warn("drop_upload.sweep_fail", "err", err)
	}

	now := s.clock.Now()
	expires := now.Add(s.opts.Lifetime)
	if req.ExpiresAt != nil && req.ExpiresAt.After(now) {
		expires = req.ExpiresAt.UTC()
	}

	f, err := s.reserve(ctx, now, expires)
	if err != nil {
		return nil, err
	}
	log := s.log.With("token", f.Token, "blob_id", f.BlobID)

	n, err := s.store.Put(ctx, f.BlobID, req.Body, storage.PutOpts{Size: -1, ContentType: req.ContentType}, s.opts.MaxBytes)
	if err == nil && n == 0 {
		err = ErrEmptyUpload
		if derr := s.store.Delete(ctx, f.BlobID); derr != nil {
			log.Error("drop_upload.cleanup_fail", "err", derr)
		}
	}
	if err != nil {
		if derr := s.db.DeleteDropFile(ctx, f.ID); derr != nil {
			log.Error("drop_upload.unreserve_fail", "err", derr)
		}
		log.Warn("drop_upload.write_fail", "err", err)
		return nil, err
	}

	meta := storage.DeriveMeta(req.Name, req.UploadName, req.ContentType, n)
	if err := s.db.MarkDropFileReady(ctx, f.ID, meta.Name, meta.Size, meta.ContentType); err != nil {
		s.remove(ctx, f)
		return nil, err
	}
	f.Name, f.Size, f.ContentType, f.State = meta.Name, meta.Size, meta.ContentType, db.DropStateReady

	log.Info("drop_upload.ok", "name", f.Name, "size", humanize.IBytes(uint64(f.Size)), "expires_at", f.ExpiresAt)
	return f, nil
}

func (s *Service) reserve(ctx context.Context, now, expires time.Time) (*db.DropFile, error) {
	for attempt := 0; attempt < reserveRetries; attempt++ {
		tok, err := NewToken()
		if err != nil {
			return nil, err
		}
		f := &db.DropFile{
			Token:     tok,
			BlobID:    db.GenBlobID("drop/" + tok),
			CreatedAt: now,
			ExpiresAt: expires,
		}
		err = s.db.ReserveDropFile(ctx, f)
		if errors.Is(err, db.ErrAlreadyExists) {
			s.log.Warn("drop_upload.token_collision", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("drop: no free token after %d attempts", reserveRetries)
}

type Download struct {
	File *db.DropFile
	Body io.ReadCloser
}

// Fetch отдаёт файл по токену. Просроченная ссылка удаляется и неотличима от несуществующей.
func (s *Service) Fetch(ctx context.Context, token string) (*Download, error) {
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Warn("drop_download.sweep_fail", "err", err)
	}

	f, err := s.db.FindDropFileByToken(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if f.State != db.DropStateReady {
		return nil, ErrNotFound
	}
	if IsExpired(f, s.clock.Now()) {
		s.remove(ctx, f)
		return nil, ErrNotFound
	}

	rc, err := s.store.Open(ctx, f.BlobID)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Error("drop_download.blob_missing", "token", f.Token, "blob_id", f.BlobID)
		s.remove(ctx, f)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Download{File: f, Body: rc}, nil
}

// remove: сначала байты, потом запись. Если байты не удалились, запись остаётся до следующего прохода.
func (s *Service) remove(ctx context.Context, f *db.DropFile) bool {
	if err := s.store.Delete(ctx, f.BlobID); err != nil {
		s.log.Error("sweep.storage_delete_fail", "blob_id", f.BlobID, "err", err)
		return false
	}
	if err := s.db.DeleteDropFile(ctx, f.ID); err != nil {
		s.log.Error("sweep.db_delete_fail", "token", f.Token, "err", err)
		return false
	}
	return true
}

type SweepStats struct {
	Deleted    int
	FreedBytes int64
}

// Sweep удаляет все просроченные drop-файлы (expires_at <= now) вместе с байтами,
// страницами по SweepBatch. Проход заканчивается на неполной странице или на
// странице, где ничего не удалось удалить.
func (s *Service) Sweep(ctx context.Context) (SweepStats, error) {
	var st SweepStats
	start := time.Now()
	now := s.clock.Now()
	batch := s.opts.SweepBatch
	began := false

	for {
		rows, err := s.db.ListExpiredDropFiles(ctx, now, batch)
		if err != nil {
			return st, err
		}
		if len(rows) == 0 {
			break
		}
		if !began {
			s.log.Info("sweep.pass_begin", "candidates", len(rows))
			began = true
		}

		deleted := 0
		for i := range rows {
			f := &rows[i]
			if !s.remove(ctx, f) {
				continue
			}
			deleted++
			st.FreedBytes += f.Size
			s.log.Debug("sweep.deleted", "token", f.Token, "size", f.Size)
		}
		st.Deleted += deleted
		if deleted == 0 || len(rows) < batch {
			break
		}
	}
	if !began {
		return st, nil
	}

	s.log.Info("sweep.pass_end",
		"deleted_files", st.Deleted,
		"freed", humanize.IBytes(uint64(st.FreedBytes)),
		"dur_ms", time.Since(start).Milliseconds(),
	)
	return st, nil
}

// Expire переносит срок жизни ссылки. Нужен администрированию и тестам.
func (s *Service) Expire(ctx context.Context, token string, at time.Time) error {
	f, err := s.db.FindDropFileByToken(ctx, token)
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return s.db.SetDropFileExpiry(ctx, f.ID, at.UTC())
}
