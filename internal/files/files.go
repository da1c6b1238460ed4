// Package files хранит файлы пользователя в пределах квоты и ведёт корзину.
package files

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/DanikLP1/filevault/internal/clock"
	"github.com/DanikLP1/filevault/internal/db"
	"github.com/DanikLP1/filevault/internal/storage"
	"github.com/dustin/go-humanize"
	"gorm.io/gorm"
)

var (
	ErrNotFound             = errors.New("file not found")
	ErrQuotaExceeded        = errors.New("storage quota exceeded")
	ErrSubscriptionRequired = errors.New("subscription required")
	ErrEmptyUpload          = errors.New("empty upload")
)

type Options struct {
	MaxBytes int64 // 0 => без ограничения на один файл
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
	return &Service{db: store, store: blobs, clock: clk, log: log.With("comp", "files"), opts: opts}
}

type UploadRequest struct {
	Body        io.Reader
	UploadName  string
	Name        string
	ContentType string
}

// Upload: байты пишутся до транзакции, запись создаётся под блокировкой пользователя
// после проверки квоты. Если транзакция не прошла, байты удаляются.
func (s *Service) Upload(ctx context.Context, ownerID uint, req UploadRequest) (*db.File, error) {
	u, err := s.db.FindUserByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !u.IsSubscribed {
		return nil, ErrSubscriptionRequired
	}

	log := s.log.With("owner_id", ownerID)
	blobID := db.GenBlobID("u/" + uintStr(ownerID))
	// одна загрузка не может быть больше всей квоты
	limit := max(u.StorageQuota, 0)
	quotaBound := true
	if s.opts.MaxBytes > 0 && s.opts.MaxBytes < limit {
		limit = s.opts.MaxBytes
		quotaBound = false
	}
	if limit == 0 {
		return nil, ErrQuotaExceeded
	}
	n, err := s.store.Put(ctx, blobID, req.Body, storage.PutOpts{Size: -1, ContentType: req.ContentType}, limit)
	if errors.Is(err, storage.ErrTooLarge) && quotaBound {
		return nil, ErrQuotaExceeded
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		_ = s.store.Delete(ctx, blobID)
		return nil, ErrEmptyUpload
	}

	meta := NewMeta(req, n)
	f := &db.File{
		OwnerID:     ownerID,
		BlobID:      blobID,
		Name:        meta.Name,
		Size:        meta.Size,
		ContentType: meta.ContentType,
		UploadedAt:  s.clock.Now(),
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		u, err := s.db.LockUserTx(tx, ownerID)
		if err != nil {
			return err
		}
		if !u.IsSubscribed {
			return ErrSubscriptionRequired
		}
		used, err := s.db.UsedBytesTx(tx, ownerID)
		if err != nil {
			return err
		}
		if used+f.Size > u.StorageQuota {
			return ErrQuotaExceeded
		}
		return s.db.CreateFileTx(tx, f)
	})
	if err != nil {
		if derr := s.store.Delete(ctx, blobID); derr != nil {
			log.Error("upload.cleanup_fail", "blob_id", blobID, "err", derr)
		}
		log.Warn("upload.rejected", "size", n, "err", err)
		return nil, err
	}
	log.Info("upload.ok", "file_id", f.ID, "name", f.Name, "size", humanize.IBytes(uint64(f.Size)))
	return f, nil
}

// NewMeta: явный шаг вывода метаданных перед созданием записи.
func NewMeta(req UploadRequest, written int64) storage.Meta {
	return storage.DeriveMeta(req.Name, req.UploadName, req.ContentType, written)
}

func (s *Service) List(ctx context.Context, ownerID uint, limit int) ([]db.File, error) {
	return s.db.ListFiles(ctx, ownerID, false, limit)
}

func (s *Service) Trash(ctx context.Context, ownerID uint) ([]db.File, error) {
	return s.db.ListFiles(ctx, ownerID, true, 0)
}

type Download struct {
	File *db.File
	Body io.ReadCloser
}

// Open: только свои файлы вне корзины.
func (s *Service) Open(ctx context.Context, ownerID, id uint) (*Download, error) {
	f, err := s.db.FindOwnedFile(ctx, ownerID, id, false)
	if err != nil {
		return nil, mapNotFound(err)
	}
	rc, err := s.store.Open(ctx, f.BlobID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &Download{File: f, Body: rc}, nil
}

// Delete переносит файл в корзину.
func (s *Service) Delete(ctx context.Context, ownerID, id uint) error {
	now := s.clock.Now()
	return mapNotFound(s.db.SetFileDeleted(ctx, ownerID, id, &now))
}

func (s *Service) Restore(ctx context.Context, ownerID, id uint) error {
	return mapNotFound(s.db.SetFileDeleted(ctx, ownerID, id, nil))
}

// Purge удаляет файл из корзины окончательно: сначала байты, потом запись.
// Если запись удалить не вышло, она остаётся в корзине без байтов, и повторный
// Purge её дочищает (Delete в хранилище идемпотентен).
func (s *Service) Purge(ctx context.Context, ownerID, id uint) error {
	f, err := s.db.FindOwnedFile(ctx, ownerID, id, true)
	if err != nil {
		return mapNotFound(err)
	}
	if err := s.store.Delete(ctx, f.BlobID); err != nil {
		s.log.Error("purge.storage_delete_fail", "file_id", f.ID, "blob_id", f.BlobID, "err", err)
		return err
	}
	if err := s.db.DeleteFileRecord(ctx, f.ID); err != nil {
		s.log.Error("purge.db_delete_fail", "file_id", f.ID, "blob_id", f.BlobID, "err", err)
		return err
	}
	s.log.Info("purge.ok", "owner_id", ownerID, "file_id", f.ID, "freed", humanize.IBytes(uint64(f.Size)))
	return nil
}

type Usage struct {
	Used    int64 `json:"used"`
	Quota   int64 `json:"quota"`
	Percent int   `json:"percent"`
}

// UsagePercent: целое, не больше 100; при нулевой квоте 0.
func UsagePercent(used, quota int64) int {
	if quota <= 0 {
		return 0
	}
	return int(min(used*100/quota, 100))
}

func (s *Service) Usage(ctx context.Context, u *db.User) (Usage, error) {
	used, err := s.db.UsedBytes(ctx, u.ID)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Used: used, Quota: u.StorageQuota, Percent: UsagePercent(used, u.StorageQuota)}, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, db.ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func uintStr(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
