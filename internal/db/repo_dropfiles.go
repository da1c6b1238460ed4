package db

import (
	"context"
	"time"
)

// ReserveDropFile: запись в состоянии pending до того, как байты записаны.
func (db *DB) ReserveDropFile(ctx context.Context, f *DropFile) error {
	f.State = DropStatePending
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (db *DB) MarkDropFileReady(ctx context.Context, id uint, name string, size int64, contentType string) error {
	res := db.WithContext(ctx).Model(&DropFile{}).Where("id = ?", id).Updates(map[string]any{
		"name":         name,
		"size":         size,
		"content_type": contentType,
		"state":        DropStateReady,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) FindDropFileByToken(ctx context.Context, token string) (*DropFile, error) {
	var f DropFile
	if err := db.WithContext(ctx).Where("token = ?", token).Take(&f).Error; err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// ListExpiredDropFiles: expires_at <= now, самые старые первыми.
func (db *DB) ListExpiredDropFiles(ctx context.Context, now time.Time, limit int) ([]DropFile, error) {
	if limit <= 0 {
		limit = 256
	}
	var out []DropFile
	err := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (db *DB) SetDropFileExpiry(ctx context.Context, id uint, expiresAt time.Time) error {
	return db.WithContext(ctx).Model(&DropFile{}).Where("id = ?", id).Update("expires_at", expiresAt).Error
}

func (db *DB) DeleteDropFile(ctx context.Context, id uint) error {
	return db.WithContext(ctx).Delete(&DropFile{}, id).Error
}
