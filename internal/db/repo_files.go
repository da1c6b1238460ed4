package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

func (db *DB) CreateFileTx(tx *gorm.DB, f *File) error {
	return tx.Omit("Owner").Create(f).Error
}

// UsedBytesTx: сумма размеров файлов вне корзины.
func (db *DB) UsedBytesTx(tx *gorm.DB, ownerID uint) (int64, error) {
	var used int64
	err := tx.Model(&File{}).
		Select("COALESCE(SUM(size), 0)").
		Where("owner_id = ? AND is_deleted = ?", ownerID, false).
		Scan(&used).Error
	return used, err
}

func (db *DB) UsedBytes(ctx context.Context, ownerID uint) (int64, error) {
	return db.UsedBytesTx(db.WithContext(ctx), ownerID)
}

func (db *DB) FindOwnedFile(ctx context.Context, ownerID, id uint, deleted bool) (*File, error) {
	var f File
	err := db.WithContext(ctx).
		Where("id = ? AND owner_id = ? AND is_deleted = ?", id, ownerID, deleted).
		Take(&f).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// ListFiles: deleted=false отдаёт активные (новые сверху), deleted=true корзину (по deleted_at).
func (db *DB) ListFiles(ctx context.Context, ownerID uint, deleted bool, limit int) ([]File, error) {
	q := db.WithContext(ctx).Where("owner_id = ? AND is_deleted = ?", ownerID, deleted)
	if deleted {
		q = q.Order("deleted_at DESC")
	} else {
		q = q.Order("uploaded_at DESC")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []File
	err := q.Order("id DESC").Find(&out).Error
	return out, err
}

// SetFileDeleted переводит файл в корзину (at != nil) или возвращает из неё (at == nil).
func (db *DB) SetFileDeleted(ctx context.Context, ownerID, id uint, at *time.Time) error {
	wasDeleted := at == nil
	res := db.WithContext(ctx).Model(&File{}).
		Where("id = ? AND owner_id = ? AND is_deleted = ?", id, ownerID, wasDeleted).
		Updates(map[string]any{
			"is_deleted": at != nil,
			"deleted_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) DeleteFileRecord(ctx context.Context, id uint) error {
	return db.WithContext(ctx).Delete(&File{}, id).Error
}
