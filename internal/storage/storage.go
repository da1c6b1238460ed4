package storage

import (
	"context"
	"io"
)

type Storage struct {
	driver StorageDriver
}

func NewWithDriver(d StorageDriver) *Storage {
	return &Storage{driver: d}
}

func (s *Storage) Driver() StorageDriver {
	return s.driver
}

// Put стримит r в блоб и возвращает число записанных байт.
// maxBytes > 0 ограничивает размер: при превышении запись отменяется с ErrTooLarge.
func (s *Storage) Put(ctx context.Context, id string, r io.Reader, opts PutOpts, maxBytes int64) (int64, error) {
	ws, err := s.driver.BeginWrite(ctx, BlobID(id), opts)
	if err != nil {
		return 0, err
	}
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(ws.Writer(), src)
	if err != nil {
		_ = ws.Abort(ctx)
		return n, err
	}
	if maxBytes > 0 && n > maxBytes {
		_ = ws.Abort(ctx)
		return n, ErrTooLarge
	}
	if err := ws.Commit(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// Open: весь блоб целиком.
func (s *Storage) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	return s.driver.ReadAt(ctx, BlobID(id), 0, -1)
}

func (s *Storage) ReadAt(ctx context.Context, id string, off int64, n int64) (io.ReadCloser, error) {
	return s.driver.ReadAt(ctx, BlobID(id), off, n)
}

func (s *Storage) Stat(ctx context.Context, id string) (int64, bool, error) {
	return s.driver.Stat(ctx, BlobID(id))
}

// Delete идемпотентен: отсутствующий блоб не считается ошибкой.
func (s *Storage) Delete(ctx context.Context, id string) error {
	return s.driver.Delete(ctx, BlobID(id))
}
