package storage

import (
	"context"
	"errors"
	"io"
)

// BlobID: ключ блоба вида "u/<owner>/<ulid>" или "drop/<token>/<ulid>".
type BlobID string

var ErrNotFound = errors.New("blob not found")
var ErrTooLarge = errors.New("blob exceeds size limit")

type PutOpts struct {
	Size        int64 // -1 если неизвестен
	ContentType string
}

type StorageDriver interface {
	BeginWrite(ctx context.Context, id BlobID, opts PutOpts) (WriteSession, error)
	ReadAt(ctx context.Context, id BlobID, off int64, n int64) (io.ReadCloser, error)
	Stat(ctx context.Context, id BlobID) (size int64, exists bool, err error)
	Delete(ctx context.Context, id BlobID) error
}

type WriteSession interface {
	Writer() io.Writer
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}
