package fsdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/DanikLP1/filevault/internal/storage"
	"github.com/oklog/ulid/v2"
)

var errBadBlobID = errors.New("fsdriver: invalid blob id")

type FS struct {
	Root string
}

func New(root string) *FS { return &FS{Root: root} }

// pathFor: "u/42/01j..." -> <root>/blobs/u/42/01j....bin
func (fs *FS) pathFor(id storage.BlobID) (dir, tmp, final string, err error) {
	s := string(id)
	if s == "" || strings.HasPrefix(s, "/") || strings.Contains(s, "\\") {
		return "", "", "", errBadBlobID
	}
	if clean := path.Clean(s); clean != s || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", "", errBadBlobID
	}
	final = filepath.Join(fs.Root, "blobs", filepath.FromSlash(s)) + ".bin"
	dir = filepath.Dir(final)
	tmp = final + ".tmp-" + ulid.Make().String()
	return dir, tmp, final, nil
}

type writeSession struct {
	tmpPath   string
	finalPath string
	dirPath   string
	f         *os.File
	written   int64
}

func (fs *FS) BeginWrite(ctx context.Context, id storage.BlobID, opts storage.PutOpts) (storage.WriteSession, error) {
	dir, tmp, final, err := fs.pathFor(id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return &writeSession{
		tmpPath:   tmp,
		finalPath: final,
		dirPath:   dir,
		f:         f,
	}, nil
}

func (ws *writeSession) Writer() io.Writer { return ws }

func (ws *writeSession) Write(p []byte) (int, error) {
	n, err := ws.f.Write(p)
	ws.written += int64(n)
	return n, err
}

func (ws *writeSession) Commit(ctx context.Context) error {
	if err := ws.f.Sync(); err != nil {
		_ = ws.f.Close()
		_ = os.Remove(ws.tmpPath)
		return err
	}
	if err := ws.f.Close(); err != nil {
		_ = os.Remove(ws.tmpPath)
		return err
	}
	if err := os.Rename(ws.tmpPath, ws.finalPath); err != nil {
		_ = os.Remove(ws.tmpPath)
		return err
	}

	// fsync каталога, чтобы rename пережил падение
	if dir, err := os.Open(ws.dirPath); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

func (ws *writeSession) Abort(ctx context.Context) error {
	_ = ws.f.Close()
	return os.Remove(ws.tmpPath)
}

func (fs *FS) ReadAt(ctx context.Context, id storage.BlobID, off int64, n int64) (io.ReadCloser, error) {
	_, _, final, err := fs.pathFor(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(final)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		return nil, err
	}
	if off > 0 {
		if _, err := f.Seek(off, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	if n >= 0 {
		return struct {
			io.Reader
			io.Closer
		}{Reader: io.LimitReader(f, n), Closer: f}, nil
	}
	return f, nil
}

func (fs *FS) Stat(ctx context.Context, id storage.BlobID) (int64, bool, error) {
	_, _, final, err := fs.pathFor(id)
	if err != nil {
		return 0, false, err
	}
	fi, err := os.Stat(final)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return fi.Size(), true, nil
}

func (fs *FS) Delete(ctx context.Context, id storage.BlobID) error {
	_, _, final, err := fs.pathFor(id)
	if err != nil {
		return err
	}
	err = os.Remove(final)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	// пустые каталоги drop/<token>/ больше не нужны; ошибки не важны
	dir := filepath.Dir(final)
	blobs := filepath.Join(fs.Root, "blobs")
	for dir != blobs && strings.HasPrefix(dir, blobs) {
		if os.Remove(dir) != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}
