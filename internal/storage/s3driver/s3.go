// Package s3driver хранит блобы в S3-совместимом хранилище (AWS, MinIO).
package s3driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/DanikLP1/filevault/internal/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// objectAPI: подмножество *s3.Client, которое нужно драйверу.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Options struct {
	Bucket    string
	Region    string
	Endpoint  string // пусто => AWS
	AccessKey string
	SecretKey string
	PathStyle bool // MinIO
}

type Driver struct {
	client objectAPI
	bucket string
	tmpDir string
}

func New(ctx context.Context, opts Options) (*Driver, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("s3driver: load config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return newWithClient(client, opts.Bucket), nil
}

func newWithClient(c objectAPI, bucket string) *Driver {
	return &Driver{client: c, bucket: bucket}
}

// writeSession буферизует тело во временный файл: PutObject нужен известный размер.
type writeSession struct {
	d    *Driver
	key  string
	ct   string
	f    *os.File
	done bool
}

func (d *Driver) BeginWrite(ctx context.Context, id storage.BlobID, opts storage.PutOpts) (storage.WriteSession, error) {
	f, err := os.CreateTemp(d.tmpDir, "s3put-*")
	if err != nil {
		return nil, err
	}
	return &writeSession{d: d, key: string(id), ct: opts.ContentType, f: f}, nil
}

func (ws *writeSession) Writer() io.Writer { return ws.f }

func (ws *writeSession) cleanup() {
	if ws.done {
		return
	}
	ws.done = true
	_ = ws.f.Close()
	_ = os.Remove(ws.f.Name())
}

func (ws *writeSession) Commit(ctx context.Context) error {
	defer ws.cleanup()
	size, err := ws.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := ws.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket:        aws.String(ws.d.bucket),
		Key:           aws.String(ws.key),
		Body:          ws.f,
		ContentLength: aws.Int64(size),
	}
	if ws.ct != "" {
		in.ContentType = aws.String(ws.ct)
	}
	_, err = ws.d.client.PutObject(ctx, in)
	return err
}

func (ws *writeSession) Abort(ctx context.Context) error {
	ws.cleanup()
	return nil
}

func (d *Driver) ReadAt(ctx context.Context, id storage.BlobID, off int64, n int64) (io.ReadCloser, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(string(id)),
	}
	switch {
	case n == 0:
		return io.NopCloser(strings.NewReader("")), nil
	case n > 0:
		in.Range = aws.String(fmt.Sprintf("bytes=%d-%d", off, off+n-1))
	case off > 0:
		in.Range = aws.String(fmt.Sprintf("bytes=%d-", off))
	}
	out, err := d.client.GetObject(ctx, in)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		return nil, err
	}
	return out.Body, nil
}

func (d *Driver) Stat(ctx context.Context, id storage.BlobID) (int64, bool, error) {
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(string(id)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return aws.ToInt64(out.ContentLength), true, nil
}

// Delete: S3 отвечает успехом и для отсутствующего ключа.
func (d *Driver) Delete(ctx context.Context, id storage.BlobID) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(string(id)),
	})
	return err
}
