package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
)

// ErrNoBlob is returned by Blobs.Get for a key that was never written.
var ErrNoBlob = errors.New("blob does not exist")

// Blobs is a key-value blob store.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// FileBlobs stores each key as <dir>/<key>.csv.
type FileBlobs struct {
	Dir string
}

func (b FileBlobs) path(key string) string {
	return filepath.Join(b.Dir, key+".csv")
}

// Get reads a blob from disk.
func (b FileBlobs) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoBlob
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// Put replaces a blob on disk. The write goes to a temporary file that is
// renamed over the old one, so readers never see a partial blob.
func (b FileBlobs) Put(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", b.Dir, err)
	}
	tmp, err := os.CreateTemp(b.Dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), b.path(key)); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

// GCSBlobs stores each key as gs://<bucket>/<prefix>/<key>.csv.
type GCSBlobs struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSBlobs wraps an existing storage client. The caller closes it.
func NewGCSBlobs(client *storage.Client, bucket, prefix string) *GCSBlobs {
	return &GCSBlobs{client: client, bucket: bucket, prefix: prefix}
}

func (b *GCSBlobs) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(path.Join(b.prefix, key+".csv"))
}

// Get downloads a blob.
func (b *GCSBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := b.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNoBlob
	}
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader for %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object %s: %w", key, err)
	}
	return data, nil
}

// Put uploads a blob. GCS object writes are atomic; the object is replaced
// only when Close succeeds.
func (b *GCSBlobs) Put(ctx context.Context, key string, data []byte) error {
	w := b.object(key).NewWriter(ctx)
	w.ContentType = "text/csv"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload of %s: %w", key, err)
	}
	return nil
}

// MemBlobs is an in-memory Blobs, for tests and dry runs.
type MemBlobs struct {
	Data map[string][]byte
	Fail map[string]error // per-key Put failure
}

// NewMemBlobs creates an empty MemBlobs.
func NewMemBlobs() *MemBlobs {
	return &MemBlobs{Data: make(map[string][]byte), Fail: make(map[string]error)}
}

// Get returns a copy of the stored blob.
func (b *MemBlobs) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := b.Data[key]
	if !ok {
		return nil, ErrNoBlob
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data unless a failure is configured for key.
func (b *MemBlobs) Put(_ context.Context, key string, data []byte) error {
	if err := b.Fail[key]; err != nil {
		return err
	}
	b.Data[key] = append([]byte(nil), data...)
	return nil
}
