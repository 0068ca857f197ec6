package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"

	"github.com/arquivotcm/fichas/internal/common"
)

// GCSStore keeps documents in a Cloud Storage bucket. Credentials come
// from the ambient application-default chain.
type GCSStore struct {
	client *gcs.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, common.ConfigurationError("gcs storage backend requires a bucket")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (g *GCSStore) Put(ctx context.Context, reader io.Reader, objectName, contentType string) (*PutResult, error) {
	w := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	n, err := io.Copy(w, reader)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("upload %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize %s: %w", objectName, err)
	}
	return &PutResult{ObjectName: objectName, Size: n}, nil
}

func (g *GCSStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucket).Object(objectName).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: document %q", common.ErrNotFound, objectName)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", objectName, err)
	}
	return r, nil
}

func (g *GCSStore) Delete(ctx context.Context, objectName string) error {
	err := g.client.Bucket(g.bucket).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", objectName, err)
	}
	return nil
}

func (g *GCSStore) Close() error { return g.client.Close() }
