package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/arquivotcm/fichas/internal/common"
)

// Store is the document store the pipeline reads scanned files from.
// Both the local filesystem and GCS implementations satisfy it.
type Store interface {
	Put(ctx context.Context, reader io.Reader, objectName, contentType string) (*PutResult, error)
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	Delete(ctx context.Context, objectName string) error
	Close() error
}

// PutResult describes a stored document.
type PutResult struct {
	ObjectName string `json:"object_name"`
	Size       int64  `json:"size"`
}

// DocumentObjectName builds the storage key for an uploaded scan.
func DocumentObjectName(jobID, filename string) string {
	return fmt.Sprintf("fichas/%s/%d_%s", jobID, time.Now().Unix(), filename)
}

// New builds the configured backend.
func New(ctx context.Context, cfg common.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalStore(cfg.BasePath)
	case "gcs":
		return NewGCSStore(ctx, cfg.Bucket)
	}
	return nil, common.ConfigurationError(fmt.Sprintf("unknown storage backend %q", cfg.Backend))
}
