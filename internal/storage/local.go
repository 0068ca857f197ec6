package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arquivotcm/fichas/internal/common"
)

// LocalStore keeps documents under a base directory. Object names map to
// relative paths; traversal outside the base is rejected.
type LocalStore struct {
	basePath string
}

func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage directory: %w", err)
	}
	return &LocalStore{basePath: abs}, nil
}

func (l *LocalStore) resolve(objectName string) (string, error) {
	full := filepath.Join(l.basePath, filepath.FromSlash(objectName))
	if !strings.HasPrefix(full, l.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: object name escapes storage root: %q", common.ErrInvalidInput, objectName)
	}
	return full, nil
}

func (l *LocalStore) Put(ctx context.Context, reader io.Reader, objectName, contentType string) (*PutResult, error) {
	full, err := l.resolve(objectName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", objectName, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", objectName, err)
	}
	defer f.Close()
	n, err := io.Copy(f, reader)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", objectName, err)
	}
	return &PutResult{ObjectName: objectName, Size: n}, nil
}

func (l *LocalStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	full, err := l.resolve(objectName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: document %q", common.ErrNotFound, objectName)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", objectName, err)
	}
	return f, nil
}

func (l *LocalStore) Delete(ctx context.Context, objectName string) error {
	full, err := l.resolve(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", objectName, err)
	}
	return nil
}

func (l *LocalStore) Close() error { return nil }
