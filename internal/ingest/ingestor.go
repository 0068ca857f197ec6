package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
)

// Submitter is the slice of the intake pipeline the ingestor needs.
type Submitter interface {
	Submit(ctx context.Context, doc io.Reader, filename, contentType string, templateID *uuid.UUID) (*entity.OcrJob, error)
}

// FileResult is the per-file ingest outcome.
type FileResult struct {
	Path         string
	JobID        uuid.UUID
	Deduplicated bool
	HashHex      string
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor feeds files from the filesystem into the import pipeline.
// Content hashes are remembered for the life of the ingestor, so the same
// scan dropped twice only creates one job.
type Ingestor struct {
	logger     *slog.Logger
	intake     Submitter
	templateID *uuid.UUID

	mu   sync.Mutex
	seen map[string]uuid.UUID
}

func NewIngestor(logger *slog.Logger, intake Submitter, templateID *uuid.UUID) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		logger:     logger,
		intake:     intake,
		templateID: templateID,
		seen:       map[string]uuid.UUID{},
	}
}

// IngestPath submits a single file. An unsupported extension is an error;
// a content hash seen before is reported as a dedup, not resubmitted.
func (g *Ingestor) IngestPath(ctx context.Context, path string) (FileResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileResult{Path: path}, common.WrapError(err, "resolve path")
	}
	if !allowedPath(abs, defaultExts) {
		return FileResult{Path: abs}, fmt.Errorf("%w: unsupported extension: %q", common.ErrInvalidInput, filepath.Ext(abs))
	}

	f, err := os.Open(abs)
	if err != nil {
		return FileResult{Path: abs}, common.WrapError(err, "open file")
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return FileResult{Path: abs}, common.WrapError(err, "hash file")
	}
	hashHex := hex.EncodeToString(h.Sum(nil))

	g.mu.Lock()
	if jobID, dup := g.seen[hashHex]; dup {
		g.mu.Unlock()
		g.logger.Info("duplicate scan skipped", "path", abs, "job_id", jobID)
		return FileResult{Path: abs, JobID: jobID, Deduplicated: true, HashHex: hashHex}, nil
	}
	g.mu.Unlock()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return FileResult{Path: abs}, common.WrapError(err, "rewind file")
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(abs)))
	job, err := g.intake.Submit(ctx, f, filepath.Base(abs), contentType, g.templateID)
	if err != nil {
		return FileResult{Path: abs, HashHex: hashHex, Err: err.Error()}, err
	}

	g.mu.Lock()
	g.seen[hashHex] = job.ID
	g.mu.Unlock()
	return FileResult{Path: abs, JobID: job.ID, HashHex: hashHex}, nil
}

// IngestDirectory walks root and submits every matching file, skipping
// hidden entries. Per-file failures are collected, not fatal.
func (g *Ingestor) IngestDirectory(ctx context.Context, root string) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.ConfigurationError("root path is required")
	}
	var (
		results []FileResult
		stats   DirStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if isHidden(path) && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		stats.Scanned++
		if isHidden(path) || !allowedPath(path, defaultExts) {
			return nil
		}
		stats.Matched++
		res, err := g.IngestPath(ctx, path)
		switch {
		case err != nil:
			stats.Failed++
		case res.Deduplicated:
			stats.Deduplicated++
		default:
			stats.Succeeded++
		}
		results = append(results, res)
		return ctx.Err()
	})
	if err != nil {
		return results, stats, common.WrapError(err, "walk directory")
	}
	g.logger.Info("directory ingested", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched,
		"succeeded", stats.Succeeded, "deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}

// Run watches cfg.Root and submits files as they appear, until ctx ends.
func (g *Ingestor) Run(ctx context.Context, cfg WatchConfig) error {
	paths, errs, err := StartWatcher(ctx, cfg, g.logger)
	if err != nil {
		return err
	}
	g.logger.Info("watching drop directory", "root", cfg.Root, "initial_scan", cfg.InitialScan)
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-paths:
			if !ok {
				return nil
			}
			if _, err := g.IngestPath(ctx, path); err != nil {
				g.logger.Warn("drop file rejected", "path", path, "error", err)
			}
		case err, ok := <-errs:
			if ok && err != nil {
				g.logger.Error("watcher error", "error", err)
			}
		}
	}
}
