package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arquivotcm/fichas/internal/common"
)

// Extensions accepted for discovery (lowercase, without '.').
var defaultExts = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

// WatchConfig describes one drop directory to monitor for scanned fichas.
type WatchConfig struct {
	Root        string
	AllowedExts map[string]struct{}
	InitialScan bool          // walk the root and emit existing files first
	Debounce    time.Duration // coalesce rapid write/rename bursts
}

// StartWatcher watches the root recursively and emits the paths of files
// that appear or change under it. The channels close when ctx ends.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, nil, common.ConfigurationError("watch root is required")
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = defaultExts
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, common.WrapError(err, "create watcher")
	}

	err = filepath.WalkDir(cfg.Root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.Add(path)
		}
		if cfg.InitialScan && allowedPath(path, cfg.AllowedExts) {
			select {
			case evCh <- path:
			default:
			}
		}
		return nil
	})
	if err != nil {
		_ = w.Close()
		return nil, nil, common.WrapError(err, "watch root")
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer w.Close()

		pending := map[string]struct{}{}

		// the timer fires into the select below, so pending and evCh
		// stay on this goroutine
		timer := time.NewTimer(time.Hour)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		flush := func() {
			for p := range pending {
				select {
				case evCh <- p:
				default:
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				flush()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op.Has(fsnotify.Create) {
					// a new directory must be watched too; Add on a plain
					// file fails and is ignored
					if err := w.Add(e.Name); err != nil {
						logger.Debug("watch add skipped", "path", e.Name)
					}
				}
				if allowedPath(e.Name, cfg.AllowedExts) && e.Op.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
					pending[e.Name] = struct{}{}
					if cfg.Debounce > 0 {
						if !timer.Stop() {
							select {
							case <-timer.C:
							default:
							}
						}
						timer.Reset(cfg.Debounce)
					} else {
						flush()
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func allowedPath(path string, exts map[string]struct{}) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	_, ok := exts[ext]
	return ok
}

// isHidden reports dotfiles and dot-directories, which scanners and
// editors create as temporaries.
func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
