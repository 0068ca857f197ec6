package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arquivotcm/fichas/internal/entity"
	"github.com/arquivotcm/fichas/internal/repository"
)

// Watchdog expires jobs stuck in processing. Status polls expire the
// polled job inline; Run adds a periodic sweep over the whole table for
// jobs nobody polls.
type Watchdog struct {
	logger     *slog.Logger
	jobs       repository.OcrJobRepository
	staleAfter time.Duration
	now        func() time.Time
}

func NewWatchdog(logger *slog.Logger, jobs repository.OcrJobRepository, staleAfter time.Duration) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		logger:     logger,
		jobs:       jobs,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// GetStatus loads a job for a status poll, first expiring it if it went
// stale. The returned job reflects the post-check state.
func (w *Watchdog) GetStatus(ctx context.Context, jobID uuid.UUID) (*entity.OcrJob, error) {
	if err := w.CheckStale(ctx, jobID); err != nil {
		return nil, err
	}
	return w.jobs.GetByID(ctx, jobID)
}

// CheckStale conditionally fails a processing job whose started_at is
// older than the staleness window. Unknown jobs are a no-op, per the
// same rule the worker follows.
func (w *Watchdog) CheckStale(ctx context.Context, jobID uuid.UUID) error {
	now := w.now()
	expired, err := w.jobs.MarkStaleIfExpired(ctx, jobID, now.Add(-w.staleAfter), now)
	if err != nil {
		return err
	}
	if expired {
		w.logger.Warn("stale job expired on poll", "job_id", jobID, "stale_after", w.staleAfter)
	}
	return nil
}

// Run sweeps the jobs table on a fixed interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := w.now()
			if _, err := w.jobs.ExpireStale(ctx, now.Add(-w.staleAfter), now); err != nil {
				w.logger.Error("stale sweep failed", "error", err)
			}
		}
	}
}
