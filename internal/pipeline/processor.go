package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
	"github.com/arquivotcm/fichas/internal/mapping"
	"github.com/arquivotcm/fichas/internal/ocr"
	"github.com/arquivotcm/fichas/internal/repository"
	"github.com/arquivotcm/fichas/internal/storage"
)

// SchemaProvider resolves the form schema attached to a job.
type SchemaProvider interface {
	SchemaForJob(ctx context.Context, templateID *uuid.UUID) (*entity.FormSchema, error)
}

// Processor drives one job through its lifecycle: claim, load the
// document, OCR, map, persist. All terminal writes go through the
// repository's conditional transitions, so a job the watchdog already
// failed keeps its failure.
type Processor struct {
	logger  *slog.Logger
	jobs    repository.OcrJobRepository
	store   storage.Store
	adapter ocr.Adapter
	schemas SchemaProvider
	engine  *mapping.Engine
	opts    ocr.Options
}

func NewProcessor(
	logger *slog.Logger,
	jobs repository.OcrJobRepository,
	store storage.Store,
	adapter ocr.Adapter,
	schemas SchemaProvider,
	engine *mapping.Engine,
	opts ocr.Options,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:  logger,
		jobs:    jobs,
		store:   store,
		adapter: adapter,
		schemas: schemas,
		engine:  engine,
		opts:    opts,
	}
}

// Run executes one queued job. An unknown job id is a no-op; a job that
// is not in queued state is someone else's and is skipped.
func (p *Processor) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if errors.Is(err, common.ErrNotFound) {
		p.logger.Warn("job not found, skipping", "job_id", jobID)
		return nil
	}
	if err != nil {
		return err
	}

	claimed, err := p.jobs.ClaimProcessing(ctx, jobID, time.Now())
	if err != nil {
		return err
	}
	if !claimed {
		p.logger.Info("job not claimable, skipping", "job_id", jobID, "status", job.Status)
		return nil
	}

	result, err := p.execute(ctx, job)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", common.ErrStaleTimeout, err)
		}
		p.fail(ctx, jobID, err)
		return err
	}

	done, err := p.jobs.FinishSuccess(ctx, jobID, *result, time.Now())
	if err != nil {
		return err
	}
	if !done {
		// The watchdog expired the job while we were working; the
		// reviewer already saw the failure, so the late result is dropped.
		p.logger.Warn("job no longer processing, result discarded", "job_id", jobID)
		return nil
	}
	p.logger.Info("job done", "job_id", jobID, "suggestions", result.Suggestions.Len())
	return nil
}

func (p *Processor) execute(ctx context.Context, job *entity.OcrJob) (*repository.SuccessResult, error) {
	doc, err := p.store.Get(ctx, job.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	fileBytes, err := io.ReadAll(doc)
	_ = doc.Close()
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	ocrRes, err := p.adapter.Extract(ctx, fileBytes, job.ContentType, job.DocumentName, p.opts)
	if err != nil {
		return nil, err
	}
	text := truncateRunes(ocrRes.Text, entity.MaxExtractedText)

	schema, err := p.schemas.SchemaForJob(ctx, job.TemplateID)
	if err != nil {
		return nil, err
	}

	suggestions := p.engine.MapFields(text, ocrRes.Items, schema)
	return &repository.SuccessResult{
		Extracted:   text,
		RawItems:    ocrRes.Items,
		Suggestions: suggestions,
	}, nil
}

// truncateRunes caps s at max characters without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, cause error) {
	message := cause.Error()
	if errors.Is(cause, common.ErrStaleTimeout) {
		// the job context is already past its deadline; the failure
		// still has to reach the database
		message = entity.StaleJobMessage
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	failed, err := p.jobs.FinishFailure(ctx, jobID, message, time.Now())
	if err != nil {
		p.logger.Error("failed to record job failure", "job_id", jobID, "error", err)
		return
	}
	if !failed {
		p.logger.Warn("job no longer processing, failure not recorded", "job_id", jobID)
	}
}
