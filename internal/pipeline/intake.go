package pipeline

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arquivotcm/fichas/internal/async"
	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
	"github.com/arquivotcm/fichas/internal/ocr"
	"github.com/arquivotcm/fichas/internal/repository"
	"github.com/arquivotcm/fichas/internal/storage"
)

// Intake accepts document submissions: it validates the provider
// configuration up front, stores the file, creates the job row in queued
// and pushes the job id. Configuration problems surface to the submitter
// before any job exists.
type Intake struct {
	logger *slog.Logger
	cfg    common.OCRConfig
	jobs   repository.OcrJobRepository
	store  storage.Store
	queue  async.Queue
}

func NewIntake(logger *slog.Logger, cfg common.OCRConfig, jobs repository.OcrJobRepository, store storage.Store, queue async.Queue) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{logger: logger, cfg: cfg, jobs: jobs, store: store, queue: queue}
}

// Submit ingests one document and returns the created job.
func (in *Intake) Submit(ctx context.Context, doc io.Reader, filename, contentType string, templateID *uuid.UUID) (*entity.OcrJob, error) {
	v := common.NewValidator()
	v.Field("filename", filename, common.Required, common.MaxLength(255))
	if err := v.Error(); err != nil {
		return nil, err
	}

	fileBytes, err := io.ReadAll(doc)
	if err != nil {
		return nil, common.WrapError(err, "read upload")
	}
	if len(fileBytes) == 0 {
		return nil, common.ConfigurationError("Arquivo vazio.")
	}

	mimeType := ocr.NormalizeMimeType(contentType, filename)
	if err := ocr.ValidateConfig(in.cfg, ocr.IsPDFLike(mimeType, filename)); err != nil {
		return nil, err
	}

	jobID := uuid.New()
	objectName := storage.DocumentObjectName(jobID.String(), filename)
	if _, err := in.store.Put(ctx, bytes.NewReader(fileBytes), objectName, mimeType); err != nil {
		return nil, common.WrapError(err, "store upload")
	}

	job := &entity.OcrJob{
		ID:           jobID,
		TemplateID:   templateID,
		DocumentPath: objectName,
		DocumentName: filename,
		ContentType:  mimeType,
		Status:       entity.JobStatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := in.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := in.queue.Enqueue(ctx, async.Job{
		JobID:       job.ID,
		SubmittedAt: job.CreatedAt,
		TraceID:     common.RequestIDFromContext(ctx),
	}); err != nil {
		// no worker will ever claim this row; undo the submission
		if derr := in.jobs.Delete(ctx, job.ID); derr != nil {
			in.logger.Error("failed to remove unqueued job", "job_id", job.ID, "error", derr)
		}
		if derr := in.store.Delete(ctx, objectName); derr != nil {
			in.logger.Error("failed to remove stored document", "path", objectName, "error", derr)
		}
		return nil, common.WrapError(err, "enqueue job")
	}
	in.logger.Info("document submitted", "job_id", job.ID, "document", filename, "mime", mimeType)
	return job, nil
}
