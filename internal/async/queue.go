package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has begun, so
// submitters can fail the request instead of leaving an orphaned row.
var ErrQueueClosed = errors.New("queue is shut down")

// Job is the unit handed to workers: the id of a persisted OcrJob row.
type Job struct {
	JobID       uuid.UUID `json:"job_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// Runner executes one claimed job end to end. The pipeline processor
// satisfies this.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
