package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivotcm/fichas/internal/async"
	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
)

// recordingQueue captures enqueued jobs without running anything.
type recordingQueue struct {
	jobs []async.Job
}

func (q *recordingQueue) Enqueue(ctx context.Context, job async.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Shutdown(ctx context.Context) {}

// closedQueue refuses every enqueue, recording what was offered.
type closedQueue struct {
	jobs []async.Job
}

func (q *closedQueue) Enqueue(ctx context.Context, job async.Job) error {
	q.jobs = append(q.jobs, job)
	return async.ErrQueueClosed
}

func (q *closedQueue) Shutdown(ctx context.Context) {}

func visionConfig() common.OCRConfig {
	return common.OCRConfig{Provider: "google_vision", VisionAPIKey: "k", ScratchBucket: "b"}
}

func TestIntakeSubmit(t *testing.T) {
	ctx := context.Background()
	repo := testJobRepo(t)
	store := newMemStore()
	queue := &recordingQueue{}

	in := NewIntake(testLogger(), visionConfig(), repo, store, queue)
	job, err := in.Submit(ctx, strings.NewReader("scan bytes"), "ficha.jpg", "image/jpeg", nil)
	require.NoError(t, err)

	assert.Equal(t, entity.JobStatusQueued, job.Status)
	assert.Equal(t, "image/jpeg", job.ContentType)
	assert.Contains(t, job.DocumentPath, job.ID.String())

	// the document landed in the store under the job's path
	_, ok := store.objects[job.DocumentPath]
	assert.True(t, ok)

	// and the job id was pushed for a worker
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, job.ID, queue.jobs[0].JobID)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusQueued, got.Status)
}

func TestIntakeSubmitCarriesTraceID(t *testing.T) {
	queue := &recordingQueue{}
	in := NewIntake(testLogger(), visionConfig(), testJobRepo(t), newMemStore(), queue)

	ctx := common.WithRequestID(context.Background(), "req-42")
	_, err := in.Submit(ctx, strings.NewReader("bytes"), "ficha.jpg", "image/jpeg", nil)
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "req-42", queue.jobs[0].TraceID)
}

func TestIntakeSubmitClosedQueueLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	repo := testJobRepo(t)
	store := newMemStore()
	queue := &closedQueue{}

	in := NewIntake(testLogger(), visionConfig(), repo, store, queue)
	_, err := in.Submit(ctx, strings.NewReader("scan bytes"), "ficha.jpg", "image/jpeg", nil)
	require.ErrorIs(t, err, async.ErrQueueClosed)

	// the provisional row and the stored document were both rolled back
	require.Len(t, queue.jobs, 1)
	_, err = repo.GetByID(ctx, queue.jobs[0].JobID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Empty(t, store.objects)
}

func TestIntakeSubmitMissingFilename(t *testing.T) {
	in := NewIntake(testLogger(), visionConfig(), testJobRepo(t), newMemStore(), &recordingQueue{})
	_, err := in.Submit(context.Background(), strings.NewReader("bytes"), "  ", "image/jpeg", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestIntakeSubmitEmptyFile(t *testing.T) {
	in := NewIntake(testLogger(), visionConfig(), testJobRepo(t), newMemStore(), &recordingQueue{})
	_, err := in.Submit(context.Background(), strings.NewReader(""), "ficha.jpg", "image/jpeg", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestIntakeSubmitPDFWithoutBucket(t *testing.T) {
	cfg := visionConfig()
	cfg.ScratchBucket = ""
	queue := &recordingQueue{}

	in := NewIntake(testLogger(), cfg, testJobRepo(t), newMemStore(), queue)
	_, err := in.Submit(context.Background(), strings.NewReader("pdf bytes"), "ficha.pdf", "application/pdf", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfiguration)

	// no job was created for a rejected submission
	assert.Empty(t, queue.jobs)
}

func TestIntakeSubmitNormalizesOctetStream(t *testing.T) {
	in := NewIntake(testLogger(), visionConfig(), testJobRepo(t), newMemStore(), &recordingQueue{})
	job, err := in.Submit(context.Background(), strings.NewReader("bytes"), "scan.png", "application/octet-stream", nil)
	require.NoError(t, err)
	assert.Equal(t, "image/png", job.ContentType)
}
