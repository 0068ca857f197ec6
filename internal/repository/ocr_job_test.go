package repository

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// one connection keeps every statement on the same in-memory database
	db.SetMaxOpenConns(1)
	require.NoError(t, EnsureSchema(context.Background(), db))
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJobRepo(t *testing.T) OcrJobRepository {
	return NewOcrJobRepository(testDB(t), "sqlite", testLogger())
}

func createJob(t *testing.T, repo OcrJobRepository) *entity.OcrJob {
	t.Helper()
	job := &entity.OcrJob{
		DocumentPath: "fichas/abc/1_ficha.pdf",
		DocumentName: "ficha.pdf",
		ContentType:  "application/pdf",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func TestOcrJobCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	job := createJob(t, repo)

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, entity.JobStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, entity.JobStatusQueued, got.Status)
	assert.Equal(t, "ficha.pdf", got.DocumentName)
	assert.Nil(t, got.TemplateID)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.Suggestions)
}

func TestOcrJobGetUnknown(t *testing.T) {
	repo := newTestJobRepo(t)
	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestOcrJobTemplateIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	tid := uuid.New()
	job := &entity.OcrJob{
		TemplateID:   &tid,
		DocumentPath: "fichas/x/1_scan.jpg",
		DocumentName: "scan.jpg",
		ContentType:  "image/jpeg",
	}
	require.NoError(t, repo.Create(ctx, job))

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TemplateID)
	assert.Equal(t, tid, *got.TemplateID)
}

func TestOcrJobClaimProcessing(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	job := createJob(t, repo)
	now := time.Now().UTC().Truncate(time.Second)

	claimed, err := repo.ClaimProcessing(ctx, job.ID, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusProcessing, got.Status)
	require.NotNil(t, got.StartedAt)

	// second claim loses the status guard
	claimed, err = repo.ClaimProcessing(ctx, job.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestOcrJobFinishSuccess(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	job := createJob(t, repo)
	now := time.Now().UTC()

	_, err := repo.ClaimProcessing(ctx, job.ID, now)
	require.NoError(t, err)

	set := entity.NewSuggestionSet()
	set.Base["ano"] = entity.FieldSuggestion{
		Value:      entity.TextValue("1980"),
		Confidence: 0.9,
		Source:     entity.SourceKeyValue,
	}
	done, err := repo.FinishSuccess(ctx, job.ID, SuccessResult{
		Extracted:   "ANO\n1980",
		RawItems:    []entity.OcrTextItem{{Text: "ANO", Confidence: 0.92}},
		Suggestions: set,
	}, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, done)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusDone, got.Status)
	assert.Equal(t, "ANO\n1980", got.Extracted)
	require.NotNil(t, got.FinishedAt)
	require.Len(t, got.RawItems, 1)
	assert.Equal(t, "ANO", got.RawItems[0].Text)
	require.NotNil(t, got.Suggestions)
	assert.Equal(t, "1980", got.Suggestions.Base["ano"].Value.Canonical())
}

func TestOcrJobFinishSuccessRequiresProcessing(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	job := createJob(t, repo)

	// still queued, so the transition is refused
	done, err := repo.FinishSuccess(ctx, job.ID, SuccessResult{}, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, done)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusQueued, got.Status)
}

func TestOcrJobFinishFailure(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	job := createJob(t, repo)
	now := time.Now().UTC()

	_, err := repo.ClaimProcessing(ctx, job.ID, now)
	require.NoError(t, err)

	failed, err := repo.FinishFailure(ctx, job.ID, "OCR nao retornou texto.", now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, failed)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, "OCR nao retornou texto.", got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)
}

func TestOcrJobWatchdogWinsOverLateResult(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	job := createJob(t, repo)
	started := time.Now().UTC().Add(-15 * time.Minute)

	_, err := repo.ClaimProcessing(ctx, job.ID, started)
	require.NoError(t, err)

	now := time.Now().UTC()
	expired, err := repo.MarkStaleIfExpired(ctx, job.ID, now.Add(-12*time.Minute), now)
	require.NoError(t, err)
	assert.True(t, expired)

	// the worker comes back after the watchdog; its result is discarded
	done, err := repo.FinishSuccess(ctx, job.ID, SuccessResult{Extracted: "tarde demais"}, now)
	require.NoError(t, err)
	assert.False(t, done)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, entity.StaleJobMessage, got.ErrorMessage)
	assert.Empty(t, got.Extracted)
}

func TestOcrJobMarkStaleRespectsCutoff(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	job := createJob(t, repo)
	now := time.Now().UTC()

	_, err := repo.ClaimProcessing(ctx, job.ID, now.Add(-2*time.Minute))
	require.NoError(t, err)

	// started two minutes ago, cutoff is ten minutes back: not stale yet
	expired, err := repo.MarkStaleIfExpired(ctx, job.ID, now.Add(-10*time.Minute), now)
	require.NoError(t, err)
	assert.False(t, expired)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusProcessing, got.Status)
}

func TestOcrJobMarkStaleIgnoresQueued(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	job := createJob(t, repo)
	now := time.Now().UTC()

	expired, err := repo.MarkStaleIfExpired(ctx, job.ID, now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestOcrJobDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	job := createJob(t, repo)

	require.NoError(t, repo.Delete(ctx, job.ID))
	_, err := repo.GetByID(ctx, job.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// deleting an unknown id is a no-op
	assert.NoError(t, repo.Delete(ctx, uuid.New()))
}

func TestOcrJobExpireStaleSweep(t *testing.T) {
	ctx := context.Background()
	repo := newTestJobRepo(t)
	now := time.Now().UTC()

	old := createJob(t, repo)
	_, err := repo.ClaimProcessing(ctx, old.ID, now.Add(-20*time.Minute))
	require.NoError(t, err)

	fresh := createJob(t, repo)
	_, err = repo.ClaimProcessing(ctx, fresh.ID, now.Add(-time.Minute))
	require.NoError(t, err)

	queued := createJob(t, repo)

	n, err := repo.ExpireStale(ctx, now.Add(-10*time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, entity.StaleJobMessage, got.ErrorMessage)

	got, err = repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusProcessing, got.Status)

	got, err = repo.GetByID(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusQueued, got.Status)
}
