package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivotcm/fichas/internal/entity"
	"github.com/arquivotcm/fichas/internal/repository"
)

func TestWatchdogExpiresStaleJob(t *testing.T) {
	ctx := context.Background()
	repo := testJobRepo(t)
	store := newMemStore()
	job := seedJob(t, repo, store, "scan bytes")

	started := time.Now().UTC()
	claimed, err := repo.ClaimProcessing(ctx, job.ID, started)
	require.NoError(t, err)
	require.True(t, claimed)

	w := NewWatchdog(testLogger(), repo, 10*time.Minute)
	w.now = func() time.Time { return started.Add(11 * time.Minute) }

	got, err := w.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, entity.StaleJobMessage, got.ErrorMessage)
	require.NotNil(t, got.FinishedAt)
}

func TestWatchdogLeavesFreshJobAlone(t *testing.T) {
	ctx := context.Background()
	repo := testJobRepo(t)
	store := newMemStore()
	job := seedJob(t, repo, store, "scan bytes")

	started := time.Now().UTC()
	_, err := repo.ClaimProcessing(ctx, job.ID, started)
	require.NoError(t, err)

	w := NewWatchdog(testLogger(), repo, 10*time.Minute)
	w.now = func() time.Time { return started.Add(2 * time.Minute) }

	got, err := w.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusProcessing, got.Status)
}

func TestWatchdogIgnoresQueuedJob(t *testing.T) {
	ctx := context.Background()
	repo := testJobRepo(t)
	store := newMemStore()
	job := seedJob(t, repo, store, "scan bytes")

	w := NewWatchdog(testLogger(), repo, 10*time.Minute)
	w.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	got, err := w.GetStatus(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusQueued, got.Status)
}

func TestWatchdogUnknownJobIsNoop(t *testing.T) {
	repo := testJobRepo(t)
	w := NewWatchdog(testLogger(), repo, 10*time.Minute)
	assert.NoError(t, w.CheckStale(context.Background(), uuid.New()))
}

func TestWatchdogFailureBeatsLateResult(t *testing.T) {
	ctx := context.Background()
	repo := testJobRepo(t)
	store := newMemStore()
	job := seedJob(t, repo, store, "scan bytes")

	started := time.Now().UTC()
	_, err := repo.ClaimProcessing(ctx, job.ID, started)
	require.NoError(t, err)

	w := NewWatchdog(testLogger(), repo, 10*time.Minute)
	w.now = func() time.Time { return started.Add(11 * time.Minute) }
	require.NoError(t, w.CheckStale(ctx, job.ID))

	done, err := repo.FinishSuccess(ctx, job.ID, repository.SuccessResult{Extracted: "tarde"}, time.Now())
	require.NoError(t, err)
	assert.False(t, done)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Empty(t, got.Extracted)
}

func TestWatchdogRunSweepsStaleJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := testJobRepo(t)
	store := newMemStore()
	job := seedJob(t, repo, store, "scan bytes")

	started := time.Now().UTC().Add(-20 * time.Minute)
	_, err := repo.ClaimProcessing(ctx, job.ID, started)
	require.NoError(t, err)

	w := NewWatchdog(testLogger(), repo, 10*time.Minute)
	go w.Run(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		got, err := repo.GetByID(ctx, job.ID)
		return err == nil && got.Status == entity.JobStatusFailed
	}, 2*time.Second, 20*time.Millisecond)

	got, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StaleJobMessage, got.ErrorMessage)
}
