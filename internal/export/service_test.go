package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
	"github.com/arquivotcm/fichas/internal/repository"
)

type stubJobRepo struct {
	job *entity.OcrJob
}

func (s *stubJobRepo) Create(ctx context.Context, job *entity.OcrJob) error { return nil }

func (s *stubJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.OcrJob, error) {
	if s.job == nil || s.job.ID != id {
		return nil, common.ErrNotFound
	}
	return s.job, nil
}

func (s *stubJobRepo) ClaimProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return false, nil
}

func (s *stubJobRepo) FinishSuccess(ctx context.Context, id uuid.UUID, res repository.SuccessResult, now time.Time) (bool, error) {
	return false, nil
}

func (s *stubJobRepo) FinishFailure(ctx context.Context, id uuid.UUID, message string, now time.Time) (bool, error) {
	return false, nil
}

func (s *stubJobRepo) MarkStaleIfExpired(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error) {
	return false, nil
}

func (s *stubJobRepo) ExpireStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	return 0, nil
}

func (s *stubJobRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExportSuggestionsXLSX(t *testing.T) {
	set := entity.NewSuggestionSet()
	set.Base["ano"] = entity.FieldSuggestion{Value: entity.TextValue("1980"), Confidence: 0.9, Source: entity.SourceKeyValue}
	set.Base["interessado"] = entity.FieldSuggestion{Value: entity.TextValue("Fulano"), Confidence: 0.8, Source: entity.SourceLabelBlock}
	set.Extras["setor"] = entity.FieldSuggestion{Value: entity.TextValue("Financeiro"), Confidence: 0.7, Source: entity.SourceKeyValue}

	job := &entity.OcrJob{ID: uuid.New(), Status: entity.JobStatusDone, Suggestions: set}
	svc := NewService(&stubJobRepo{job: job}, testLogger())

	out, err := svc.ExportSuggestionsXLSX(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Sugestoes")
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"Grupo", "Campo", "Valor", "Confianca", "Origem"}, rows[0])
	// base fields first, alphabetical, then extras
	assert.Equal(t, "ano", rows[1][1])
	assert.Equal(t, "1980", rows[1][2])
	assert.Equal(t, "interessado", rows[2][1])
	assert.Equal(t, "setor", rows[3][1])
	assert.Equal(t, "extras", rows[3][0])
}

func TestSuggestionsWorkbookRowCount(t *testing.T) {
	set := entity.NewSuggestionSet()
	set.Base["ano"] = entity.FieldSuggestion{Value: entity.TextValue("1981"), Confidence: 0.5, Source: entity.SourceHeuristic}

	out, rows, err := SuggestionsWorkbook(set)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	assert.NotEmpty(t, out)

	empty, rows, err := SuggestionsWorkbook(entity.NewSuggestionSet())
	require.NoError(t, err)
	assert.Zero(t, rows)
	assert.NotEmpty(t, empty)
}

func TestExportSuggestionsXLSXNoSuggestions(t *testing.T) {
	job := &entity.OcrJob{ID: uuid.New(), Status: entity.JobStatusFailed}
	svc := NewService(&stubJobRepo{job: job}, testLogger())

	_, err := svc.ExportSuggestionsXLSX(context.Background(), job.ID)
	assert.ErrorContains(t, err, "no suggestions")
}

func TestExportSuggestionsXLSXUnknownJob(t *testing.T) {
	svc := NewService(&stubJobRepo{}, testLogger())
	_, err := svc.ExportSuggestionsXLSX(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}
