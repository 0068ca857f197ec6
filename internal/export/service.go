package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/arquivotcm/fichas/internal/entity"
	"github.com/arquivotcm/fichas/internal/repository"
)

// Service is a tiny façade over the job repository that produces XLSX
// review sheets for a finished job's suggestions.
type Service struct {
	jobs   repository.OcrJobRepository
	logger *slog.Logger
}

func NewService(jobs repository.OcrJobRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// ExportSuggestionsXLSX returns an XLSX workbook (as bytes) with one row
// per suggested field, ordered for a reviewer: base fields first, then
// schema extras, each group alphabetical.
func (s *Service) ExportSuggestionsXLSX(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	start := time.Now()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Suggestions == nil {
		return nil, fmt.Errorf("job %s has no suggestions to export", jobID)
	}

	out, rows, err := SuggestionsWorkbook(job.Suggestions)
	if err != nil {
		return nil, err
	}
	s.logger.Info("exported suggestions", "job_id", jobID, "rows", rows, "duration", time.Since(start))
	return out, nil
}

// SuggestionsWorkbook renders a suggestion set as an XLSX workbook,
// returning the bytes and the number of data rows written.
func SuggestionsWorkbook(set *entity.SuggestionSet) ([]byte, int, error) {
	f := excelize.NewFile()
	const sheet = "Sugestoes"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, 0, err
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"Grupo", "Campo", "Valor", "Confianca", "Origem"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, group := range []entity.FieldGroup{entity.GroupBase, entity.GroupExtras} {
		fields := set.Group(group)
		ids := make([]string, 0, len(fields))
		for id := range fields {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			sug := fields[id]
			values := []any{string(group), id, sug.Value.Canonical(), sug.Confidence, string(sug.Source)}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			row++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), row - 2, nil
}
