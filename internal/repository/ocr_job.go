package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
)

// OcrJobRepository persists import jobs. Terminal transitions are
// conditional updates keyed on the current status, so a late worker and
// the staleness watchdog cannot both win.
type OcrJobRepository interface {
	Create(ctx context.Context, job *entity.OcrJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.OcrJob, error)
	ClaimProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	FinishSuccess(ctx context.Context, id uuid.UUID, res SuccessResult, now time.Time) (bool, error)
	FinishFailure(ctx context.Context, id uuid.UUID, message string, now time.Time) (bool, error)
	MarkStaleIfExpired(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error)
	ExpireStale(ctx context.Context, cutoff, now time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SuccessResult is everything a finished job writes in one statement.
type SuccessResult struct {
	Extracted   string
	RawItems    []entity.OcrTextItem
	Suggestions *entity.SuggestionSet
}

type ocrJobRepo struct {
	db  *sql.DB
	rb  rebinder
	log *slog.Logger
}

func NewOcrJobRepository(db *sql.DB, driver string, log *slog.Logger) OcrJobRepository {
	return &ocrJobRepo{db: db, rb: newRebinder(driver), log: log}
}

// jobsSchema is applied by EnsureSchema; the DDL stays inside the common
// SQL subset of Postgres and SQLite.
const jobsSchema = `
CREATE TABLE IF NOT EXISTS ocr_jobs (
	id             TEXT PRIMARY KEY,
	template_id    TEXT,
	document_path  TEXT NOT NULL,
	document_name  TEXT NOT NULL,
	content_type   TEXT NOT NULL,
	status         TEXT NOT NULL,
	extracted_text TEXT NOT NULL DEFAULT '',
	ocr_raw        TEXT,
	suggestions    TEXT,
	error_message  TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL,
	started_at     TIMESTAMP,
	finished_at    TIMESTAMP
)`

// EnsureSchema creates the jobs table when absent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, jobsSchema); err != nil {
		return fmt.Errorf("ensure ocr_jobs schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, templatesSchema); err != nil {
		return fmt.Errorf("ensure form_templates schema: %w", err)
	}
	return nil
}

func (r *ocrJobRepo) Create(ctx context.Context, job *entity.OcrJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = entity.JobStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	var templateID any
	if job.TemplateID != nil {
		templateID = job.TemplateID.String()
	}
	q := r.rb.Rebind(`INSERT INTO ocr_jobs
		(id, template_id, document_path, document_name, content_type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		job.ID.String(), templateID, job.DocumentPath, job.DocumentName,
		job.ContentType, string(job.Status), job.CreatedAt)
	if err != nil {
		r.log.Error("ocr_job create failed", "job_id", job.ID, "error", err)
		return fmt.Errorf("%w: insert ocr_job: %w", common.ErrDatabase, err)
	}
	r.log.Info("ocr_job created", "job_id", job.ID, "document", job.DocumentName)
	return nil
}

func (r *ocrJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.OcrJob, error) {
	q := r.rb.Rebind(`SELECT id, template_id, document_path, document_name, content_type,
		status, extracted_text, ocr_raw, suggestions, error_message,
		created_at, started_at, finished_at
		FROM ocr_jobs WHERE id = ?`)
	row := r.db.QueryRowContext(ctx, q, id.String())

	var (
		job        entity.OcrJob
		rawID      string
		templateID sql.NullString
		status     string
		ocrRaw     sql.NullString
		sugg       sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(&rawID, &templateID, &job.DocumentPath, &job.DocumentName,
		&job.ContentType, &status, &job.Extracted, &ocrRaw, &sugg,
		&job.ErrorMessage, &job.CreatedAt, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load ocr_job: %w", common.ErrDatabase, err)
	}

	job.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt job id %q: %w", common.ErrDatabase, rawID, err)
	}
	if templateID.Valid {
		tid, err := uuid.Parse(templateID.String)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt template id %q: %w", common.ErrDatabase, templateID.String, err)
		}
		job.TemplateID = &tid
	}
	job.Status = entity.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	if ocrRaw.Valid && ocrRaw.String != "" {
		if err := json.Unmarshal([]byte(ocrRaw.String), &job.RawItems); err != nil {
			r.log.Warn("ocr_job raw items unreadable", "job_id", job.ID, "error", err)
		}
	}
	if sugg.Valid && sugg.String != "" {
		var set entity.SuggestionSet
		if err := json.Unmarshal([]byte(sugg.String), &set); err != nil {
			r.log.Warn("ocr_job suggestions unreadable", "job_id", job.ID, "error", err)
		} else {
			job.Suggestions = &set
		}
	}
	return &job, nil
}

// ClaimProcessing moves queued -> processing and stamps started_at. The
// boolean is false when the job was not in queued (already claimed, or a
// terminal state); callers treat that as "someone else owns it".
func (r *ocrJobRepo) ClaimProcessing(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	q := r.rb.Rebind(`UPDATE ocr_jobs SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`)
	res, err := r.db.ExecContext(ctx, q,
		string(entity.JobStatusProcessing), now.UTC(), id.String(), string(entity.JobStatusQueued))
	if err != nil {
		return false, fmt.Errorf("%w: claim ocr_job: %w", common.ErrDatabase, err)
	}
	claimed, err := oneRowChanged(res)
	if err != nil {
		return false, err
	}
	if claimed {
		r.log.Info("ocr_job claimed", "job_id", id)
	}
	return claimed, nil
}

// FinishSuccess writes the extraction result and moves processing -> done.
// The guard on status means a job the watchdog already failed keeps its
// failure; the late result is discarded and the caller logs it.
func (r *ocrJobRepo) FinishSuccess(ctx context.Context, id uuid.UUID, res SuccessResult, now time.Time) (bool, error) {
	rawJSON, err := json.Marshal(res.RawItems)
	if err != nil {
		return false, fmt.Errorf("marshal ocr items: %w", err)
	}
	suggJSON, err := json.Marshal(res.Suggestions)
	if err != nil {
		return false, fmt.Errorf("marshal suggestions: %w", err)
	}
	q := r.rb.Rebind(`UPDATE ocr_jobs
		SET status = ?, extracted_text = ?, ocr_raw = ?, suggestions = ?, finished_at = ?
		WHERE id = ? AND status = ?`)
	out, err := r.db.ExecContext(ctx, q,
		string(entity.JobStatusDone), res.Extracted, string(rawJSON), string(suggJSON),
		now.UTC(), id.String(), string(entity.JobStatusProcessing))
	if err != nil {
		return false, fmt.Errorf("%w: finish ocr_job: %w", common.ErrDatabase, err)
	}
	done, err := oneRowChanged(out)
	if err != nil {
		return false, err
	}
	if done {
		r.log.Info("ocr_job finished", "job_id", id, "status", entity.JobStatusDone)
	}
	return done, nil
}

// FinishFailure moves processing -> failed with a reviewer-facing message.
func (r *ocrJobRepo) FinishFailure(ctx context.Context, id uuid.UUID, message string, now time.Time) (bool, error) {
	q := r.rb.Rebind(`UPDATE ocr_jobs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = ?`)
	out, err := r.db.ExecContext(ctx, q,
		string(entity.JobStatusFailed), message, now.UTC(), id.String(), string(entity.JobStatusProcessing))
	if err != nil {
		return false, fmt.Errorf("%w: fail ocr_job: %w", common.ErrDatabase, err)
	}
	failed, err := oneRowChanged(out)
	if err != nil {
		return false, err
	}
	if failed {
		r.log.Warn("ocr_job failed", "job_id", id, "error", message)
	}
	return failed, nil
}

// MarkStaleIfExpired conditionally fails a processing job whose
// started_at is older than cutoff.
func (r *ocrJobRepo) MarkStaleIfExpired(ctx context.Context, id uuid.UUID, cutoff, now time.Time) (bool, error) {
	q := r.rb.Rebind(`UPDATE ocr_jobs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = ? AND started_at IS NOT NULL AND started_at < ?`)
	out, err := r.db.ExecContext(ctx, q,
		string(entity.JobStatusFailed), entity.StaleJobMessage, now.UTC(),
		id.String(), string(entity.JobStatusProcessing), cutoff.UTC())
	if err != nil {
		return false, fmt.Errorf("%w: expire ocr_job: %w", common.ErrDatabase, err)
	}
	expired, err := oneRowChanged(out)
	if err != nil {
		return false, err
	}
	if expired {
		r.log.Warn("ocr_job expired by watchdog", "job_id", id)
	}
	return expired, nil
}

// ExpireStale fails every processing job whose started_at is older than
// cutoff. Used by the background sweep; the per-job variant covers polls.
func (r *ocrJobRepo) ExpireStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	q := r.rb.Rebind(`UPDATE ocr_jobs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE status = ? AND started_at IS NOT NULL AND started_at < ?`)
	out, err := r.db.ExecContext(ctx, q,
		string(entity.JobStatusFailed), entity.StaleJobMessage, now.UTC(),
		string(entity.JobStatusProcessing), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: expire stale ocr_jobs: %w", common.ErrDatabase, err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %w", common.ErrDatabase, err)
	}
	if n > 0 {
		r.log.Warn("stale ocr_jobs expired by sweep", "count", n)
	}
	return n, nil
}

// Delete removes a job row. The intake uses it to undo a submission
// whose enqueue failed; a missing row is not an error.
func (r *ocrJobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	q := r.rb.Rebind(`DELETE FROM ocr_jobs WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, q, id.String()); err != nil {
		return fmt.Errorf("%w: delete ocr_job: %w", common.ErrDatabase, err)
	}
	return nil
}

func oneRowChanged(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %w", common.ErrDatabase, err)
	}
	return n == 1, nil
}
