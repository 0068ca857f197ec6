package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
)

// FormTemplateRepository stores versioned form template definitions.
type FormTemplateRepository interface {
	Save(ctx context.Context, tpl *entity.FormTemplate) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*entity.FormTemplate, error)
	ActiveTemplate(ctx context.Context) (*entity.FormTemplate, error)
}

const templatesSchema = `
CREATE TABLE IF NOT EXISTS form_templates (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	version     INTEGER NOT NULL DEFAULT 1,
	is_active   INTEGER NOT NULL DEFAULT 0,
	schema_json TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
)`

type formTemplateRepo struct {
	db  *sql.DB
	rb  rebinder
	log *slog.Logger
}

func NewFormTemplateRepository(db *sql.DB, driver string, log *slog.Logger) FormTemplateRepository {
	return &formTemplateRepo{db: db, rb: newRebinder(driver), log: log}
}

func (r *formTemplateRepo) Save(ctx context.Context, tpl *entity.FormTemplate) error {
	if tpl.ID == uuid.Nil {
		tpl.ID = uuid.New()
	}
	if tpl.Version == 0 {
		tpl.Version = 1
	}
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = time.Now().UTC()
	}
	q := r.rb.Rebind(`INSERT INTO form_templates
		(id, name, version, is_active, schema_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		tpl.ID.String(), tpl.Name, tpl.Version, tpl.IsActive,
		string(tpl.SchemaJSON), tpl.CreatedAt)
	if err != nil {
		r.log.Error("form_template save failed", "template_id", tpl.ID, "error", err)
		return fmt.Errorf("%w: insert form_template: %w", common.ErrDatabase, err)
	}
	r.log.Info("form_template saved", "template_id", tpl.ID, "name", tpl.Name, "version", tpl.Version)
	return nil
}

func (r *formTemplateRepo) GetTemplate(ctx context.Context, id uuid.UUID) (*entity.FormTemplate, error) {
	q := r.rb.Rebind(`SELECT id, name, version, is_active, schema_json, created_at
		FROM form_templates WHERE id = ?`)
	return r.scanOne(r.db.QueryRowContext(ctx, q, id.String()))
}

// ActiveTemplate returns the newest active template, if any.
func (r *formTemplateRepo) ActiveTemplate(ctx context.Context) (*entity.FormTemplate, error) {
	q := r.rb.Rebind(`SELECT id, name, version, is_active, schema_json, created_at
		FROM form_templates WHERE is_active = ? ORDER BY created_at DESC LIMIT 1`)
	return r.scanOne(r.db.QueryRowContext(ctx, q, true))
}

func (r *formTemplateRepo) scanOne(row *sql.Row) (*entity.FormTemplate, error) {
	var (
		tpl    entity.FormTemplate
		rawID  string
		schema string
	)
	err := row.Scan(&rawID, &tpl.Name, &tpl.Version, &tpl.IsActive, &schema, &tpl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load form_template: %w", common.ErrDatabase, err)
	}
	tpl.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt template id %q: %w", common.ErrDatabase, rawID, err)
	}
	tpl.SchemaJSON = []byte(schema)
	return &tpl, nil
}
