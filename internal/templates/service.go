package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
)

// Repository is the slice of template persistence this service needs.
type Repository interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*entity.FormTemplate, error)
	ActiveTemplate(ctx context.Context) (*entity.FormTemplate, error)
}

// Service loads stored template definitions and turns them into the
// normalized schema shape the mapping engine consumes. Definitions are
// validated structurally (JSON Schema) and semantically (aliases, types,
// enum options) before use; a malformed stored template is a
// configuration error, not a job failure.
type Service struct {
	repo   Repository
	logger *slog.Logger

	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SchemaForJob resolves the schema attached to a job. A nil templateID
// means the job runs with the base vocabulary only.
func (s *Service) SchemaForJob(ctx context.Context, templateID *uuid.UUID) (*entity.FormSchema, error) {
	if templateID == nil {
		return nil, nil
	}
	tpl, err := s.repo.GetTemplate(ctx, *templateID)
	if err != nil {
		return nil, err
	}
	schema, err := s.ParseSchema(tpl.SchemaJSON)
	if err != nil {
		s.logger.Warn("stored template schema rejected", "template_id", tpl.ID, "error", err)
		return nil, common.ConfigurationError(fmt.Sprintf("template %s: %v", tpl.ID, err))
	}
	return schema, nil
}

// ParseSchema validates and normalizes one template definition.
func (s *Service) ParseSchema(raw []byte) (*entity.FormSchema, error) {
	if err := s.validateShape(raw); err != nil {
		return nil, err
	}
	var doc rawSchema
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode template schema: %w", err)
	}
	return normalizeSchema(doc)
}

func (s *Service) validateShape(raw []byte) error {
	s.compileOnce.Do(func() {
		b, err := json.Marshal(buildTemplateJSONSchema())
		if err != nil {
			s.compileErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("template.json", bytes.NewReader(b)); err != nil {
			s.compileErr = err
			return
		}
		s.compiled, s.compileErr = compiler.Compile("template.json")
	})
	if s.compileErr != nil {
		return fmt.Errorf("compile template meta-schema: %w", s.compileErr)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode template schema: %w", err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("template schema does not match expected shape: %w", err)
	}
	return nil
}

type rawField struct {
	ID          string                  `json:"id"`
	FieldID     string                  `json:"field_id"`
	Name        string                  `json:"name"`
	Label       string                  `json:"label"`
	Type        string                  `json:"type"`
	Required    bool                    `json:"required"`
	Hint        string                  `json:"hint"`
	Options     []string                `json:"options"`
	Validations *entity.FieldValidation `json:"validations"`
}

type rawSection struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Order       int        `json:"order"`
	Description string     `json:"description"`
	Fields      []rawField `json:"fields"`
}

type rawSchema struct {
	Sections []rawSection `json:"sections"`
}

// fieldID resolves the identifier aliases in priority order, falling back
// to the label when none is given.
func (f rawField) fieldID() string {
	for _, cand := range []string{f.ID, f.FieldID, f.Name, f.Label} {
		if v := strings.TrimSpace(cand); v != "" {
			return v
		}
	}
	return ""
}

func normalizeSchema(doc rawSchema) (*entity.FormSchema, error) {
	out := &entity.FormSchema{}
	seen := map[string]bool{}
	for _, sec := range doc.Sections {
		ns := entity.FormSection{
			SectionID:   strings.TrimSpace(sec.ID),
			Label:       strings.TrimSpace(sec.Label),
			Order:       sec.Order,
			Description: strings.TrimSpace(sec.Description),
		}
		for _, f := range sec.Fields {
			id := f.fieldID()
			if id == "" {
				return nil, fmt.Errorf("section %q: field with no id or label", ns.SectionID)
			}
			if seen[id] {
				return nil, fmt.Errorf("duplicate field id %q", id)
			}
			seen[id] = true
			t := entity.FieldType(strings.TrimSpace(f.Type))
			if !entity.KnownFieldType(t) {
				return nil, fmt.Errorf("field %q: unknown type %q", id, f.Type)
			}
			if t == entity.FieldEnum && len(f.Options) == 0 {
				return nil, fmt.Errorf("field %q: enum type requires options", id)
			}
			ns.Fields = append(ns.Fields, entity.FormFieldSpec{
				FieldID:     id,
				Label:       strings.TrimSpace(f.Label),
				Type:        t,
				Required:    f.Required,
				Hint:        strings.TrimSpace(f.Hint),
				Options:     f.Options,
				Validations: f.Validations,
			})
		}
		out.Sections = append(out.Sections, ns)
	}
	sort.SliceStable(out.Sections, func(i, j int) bool {
		return out.Sections[i].Order < out.Sections[j].Order
	})
	return out, nil
}
