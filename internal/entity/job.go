package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the canonical status for rows in ocr_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s,
// apart from the single watchdog override on "processing".
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// MaxExtractedText caps the stored OCR text per job.
const MaxExtractedText = 30000

// StaleJobMessage is the fixed reviewer-facing message written when the
// watchdog expires an abandoned job.
const StaleJobMessage = "OCR expirou ou foi interrompido. Reenvie o arquivo."

// OcrJob represents an import job for data transfer between layers.
// Status moves queued -> processing -> {done, failed}; started_at and
// finished_at are each written exactly once.
type OcrJob struct {
	ID           uuid.UUID       `json:"id"`
	TemplateID   *uuid.UUID      `json:"template_id,omitempty"`
	DocumentPath string          `json:"document_path"`
	DocumentName string          `json:"document_name"`
	ContentType  string          `json:"content_type"`
	Status       JobStatus       `json:"status"`
	Extracted    string          `json:"extracted_text,omitempty"`
	RawItems     []OcrTextItem   `json:"ocr_raw,omitempty"`
	Suggestions  *SuggestionSet  `json:"field_suggestions,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// OcrTextItem is one recognized line with its averaged confidence.
// BBox is opaque provider geometry, stored but never interpreted.
type OcrTextItem struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	BBox       json.RawMessage `json:"bbox,omitempty"`
}

// SuggestionSource tells reviewers which pass produced a suggestion.
type SuggestionSource string

const (
	SourceKeyValue   SuggestionSource = "key_value"
	SourceLabelBlock SuggestionSource = "label_block"
	SourceLayoutHint SuggestionSource = "layout_hint"
	SourceHeuristic  SuggestionSource = "heuristic"
)

// FieldGroup separates the fixed process attributes from schema fields.
type FieldGroup string

const (
	GroupBase   FieldGroup = "base"
	GroupExtras FieldGroup = "extras"
)

// FieldSuggestion is one candidate value for a field, for human review.
type FieldSuggestion struct {
	Value      FieldValue       `json:"value"`
	Confidence float64          `json:"confidence"`
	Source     SuggestionSource `json:"source"`
}

// SuggestionSet is the persisted result shape:
// {"base": {field: {...}}, "extras": {field: {...}}}.
type SuggestionSet struct {
	Base   map[string]FieldSuggestion `json:"base"`
	Extras map[string]FieldSuggestion `json:"extras"`
}

func NewSuggestionSet() *SuggestionSet {
	return &SuggestionSet{
		Base:   map[string]FieldSuggestion{},
		Extras: map[string]FieldSuggestion{},
	}
}

// Group returns the map for the given group.
func (s *SuggestionSet) Group(g FieldGroup) map[string]FieldSuggestion {
	if g == GroupExtras {
		return s.Extras
	}
	return s.Base
}

// Len counts suggestions across both groups.
func (s *SuggestionSet) Len() int {
	return len(s.Base) + len(s.Extras)
}
