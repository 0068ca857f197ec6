package entity

import (
	"time"

	"github.com/google/uuid"
)

// FieldType enumerates the value types a template field can declare.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldBoolean  FieldType = "boolean"
	FieldEnum     FieldType = "enum"
	FieldCurrency FieldType = "currency"
)

// KnownFieldType reports whether t is one of the declared field types.
func KnownFieldType(t FieldType) bool {
	switch t {
	case FieldText, FieldTextarea, FieldNumber, FieldDate, FieldBoolean, FieldEnum, FieldCurrency:
		return true
	}
	return false
}

// FieldValidation carries optional per-field constraints.
type FieldValidation struct {
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	MinValue  *float64 `json:"min_value,omitempty"`
	MaxValue  *float64 `json:"max_value,omitempty"`
	Regex     string   `json:"regex,omitempty"`
}

// FormFieldSpec is one typed field of a form template. The mapping engine
// reads it read-only per job; ownership stays with the template subsystem.
type FormFieldSpec struct {
	FieldID     string           `json:"id"`
	Label       string           `json:"label"`
	Type        FieldType        `json:"type"`
	Required    bool             `json:"required"`
	Hint        string           `json:"hint,omitempty"`
	Options     []string         `json:"options,omitempty"`
	Validations *FieldValidation `json:"validations,omitempty"`
}

// FormSection is an ordered group of fields.
type FormSection struct {
	SectionID   string          `json:"id"`
	Label       string          `json:"label"`
	Order       int             `json:"order"`
	Description string          `json:"description,omitempty"`
	Fields      []FormFieldSpec `json:"fields"`
}

// FormSchema is the normalized shape the mapping engine consumes.
type FormSchema struct {
	Sections []FormSection `json:"sections"`
}

// Fields iterates every field across sections, in declared order.
func (s *FormSchema) Fields() []FormFieldSpec {
	var out []FormFieldSpec
	for _, sec := range s.Sections {
		out = append(out, sec.Fields...)
	}
	return out
}

// FormTemplate is the stored, versioned template row.
type FormTemplate struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Version    int       `json:"version"`
	IsActive   bool      `json:"is_active"`
	SchemaJSON []byte    `json:"schema_json"`
	CreatedAt  time.Time `json:"created_at"`
}
