package entity

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind discriminates the typed suggestion values. The value parser
// decides the kind once, at the parse boundary; consumers switch on it
// instead of re-asserting scalar types.
type ValueKind uint8

const (
	KindText ValueKind = iota
	KindNumber
	KindDate
	KindBool
	KindEnum
)

// FieldValue is a tagged union over the field types a template can declare.
// Its canonical form is the string persisted in the suggestions JSON
// (ISO date, fixed-point amount, "true"/"false", trimmed text).
type FieldValue struct {
	kind      ValueKind
	text      string
	number    decimal.Decimal
	date      time.Time
	boolean   bool
	canonical string
}

func TextValue(s string) FieldValue {
	return FieldValue{kind: KindText, text: s, canonical: s}
}

func EnumValue(s string) FieldValue {
	return FieldValue{kind: KindEnum, text: s, canonical: s}
}

// NumberValue keeps the decimal's own canonical form ("456", "12.5").
func NumberValue(d decimal.Decimal) FieldValue {
	return FieldValue{kind: KindNumber, number: d, canonical: d.String()}
}

// CurrencyValue renders with two decimals ("1234.56", "98400.00").
func CurrencyValue(d decimal.Decimal) FieldValue {
	return FieldValue{kind: KindNumber, number: d, canonical: d.StringFixed(2)}
}

func DateValue(t time.Time) FieldValue {
	return FieldValue{kind: KindDate, date: t, canonical: t.Format("2006-01-02")}
}

func BoolValue(b bool) FieldValue {
	v := FieldValue{kind: KindBool, boolean: b, canonical: "false"}
	if b {
		v.canonical = "true"
	}
	return v
}

func (v FieldValue) Kind() ValueKind          { return v.kind }
func (v FieldValue) Text() string             { return v.text }
func (v FieldValue) Number() decimal.Decimal  { return v.number }
func (v FieldValue) Date() time.Time          { return v.date }
func (v FieldValue) Bool() bool               { return v.boolean }

// Canonical is the string written to the job record.
func (v FieldValue) Canonical() string { return v.canonical }

// IsZero reports an unset value (no parser produced it).
func (v FieldValue) IsZero() bool {
	return v.kind == KindText && v.canonical == ""
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.canonical)
}

// UnmarshalJSON restores the canonical string; the kind collapses to text,
// which is all reviewers and exporters need after persistence.
func (v *FieldValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*v = TextValue(s)
	return nil
}
