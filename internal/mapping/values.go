package mapping

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arquivotcm/fichas/internal/entity"
)

// dateLayouts are tried in order; first successful parse wins.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-1-2",
	"2006/1/2",
	"2.1.2006",
}

var (
	reShortDate  = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{2})$`)
	reYear       = regexp.MustCompile(`(19|20)\d{2}`)
	reNonNumeric = regexp.MustCompile(`[^0-9.\-]`)
	reIdent      = regexp.MustCompile(`\d{2,}(?:[./*\-]\d+)*`)
	reDigitRun   = regexp.MustCompile(`\d{3,}`)
)

// ParseDate converts the supported layouts to a canonical date. Two-digit
// years use a fixed pivot: 69-99 -> 1900s, 00-68 -> 2000s.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if m := reShortDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year >= 69 {
			year += 1900
		} else {
			year += 2000
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() == day && int(t.Month()) == month {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseAmount cleans a monetary or numeric string. With both separators
// present "." is thousands and "," the decimal mark (Brazilian
// convention); with only "," present it is the decimal mark.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer("R$", "", "r$", "", "US$", "", "C$", "", "c$", "", "$", "", " ", "").Replace(s)
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	s = reNonNumeric.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseYear picks the first 4-digit 19xx/20xx token.
func ParseYear(raw string) (string, bool) {
	m := reYear.FindString(raw)
	return m, m != ""
}

// ParseIdentifier matches numeric-with-separators identifiers such as
// "6650/80" or "02.046.799.80*17", falling back to any run of 3+ digits.
func ParseIdentifier(raw string) (string, bool) {
	if m := reIdent.FindString(raw); m != "" {
		return m, true
	}
	if m := reDigitRun.FindString(raw); m != "" {
		return m, true
	}
	return "", false
}

// ParseBool recognizes Portuguese and English affirmative/negative words.
// Anything else yields no value: the field stays unresolved, not defaulted.
func ParseBool(raw string) (bool, bool) {
	switch Normalize(raw) {
	case "sim", "true", "1", "yes":
		return true, true
	case "nao", "false", "0", "no":
		return false, true
	}
	return false, false
}

// ParseBaseField converts a raw substring for one of the fixed base fields.
// A failed parse drops the candidate; it is never a pipeline error.
func ParseBaseField(fieldID, raw string) (entity.FieldValue, bool) {
	switch fieldID {
	case "ano":
		y, ok := ParseYear(raw)
		if !ok {
			return entity.FieldValue{}, false
		}
		n, err := decimal.NewFromString(y)
		if err != nil {
			return entity.FieldValue{}, false
		}
		return entity.NumberValue(n), true
	case "data":
		t, ok := ParseDate(raw)
		if !ok {
			return entity.FieldValue{}, false
		}
		return entity.DateValue(t), true
	case "valor":
		d, ok := ParseAmount(raw)
		if !ok {
			return entity.FieldValue{}, false
		}
		return entity.CurrencyValue(d), true
	case "tc_numero", "process_key":
		id, ok := ParseIdentifier(raw)
		if !ok {
			return entity.FieldValue{}, false
		}
		return entity.TextValue(id), true
	}
	return textValue(raw)
}

// ParseTypedField converts a raw substring per the schema-declared type.
func ParseTypedField(t entity.FieldType, raw string, options []string) (entity.FieldValue, bool) {
	switch t {
	case entity.FieldDate:
		d, ok := ParseDate(raw)
		if !ok {
			return entity.FieldValue{}, false
		}
		return entity.DateValue(d), true
	case entity.FieldCurrency:
		d, ok := ParseAmount(raw)
		if !ok {
			return entity.FieldValue{}, false
		}
		return entity.CurrencyValue(d), true
	case entity.FieldNumber:
		d, ok := ParseAmount(raw)
		if !ok {
			return entity.FieldValue{}, false
		}
		return entity.NumberValue(d), true
	case entity.FieldBoolean:
		b, ok := ParseBool(raw)
		if !ok {
			return entity.FieldValue{}, false
		}
		return entity.BoolValue(b), true
	case entity.FieldEnum:
		v := strings.TrimSpace(raw)
		for _, opt := range options {
			if v == strings.TrimSpace(opt) {
				return entity.EnumValue(v), true
			}
		}
		return entity.FieldValue{}, false
	}
	return textValue(raw)
}

func textValue(raw string) (entity.FieldValue, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return entity.FieldValue{}, false
	}
	return entity.TextValue(v), true
}

// parseFor dispatches between the base-field semantic types and the
// schema-declared type of an extras field.
func parseFor(ix *LabelIndex, ref LabelRef, raw string) (entity.FieldValue, bool) {
	if ref.Group == entity.GroupExtras {
		if t, ok := ix.FieldType(ref.FieldID); ok {
			return ParseTypedField(t, raw, ix.Options(ref.FieldID))
		}
		return textValue(raw)
	}
	return ParseBaseField(ref.FieldID, raw)
}
