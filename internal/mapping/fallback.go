package mapping

import (
	"regexp"
	"strings"

	"github.com/arquivotcm/fichas/internal/entity"
)

// Last-resort patterns over the whole text, for documents whose labels
// were mangled beyond fuzzy recovery. These only ever fill fields the
// earlier passes left empty, at low confidence.
var (
	reTCNumero   = regexp.MustCompile(`(?i)\bTC\s*(\d{2,}(?:[./*\-]\d+)*)`)
	reDataLabel  = regexp.MustCompile(`(?i)\bDATA\b[^0-9]{0,10}(\d{1,2}[./\-]\d{1,2}[./\-]\d{2,4})`)
	reProcLabel  = regexp.MustCompile(`(?i)\bPROC\w*\.?[^0-9]{0,10}([0-9][0-9./*\-]+)`)
	reValorLabel = regexp.MustCompile(`(?i)\bVALOR\b[^0-9]{0,12}([\d.,]+)`)
)

const (
	fallbackConfidence = 0.35
	yearConfidence     = 0.30
)

type heuristicHit struct {
	FieldID    string
	Value      entity.FieldValue
	Confidence float64
}

// extractHeuristics scans the raw text for loose patterns. Callers apply
// these only where nothing better was found.
func extractHeuristics(text string) []heuristicHit {
	var out []heuristicHit

	add := func(fieldID, raw string, conf float64) {
		if v, ok := ParseBaseField(fieldID, raw); ok {
			out = append(out, heuristicHit{fieldID, v, conf})
		}
	}

	if m := reTCNumero.FindStringSubmatch(text); m != nil {
		add("tc_numero", m[1], fallbackConfidence)
	}
	if m := reDataLabel.FindStringSubmatch(text); m != nil {
		add("data", m[1], fallbackConfidence)
	}
	if m := reProcLabel.FindStringSubmatch(text); m != nil {
		add("process_key", m[1], fallbackConfidence)
	}
	if m := reValorLabel.FindStringSubmatch(text); m != nil {
		add("valor", m[1], fallbackConfidence)
	}
	if y := firstYear(text); y != "" {
		add("ano", y, yearConfidence)
	}
	return out
}

func firstYear(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if m := reYear.FindString(line); m != "" {
			return m
		}
	}
	return ""
}
