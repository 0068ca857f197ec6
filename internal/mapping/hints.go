package mapping

import (
	"regexp"
	"strings"
)

// layoutHint describes where a field's value tends to sit on the printed
// form relative to its label line, for labels whose value is neither on
// the same line nor in a contiguous block right below.
type layoutHint struct {
	FieldID  string
	MaxLines int
}

// hintWindow is how many lines past the label we are willing to scan
// before giving up on a positional value.
const hintWindow = 12

var layoutHints = []layoutHint{
	{FieldID: "interessado", MaxLines: 1},
	{FieldID: "assunto", MaxLines: 6},
	{FieldID: "observacoes", MaxLines: 2},
}

var (
	reYearOnly     = regexp.MustCompile(`^(19|20)\d{2}$`)
	reCurrencyLike = regexp.MustCompile(`^[A-Za-z]{0,2}\$`)
)

type hintCandidate struct {
	Ref   LabelRef
	Value string
	Lines []string
}

// extractHints finds each hinted label anywhere in the document and
// collects up to MaxLines of content below it, skipping leading noise
// (other labels, dates, bare years, currency figures) and stopping at the
// first noise line once content has started.
func extractHints(lines []string, ix *LabelIndex) []hintCandidate {
	var out []hintCandidate
	for _, hint := range layoutHints {
		ref, ok := ix.refFor(hint.FieldID)
		if !ok {
			continue
		}
		at := findHintLabel(lines, ix, hint.FieldID)
		if at < 0 {
			continue
		}
		var buf []string
		for i := at + 1; i < len(lines) && i <= at+hintWindow && len(buf) < hint.MaxLines; i++ {
			raw := strings.TrimSpace(lines[i])
			if raw == "" {
				if len(buf) > 0 {
					break
				}
				continue
			}
			if isHintNoise(raw, ix) {
				if len(buf) > 0 {
					break
				}
				continue
			}
			buf = append(buf, raw)
		}
		if len(buf) > 0 {
			out = append(out, hintCandidate{
				Ref:   ref,
				Value: strings.Join(buf, " "),
				Lines: buf,
			})
		}
	}
	return out
}

// findHintLabel locates the first line that is a standalone label for
// fieldID: short, no trailing value, and fuzzy-matching at the strict
// threshold.
func findHintLabel(lines []string, ix *LabelIndex, fieldID string) int {
	for i, line := range lines {
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}
		if ref, trailing, ok := ix.InlineMatch(raw); ok {
			if ref.FieldID == fieldID && Normalize(trailing) == "" {
				return i
			}
			continue
		}
		norm := Normalize(raw)
		if len(Tokens(norm)) > 2 {
			continue
		}
		if ref, score, ok := ix.BestMatch(norm); ok && score >= BlockThreshold && ref.FieldID == fieldID {
			return i
		}
	}
	return -1
}

// isHintNoise reports whether a line below a hinted label is form
// furniture rather than the value: another label, a date, a bare year or
// a currency amount.
func isHintNoise(raw string, ix *LabelIndex) bool {
	if isLabelLine(raw, ix) {
		return true
	}
	s := strings.TrimSpace(raw)
	if _, ok := ParseDate(s); ok {
		return true
	}
	if reYearOnly.MatchString(s) {
		return true
	}
	if reCurrencyLike.MatchString(s) {
		return true
	}
	return false
}
