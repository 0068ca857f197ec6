package mapping

import (
	"strings"
)

// blockCandidate is one layout-block hit: either a label line with an
// inline trailing value, or a label followed by buffered value lines.
type blockCandidate struct {
	Ref    LabelRef
	Score  int      // label match score (100 for inline alias matches)
	Value  string   // buffered lines joined by single spaces, or the inline trailing value
	Lines  []string // constituent raw lines, for confidence averaging
	Inline bool
}

type openBlock struct {
	ref   LabelRef
	score int
	buf   []string
}

// extractBlocks walks the lines with a currently-open label and an
// accumulating buffer, reproducing printed-form layouts where a label is
// followed by a value wrapped across OCR lines.
//
//   - a blank line flushes the open block
//   - a "label: value" line only flushes (the key-value pass owns it)
//   - a line inline-matching an alias flushes, then either emits an
//     immediate candidate (trailing value present) or opens a new block
//   - a short standalone line fuzzy-matching at the strict threshold
//     opens a new block
//   - anything else is appended to the open buffer
func extractBlocks(lines []string, ix *LabelIndex) []blockCandidate {
	var out []blockCandidate
	var open *openBlock

	flush := func() {
		if open != nil && len(open.buf) > 0 {
			out = append(out, blockCandidate{
				Ref:   open.ref,
				Score: open.score,
				Value: strings.Join(open.buf, " "),
				Lines: open.buf,
			})
		}
		open = nil
	}

	for _, line := range lines {
		raw := strings.TrimSpace(line)
		if raw == "" {
			flush()
			continue
		}
		if isKeyValueLine(raw) {
			flush()
			continue
		}
		if ref, trailing, ok := ix.InlineMatch(raw); ok {
			flush()
			if Normalize(trailing) != "" {
				out = append(out, blockCandidate{
					Ref:    ref,
					Score:  100,
					Value:  trailing,
					Lines:  []string{raw},
					Inline: true,
				})
			} else {
				open = &openBlock{ref: ref, score: 100}
			}
			continue
		}
		if norm := Normalize(raw); len(Tokens(norm)) <= 2 {
			if ref, score, ok := ix.BestMatch(norm); ok && score >= BlockThreshold {
				flush()
				open = &openBlock{ref: ref, score: score}
				continue
			}
		}
		if open != nil {
			open.buf = append(open.buf, raw)
		}
	}
	flush()
	return out
}

// isLabelLine reports whether a line would be recognized as a label by
// either extraction pass; the layout-hint scanner treats such lines as
// noise boundaries.
func isLabelLine(raw string, ix *LabelIndex) bool {
	if isKeyValueLine(raw) {
		return true
	}
	if _, _, ok := ix.InlineMatch(raw); ok {
		return true
	}
	norm := Normalize(raw)
	if len(Tokens(norm)) <= 2 {
		if _, score, ok := ix.BestMatch(norm); ok && score >= BlockThreshold {
			return true
		}
	}
	return false
}
