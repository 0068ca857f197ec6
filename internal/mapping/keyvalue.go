package mapping

import (
	"regexp"
	"strings"
)

// kvPattern: a 2-60 char label segment, a colon, then a trailing value.
var kvPattern = regexp.MustCompile(`^\s*([^:]{2,60})\s*:\s*(.+)$`)

type kvPair struct {
	Key   string // raw label segment, trimmed
	Value string // raw value segment, trimmed
	Raw   string // whole line, for confidence alignment
}

// isKeyValueLine reports whether the line is an explicit "label: value"
// pair. The value must survive normalization: punctuation-only trailers
// like "OBS.:-" are layout artifacts, left to the block extractor.
func isKeyValueLine(line string) bool {
	m := kvPattern.FindStringSubmatch(line)
	return m != nil && Normalize(m[2]) != ""
}

// extractKeyValues scans non-blank lines for label/value pairs.
func extractKeyValues(lines []string) []kvPair {
	var pairs []kvPair
	for _, line := range lines {
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}
		m := kvPattern.FindStringSubmatch(raw)
		if m == nil || Normalize(m[2]) == "" {
			continue
		}
		pairs = append(pairs, kvPair{
			Key:   strings.TrimSpace(m[1]),
			Value: strings.TrimSpace(m[2]),
			Raw:   raw,
		})
	}
	return pairs
}
