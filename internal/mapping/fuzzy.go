package mapping

import (
	"math"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// Acceptance thresholds for fuzzy label matches. Key-value lines are
// anchored by an explicit colon, so they tolerate more OCR noise; short
// standalone lines treated as block-opening labels must match strictly.
const (
	KeyValueThreshold = 70
	BlockThreshold    = 85
)

// TokenSetRatio scores two normalized strings in [0,100] by symmetric
// token-set overlap: the token intersection is compared against each side's
// full token list, which makes the score robust to word order and rewards
// subset matches with 100.
func TokenSetRatio(a, b string) int {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	inter, restA, restB := splitTokenSets(ta, tb)

	s0 := strings.Join(inter, " ")
	s1 := strings.TrimSpace(s0 + " " + strings.Join(restA, " "))
	s2 := strings.TrimSpace(s0 + " " + strings.Join(restB, " "))

	best := similarity(s1, s2)
	if s0 != "" {
		if v := similarity(s0, s1); v > best {
			best = v
		}
		if v := similarity(s0, s2); v > best {
			best = v
		}
	}
	return int(math.Round(best * 100))
}

func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, nil)
}

func splitTokenSets(ta, tb []string) (inter, restA, restB []string) {
	seenA := map[string]bool{}
	for _, t := range ta {
		seenA[t] = true
	}
	seenB := map[string]bool{}
	for _, t := range tb {
		seenB[t] = true
	}
	for t := range seenA {
		if seenB[t] {
			inter = append(inter, t)
		} else {
			restA = append(restA, t)
		}
	}
	for t := range seenB {
		if !seenA[t] {
			restB = append(restB, t)
		}
	}
	sort.Strings(inter)
	sort.Strings(restA)
	sort.Strings(restB)
	return inter, restA, restB
}
