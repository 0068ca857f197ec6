package mapping

import (
	"github.com/arquivotcm/fichas/internal/entity"
)

// defaultConfidence is used when no OCR item can be aligned with a line.
const defaultConfidence = 0.4

// lineConfidence aligns a text line with the OCR item reporting it (best
// token-set match) and returns that item's confidence. A weak alignment
// (score below 70) is the looser secondary path: its confidence is scaled
// by 0.7 as a safety margin.
func lineConfidence(raw string, items []entity.OcrTextItem) float64 {
	if len(items) == 0 {
		return defaultConfidence
	}
	normalized := Normalize(raw)
	best := -1
	bestScore := -1
	for i, it := range items {
		if it.Text == "" {
			continue
		}
		s := TokenSetRatio(normalized, Normalize(it.Text))
		if s > bestScore {
			bestScore = s
			best = i
		}
	}
	if best < 0 {
		return defaultConfidence
	}
	conf := items[best].Confidence
	if conf == 0 {
		conf = defaultConfidence
	}
	if bestScore < KeyValueThreshold {
		conf *= 0.7
	}
	return conf
}

// avgLineConfidence averages per-line confidence over a block's lines.
func avgLineConfidence(lines []string, items []entity.OcrTextItem) float64 {
	if len(lines) == 0 {
		return defaultConfidence
	}
	var sum float64
	for _, l := range lines {
		sum += lineConfidence(l, items)
	}
	return sum / float64(len(lines))
}

// confidenceBadge adjusts a base confidence by the quality of the label
// match that identified the field, clamped to [0.05, 1.0].
func confidenceBadge(conf float64, matchScore int) float64 {
	if matchScore >= 85 {
		conf += 0.1
	}
	if matchScore < 75 {
		conf -= 0.1
	}
	if conf < 0.05 {
		conf = 0.05
	}
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}
