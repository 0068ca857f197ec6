package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arquivotcm/fichas/internal/entity"
)

func TestLineConfidenceAlignment(t *testing.T) {
	items := []entity.OcrTextItem{
		{Text: "Processo: PROC-123", Confidence: 0.9},
		{Text: "Ano: 2024", Confidence: 0.6},
	}
	assert.InDelta(t, 0.9, lineConfidence("Processo: PROC-123", items), 1e-9)
	assert.InDelta(t, 0.6, lineConfidence("Ano: 2024", items), 1e-9)
}

func TestLineConfidenceDefaults(t *testing.T) {
	// no items at all -> default
	assert.InDelta(t, defaultConfidence, lineConfidence("qualquer linha", nil), 1e-9)

	// a weak alignment is scaled down by the secondary-path margin
	items := []entity.OcrTextItem{{Text: "texto completamente diferente", Confidence: 0.8}}
	got := lineConfidence("linha", items)
	assert.InDelta(t, 0.8*0.7, got, 1e-9)
}

func TestAvgLineConfidence(t *testing.T) {
	items := []entity.OcrTextItem{
		{Text: "primeira linha", Confidence: 0.8},
		{Text: "segunda linha", Confidence: 0.4},
	}
	got := avgLineConfidence([]string{"primeira linha", "segunda linha"}, items)
	assert.InDelta(t, 0.6, got, 1e-9)

	assert.InDelta(t, defaultConfidence, avgLineConfidence(nil, items), 1e-9)
}

func TestConfidenceBadge(t *testing.T) {
	assert.InDelta(t, 0.6, confidenceBadge(0.5, 90), 1e-9)  // strong match
	assert.InDelta(t, 0.5, confidenceBadge(0.5, 80), 1e-9)  // neutral band
	assert.InDelta(t, 0.4, confidenceBadge(0.5, 70), 1e-9)  // weak match
	assert.InDelta(t, 0.05, confidenceBadge(0.1, 60), 1e-9) // lower clamp
	assert.InDelta(t, 1.0, confidenceBadge(0.95, 100), 1e-9)
}
