package ocr

import (
	"strings"

	"github.com/arquivotcm/fichas/internal/entity"
)

// wordToken is one recognized word with the provider's confidence.
type wordToken struct {
	Text       string
	Confidence float64
}

const unalignedLineConfidence = 0.4

// lineKey strips a token down to lowercase alphanumerics for alignment.
func lineKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// buildLineItems aligns the provider's word stream to the text's lines and
// averages the word confidences per line. The word stream and the text
// come from the same annotation, so a single forward cursor suffices;
// lines whose tokens cannot be aligned get the default confidence.
func buildLineItems(text string, words []wordToken) []entity.OcrTextItem {
	var items []entity.OcrTextItem
	if text == "" {
		return items
	}
	index := 0
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		var confidences []float64
		for _, tok := range strings.Fields(stripped) {
			key := lineKey(tok)
			if key == "" {
				continue
			}
			for index < len(words) && lineKey(words[index].Text) != key {
				index++
			}
			if index < len(words) {
				confidences = append(confidences, words[index].Confidence)
				index++
			}
		}
		conf := unalignedLineConfidence
		if len(confidences) > 0 {
			sum := 0.0
			for _, c := range confidences {
				sum += c
			}
			conf = sum / float64(len(confidences))
		}
		items = append(items, entity.OcrTextItem{Text: stripped, Confidence: conf})
	}
	return items
}
