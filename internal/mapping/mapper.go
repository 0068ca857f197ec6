package mapping

import (
	"log/slog"
	"strings"

	"github.com/arquivotcm/fichas/internal/entity"
)

// Engine turns extracted text plus per-line OCR metadata into
// confidence-scored field suggestions. It is stateless and safe for
// concurrent use; the label index is rebuilt per call from the job's
// schema.
type Engine struct {
	logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// MapFields runs the extraction passes in fixed order over the text.
// Later passes only displace a field's suggestion at strictly greater
// confidence, so the pass order is also the tiebreak order:
// label_block, key_value, layout_hint, heuristic.
func (e *Engine) MapFields(text string, items []entity.OcrTextItem, schema *entity.FormSchema) *entity.SuggestionSet {
	ix := NewLabelIndex(schema)
	lines := strings.Split(text, "\n")
	agg := newAggregator(ix)

	for _, c := range extractBlocks(lines, ix) {
		value, ok := parseFor(ix, c.Ref, c.Value)
		if !ok {
			continue
		}
		conf := confidenceBadge(avgLineConfidence(c.Lines, items), c.Score)
		agg.offer(c.Ref, entity.FieldSuggestion{
			Value:      value,
			Confidence: conf,
			Source:     entity.SourceLabelBlock,
		})
	}

	for _, kv := range extractKeyValues(lines) {
		ref, score, ok := ix.BestMatch(Normalize(kv.Key))
		if !ok || score < KeyValueThreshold {
			continue
		}
		value, ok := parseFor(ix, ref, kv.Value)
		if !ok {
			continue
		}
		conf := confidenceBadge(lineConfidence(kv.Raw, items), score)
		agg.offer(ref, entity.FieldSuggestion{
			Value:      value,
			Confidence: conf,
			Source:     entity.SourceKeyValue,
		})
	}

	for _, h := range extractHints(lines, ix) {
		value, ok := parseFor(ix, h.Ref, h.Value)
		if !ok {
			continue
		}
		conf := confidenceBadge(avgLineConfidence(h.Lines, items), BlockThreshold)
		agg.offer(h.Ref, entity.FieldSuggestion{
			Value:      value,
			Confidence: conf,
			Source:     entity.SourceLayoutHint,
		})
	}

	for _, h := range extractHeuristics(text) {
		ref := LabelRef{Group: entity.GroupBase, FieldID: h.FieldID}
		if agg.has(ref) {
			continue
		}
		agg.offer(ref, entity.FieldSuggestion{
			Value:      h.Value,
			Confidence: h.Confidence,
			Source:     entity.SourceHeuristic,
		})
	}

	set := agg.result()
	if e.logger != nil {
		e.logger.Debug("mapped fields", "suggestions", set.Len(), "lines", len(lines))
	}
	return set
}

// aggregator keeps at most one suggestion per field. An incoming
// suggestion replaces the held one only at strictly greater confidence,
// so equal-confidence candidates resolve to the earliest pass.
type aggregator struct {
	ix  *LabelIndex
	set *entity.SuggestionSet
}

func newAggregator(ix *LabelIndex) *aggregator {
	return &aggregator{ix: ix, set: entity.NewSuggestionSet()}
}

func (a *aggregator) has(ref LabelRef) bool {
	_, ok := a.set.Group(ref.Group)[ref.FieldID]
	return ok
}

func (a *aggregator) offer(ref LabelRef, s entity.FieldSuggestion) {
	if s.Value.IsZero() {
		return
	}
	// "REPARTIÇÃO VALOR" headers make the valor column bleed into
	// reparticao; drop any candidate that is really the valor label.
	if ref.FieldID == "reparticao" {
		if toks := Tokens(Normalize(s.Value.Canonical())); len(toks) > 0 && toks[0] == "valor" {
			return
		}
	}
	group := a.set.Group(ref.Group)
	if held, ok := group[ref.FieldID]; ok && s.Confidence <= held.Confidence {
		return
	}
	group[ref.FieldID] = s
}

func (a *aggregator) result() *entity.SuggestionSet { return a.set }
