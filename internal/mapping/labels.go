package mapping

import (
	"strings"

	"github.com/arquivotcm/fichas/internal/entity"
)

// LabelRef identifies the field an alias resolves to.
type LabelRef struct {
	Group   entity.FieldGroup
	FieldID string
}

// baseVocabulary is the fixed, schema-independent alias table for the
// canonical process attributes. Order matters: lookups walk aliases in
// registration order and the first best score wins.
var baseVocabulary = []struct {
	field   string
	aliases []string
}{
	{"process_key", []string{"processo", "processo chave", "chave do processo", "numero do processo", "numero processo", "proc"}},
	{"tc_numero", []string{"tc numero", "tc", "tcm", "numero tc"}},
	{"ano", []string{"ano", "exercicio"}},
	{"data", []string{"data", "data do processo", "data de abertura"}},
	{"interessado", []string{"interessado", "requerente", "interessados"}},
	{"assunto", []string{"assunto", "objeto"}},
	{"procedencia", []string{"procedencia", "origem"}},
	{"reparticao", []string{"reparticao", "setor", "unidade"}},
	{"valor", []string{"valor", "valor total", "montante", "quantia"}},
	{"observacoes", []string{"observacoes", "observacao", "obs", "anotacoes"}},
	{"indexador", []string{"indexador"}},
}

// LabelIndex maps normalized aliases to fields. It is rebuilt per job:
// the static vocabulary first, then any attached schema's labels and ids,
// so a schema alias that collides with a generic synonym shadows it.
type LabelIndex struct {
	keys       []string // registration order, for deterministic lookups
	refs       map[string]LabelRef
	aliasToks  map[string][]string
	fieldTypes map[string]entity.FieldType // extras field -> declared type
	options    map[string][]string         // extras enum field -> options
}

// NewLabelIndex builds the index for one job. schema may be nil.
func NewLabelIndex(schema *entity.FormSchema) *LabelIndex {
	ix := &LabelIndex{
		refs:       map[string]LabelRef{},
		aliasToks:  map[string][]string{},
		fieldTypes: map[string]entity.FieldType{},
		options:    map[string][]string{},
	}
	for _, e := range baseVocabulary {
		for _, alias := range e.aliases {
			ix.register(alias, LabelRef{Group: entity.GroupBase, FieldID: e.field})
		}
	}
	if schema != nil {
		for _, f := range schema.Fields() {
			ix.fieldTypes[f.FieldID] = f.Type
			if f.Type == entity.FieldEnum {
				ix.options[f.FieldID] = f.Options
			}
			for _, alias := range []string{f.Label, f.FieldID} {
				ix.register(alias, LabelRef{Group: entity.GroupExtras, FieldID: f.FieldID})
			}
		}
	}
	return ix
}

func (ix *LabelIndex) register(alias string, ref LabelRef) {
	key := Normalize(alias)
	if key == "" {
		return
	}
	if _, exists := ix.refs[key]; !exists {
		ix.keys = append(ix.keys, key)
		ix.aliasToks[key] = Tokens(key)
	}
	// later registration wins on collision
	ix.refs[key] = ref
}

// refFor returns the ref registered under a field's canonical alias.
func (ix *LabelIndex) refFor(fieldID string) (LabelRef, bool) {
	ref, ok := ix.refs[Normalize(fieldID)]
	return ref, ok
}

// FieldType returns the declared type of a schema field, if any.
func (ix *LabelIndex) FieldType(fieldID string) (entity.FieldType, bool) {
	t, ok := ix.fieldTypes[fieldID]
	return t, ok
}

// Options returns the declared options of a schema enum field.
func (ix *LabelIndex) Options(fieldID string) []string {
	return ix.options[fieldID]
}

// BestMatch fuzzy-scores candidate against every registered alias and
// returns the best one. Ties keep the earlier-registered alias.
func (ix *LabelIndex) BestMatch(candidate string) (LabelRef, int, bool) {
	var best LabelRef
	bestScore := -1
	found := false
	for _, key := range ix.keys {
		s := TokenSetRatio(candidate, key)
		if s > bestScore {
			bestScore = s
			best = ix.refs[key]
			found = true
		}
	}
	return best, bestScore, found
}

// InlineMatch tries an exact prefix match of alias tokens against the
// line's leading tokens. Alias tokens must consume whole raw
// whitespace-delimited tokens; the remainder of the line, with any
// leading ":" or "-" trimmed, is returned as the trailing value. A longer
// alias beats a shorter one. Inline matches score 100 by definition.
func (ix *LabelIndex) InlineMatch(rawLine string) (LabelRef, string, bool) {
	fields := strings.Fields(rawLine)
	if len(fields) == 0 {
		return LabelRef{}, "", false
	}
	// normalized tokens per raw field; a raw field may normalize to
	// several tokens ("02.046.799.80*17") or none ("-").
	perField := make([][]string, len(fields))
	for i, f := range fields {
		perField[i] = Tokens(Normalize(f))
	}

	var bestRef LabelRef
	bestLen := 0
	bestEnd := -1
	for _, key := range ix.keys {
		alias := ix.aliasToks[key]
		if len(alias) <= bestLen {
			continue
		}
		end, ok := consumePrefix(perField, alias)
		if ok {
			bestRef = ix.refs[key]
			bestLen = len(alias)
			bestEnd = end
		}
	}
	if bestEnd < 0 {
		return LabelRef{}, "", false
	}
	trailing := strings.Join(fields[bestEnd:], " ")
	trailing = strings.TrimLeft(trailing, ":- ")
	return bestRef, strings.TrimSpace(trailing), true
}

// consumePrefix matches alias tokens against the flattened per-field
// tokens; the match must end exactly on a raw-field boundary. Returns the
// index of the first unconsumed raw field.
func consumePrefix(perField [][]string, alias []string) (int, bool) {
	ai := 0
	for fi, toks := range perField {
		if len(toks) == 0 {
			if ai == 0 {
				// leading junk field before any alias token
				return 0, false
			}
			continue
		}
		for _, t := range toks {
			if ai >= len(alias) {
				// alias ended mid-field earlier; handled below
				return 0, false
			}
			if alias[ai] != t {
				return 0, false
			}
			ai++
		}
		if ai == len(alias) {
			return fi + 1, true
		}
	}
	return 0, false
}
