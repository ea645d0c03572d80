package extract

import (
	"unicode/utf8"
	"valuation_data/pkg/models"

	"github.com/agnivade/levenshtein"
)

// DefaultSimilarityFloor is the minimum label similarity for a fuzzy match.
const DefaultSimilarityFloor = 0.80

type alias struct {
	field models.Field
	text  string
}

// LabelMatcher maps free-text row labels onto canonical fields.
type LabelMatcher struct {
	floor   float64
	aliases []alias
}

// NewLabelMatcher builds a matcher over every alias in the field registry.
func NewLabelMatcher(floor float64) *LabelMatcher {
	if floor <= 0 {
		floor = DefaultSimilarityFloor
	}
	m := &LabelMatcher{floor: floor}
	for _, spec := range models.Fields() {
		m.aliases = append(m.aliases, alias{field: spec.Field, text: NormalizeLabel(string(spec.Field))})
		for _, a := range spec.Aliases {
			m.aliases = append(m.aliases, alias{field: spec.Field, text: NormalizeLabel(a)})
		}
	}
	return m
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)), over runes.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	if a == b {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Match returns the best canonical field for label and its similarity.
// ok is false when no alias reaches the floor.
func (m *LabelMatcher) Match(label string) (field models.Field, score float64, ok bool) {
	norm := NormalizeLabel(label)
	if norm == "" {
		return "", 0, false
	}
	for _, a := range m.aliases {
		s := Similarity(norm, a.text)
		if s > score {
			field, score = a.field, s
		}
	}
	return field, score, score >= m.floor
}

// Floor returns the configured similarity floor.
func (m *LabelMatcher) Floor() float64 { return m.floor }
