package models

import (
	"fmt"
	"time"
)

// RawRecord is extractor output before scale normalization.
type RawRecord struct {
	Source      string            `json:"source"`  // extractor name
	Locator     string            `json:"locator"` // file path or ticker
	Company     Company           `json:"company"`
	Years       []string          `json:"years"`
	Values      map[Field]Series  `json:"values"`
	Market      map[Field]float64 `json:"market"`
	Context     string            `json:"context"` // free text around the data (headers, footnotes, units)
	Presence    map[Field]bool    `json:"presence"`
	Derived     map[Field]bool    `json:"derived,omitempty"`
	PreScaled   bool              `json:"pre_scaled"` // values already in CanonicalScale
	Warnings    []string          `json:"warnings,omitempty"`
	ExtractedAt time.Time         `json:"extracted_at"`

	// Completeness is the provisional weighted score computed at extraction time.
	Completeness float64 `json:"completeness"`
}

// NewRawRecord returns an empty record for the given years.
func NewRawRecord(source string, years []string) *RawRecord {
	return &RawRecord{
		Source:   source,
		Years:    append([]string(nil), years...),
		Values:   make(map[Field]Series),
		Market:   make(map[Field]float64),
		Presence: make(map[Field]bool),
		Derived:  make(map[Field]bool),
	}
}

// Set stores a per-year series and updates presence.
func (r *RawRecord) Set(f Field, s Series) {
	r.Values[f] = s
	r.Presence[f] = s.HasAny()
}

// SetMarket stores a point-in-time value.
func (r *RawRecord) SetMarket(f Field, v float64) {
	r.Market[f] = v
	r.Presence[f] = true
}

// Warn appends a formatted warning.
func (r *RawRecord) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// CheckShape verifies every series is aligned with Years.
func (r *RawRecord) CheckShape() error {
	for f, s := range r.Values {
		if len(s) != len(r.Years) {
			return fmt.Errorf("field %s has %d values for %d years", f, len(s), len(r.Years))
		}
	}
	return nil
}

// NumericValues returns every present value in the record, statements first.
func (r *RawRecord) NumericValues() []float64 {
	var out []float64
	for _, spec := range registry {
		if s, ok := r.Values[spec.Field]; ok {
			out = append(out, s.Present()...)
		}
	}
	for _, spec := range registry {
		if v, ok := r.Market[spec.Field]; ok {
			out = append(out, v)
		}
	}
	return out
}
