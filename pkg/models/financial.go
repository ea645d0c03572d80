// Package models defines the canonical financial schema shared by extractors,
// the normalizer and the validator.
package models

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SCALE
// =============================================================================

// Scale is the unit a set of reported monetary values is expressed in.
type Scale string

const (
	ScaleActual    Scale = "actual"
	ScaleThousands Scale = "thousands"
	ScaleMillions  Scale = "millions"
	ScaleBillions  Scale = "billions"

	// CanonicalScale is the unit every normalized record is stored in.
	CanonicalScale = ScaleMillions
)

// Factor returns the multiplier from this scale to actual currency units.
func (s Scale) Factor() float64 {
	switch s {
	case ScaleThousands:
		return 1e3
	case ScaleMillions:
		return 1e6
	case ScaleBillions:
		return 1e9
	default:
		return 1
	}
}

// ToCanonical returns the multiplier that converts a value in s into CanonicalScale.
func (s Scale) ToCanonical() float64 {
	return s.Factor() / CanonicalScale.Factor()
}

// ParseScale accepts the scale names used in config files and feed payloads.
func ParseScale(name string) (Scale, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "actual", "units", "unit", "ones", "dollars":
		return ScaleActual, nil
	case "thousands", "thousand", "k", "000s":
		return ScaleThousands, nil
	case "millions", "million", "m", "mm", "mn":
		return ScaleMillions, nil
	case "billions", "billion", "b", "bn":
		return ScaleBillions, nil
	}
	return "", fmt.Errorf("unknown scale %q", name)
}

// =============================================================================
// SERIES
// =============================================================================

// Series is a per-year sequence aligned with FinancialData.Years.
// A nil entry is the explicit absent marker; it is never the same as zero.
type Series []*float64

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// NewSeries returns an all-absent series of length n.
func NewSeries(n int) Series { return make(Series, n) }

// SeriesOf builds a fully-present series.
func SeriesOf(values ...float64) Series {
	s := make(Series, len(values))
	for i, v := range values {
		s[i] = Float(v)
	}
	return s
}

// Present returns the non-absent values in year order.
func (s Series) Present() []float64 {
	out := make([]float64, 0, len(s))
	for _, v := range s {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// HasAny reports whether at least one year is present.
func (s Series) HasAny() bool {
	for _, v := range s {
		if v != nil {
			return true
		}
	}
	return false
}

// At returns the value for year index i.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) || s[i] == nil {
		return 0, false
	}
	return *s[i], true
}

// Last returns the most recent present value.
func (s Series) Last() (float64, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != nil {
			return *s[i], true
		}
	}
	return 0, false
}

// Clone deep-copies the series so the copy shares no pointers with s.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	for i, v := range s {
		if v != nil {
			out[i] = Float(*v)
		}
	}
	return out
}

// =============================================================================
// FINANCIAL DATA
// =============================================================================

// Company identifies the reporting entity.
type Company struct {
	Ticker        string `json:"ticker,omitempty"`
	Name          string `json:"name"`
	FiscalYearEnd string `json:"fiscal_year_end,omitempty"` // e.g. "December", "June 30"
}

// Quality records provenance and confidence for a normalized record.
type Quality struct {
	Source            string         `json:"source"`
	ExtractedAt       time.Time      `json:"extracted_at"`
	Derived           map[Field]bool `json:"derived,omitempty"`
	Scale             Scale          `json:"scale"`        // always CanonicalScale once normalized
	SourceScale       Scale          `json:"source_scale"` // scale the source was detected in
	ScaleConfidence   float64        `json:"scale_confidence"`
	ScaleSignal       string         `json:"scale_signal"`
	Normalized        bool           `json:"normalized"`
	CompletenessScore float64        `json:"completeness_score"`
	Warnings          []string       `json:"warnings,omitempty"`
}

// FinancialData is one company's statements at one extraction point.
// Every Series has len(Years) entries; Years ascend.
type FinancialData struct {
	Company         Company           `json:"company"`
	Years           []string          `json:"years"`
	IncomeStatement map[Field]Series  `json:"income_statement"`
	BalanceSheet    map[Field]Series  `json:"balance_sheet"`
	CashFlow        map[Field]Series  `json:"cash_flow"`
	MarketData      map[Field]float64 `json:"market_data"` // missing key means absent
	Quality         Quality           `json:"quality"`
}

// NewFinancialData returns an empty record for the given years.
func NewFinancialData(company Company, years []string) *FinancialData {
	return &FinancialData{
		Company:         company,
		Years:           append([]string(nil), years...),
		IncomeStatement: make(map[Field]Series),
		BalanceSheet:    make(map[Field]Series),
		CashFlow:        make(map[Field]Series),
		MarketData:      make(map[Field]float64),
		Quality:         Quality{Derived: make(map[Field]bool)},
	}
}

func (d *FinancialData) statement(s Statement) map[Field]Series {
	switch s {
	case IncomeStatement:
		return d.IncomeStatement
	case BalanceSheet:
		return d.BalanceSheet
	case CashFlowStatement:
		return d.CashFlow
	}
	return nil
}

// Series returns the series for a statement field, or an all-absent series when missing.
func (d *FinancialData) Series(f Field) Series {
	spec, ok := Lookup(f)
	if !ok || spec.Statement == Market {
		return NewSeries(len(d.Years))
	}
	if s, ok := d.statement(spec.Statement)[f]; ok {
		return s
	}
	return NewSeries(len(d.Years))
}

// SetSeries stores s under the statement that owns f.
func (d *FinancialData) SetSeries(f Field, s Series) error {
	spec, ok := Lookup(f)
	if !ok || spec.Statement == Market {
		return fmt.Errorf("%s is not a statement field", f)
	}
	if len(s) != len(d.Years) {
		return fmt.Errorf("%s has %d values for %d years", f, len(s), len(d.Years))
	}
	d.statement(spec.Statement)[f] = s
	return nil
}

// Has reports whether a field has at least one present value.
func (d *FinancialData) Has(f Field) bool {
	if IsMarket(f) {
		_, ok := d.MarketData[f]
		return ok
	}
	return d.Series(f).HasAny()
}

// Presence maps every field with at least one present value to true.
func (d *FinancialData) Presence() map[Field]bool {
	out := make(map[Field]bool)
	for _, spec := range registry {
		if d.Has(spec.Field) {
			out[spec.Field] = true
		}
	}
	return out
}

// Clone deep-copies the record.
func (d *FinancialData) Clone() *FinancialData {
	out := NewFinancialData(d.Company, d.Years)
	for _, st := range []Statement{IncomeStatement, BalanceSheet, CashFlowStatement} {
		for f, s := range d.statement(st) {
			out.statement(st)[f] = s.Clone()
		}
	}
	for f, v := range d.MarketData {
		out.MarketData[f] = v
	}
	out.Quality = d.Quality
	out.Quality.Derived = make(map[Field]bool, len(d.Quality.Derived))
	for f, v := range d.Quality.Derived {
		out.Quality.Derived[f] = v
	}
	out.Quality.Warnings = append([]string(nil), d.Quality.Warnings...)
	return out
}

// ToRaw converts the record back into extractor output so it can be normalized again.
// A normalized record comes back pre-scaled, which makes normalization idempotent.
func (d *FinancialData) ToRaw() *RawRecord {
	rec := NewRawRecord(d.Quality.Source, d.Years)
	rec.Company = d.Company
	rec.ExtractedAt = d.Quality.ExtractedAt
	rec.PreScaled = d.Quality.Normalized
	for _, st := range []Statement{IncomeStatement, BalanceSheet, CashFlowStatement} {
		for f, s := range d.statement(st) {
			rec.Values[f] = s.Clone()
		}
	}
	for f, v := range d.MarketData {
		rec.Market[f] = v
	}
	for f, derived := range d.Quality.Derived {
		if derived {
			rec.Derived[f] = true
		}
	}
	rec.Presence = d.Presence()
	rec.Warnings = append([]string(nil), d.Quality.Warnings...)
	rec.Completeness = d.Quality.CompletenessScore
	return rec
}
