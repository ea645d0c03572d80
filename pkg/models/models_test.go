package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeights(t *testing.T) {
	assert.Equal(t, 3.0, Weight(Revenue))
	assert.Equal(t, 2.0, Weight(EBITDA))
	assert.Equal(t, 1.0, Weight(NetIncome))
	assert.Equal(t, 1.0, Weight(Field("unknown_field")))
}

func TestMeasures(t *testing.T) {
	tests := []struct {
		field    Field
		monetary bool
		scaled   bool
	}{
		{Revenue, true, true},
		{MarketCap, true, true},
		{SharesOutstanding, false, true},
		{SharePrice, false, false},
		{Beta, false, false},
	}
	for _, tt := range tests {
		spec, ok := Lookup(tt.field)
		require.True(t, ok, tt.field)
		assert.Equal(t, tt.monetary, spec.Monetary(), tt.field)
		assert.Equal(t, tt.scaled, spec.Scaled(), tt.field)
	}
}

func TestScaleConversion(t *testing.T) {
	assert.Equal(t, 0.001, ScaleThousands.ToCanonical())
	assert.Equal(t, 1.0, ScaleMillions.ToCanonical())
	assert.Equal(t, 1000.0, ScaleBillions.ToCanonical())
	assert.Equal(t, 1e-6, ScaleActual.ToCanonical())

	s, err := ParseScale("MM")
	require.NoError(t, err)
	assert.Equal(t, ScaleMillions, s)

	_, err = ParseScale("furlongs")
	assert.Error(t, err)
}

func TestSeriesAbsentIsNotZero(t *testing.T) {
	s := Series{Float(0), nil, Float(5)}
	assert.Equal(t, []float64{0, 5}, s.Present())
	assert.True(t, s.HasAny())

	_, ok := s.At(1)
	assert.False(t, ok)
	v, ok := s.At(0)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, 5.0, last)

	assert.False(t, NewSeries(3).HasAny())
}

func TestSeriesCloneIsDeep(t *testing.T) {
	s := SeriesOf(1, 2)
	c := s.Clone()
	*c[0] = 99
	assert.Equal(t, 1.0, *s[0])
}

func TestSetSeriesRejectsMisalignedLength(t *testing.T) {
	d := NewFinancialData(Company{Name: "Acme"}, []string{"2022", "2023"})
	assert.Error(t, d.SetSeries(Revenue, SeriesOf(1, 2, 3)))
	assert.Error(t, d.SetSeries(Beta, SeriesOf(1, 2)))
	require.NoError(t, d.SetSeries(Revenue, SeriesOf(1, 2)))
	assert.True(t, d.Has(Revenue))
	assert.False(t, d.Has(TotalAssets))
	assert.Len(t, d.Series(TotalAssets), 2)
}

func TestToRawCarriesNormalizedFlag(t *testing.T) {
	d := NewFinancialData(Company{Name: "Acme"}, []string{"2022", "2023"})
	require.NoError(t, d.SetSeries(Revenue, SeriesOf(10, 12)))
	d.MarketData[Beta] = 1.1
	d.Quality.Normalized = true
	d.Quality.Derived[GrossProfit] = true

	raw := d.ToRaw()
	assert.True(t, raw.PreScaled)
	assert.True(t, raw.Presence[Revenue])
	assert.True(t, raw.Presence[Beta])
	assert.True(t, raw.Derived[GrossProfit])
	assert.NoError(t, raw.CheckShape())
	assert.ElementsMatch(t, []float64{10, 12, 1.1}, raw.NumericValues())
}

func TestAnalysisFields(t *testing.T) {
	a, err := ParseAnalysis(" DCF ")
	require.NoError(t, err)
	assert.Equal(t, AnalysisDCF, a)

	_, err = ParseAnalysis("astrology")
	assert.Error(t, err)

	assert.Len(t, ExpectedFields(nil), len(Fields()))
	assert.Empty(t, RequiredFields(nil))

	req := RequiredFields([]Analysis{AnalysisDCF, AnalysisLBO})
	assert.ElementsMatch(t, []Field{Revenue, EBITDA, Capex, TotalDebt}, req)
}

func TestValidationResultFilters(t *testing.T) {
	r := ValidationResult{Issues: []Issue{
		{Check: "sanity", Severity: SeverityError},
		{Check: "margin", Severity: SeverityWarning},
		{Check: "sanity", Severity: SeverityWarning},
	}}
	assert.Len(t, r.HardIssues(), 1)
	assert.Len(t, r.IssuesFor("sanity"), 2)
}
