package extract

import (
	"errors"
	"fmt"
	"testing"
	"time"
	"valuation_data/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want *float64
	}{
		{"1,234", models.Float(1234)},
		{"$1,234.5", models.Float(1234.5)},
		{"(1,234)", models.Float(-1234)},
		{"$(15)", models.Float(-15)},
		{"-42", models.Float(-42)},
		{"0", models.Float(0)},
		{"1.2E+03", models.Float(1200)},
		{"—", nil},
		{"-", nil},
		{"N/A", nil},
		{"", nil},
		{"12.5%", nil},
		{"Revenue", nil},
		{"Sep. 28, 2024", nil},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseNumber(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"2021", 2021},
		{"FY2021", 2021},
		{"FY 2022", 2022},
		{"2023E", 2023},
		{"2020A", 2020},
		{"Year ended December 31, 2023", 2023},
		{"Fiscal year", 0},
		{"1,950", 0},
		{"Revenue", 0},
		{"3021", 0},
		{"2021 2022", 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseYear(tt.raw))
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "total net revenues", NormalizeLabel("  Total Net Revenues (1)"))
	assert.Equal(t, "net income", NormalizeLabel("Net income (loss)"))
	assert.Equal(t, "d and a", NormalizeLabel("D&A"))
	assert.Equal(t, "capital expenditures", NormalizeLabel("Less: Capital expenditures"))
	assert.Equal(t, "accounts receivable", NormalizeLabel("Accounts receivable, net"))
}

func TestLabelMatcher(t *testing.T) {
	m := NewLabelMatcher(0.8)

	field, score, ok := m.Match("Total Net Revenues")
	assert.True(t, ok)
	assert.Equal(t, models.Revenue, field)
	assert.GreaterOrEqual(t, score, 0.8)

	field, _, ok = m.Match("Cost of goods sold")
	assert.True(t, ok)
	assert.Equal(t, models.COGS, field)

	field, _, ok = m.Match("Net cash provided by operating activities")
	assert.True(t, ok)
	assert.Equal(t, models.OperatingCashFlow, field)

	_, _, ok = m.Match("Employee headcount")
	assert.False(t, ok)

	_, _, ok = m.Match("")
	assert.False(t, ok)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("revenue", "revenue"))
	assert.InDelta(t, 1-1.0/8, Similarity("revenue", "revenues"), 1e-9)
	assert.Equal(t, 0.0, Similarity("", ""))
}

func TestCompleteness(t *testing.T) {
	presence := map[models.Field]bool{models.Revenue: true, models.EBITDA: true}
	// comps expects revenue(3) ebitda(2) net_income(1) operating_income(1) and four market fields(1 each)
	got := Completeness(presence, []models.Analysis{models.AnalysisComps})
	assert.InDelta(t, 5.0/11.0, got, 1e-9)

	assert.Equal(t, 0.0, Completeness(nil, []models.Analysis{models.AnalysisDCF}))

	missing := MissingFields(presence, []models.Analysis{models.AnalysisComps})
	assert.Contains(t, missing, models.NetIncome)
	assert.NotContains(t, missing, models.Revenue)
}

func TestCompletenessWeighsRevenueHighest(t *testing.T) {
	onlyRevenue := Completeness(map[models.Field]bool{models.Revenue: true}, nil)
	onlyCash := Completeness(map[models.Field]bool{models.Cash: true}, nil)
	assert.InDelta(t, 3*onlyCash, onlyRevenue, 1e-9)
}

func TestDataFetchErrorFamilies(t *testing.T) {
	rl := RateLimited("fmp", 2*time.Second, errors.New("429"))
	wrapped := fmt.Errorf("running chain: %w", rl)

	assert.ErrorIs(t, wrapped, ErrDataFetch)
	assert.ErrorIs(t, wrapped, ErrRateLimited)
	assert.NotErrorIs(t, wrapped, ErrDataUnavailable)

	fe, ok := AsFetchError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, fe.RetryAfter)
	assert.Contains(t, fe.Error(), "fmp: rate_limited")

	assert.ErrorIs(t, Unavailable("excel", "nothing in %s", "x.xlsx"), ErrDataUnavailable)
	assert.ErrorIs(t, Malformed("excel", errors.New("zip: not a valid zip file")), ErrFormat)
	assert.ErrorIs(t, TimedOut("sec", time.Second, nil), ErrTimeout)

	_, ok = AsFetchError(errors.New("plain"))
	assert.False(t, ok)
}

func TestSharedLimiterIsPerBackend(t *testing.T) {
	a := SharedLimiter("test-backend-a", time.Second)
	assert.Same(t, a, SharedLimiter("test-backend-a", time.Minute))
	assert.NotSame(t, a, SharedLimiter("test-backend-b", time.Second))
}
