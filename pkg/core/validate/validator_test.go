package validate

import (
	"testing"
	"valuation_data/pkg/core/outlier"
	"valuation_data/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newData(years ...string) *models.FinancialData {
	return models.NewFinancialData(models.Company{Name: "Acme"}, years)
}

func mustSet(t *testing.T, d *models.FinancialData, f models.Field, values ...float64) {
	t.Helper()
	require.NoError(t, d.SetSeries(f, models.SeriesOf(values...)))
}

func TestValidate_BalanceTolerance(t *testing.T) {
	tests := []struct {
		name    string
		equity  float64
		flagged bool
	}{
		{"995 vs 1000 passes", 395, false},
		{"950 vs 1000 is flagged", 350, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newData("2023")
			mustSet(t, d, models.Revenue, 500)
			mustSet(t, d, models.TotalAssets, 1000)
			mustSet(t, d, models.TotalLiabilities, 600)
			mustSet(t, d, models.TotalEquity, tt.equity)

			res := New(DefaultConfig(), nil).Validate(d, nil)
			assert.Equal(t, tt.flagged, len(res.IssuesFor(CheckBalance)) == 1)
			assert.True(t, res.IsValid, "reconciliation mismatches never invalidate")
		})
	}
}

func TestValidate_ReconciliationSkippedWithoutInputs(t *testing.T) {
	d := newData("2022", "2023")
	mustSet(t, d, models.Revenue, 100, 110)

	res := New(DefaultConfig(), nil).Validate(d, nil)
	require.True(t, res.IsValid)
	assert.Empty(t, res.Warnings)
	assert.Contains(t, res.Notes, "balance sheet: insufficient data for reconciliation")
	assert.Contains(t, res.Notes, "cash flow: insufficient data for reconciliation")
	for _, is := range res.IssuesFor(CheckBalance) {
		assert.Equal(t, models.SeverityInfo, is.Severity)
	}
}

func TestValidate_CashFlowFromCashBalances(t *testing.T) {
	d := newData("2022", "2023")
	mustSet(t, d, models.Revenue, 100, 110)
	mustSet(t, d, models.Cash, 50, 70)
	mustSet(t, d, models.OperatingCashFlow, 40, 45)
	mustSet(t, d, models.InvestingCashFlow, -15, -15)
	mustSet(t, d, models.FinancingCashFlow, -5, -10)

	// only 2023 has a prior cash balance; 45-15-10=20 matches 70-50
	res := New(DefaultConfig(), nil).Validate(d, nil)
	assert.Empty(t, res.IssuesFor(CheckCashFlow))

	mustSet(t, d, models.FinancingCashFlow, -5, -20)
	res = New(DefaultConfig(), nil).Validate(d, nil)
	issues := res.IssuesFor(CheckCashFlow)
	require.Len(t, issues, 1)
	assert.Equal(t, models.SeverityWarning, issues[0].Severity)
	assert.Equal(t, "2023", issues[0].Year)
}

func TestValidate_SuppliedFCF(t *testing.T) {
	d := newData("2022", "2023")
	mustSet(t, d, models.Revenue, 100, 110)
	mustSet(t, d, models.OperatingCashFlow, 40, 45)
	mustSet(t, d, models.Capex, -10, -12)
	mustSet(t, d, models.FreeCashFlow, 30, 45)

	res := New(DefaultConfig(), nil).Validate(d, nil)
	issues := res.IssuesFor(CheckFCF)
	require.Len(t, issues, 1)
	assert.Equal(t, models.SeverityWarning, issues[0].Severity)
	assert.Equal(t, "2023", issues[0].Year)
	assert.True(t, res.IsValid, "fcf mismatch is soft")
}

func TestValidate_RevenueMustBePositive(t *testing.T) {
	d := newData("2022", "2023")
	mustSet(t, d, models.Revenue, 100, 0)

	res := New(DefaultConfig(), nil).Validate(d, nil)
	assert.False(t, res.IsValid)
	hard := res.HardIssues()
	require.Len(t, hard, 1)
	assert.Equal(t, CheckRevenue, hard[0].Check)
	assert.Equal(t, "2023", hard[0].Year)
}

func TestValidate_MarginsWarnOnly(t *testing.T) {
	d := newData("2022", "2023")
	mustSet(t, d, models.Revenue, 100, 100)
	mustSet(t, d, models.NetIncome, -80, 10)
	mustSet(t, d, models.EBITDA, 20, 150)

	res := New(DefaultConfig(), nil).Validate(d, nil)
	assert.True(t, res.IsValid)
	issues := res.IssuesFor(CheckMargin)
	require.Len(t, issues, 2)
	assert.Equal(t, models.EBITDA, issues[0].Field)
	assert.Equal(t, "2023", issues[0].Year)
	assert.Equal(t, models.NetIncome, issues[1].Field)
	assert.Equal(t, "2022", issues[1].Year)
}

func TestValidate_RequiredFields(t *testing.T) {
	d := newData("2023")
	mustSet(t, d, models.Revenue, 100)
	mustSet(t, d, models.EBITDA, 20)

	res := New(DefaultConfig(), nil).Validate(d, []models.Analysis{models.AnalysisDCF})
	assert.False(t, res.IsValid)
	hard := res.HardIssues()
	require.Len(t, hard, 1)
	assert.Equal(t, models.Capex, hard[0].Field)

	res = New(DefaultConfig(), nil).Validate(d, nil)
	assert.True(t, res.IsValid, "no declared analysis, nothing required")
}

func TestValidate_Structure(t *testing.T) {
	d := newData("2023", "2022")
	mustSet(t, d, models.Revenue, 100, 110)
	d.IncomeStatement[models.NetIncome] = models.SeriesOf(1)

	res := New(DefaultConfig(), nil).Validate(d, nil)
	assert.False(t, res.IsValid)
	assert.Len(t, res.IssuesFor(CheckStructure), 2)
	assert.Empty(t, res.IssuesFor(CheckRevenue), "other checks do not run on malformed data")
}

func TestValidate_OutlierQuorumAndNoMutation(t *testing.T) {
	d := newData("2019", "2020", "2021", "2022", "2023")
	mustSet(t, d, models.Revenue, 100, 110, 1950, 120, 130)
	before := d.Clone()

	res := New(DefaultConfig(), nil).Validate(d, nil)
	require.Len(t, res.Outliers, 1)
	assert.Equal(t, models.Revenue, res.Outliers[0].Field)
	assert.Equal(t, "2021", res.Outliers[0].Year)
	assert.Equal(t, 1950.0, res.Outliers[0].Value)
	assert.GreaterOrEqual(t, len(res.Outliers[0].Votes), 2)
	assert.Len(t, res.IssuesFor(CheckOutlier), 1)
	assert.True(t, res.IsValid, "outliers are warnings")

	assert.Equal(t, before, d, "validation never mutates its input")
}

// voter marks one index
type voter struct {
	name string
	at   int
}

func (v voter) Name() string   { return v.name }
func (v voter) MinPoints() int { return 0 }
func (v voter) Detect(values []float64) []bool {
	out := make([]bool, len(values))
	if v.at < len(out) {
		out[v.at] = true
	}
	return out
}

func TestValidate_InjectedEnsemble(t *testing.T) {
	d := newData("2020", "2021", "2022", "2023")
	mustSet(t, d, models.Revenue, 100, 101, 102, 103)

	single := outlier.NewEnsemble(2, 4, voter{"a", 1}, voter{"b", 2}, voter{"c", 3})
	res := New(DefaultConfig(), nil).WithEnsemble(single).Validate(d, nil)
	assert.Empty(t, res.Outliers, "each point has one vote")

	pair := outlier.NewEnsemble(2, 4, voter{"a", 1}, voter{"b", 1}, voter{"c", 3})
	res = New(DefaultConfig(), nil).WithEnsemble(pair).Validate(d, nil)
	require.Len(t, res.Outliers, 1)
	assert.Equal(t, "2021", res.Outliers[0].Year)
	assert.Equal(t, []string{"a", "b"}, res.Outliers[0].Votes)
}

func TestValidate_Completeness(t *testing.T) {
	d := newData("2023")
	mustSet(t, d, models.Revenue, 100)
	mustSet(t, d, models.EBITDA, 20)
	mustSet(t, d, models.NetIncome, 5)
	d.MarketData[models.SharePrice] = 10

	res := New(DefaultConfig(), nil).Validate(d, []models.Analysis{models.AnalysisComps})
	// revenue 3 + ebitda 2 + net income 1 + share price 1 over a total weight of 11
	assert.InDelta(t, 7.0/11.0, res.CompletenessScore, 1e-9)
}
