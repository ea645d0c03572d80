// Package validate checks normalized financial data: structure, sanity
// bounds, accounting identities, statistical outliers and completeness.
// Findings are data on the result, never errors.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"valuation_data/pkg/models"
)

// =============================================================================
// YEAR-OVER-YEAR (YoY) CALCULATIONS
// =============================================================================

// CalculateYoY calculates year-over-year change between two values.
// Returns percentage change: (current - prior) / |prior| * 100
func CalculateYoY(current, prior float64) float64 {
	if prior == 0 {
		if current == 0 {
			return 0
		}
		return math.Inf(1) // Infinite growth from zero
	}
	return (current - prior) / math.Abs(prior) * 100
}

// =============================================================================
// CAGR (Compound Annual Growth Rate)
// =============================================================================

// CalculateCAGR calculates compound annual growth rate.
// CAGR = ((EndValue / StartValue) ^ (1/years)) - 1
func CalculateCAGR(startValue, endValue float64, years int) float64 {
	if startValue <= 0 || endValue < 0 || years <= 0 {
		return 0
	}
	return (math.Pow(endValue/startValue, 1.0/float64(years)) - 1) * 100
}

// Growth summarizes a series between its first and last present years.
type Growth struct {
	StartYear  string
	EndYear    string
	StartValue float64
	EndValue   float64
	LatestYoY  float64 // last present year vs the one before it
	CAGR       float64
}

// SeriesGrowth computes YoY and CAGR over the present points of s. Gaps are
// allowed; CAGR periods come from the year labels.
func SeriesGrowth(years []string, s models.Series) (*Growth, error) {
	var idx []int
	for i := range years {
		if _, ok := s.At(i); ok {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2 {
		return nil, fmt.Errorf("need two present years, have %d", len(idx))
	}

	first, last, prev := idx[0], idx[len(idx)-1], idx[len(idx)-2]
	y0, err0 := strconv.Atoi(years[first])
	y1, err1 := strconv.Atoi(years[last])
	if err0 != nil || err1 != nil || y1 <= y0 {
		return nil, fmt.Errorf("cannot count periods between %q and %q", years[first], years[last])
	}

	start, _ := s.At(first)
	end, _ := s.At(last)
	before, _ := s.At(prev)
	return &Growth{
		StartYear:  years[first],
		EndYear:    years[last],
		StartValue: start,
		EndValue:   end,
		LatestYoY:  CalculateYoY(end, before),
		CAGR:       CalculateCAGR(start, end, y1-y0),
	}, nil
}

// =============================================================================
// ACCOUNTING IDENTITIES
// =============================================================================

// BalanceCheck verifies Assets = Liabilities + Equity.
type BalanceCheck struct {
	TotalAssets      float64
	TotalLiabilities float64
	TotalEquity      float64
	ComputedAssets   float64 // L + E
	Difference       float64
	RelativeDiff     float64 // |A − (L+E)| / |A|
	IsBalanced       bool
	Tolerance        float64 // relative, e.g. 0.01
}

// CheckBalanceEquation validates A = L + E within a relative tolerance.
func CheckBalanceEquation(assets, liabilities, equity, tolerance float64) *BalanceCheck {
	computed := liabilities + equity
	diff := assets - computed
	rel := relative(diff, math.Abs(assets))

	return &BalanceCheck{
		TotalAssets:      assets,
		TotalLiabilities: liabilities,
		TotalEquity:      equity,
		ComputedAssets:   computed,
		Difference:       diff,
		RelativeDiff:     rel,
		IsBalanced:       rel <= tolerance,
		Tolerance:        tolerance,
	}
}

// CashFlowCheck verifies CFO + CFI + CFF = change in cash.
type CashFlowCheck struct {
	CFO           float64
	CFI           float64
	CFF           float64
	ComputedTotal float64
	ReportedTotal float64
	Difference    float64
	RelativeDiff  float64 // |diff| / max(|sum|, |Δcash|, |CFO|)
	IsBalanced    bool
	Tolerance     float64
}

// CheckCashFlowEquation validates CFO + CFI + CFF = Δcash. The difference is
// measured against the largest of the three magnitudes so a near-zero Δcash
// does not blow up the ratio.
func CheckCashFlowEquation(cfo, cfi, cff, deltaCash, tolerance float64) *CashFlowCheck {
	computed := cfo + cfi + cff
	diff := deltaCash - computed
	base := math.Max(math.Abs(computed), math.Max(math.Abs(deltaCash), math.Abs(cfo)))
	rel := relative(diff, base)

	return &CashFlowCheck{
		CFO:           cfo,
		CFI:           cfi,
		CFF:           cff,
		ComputedTotal: computed,
		ReportedTotal: deltaCash,
		Difference:    diff,
		RelativeDiff:  rel,
		IsBalanced:    rel <= tolerance,
		Tolerance:     tolerance,
	}
}

func relative(diff, base float64) float64 {
	if base == 0 {
		if diff == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(diff) / base
}

// =============================================================================
// FREE CASH FLOW
// =============================================================================

// CalculateFCF computes Free Cash Flow = CFO − |CapEx|. Sources disagree on
// the sign of capex, so it is taken as a magnitude.
func CalculateFCF(cfo, capex float64) float64 {
	return cfo - math.Abs(capex)
}

// FCFCheck compares a reported free cash flow with CFO − |CapEx|.
type FCFCheck struct {
	Reported     float64
	Computed     float64
	Difference   float64
	RelativeDiff float64 // |diff| / max(|reported|, |CFO|)
	IsConsistent bool
	Tolerance    float64
}

// CheckFCF validates a reported FCF against its components.
func CheckFCF(reported, cfo, capex, tolerance float64) *FCFCheck {
	computed := CalculateFCF(cfo, capex)
	diff := reported - computed
	rel := relative(diff, math.Max(math.Abs(reported), math.Abs(cfo)))

	return &FCFCheck{
		Reported:     reported,
		Computed:     computed,
		Difference:   diff,
		RelativeDiff: rel,
		IsConsistent: rel <= tolerance,
		Tolerance:    tolerance,
	}
}
