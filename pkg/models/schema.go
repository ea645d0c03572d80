package models

import (
	"fmt"
	"strings"
)

// Field is a canonical financial line item.
type Field string

// Statement groups canonical fields.
type Statement string

const (
	IncomeStatement   Statement = "income_statement"
	BalanceSheet      Statement = "balance_sheet"
	CashFlowStatement Statement = "cash_flow"
	Market            Statement = "market_data"
)

// Income statement
const (
	Revenue                  Field = "revenue"
	COGS                     Field = "cogs"
	GrossProfit              Field = "gross_profit"
	OperatingIncome          Field = "operating_income"
	EBITDA                   Field = "ebitda"
	DepreciationAmortization Field = "depreciation_amortization"
	InterestExpense          Field = "interest_expense"
	TaxExpense               Field = "tax_expense"
	NetIncome                Field = "net_income"
)

// Balance sheet
const (
	TotalAssets        Field = "total_assets"
	CurrentAssets      Field = "current_assets"
	Cash               Field = "cash"
	AccountsReceivable Field = "accounts_receivable"
	Inventory          Field = "inventory"
	TotalLiabilities   Field = "total_liabilities"
	CurrentLiabilities Field = "current_liabilities"
	TotalDebt          Field = "total_debt"
	TotalEquity        Field = "total_equity"
	NetWorkingCapital  Field = "net_working_capital"
)

// Cash flow statement
const (
	OperatingCashFlow Field = "operating_cash_flow"
	InvestingCashFlow Field = "investing_cash_flow"
	FinancingCashFlow Field = "financing_cash_flow"
	Capex             Field = "capex"
	FreeCashFlow      Field = "free_cash_flow"
	NetChangeInCash   Field = "net_change_in_cash"
)

// Market data (point-in-time)
const (
	SharePrice        Field = "share_price"
	SharesOutstanding Field = "shares_outstanding"
	MarketCap         Field = "market_cap"
	Beta              Field = "beta"
	NetDebt           Field = "net_debt"
)

// Measure says what a field counts, and so whether the reported scale applies.
type Measure int

const (
	// Currency amounts are stored in CanonicalScale.
	Currency Measure = iota
	// Shares are share counts. Tabular sources report them in the same unit
	// as their amounts; they are stored in millions of shares, so
	// price × shares lands in CanonicalScale.
	Shares
	// PerShare values (share price) are never rescaled.
	PerShare
	// Ratio values (beta) are unitless.
	Ratio
)

// FieldSpec describes how a canonical field is weighted, scaled and matched.
type FieldSpec struct {
	Field     Field
	Statement Statement
	Weight    float64  // importance weight for completeness scoring
	Measure   Measure  // decides conversion during normalization
	Aliases   []string // lower-case source labels used by fuzzy matching
}

// Monetary reports whether the field is a currency amount.
func (s FieldSpec) Monetary() bool { return s.Measure == Currency }

// Scaled reports whether the source's reported scale applies to the field.
func (s FieldSpec) Scaled() bool { return s.Measure == Currency || s.Measure == Shares }

var registry = []FieldSpec{
	// Income statement
	{Revenue, IncomeStatement, 3, Currency, []string{
		"revenue", "revenues", "total revenue", "total revenues", "net revenue", "net revenues",
		"total net revenue", "total net revenues", "net sales", "total net sales", "sales", "turnover",
	}},
	{COGS, IncomeStatement, 1, Currency, []string{
		"cogs", "cost of goods sold", "cost of sales", "cost of revenue", "cost of revenues",
		"total cost of revenue", "total cost of sales",
	}},
	{GrossProfit, IncomeStatement, 1, Currency, []string{"gross profit", "gross margin", "gross income"}},
	{OperatingIncome, IncomeStatement, 1, Currency, []string{
		"operating income", "income from operations", "operating profit", "ebit",
		"operating income loss", "total operating income",
	}},
	{EBITDA, IncomeStatement, 2, Currency, []string{"ebitda", "adjusted ebitda", "adj ebitda"}},
	{DepreciationAmortization, IncomeStatement, 1, Currency, []string{
		"depreciation and amortization", "depreciation amortization", "d&a",
		"depreciation & amortization", "depreciation",
	}},
	{InterestExpense, IncomeStatement, 1, Currency, []string{"interest expense", "interest expense net", "net interest expense"}},
	{TaxExpense, IncomeStatement, 1, Currency, []string{
		"income tax expense", "tax expense", "provision for income taxes", "income taxes", "income tax provision",
	}},
	{NetIncome, IncomeStatement, 1, Currency, []string{"net income", "net earnings", "net profit", "net income loss", "profit for the year"}},

	// Balance sheet
	{TotalAssets, BalanceSheet, 1, Currency, []string{"total assets"}},
	{CurrentAssets, BalanceSheet, 1, Currency, []string{"total current assets", "current assets"}},
	{Cash, BalanceSheet, 1, Currency, []string{
		"cash", "cash and cash equivalents", "cash & cash equivalents", "cash and equivalents",
	}},
	{AccountsReceivable, BalanceSheet, 1, Currency, []string{"accounts receivable", "accounts receivable net", "receivables", "trade receivables"}},
	{Inventory, BalanceSheet, 1, Currency, []string{"inventory", "inventories"}},
	{TotalLiabilities, BalanceSheet, 1, Currency, []string{"total liabilities"}},
	{CurrentLiabilities, BalanceSheet, 1, Currency, []string{"total current liabilities", "current liabilities"}},
	{TotalDebt, BalanceSheet, 1, Currency, []string{"total debt", "debt", "total borrowings", "borrowings"}},
	{TotalEquity, BalanceSheet, 1, Currency, []string{
		"total equity", "total stockholders equity", "total shareholders equity", "shareholders equity", "stockholders equity",
	}},
	{NetWorkingCapital, BalanceSheet, 1, Currency, []string{"net working capital", "working capital"}},

	// Cash flow
	{OperatingCashFlow, CashFlowStatement, 1, Currency, []string{
		"operating cash flow", "cash from operations", "net cash provided by operating activities",
		"cash flow from operations", "net cash from operating activities",
	}},
	{InvestingCashFlow, CashFlowStatement, 1, Currency, []string{
		"investing cash flow", "net cash used in investing activities", "cash from investing",
		"net cash from investing activities",
	}},
	{FinancingCashFlow, CashFlowStatement, 1, Currency, []string{
		"financing cash flow", "net cash used in financing activities", "cash from financing",
		"net cash from financing activities",
	}},
	{Capex, CashFlowStatement, 1, Currency, []string{
		"capex", "capital expenditures", "capital expenditure", "purchases of property and equipment",
		"purchase of property plant and equipment",
	}},
	{FreeCashFlow, CashFlowStatement, 1, Currency, []string{"free cash flow", "fcf", "unlevered free cash flow"}},
	{NetChangeInCash, CashFlowStatement, 1, Currency, []string{
		"net change in cash", "net increase in cash", "net increase decrease in cash", "change in cash",
	}},

	// Market data
	{SharePrice, Market, 1, PerShare, []string{"share price", "stock price", "price per share"}},
	{SharesOutstanding, Market, 1, Shares, []string{"shares outstanding", "diluted shares outstanding", "weighted average shares"}},
	{MarketCap, Market, 1, Currency, []string{"market cap", "market capitalization"}},
	{Beta, Market, 1, Ratio, []string{"beta", "levered beta"}},
	{NetDebt, Market, 1, Currency, []string{"net debt"}},
}

var registryIndex = func() map[Field]FieldSpec {
	idx := make(map[Field]FieldSpec, len(registry))
	for _, spec := range registry {
		idx[spec.Field] = spec
	}
	return idx
}()

// Fields returns every canonical field in registry order.
func Fields() []FieldSpec {
	out := make([]FieldSpec, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the registry entry for a field.
func Lookup(f Field) (FieldSpec, bool) {
	spec, ok := registryIndex[f]
	return spec, ok
}

// FieldsOf lists the fields belonging to a statement, in registry order.
func FieldsOf(s Statement) []Field {
	var out []Field
	for _, spec := range registry {
		if spec.Statement == s {
			out = append(out, spec.Field)
		}
	}
	return out
}

// Weight returns a field's completeness weight (1 for unknown fields).
func Weight(f Field) float64 {
	if spec, ok := registryIndex[f]; ok {
		return spec.Weight
	}
	return 1
}

// IsMarket reports whether f is a point-in-time market value.
func IsMarket(f Field) bool {
	spec, ok := registryIndex[f]
	return ok && spec.Statement == Market
}

// =============================================================================
// ANALYSES
// =============================================================================

// Analysis is a downstream valuation the caller intends to run.
type Analysis string

const (
	AnalysisDCF   Analysis = "dcf"
	AnalysisLBO   Analysis = "lbo"
	AnalysisComps Analysis = "comps"
	AnalysisWACC  Analysis = "wacc"
)

// AnalysisRequirements lists the fields an analysis reads.
// Expected fields feed completeness; Required fields are hard validation failures when absent.
type AnalysisRequirements struct {
	Expected []Field
	Required []Field
}

var analyses = map[Analysis]AnalysisRequirements{
	AnalysisDCF: {
		Expected: []Field{
			Revenue, COGS, OperatingIncome, EBITDA, DepreciationAmortization, TaxExpense, NetIncome,
			Capex, OperatingCashFlow, FreeCashFlow, NetWorkingCapital, Cash, TotalDebt, SharesOutstanding,
		},
		Required: []Field{Revenue, EBITDA, Capex},
	},
	AnalysisLBO: {
		Expected: []Field{
			Revenue, EBITDA, OperatingIncome, DepreciationAmortization, InterestExpense, TaxExpense,
			Capex, NetWorkingCapital, Cash, TotalDebt,
		},
		Required: []Field{Revenue, EBITDA, TotalDebt},
	},
	AnalysisComps: {
		Expected: []Field{Revenue, EBITDA, NetIncome, OperatingIncome, SharePrice, SharesOutstanding, MarketCap, NetDebt},
		Required: []Field{Revenue, EBITDA, NetIncome},
	},
	AnalysisWACC: {
		Expected: []Field{InterestExpense, TaxExpense, TotalDebt, MarketCap, Beta, SharePrice, SharesOutstanding},
		Required: []Field{TotalDebt, MarketCap, Beta},
	},
}

// ParseAnalysis converts a user-supplied name into an Analysis.
func ParseAnalysis(name string) (Analysis, error) {
	a := Analysis(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := analyses[a]; !ok {
		return "", fmt.Errorf("unknown analysis %q", name)
	}
	return a, nil
}

// ExpectedFields is the union of expected fields for the given analyses.
// With no analyses declared every canonical field is expected.
func ExpectedFields(as []Analysis) []Field {
	if len(as) == 0 {
		out := make([]Field, 0, len(registry))
		for _, spec := range registry {
			out = append(out, spec.Field)
		}
		return out
	}
	return union(as, func(r AnalysisRequirements) []Field { return r.Expected })
}

// RequiredFields is the union of required fields for the given analyses.
func RequiredFields(as []Analysis) []Field {
	return union(as, func(r AnalysisRequirements) []Field { return r.Required })
}

func union(as []Analysis, pick func(AnalysisRequirements) []Field) []Field {
	seen := make(map[Field]bool)
	var out []Field
	for _, a := range as {
		req, ok := analyses[a]
		if !ok {
			continue
		}
		for _, f := range pick(req) {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
