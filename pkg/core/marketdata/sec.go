package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"valuation_data/pkg/core/extract"
	"valuation_data/pkg/models"
)

// API Documentation: https://www.sec.gov/developer
const (
	secName = "sec"

	SECTickersURL = "https://www.sec.gov/files/company_tickers.json"
	SECFactsURL   = "https://data.sec.gov/api/xbrl/companyfacts/CIK%s.json"

	// Required User-Agent per SEC guidelines
	DefaultUserAgent = "ValuationData/1.0 (contact@example.com)"
)

// =============================================================================
// SEC EDGAR DATA TYPES
// =============================================================================

// secFact is one reported XBRL value.
type secFact struct {
	Start string  `json:"start"` // empty for instant facts
	End   string  `json:"end"`
	Val   float64 `json:"val"`
	FY    int     `json:"fy"`
	FP    string  `json:"fp"`   // "FY", "Q1", ...
	Form  string  `json:"form"` // "10-K", "10-Q", ...
	Filed string  `json:"filed"`
}

type secConcept struct {
	Units map[string][]secFact `json:"units"`
}

// secCompanyFacts is the companyfacts response: taxonomy -> tag -> units.
type secCompanyFacts struct {
	CIK        int                              `json:"cik"`
	EntityName string                           `json:"entityName"`
	Facts      map[string]map[string]secConcept `json:"facts"`
}

// secTags lists us-gaap tags per field in order of preference. Filers switch
// tags over time, so later tags only fill years the earlier ones leave empty.
var secTags = map[models.Field][]string{
	models.Revenue:                  {"Revenues", "RevenueFromContractWithCustomerExcludingAssessedTax", "SalesRevenueNet"},
	models.COGS:                     {"CostOfRevenue", "CostOfGoodsAndServicesSold", "CostOfGoodsSold"},
	models.GrossProfit:              {"GrossProfit"},
	models.OperatingIncome:          {"OperatingIncomeLoss"},
	models.DepreciationAmortization: {"DepreciationDepletionAndAmortization", "DepreciationAndAmortization"},
	models.InterestExpense:          {"InterestExpense"},
	models.TaxExpense:               {"IncomeTaxExpenseBenefit"},
	models.NetIncome:                {"NetIncomeLoss"},
	models.TotalAssets:              {"Assets"},
	models.CurrentAssets:            {"AssetsCurrent"},
	models.Cash:                     {"CashAndCashEquivalentsAtCarryingValue"},
	models.AccountsReceivable:       {"AccountsReceivableNetCurrent"},
	models.Inventory:                {"InventoryNet"},
	models.TotalLiabilities:         {"Liabilities"},
	models.CurrentLiabilities:       {"LiabilitiesCurrent"},
	models.TotalDebt:                {"LongTermDebt", "LongTermDebtNoncurrent"},
	models.TotalEquity:              {"StockholdersEquity"},
	models.OperatingCashFlow:        {"NetCashProvidedByUsedInOperatingActivities"},
	models.InvestingCashFlow:        {"NetCashProvidedByUsedInInvestingActivities"},
	models.FinancingCashFlow:        {"NetCashProvidedByUsedInFinancingActivities"},
	models.Capex:                    {"PaymentsToAcquirePropertyPlantAndEquipment"},
	models.NetChangeInCash: {
		"CashCashEquivalentsRestrictedCashAndRestrictedCashEquivalentsPeriodIncreaseDecreaseIncludingExchangeRateEffect",
		"CashAndCashEquivalentsPeriodIncreaseDecrease",
	},
}

// =============================================================================
// SEC EDGAR CLIENT
// =============================================================================

// SEC reads annual 10-K facts from the EDGAR XBRL companyfacts API.
// No key is needed but SEC asks for at most 10 requests/second.
type SEC struct {
	UserAgent  string
	TickersURL string
	FactsURL   string // fmt pattern taking the zero-padded CIK

	httpClient *http.Client

	mu   sync.Mutex
	ciks map[string]cikEntry
}

type cikEntry struct {
	cik   string
	title string
}

// NewSEC creates an EDGAR backend. An empty userAgent uses DefaultUserAgent.
func NewSEC(userAgent string) *SEC {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &SEC{
		UserAgent:  userAgent,
		TickersURL: SECTickersURL,
		FactsURL:   SECFactsURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *SEC) Name() string { return secName }

func (c *SEC) headers() map[string]string {
	return map[string]string{"User-Agent": c.UserAgent}
}

// LookupCIK finds the zero-padded CIK for a ticker. The mapping file is
// fetched once per backend.
func (c *SEC) LookupCIK(ctx context.Context, ticker string) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ciks == nil {
		// Response structure: { "0": {"cik_str": 320193, "ticker": "AAPL", "title": "..."}, ... }
		var mapping map[string]struct {
			CIK    int    `json:"cik_str"`
			Ticker string `json:"ticker"`
			Title  string `json:"title"`
		}
		if err := getJSON(ctx, c.httpClient, secName, c.TickersURL, c.headers(), &mapping); err != nil {
			return "", "", err
		}
		c.ciks = make(map[string]cikEntry, len(mapping))
		for _, entry := range mapping {
			c.ciks[strings.ToUpper(entry.Ticker)] = cikEntry{cik: fmt.Sprintf("%010d", entry.CIK), title: entry.Title}
		}
	}

	entry, ok := c.ciks[strings.ToUpper(ticker)]
	if !ok {
		return "", "", extract.Unavailable(secName, "ticker %s not found in SEC database", ticker)
	}
	return entry.cik, entry.title, nil
}

// Fetch resolves the ticker and reads its annual facts. Values are in
// actual dollars.
func (c *SEC) Fetch(ctx context.Context, ticker string, years int) (*extract.Fundamentals, error) {
	cik, title, err := c.LookupCIK(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var facts secCompanyFacts
	if err := getJSON(ctx, c.httpClient, secName, fmt.Sprintf(c.FactsURL, cik), c.headers(), &facts); err != nil {
		return nil, err
	}
	gaap := facts.Facts["us-gaap"]
	if len(gaap) == 0 {
		return nil, extract.Unavailable(secName, "no us-gaap facts for %s", ticker)
	}

	periods := newPeriodSet()
	for field, tags := range secTags {
		filled := make(map[string]bool)
		for _, tag := range tags {
			for year, v := range annualValues(gaap[tag].Units["USD"]) {
				if filled[year] {
					continue
				}
				periods.set(year, field, v)
				filled[year] = true
			}
		}
	}

	name := facts.EntityName
	if name == "" {
		name = title
	}
	fund := &extract.Fundamentals{
		Company: models.Company{Ticker: strings.ToUpper(ticker), Name: name},
		Unit:    models.ScaleActual,
		Periods: periods.list(),
		Market:  make(map[models.Field]float64),
	}
	if shares, ok := latestInstant(facts.Facts["dei"]["EntityCommonStockSharesOutstanding"].Units["shares"]); ok {
		fund.Market[models.SharesOutstanding] = shares
	}
	if years > 0 && len(fund.Periods) > years {
		fund.Periods = fund.Periods[:years]
	}
	return fund, nil
}

// annualValues keeps full-year 10-K facts keyed by fiscal period end year.
// Each 10-K restates prior years, so the latest filing wins.
func annualValues(facts []secFact) map[string]float64 {
	type pick struct {
		val   float64
		filed string
	}
	best := make(map[string]pick)
	for _, f := range facts {
		if !strings.HasPrefix(f.Form, "10-K") || f.FP != "FY" || len(f.End) < 4 {
			continue
		}
		if f.Start != "" && !fullYear(f.Start, f.End) {
			continue
		}
		year := f.End[:4]
		if cur, ok := best[year]; ok && cur.filed >= f.Filed {
			continue
		}
		best[year] = pick{val: f.Val, filed: f.Filed}
	}

	out := make(map[string]float64, len(best))
	for y, p := range best {
		out[y] = p.val
	}
	return out
}

// fullYear filters out quarterly durations that 10-Ks also tag as FY.
func fullYear(start, end string) bool {
	s, err1 := time.Parse("2006-01-02", start)
	e, err2 := time.Parse("2006-01-02", end)
	if err1 != nil || err2 != nil {
		return false
	}
	days := e.Sub(s).Hours() / 24
	return days >= 330 && days <= 400
}

func latestInstant(facts []secFact) (float64, bool) {
	var (
		val    float64
		latest string
	)
	for _, f := range facts {
		if f.End > latest {
			latest, val = f.End, f.Val
		}
	}
	return val, latest != ""
}
