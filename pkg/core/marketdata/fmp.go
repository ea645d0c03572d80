package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"valuation_data/pkg/core/extract"
	"valuation_data/pkg/models"
)

const (
	fmpName    = "fmp"
	fmpBaseURL = "https://financialmodelingprep.com/api/v3"
)

// FMP fetches annual statements from Financial Modeling Prep.
// Free tier: 250 requests/day; one extraction costs five requests.
type FMP struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewFMP returns an FMP backend. baseURL may be empty for the public API.
func NewFMP(apiKey, baseURL string) *FMP {
	if baseURL == "" {
		baseURL = fmpBaseURL
	}
	return &FMP{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *FMP) Name() string { return fmpName }

// fmpIncomeStatement etc. mirror the v3 statement payloads. Pointers keep a
// missing key distinct from a reported zero.
type fmpIncomeStatement struct {
	Date                        string   `json:"date"`
	CalendarYear                string   `json:"calendarYear"`
	Period                      string   `json:"period"`
	Revenue                     *float64 `json:"revenue"`
	CostOfRevenue               *float64 `json:"costOfRevenue"`
	GrossProfit                 *float64 `json:"grossProfit"`
	OperatingIncome             *float64 `json:"operatingIncome"`
	EBITDA                      *float64 `json:"ebitda"`
	DepreciationAndAmortization *float64 `json:"depreciationAndAmortization"`
	InterestExpense             *float64 `json:"interestExpense"`
	IncomeTaxExpense            *float64 `json:"incomeTaxExpense"`
	NetIncome                   *float64 `json:"netIncome"`
}

type fmpBalanceSheet struct {
	Date                    string   `json:"date"`
	CalendarYear            string   `json:"calendarYear"`
	CashAndCashEquivalents  *float64 `json:"cashAndCashEquivalents"`
	NetReceivables          *float64 `json:"netReceivables"`
	Inventory               *float64 `json:"inventory"`
	TotalCurrentAssets      *float64 `json:"totalCurrentAssets"`
	TotalAssets             *float64 `json:"totalAssets"`
	TotalCurrentLiabilities *float64 `json:"totalCurrentLiabilities"`
	TotalLiabilities        *float64 `json:"totalLiabilities"`
	TotalDebt               *float64 `json:"totalDebt"`
	TotalStockholdersEquity *float64 `json:"totalStockholdersEquity"`
}

type fmpCashFlow struct {
	Date                  string   `json:"date"`
	CalendarYear          string   `json:"calendarYear"`
	OperatingCashFlow     *float64 `json:"operatingCashFlow"`
	InvestingActivitiesCF *float64 `json:"netCashUsedForInvestingActivites"`
	FinancingActivitiesCF *float64 `json:"netCashUsedProvidedByFinancingActivities"`
	CapitalExpenditure    *float64 `json:"capitalExpenditure"`
	FreeCashFlow          *float64 `json:"freeCashFlow"`
	NetChangeInCash       *float64 `json:"netChangeInCash"`
}

type fmpProfile struct {
	Symbol      string   `json:"symbol"`
	CompanyName string   `json:"companyName"`
	Price       *float64 `json:"price"`
	Beta        *float64 `json:"beta"`
	MktCap      *float64 `json:"mktCap"`
}

type fmpQuote struct {
	Symbol            string   `json:"symbol"`
	SharesOutstanding *float64 `json:"sharesOutstanding"`
}

// Fetch pulls income, balance, cash-flow, profile and quote data.
func (p *FMP) Fetch(ctx context.Context, ticker string, years int) (*extract.Fundamentals, error) {
	if p.apiKey == "" {
		return nil, extract.Unavailable(fmpName, "no API key configured")
	}
	if years <= 0 {
		years = 10
	}

	var income []fmpIncomeStatement
	if err := p.get(ctx, "income-statement/"+ticker, years, &income); err != nil {
		return nil, err
	}
	if len(income) == 0 {
		return nil, extract.Unavailable(fmpName, "no income statements for %s", ticker)
	}
	var balance []fmpBalanceSheet
	if err := p.get(ctx, "balance-sheet-statement/"+ticker, years, &balance); err != nil {
		return nil, err
	}
	var cash []fmpCashFlow
	if err := p.get(ctx, "cash-flow-statement/"+ticker, years, &cash); err != nil {
		return nil, err
	}
	var profiles []fmpProfile
	if err := p.get(ctx, "profile/"+ticker, 0, &profiles); err != nil {
		return nil, err
	}
	var quotes []fmpQuote
	if err := p.get(ctx, "quote/"+ticker, 0, &quotes); err != nil {
		return nil, err
	}

	periods := newPeriodSet()
	for _, s := range income {
		y := fiscalYear(s.CalendarYear, s.Date)
		periods.put(y, models.Revenue, s.Revenue)
		periods.put(y, models.COGS, s.CostOfRevenue)
		periods.put(y, models.GrossProfit, s.GrossProfit)
		periods.put(y, models.OperatingIncome, s.OperatingIncome)
		periods.put(y, models.EBITDA, s.EBITDA)
		periods.put(y, models.DepreciationAmortization, s.DepreciationAndAmortization)
		periods.put(y, models.InterestExpense, s.InterestExpense)
		periods.put(y, models.TaxExpense, s.IncomeTaxExpense)
		periods.put(y, models.NetIncome, s.NetIncome)
	}
	for _, s := range balance {
		y := fiscalYear(s.CalendarYear, s.Date)
		periods.put(y, models.Cash, s.CashAndCashEquivalents)
		periods.put(y, models.AccountsReceivable, s.NetReceivables)
		periods.put(y, models.Inventory, s.Inventory)
		periods.put(y, models.CurrentAssets, s.TotalCurrentAssets)
		periods.put(y, models.TotalAssets, s.TotalAssets)
		periods.put(y, models.CurrentLiabilities, s.TotalCurrentLiabilities)
		periods.put(y, models.TotalLiabilities, s.TotalLiabilities)
		periods.put(y, models.TotalDebt, s.TotalDebt)
		periods.put(y, models.TotalEquity, s.TotalStockholdersEquity)
	}
	for _, s := range cash {
		y := fiscalYear(s.CalendarYear, s.Date)
		periods.put(y, models.OperatingCashFlow, s.OperatingCashFlow)
		periods.put(y, models.InvestingCashFlow, s.InvestingActivitiesCF)
		periods.put(y, models.FinancingCashFlow, s.FinancingActivitiesCF)
		periods.put(y, models.Capex, s.CapitalExpenditure)
		periods.put(y, models.FreeCashFlow, s.FreeCashFlow)
		periods.put(y, models.NetChangeInCash, s.NetChangeInCash)
	}

	fund := &extract.Fundamentals{
		Company: models.Company{Ticker: ticker},
		Unit:    models.ScaleActual,
		Periods: periods.list(),
		Market:  make(map[models.Field]float64),
	}
	if len(profiles) > 0 {
		pr := profiles[0]
		fund.Company.Name = pr.CompanyName
		putMarket(fund.Market, models.SharePrice, pr.Price)
		putMarket(fund.Market, models.Beta, pr.Beta)
		putMarket(fund.Market, models.MarketCap, pr.MktCap)
	}
	if len(quotes) > 0 {
		putMarket(fund.Market, models.SharesOutstanding, quotes[0].SharesOutstanding)
	}
	return fund, nil
}

func (p *FMP) get(ctx context.Context, path string, limit int, v any) error {
	q := url.Values{}
	q.Set("apikey", p.apiKey)
	if limit > 0 {
		q.Set("period", "annual")
		q.Set("limit", fmt.Sprint(limit))
	}
	return getJSON(ctx, p.client, fmpName, p.baseURL+"/"+path+"?"+q.Encode(), nil, v)
}

func putMarket(m map[models.Field]float64, f models.Field, v *float64) {
	if v != nil {
		m[f] = *v
	}
}

// fiscalYear prefers the provider's fiscal-year label and falls back to the
// period end date.
func fiscalYear(calendarYear, date string) string {
	if calendarYear != "" {
		return calendarYear
	}
	if len(date) >= 4 {
		return date[:4]
	}
	return date
}
