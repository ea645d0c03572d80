package validate

import (
	"fmt"
	"strings"
	"valuation_data/pkg/core/extract"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/core/outlier"
	"valuation_data/pkg/models"

	"github.com/phuslu/log"
)

// Check names, as they appear on models.Issue.Check.
const (
	CheckStructure = "structure"
	CheckRequired  = "required_field"
	CheckRevenue   = "revenue_positive"
	CheckMargin    = "margin_band"
	CheckBalance   = "balance_identity"
	CheckCashFlow  = "cash_flow_identity"
	CheckFCF       = "fcf_identity"
	CheckOutlier   = "outlier"
)

const insufficientData = "insufficient data for reconciliation"

// Config holds validation thresholds.
type Config struct {
	Tolerance float64        `yaml:"tolerance" validate:"gt=0,lt=1"`
	MarginMin float64        `yaml:"margin_min" validate:"ltfield=MarginMax"`
	MarginMax float64        `yaml:"margin_max"`
	Outlier   outlier.Config `yaml:"outlier"`
}

// DefaultConfig: 1% reconciliation tolerance, margins within [−50%, +100%].
func DefaultConfig() Config {
	return Config{
		Tolerance: 0.01,
		MarginMin: -0.5,
		MarginMax: 1.0,
		Outlier:   outlier.DefaultConfig(),
	}
}

// marginFields are the numerators checked against revenue.
var marginFields = []models.Field{models.GrossProfit, models.EBITDA, models.OperatingIncome, models.NetIncome}

// Validator is read-only with respect to the data it checks.
type Validator struct {
	cfg      Config
	ensemble *outlier.Ensemble
	logger   *log.Logger
}

// New returns a validator using the default detector ensemble.
func New(cfg Config, logger *log.Logger) *Validator {
	return &Validator{cfg: cfg, ensemble: outlier.Default(cfg.Outlier), logger: logging.OrNop(logger)}
}

// WithEnsemble swaps the outlier ensemble.
func (v *Validator) WithEnsemble(e *outlier.Ensemble) *Validator {
	v.ensemble = e
	return v
}

// findings accumulates issues while a record is checked.
type findings struct {
	res *models.ValidationResult
}

func (f *findings) add(sev models.Severity, check string, field models.Field, year, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	f.res.Issues = append(f.res.Issues, models.Issue{Check: check, Field: field, Year: year, Message: msg, Severity: sev})
	switch sev {
	case models.SeverityWarning:
		f.res.Warnings = append(f.res.Warnings, msg)
	case models.SeverityInfo:
		f.res.Notes = append(f.res.Notes, msg)
	}
}

// Validate runs every check. Only structural problems, non-positive revenue
// and missing required fields make the record invalid.
func (v *Validator) Validate(data *models.FinancialData, analyses []models.Analysis) *models.ValidationResult {
	res := &models.ValidationResult{Issues: []models.Issue{}, Warnings: []string{}}
	f := &findings{res: res}

	if data == nil {
		f.add(models.SeverityError, CheckStructure, "", "", "no data")
		return res
	}

	res.CompletenessScore = extract.Completeness(data.Presence(), analyses)

	if v.structure(data, f) {
		v.required(data, analyses, f)
		v.revenue(data, f)
		v.margins(data, f)
		v.balance(data, f)
		v.cashFlow(data, f)
		v.freeCashFlow(data, f)
		v.outliers(data, f)
		v.growth(data, f)
	}

	res.IsValid = len(res.HardIssues()) == 0
	v.logger.Debug().Str("company", data.Company.Name).Int("issues", len(res.Issues)).
		Int("outliers", len(res.Outliers)).Float64("completeness", res.CompletenessScore).
		Msg("validated record")
	return res
}

// structure reports whether the record is well-formed enough for the other checks.
func (v *Validator) structure(data *models.FinancialData, f *findings) bool {
	ok := true
	if len(data.Years) == 0 {
		f.add(models.SeverityError, CheckStructure, "", "", "record has no years")
		return false
	}
	for i := 1; i < len(data.Years); i++ {
		if !yearBefore(data.Years[i-1], data.Years[i]) {
			f.add(models.SeverityError, CheckStructure, "", data.Years[i],
				"years not strictly ascending: %s then %s", data.Years[i-1], data.Years[i])
			ok = false
		}
	}
	for _, st := range []map[models.Field]models.Series{data.IncomeStatement, data.BalanceSheet, data.CashFlow} {
		for field, s := range st {
			if len(s) != len(data.Years) {
				f.add(models.SeverityError, CheckStructure, field, "",
					"%s has %d values for %d years", field, len(s), len(data.Years))
				ok = false
			}
		}
	}
	return ok
}

func yearBefore(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func (v *Validator) required(data *models.FinancialData, analyses []models.Analysis, f *findings) {
	for _, field := range models.RequiredFields(analyses) {
		if !data.Has(field) {
			f.add(models.SeverityError, CheckRequired, field, "",
				"%s is required by %s but missing", field, joinAnalyses(analyses))
		}
	}
}

func (v *Validator) revenue(data *models.FinancialData, f *findings) {
	rev := data.Series(models.Revenue)
	for i, year := range data.Years {
		if r, ok := rev.At(i); ok && r <= 0 {
			f.add(models.SeverityError, CheckRevenue, models.Revenue, year, "revenue %s is %.4g, must be positive", year, r)
		}
	}
}

func (v *Validator) margins(data *models.FinancialData, f *findings) {
	rev := data.Series(models.Revenue)
	for _, field := range marginFields {
		num := data.Series(field)
		for i, year := range data.Years {
			r, ok1 := rev.At(i)
			n, ok2 := num.At(i)
			if !ok1 || !ok2 || r <= 0 {
				continue
			}
			m := n / r
			if m < v.cfg.MarginMin || m > v.cfg.MarginMax {
				f.add(models.SeverityWarning, CheckMargin, field, year,
					"%s margin %s is %.1f%%, outside [%.0f%%, %.0f%%]", field, year, m*100, v.cfg.MarginMin*100, v.cfg.MarginMax*100)
			}
		}
	}
}

func (v *Validator) balance(data *models.FinancialData, f *findings) {
	assets, liab, equity := data.Series(models.TotalAssets), data.Series(models.TotalLiabilities), data.Series(models.TotalEquity)
	checked := 0
	for i, year := range data.Years {
		a, ok1 := assets.At(i)
		l, ok2 := liab.At(i)
		e, ok3 := equity.At(i)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		checked++
		if c := CheckBalanceEquation(a, l, e, v.cfg.Tolerance); !c.IsBalanced {
			f.add(models.SeverityWarning, CheckBalance, models.TotalAssets, year,
				"balance sheet %s: assets %.4g vs liabilities+equity %.4g (%.2f%% off)", year, a, c.ComputedAssets, c.RelativeDiff*100)
		}
	}
	if checked == 0 {
		f.add(models.SeverityInfo, CheckBalance, "", "", "balance sheet: %s", insufficientData)
	}
}

func (v *Validator) cashFlow(data *models.FinancialData, f *findings) {
	cfo, cfi, cff := data.Series(models.OperatingCashFlow), data.Series(models.InvestingCashFlow), data.Series(models.FinancingCashFlow)
	reported, cash := data.Series(models.NetChangeInCash), data.Series(models.Cash)
	checked := 0
	for i, year := range data.Years {
		o, ok1 := cfo.At(i)
		in, ok2 := cfi.At(i)
		fi, ok3 := cff.At(i)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		delta, ok := reported.At(i)
		if !ok {
			cur, okCur := cash.At(i)
			prev, okPrev := cash.At(i - 1)
			if !okCur || !okPrev {
				continue
			}
			delta = cur - prev
		}
		checked++
		if c := CheckCashFlowEquation(o, in, fi, delta, v.cfg.Tolerance); !c.IsBalanced {
			f.add(models.SeverityWarning, CheckCashFlow, models.NetChangeInCash, year,
				"cash flow %s: CFO+CFI+CFF %.4g vs change in cash %.4g (%.2f%% off)", year, c.ComputedTotal, delta, c.RelativeDiff*100)
		}
	}
	if checked == 0 {
		f.add(models.SeverityInfo, CheckCashFlow, "", "", "cash flow: %s", insufficientData)
	}
}

// freeCashFlow checks supplied FCF against CFO − |CapEx|. Derived FCF is
// consistent by construction and skipped.
func (v *Validator) freeCashFlow(data *models.FinancialData, f *findings) {
	if data.Quality.Derived[models.FreeCashFlow] {
		return
	}
	fcf, cfo, capex := data.Series(models.FreeCashFlow), data.Series(models.OperatingCashFlow), data.Series(models.Capex)
	for i, year := range data.Years {
		r, ok1 := fcf.At(i)
		o, ok2 := cfo.At(i)
		c, ok3 := capex.At(i)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		if chk := CheckFCF(r, o, c, v.cfg.Tolerance); !chk.IsConsistent {
			f.add(models.SeverityWarning, CheckFCF, models.FreeCashFlow, year,
				"free cash flow %s: reported %.4g vs CFO-capex %.4g (%.2f%% off)", year, r, chk.Computed, chk.RelativeDiff*100)
		}
	}
}

func (v *Validator) outliers(data *models.FinancialData, f *findings) {
	if v.ensemble == nil {
		return
	}
	for _, spec := range models.Fields() {
		if spec.Statement == models.Market {
			continue
		}
		s := data.Series(spec.Field)
		var (
			values []float64
			index  []int
		)
		for i := range data.Years {
			if x, ok := s.At(i); ok {
				values = append(values, x)
				index = append(index, i)
			}
		}
		for _, flag := range v.ensemble.Flag(values) {
			year := data.Years[index[flag.Index]]
			value := values[flag.Index]
			f.res.Outliers = append(f.res.Outliers, models.OutlierFlag{
				Field: spec.Field, Year: year, Value: value, Votes: flag.Detectors,
			})
			f.add(models.SeverityWarning, CheckOutlier, spec.Field, year,
				"%s %s = %.4g looks anomalous (%s)", spec.Field, year, value, strings.Join(flag.Detectors, ", "))
		}
	}
}

// growth adds an informational revenue trend note.
func (v *Validator) growth(data *models.FinancialData, f *findings) {
	g, err := SeriesGrowth(data.Years, data.Series(models.Revenue))
	if err != nil {
		return
	}
	f.res.Notes = append(f.res.Notes, fmt.Sprintf("revenue %s to %s: CAGR %.1f%%, latest YoY %+.1f%%",
		g.StartYear, g.EndYear, g.CAGR, g.LatestYoY))
}

func joinAnalyses(as []models.Analysis) string {
	names := make([]string, len(as))
	for i, a := range as {
		names[i] = string(a)
	}
	return strings.Join(names, "/")
}
