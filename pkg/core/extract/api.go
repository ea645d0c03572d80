package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/models"

	"github.com/phuslu/log"
)

// Period is one fiscal year of statement values as a backend reports it.
type Period struct {
	Year   string
	Values map[models.Field]float64
}

// Fundamentals is a backend's answer for one ticker.
// Currency values are in Unit; share counts are raw counts.
type Fundamentals struct {
	Company models.Company
	Unit    models.Scale
	Periods []Period
	Market  map[models.Field]float64
}

// Backend is a market-data provider reachable by ticker.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, ticker string, years int) (*Fundamentals, error)
}

// Waiter is satisfied by *rate.Limiter.
type Waiter interface {
	Wait(ctx context.Context) error
}

// APIExtractor wraps a Backend with rate limiting, a per-request timeout and
// conversion to the canonical unit.
type APIExtractor struct {
	backend Backend
	limiter Waiter
	timeout time.Duration
	creds   []string
	logger  *log.Logger
}

// NewAPIExtractor returns an API-source extractor. limiter may be nil.
func NewAPIExtractor(backend Backend, limiter Waiter, timeout time.Duration, logger *log.Logger) *APIExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIExtractor{backend: backend, limiter: limiter, timeout: timeout, logger: logging.OrNop(logger)}
}

// WithCredentials records the config keys this backend depends on.
func (x *APIExtractor) WithCredentials(keys ...string) *APIExtractor {
	x.creds = keys
	return x
}

func (x *APIExtractor) Name() string { return x.backend.Name() }
func (x *APIExtractor) Kind() Kind   { return KindAPI }

func (x *APIExtractor) Requirements() Requirements {
	return Requirements{
		Kind:         KindAPI,
		Description:  fmt.Sprintf("ticker lookup against the %s backend", x.backend.Name()),
		NeedsNetwork: true,
		Credentials:  x.creds,
	}
}

// Extract waits for the backend's shared limiter, fetches fundamentals and
// returns a pre-scaled record in canonical millions.
func (x *APIExtractor) Extract(ctx context.Context, src Source) (*models.RawRecord, error) {
	ticker := strings.ToUpper(strings.TrimSpace(src.Locator))
	if x.limiter != nil {
		if err := x.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: waiting for rate limiter: %w", x.Name(), err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	start := time.Now()
	fund, err := x.backend.Fetch(reqCtx, ticker, src.Years)
	if err != nil {
		if _, ok := AsFetchError(err); ok {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, TimedOut(x.Name(), x.timeout, err)
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, Upstream(x.Name(), err)
	}
	if fund == nil || len(fund.Periods) == 0 {
		return nil, Unavailable(x.Name(), "no annual statements for %s", ticker)
	}
	x.logger.Debug().Str("backend", x.Name()).Str("ticker", ticker).Int("periods", len(fund.Periods)).
		Dur("elapsed", time.Since(start)).Msg("fetched fundamentals")

	return x.record(ticker, src, fund), nil
}

func (x *APIExtractor) record(ticker string, src Source, fund *Fundamentals) *models.RawRecord {
	periods := make(map[string]Period)
	for _, p := range fund.Periods {
		if _, dup := periods[p.Year]; !dup {
			periods[p.Year] = p
		}
	}
	years := make([]string, 0, len(periods))
	for y := range periods {
		years = append(years, y)
	}
	sort.Strings(years)
	if src.Years > 0 && len(years) > src.Years {
		years = years[len(years)-src.Years:]
	}

	rec := models.NewRawRecord(x.Name(), years)
	rec.Locator = ticker
	rec.Company = fund.Company
	if rec.Company.Ticker == "" {
		rec.Company.Ticker = ticker
	}
	if rec.Company.Name == "" {
		rec.Company.Name = src.Company.Name
	}
	rec.ExtractedAt = time.Now()
	rec.PreScaled = true

	factor := fund.Unit.ToCanonical()
	for _, spec := range models.Fields() {
		if spec.Statement == models.Market {
			continue
		}
		series := models.NewSeries(len(years))
		for i, y := range years {
			if v, ok := periods[y].Values[spec.Field]; ok {
				series[i] = models.Float(convert(spec, v, factor))
			}
		}
		if series.HasAny() {
			rec.Set(spec.Field, series)
		}
	}

	for f, v := range fund.Market {
		spec, ok := models.Lookup(f)
		if !ok {
			continue
		}
		if spec.Measure == models.Shares {
			// backends report raw share counts
			rec.SetMarket(f, v*models.ScaleActual.ToCanonical())
			continue
		}
		rec.SetMarket(f, convert(spec, v, factor))
	}

	x.workingCapital(rec)

	rec.Context = fmt.Sprintf("pre-scaled: %s values reported in %s, stored in %s", x.Name(), fund.Unit, models.CanonicalScale)
	rec.Completeness = Completeness(rec.Presence, src.Analyses)
	return rec
}

// workingCapital fills net_working_capital from the backend's own current
// assets and liabilities, which share one scale.
func (x *APIExtractor) workingCapital(rec *models.RawRecord) {
	ca, cl := rec.Values[models.CurrentAssets], rec.Values[models.CurrentLiabilities]
	if ca == nil || cl == nil {
		return
	}
	nwc := rec.Values[models.NetWorkingCapital]
	if nwc == nil {
		nwc = models.NewSeries(len(rec.Years))
	}
	filled := false
	for i := range rec.Years {
		if nwc[i] != nil || ca[i] == nil || cl[i] == nil {
			continue
		}
		nwc[i] = models.Float(*ca[i] - *cl[i])
		filled = true
	}
	if filled {
		rec.Set(models.NetWorkingCapital, nwc)
		rec.Derived[models.NetWorkingCapital] = true
	}
}

func convert(spec models.FieldSpec, v, factor float64) float64 {
	if !spec.Monetary() {
		return v
	}
	return v * factor
}
