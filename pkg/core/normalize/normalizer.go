// Package normalize converts extractor records into canonical FinancialData:
// it detects the reporting scale, converts monetary fields to millions and
// fills derivable line items.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/models"

	"github.com/phuslu/log"
)

// DefaultConfidenceThreshold is the scale confidence below which a warning
// is attached to the record.
const DefaultConfidenceThreshold = 0.6

// ErrNormalization matches every *NormalizationError.
var ErrNormalization = errors.New("normalization failed")

// NormalizationError means a record could not be put on a canonical scale.
type NormalizationError struct {
	Source string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %s", e.Source, e.Reason)
}

func (e *NormalizationError) Is(target error) bool { return target == ErrNormalization }

// Options tunes the normalizer.
type Options struct {
	ConfidenceThreshold float64
}

// Normalizer is stateless and safe for concurrent use.
type Normalizer struct {
	opts   Options
	logger *log.Logger
}

// New returns a normalizer. A zero threshold uses DefaultConfidenceThreshold.
func New(opts Options, logger *log.Logger) *Normalizer {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	return &Normalizer{opts: opts, logger: logging.OrNop(logger)}
}

// Normalize returns a fresh FinancialData in canonical millions. contextHint
// is extra caller-supplied text (for example "USD in thousands") scanned
// ahead of the record's own context. Pre-scaled records skip conversion but
// still get derived fields, so normalizing a normalized record is a no-op.
func (n *Normalizer) Normalize(rec *models.RawRecord, contextHint string) (*models.FinancialData, error) {
	if rec == nil {
		return nil, &NormalizationError{Reason: "nil record"}
	}
	if err := rec.CheckShape(); err != nil {
		return nil, &NormalizationError{Source: rec.Source, Reason: err.Error()}
	}
	if len(rec.NumericValues()) == 0 {
		return nil, &NormalizationError{Source: rec.Source, Reason: "record has no numeric values"}
	}

	var notes []string
	det := n.detect(rec, contextHint, &notes)

	factor := 1.0
	if det.Signal != SignalPreScaled {
		factor = det.Scale.ToCanonical()
	}

	data := models.NewFinancialData(rec.Company, rec.Years)
	for _, spec := range models.Fields() {
		if spec.Statement == models.Market {
			if v, ok := rec.Market[spec.Field]; ok {
				data.MarketData[spec.Field] = scaleValue(spec, v, factor)
			}
			continue
		}
		s, ok := rec.Values[spec.Field]
		if !ok {
			continue
		}
		out := make(models.Series, len(s))
		for i, v := range s {
			if v != nil {
				out[i] = models.Float(scaleValue(spec, *v, factor))
			}
		}
		if err := data.SetSeries(spec.Field, out); err != nil {
			return nil, &NormalizationError{Source: rec.Source, Reason: err.Error()}
		}
	}

	data.Quality = models.Quality{
		Source:            rec.Source,
		ExtractedAt:       rec.ExtractedAt,
		Derived:           make(map[models.Field]bool),
		Scale:             models.CanonicalScale,
		SourceScale:       det.Scale,
		ScaleConfidence:   det.Confidence,
		ScaleSignal:       string(det.Signal),
		Normalized:        true,
		CompletenessScore: rec.Completeness,
		Warnings:          append(append([]string(nil), rec.Warnings...), notes...),
	}
	for f, derived := range rec.Derived {
		if derived {
			data.Quality.Derived[f] = true
		}
	}

	if det.Confidence < n.opts.ConfidenceThreshold {
		data.Quality.Warnings = append(data.Quality.Warnings,
			fmt.Sprintf("low scale confidence: %s", det))
	}

	Derive(data)

	n.logger.Debug().Str("source", rec.Source).Str("scale", string(det.Scale)).
		Float64("confidence", det.Confidence).Str("signal", string(det.Signal)).Msg("normalized record")
	return data, nil
}

// detect runs the signals in priority order: the first conclusive one wins.
func (n *Normalizer) detect(rec *models.RawRecord, hint string, notes *[]string) Detection {
	if rec.PreScaled {
		return Detection{Scale: models.CanonicalScale, Confidence: 1, Signal: SignalPreScaled, Reason: "source delivered canonical values"}
	}

	text := strings.TrimSpace(hint + "\n" + rec.Context)
	det, ok, conflicting := DetectFromContext(text)
	if ok {
		return det
	}
	if len(conflicting) > 0 {
		*notes = append(*notes, fmt.Sprintf("context mentions several scales %v; ignoring it", conflicting))
	}

	if det, ok := DetectFromSize(rec); ok {
		return det
	}
	return DetectFromMagnitude(monetaryValues(rec))
}

// scaleValue converts currency to canonical millions and share counts to
// millions of shares; both follow the scale the source reported in.
func scaleValue(spec models.FieldSpec, v, factor float64) float64 {
	if !spec.Scaled() {
		return v
	}
	return v * factor
}

func monetaryValues(rec *models.RawRecord) []float64 {
	var out []float64
	for _, spec := range models.Fields() {
		if !spec.Monetary() {
			continue
		}
		if s, ok := rec.Values[spec.Field]; ok {
			out = append(out, s.Present()...)
		}
		if v, ok := rec.Market[spec.Field]; ok {
			out = append(out, v)
		}
	}
	return out
}

// =============================================================================
// DERIVED FIELDS
// =============================================================================

// Derive fills computable fields year by year where the field is absent and
// all inputs are present. Supplied values are never overwritten; any field
// that gains a value is flagged derived.
func Derive(data *models.FinancialData) {
	derivePerYear(data, models.GrossProfit, func(y int) (float64, bool) {
		rev, ok1 := data.Series(models.Revenue).At(y)
		cogs, ok2 := data.Series(models.COGS).At(y)
		return rev - math.Abs(cogs), ok1 && ok2
	})
	derivePerYear(data, models.EBITDA, func(y int) (float64, bool) {
		oi, ok1 := data.Series(models.OperatingIncome).At(y)
		da, ok2 := data.Series(models.DepreciationAmortization).At(y)
		return oi + math.Abs(da), ok1 && ok2
	})
	derivePerYear(data, models.NetWorkingCapital, func(y int) (float64, bool) {
		ca, ok1 := data.Series(models.CurrentAssets).At(y)
		cl, ok2 := data.Series(models.CurrentLiabilities).At(y)
		return ca - cl, ok1 && ok2
	})
	derivePerYear(data, models.FreeCashFlow, func(y int) (float64, bool) {
		ocf, ok1 := data.Series(models.OperatingCashFlow).At(y)
		capex, ok2 := data.Series(models.Capex).At(y)
		return ocf - math.Abs(capex), ok1 && ok2
	})

	if _, ok := data.MarketData[models.MarketCap]; !ok {
		price, ok1 := data.MarketData[models.SharePrice]
		shares, ok2 := data.MarketData[models.SharesOutstanding]
		if ok1 && ok2 {
			data.MarketData[models.MarketCap] = price * shares
			data.Quality.Derived[models.MarketCap] = true
		}
	}
	if _, ok := data.MarketData[models.NetDebt]; !ok {
		debt, cash := data.Series(models.TotalDebt), data.Series(models.Cash)
		for y := len(data.Years) - 1; y >= 0; y-- {
			d, ok1 := debt.At(y)
			c, ok2 := cash.At(y)
			if ok1 && ok2 {
				data.MarketData[models.NetDebt] = d - c
				data.Quality.Derived[models.NetDebt] = true
				break
			}
		}
	}
}

func derivePerYear(data *models.FinancialData, target models.Field, compute func(year int) (float64, bool)) {
	current := data.Series(target)
	out := current.Clone()
	if out == nil {
		out = models.NewSeries(len(data.Years))
	}
	filled := false
	for y := range data.Years {
		if out[y] != nil {
			continue
		}
		if v, ok := compute(y); ok {
			out[y] = models.Float(v)
			filled = true
		}
	}
	if !filled {
		return
	}
	if err := data.SetSeries(target, out); err == nil {
		data.Quality.Derived[target] = true
	}
}
