package normalize

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"valuation_data/pkg/models"

	"gonum.org/v1/gonum/stat"
)

// Signal names the heuristic that decided a record's scale.
type Signal string

const (
	SignalPreScaled Signal = "prescaled"
	SignalContext   Signal = "context"
	SignalSize      Signal = "size"
	SignalMagnitude Signal = "magnitude"
)

// Detection is a scale decision with its confidence.
type Detection struct {
	Scale      models.Scale
	Confidence float64
	Signal     Signal
	Reason     string
}

func (d Detection) String() string {
	return fmt.Sprintf("%s @ %.2f via %s (%s)", d.Scale, d.Confidence, d.Signal, d.Reason)
}

// =============================================================================
// SIGNAL 1: CONTEXT KEYWORDS
// =============================================================================

type scalePattern struct {
	scale      models.Scale
	confidence float64
	re         *regexp.Regexp
}

var contextPatterns = []scalePattern{
	// Spelled out: "(in thousands, except per share data)", "millions of dollars"
	{models.ScaleThousands, 1.0, regexp.MustCompile(`\bin thousands\b|\bthousands of\b|\(thousands\)`)},
	{models.ScaleMillions, 1.0, regexp.MustCompile(`\bin millions\b|\bmillions of\b|\(millions\)`)},
	{models.ScaleBillions, 1.0, regexp.MustCompile(`\bin billions\b|\bbillions of\b|\(billions\)`)},

	// Abbreviated: "$000s", "(000)", "$mm", "USD bn"
	{models.ScaleThousands, 0.9, regexp.MustCompile(`\$\s?'?000s?\b|\(\s*\$?\s*'?000s?\s*\)|\busd\s?'?000s?\b|\$k\b|\(\s*\$?\s*k\s*\)`)},
	{models.ScaleMillions, 0.9, regexp.MustCompile(`\$\s?mm?\b|\(\s*\$?\s*mm?\s*\)|\busd\s?(?:mm|mn|m)\b|\$\s?millions?\b`)},
	{models.ScaleBillions, 0.9, regexp.MustCompile(`\$\s?bn?\b|\(\s*\$?\s*bn\s*\)|\busd\s?bn\b|\$\s?billions?\b`)},
}

// DetectFromContext scans free text for unit phrases. It reports ok=false
// when nothing matched or when phrases for different scales appear.
func DetectFromContext(text string) (Detection, bool, []models.Scale) {
	text = strings.ToLower(text)

	found := make(map[models.Scale]scalePattern)
	for _, p := range contextPatterns {
		if cur, ok := found[p.scale]; ok && cur.confidence >= p.confidence {
			continue
		}
		if p.re.MatchString(text) {
			found[p.scale] = p
		}
	}

	switch len(found) {
	case 0:
		return Detection{}, false, nil
	case 1:
		for scale, p := range found {
			return Detection{
				Scale:      scale,
				Confidence: p.confidence,
				Signal:     SignalContext,
				Reason:     fmt.Sprintf("context says %q", p.re.FindString(text)),
			}, true, nil
		}
	}

	scales := make([]models.Scale, 0, len(found))
	for s := range found {
		scales = append(scales, s)
	}
	sort.Slice(scales, func(i, j int) bool { return scales[i].Factor() < scales[j].Factor() })
	return Detection{}, false, scales
}

// =============================================================================
// SIGNAL 2: COMPANY-SIZE PLAUSIBILITY
// =============================================================================

type sizeBand struct {
	name       string
	lo, hi     float64 // implied revenue in dollars, [lo, hi)
	typicality int
}

var sizeBands = []sizeBand{
	{"micro", 0, 1e6, 0},
	{"small", 1e6, 1e8, 2},
	{"mid", 1e8, 1e9, 3},
	{"large", 1e9, 5e10, 3},
	{"mega", 5e10, math.Inf(1), 1},
}

var candidateScales = []models.Scale{
	models.ScaleActual, models.ScaleThousands, models.ScaleMillions, models.ScaleBillions,
}

func bandOf(dollars float64) sizeBand {
	for _, b := range sizeBands {
		if dollars >= b.lo && dollars < b.hi {
			return b
		}
	}
	return sizeBands[0]
}

// DetectFromSize asks which candidate scale makes the median revenue (or
// total assets) look like a typical company. Only mid and large bands can
// decide; anything else is inconclusive.
func DetectFromSize(rec *models.RawRecord) (Detection, bool) {
	basis := models.Revenue
	values := absAll(rec.Values[models.Revenue].Present())
	if len(values) == 0 {
		basis = models.TotalAssets
		values = absAll(rec.Values[models.TotalAssets].Present())
	}
	if len(values) == 0 {
		return Detection{}, false
	}
	m := median(values)
	if m == 0 {
		return Detection{}, false
	}

	var (
		best     models.Scale
		bestBand sizeBand
		bestTyp  = -1
		tied     bool
	)
	for _, s := range candidateScales {
		b := bandOf(m * s.Factor())
		switch {
		case b.typicality > bestTyp:
			best, bestBand, bestTyp, tied = s, b, b.typicality, false
		case b.typicality == bestTyp:
			tied = true
		}
	}
	if tied || bestTyp < 3 {
		return Detection{}, false
	}

	return Detection{
		Scale:      best,
		Confidence: bandConfidence(m*best.Factor(), bestBand),
		Signal:     SignalSize,
		Reason:     fmt.Sprintf("median %s %.4g reads as a %s company in %s", basis, m, bestBand.name, best),
	}, true
}

// bandConfidence is 0.95 at the band's log-center and falls to 0.80 at its edges.
func bandConfidence(dollars float64, b sizeBand) float64 {
	lo, hi := math.Log10(b.lo), math.Log10(b.hi)
	center, half := (lo+hi)/2, (hi-lo)/2
	dist := math.Abs(math.Log10(dollars)-center) / half
	return 0.95 - 0.15*math.Min(dist, 1)
}

// =============================================================================
// SIGNAL 3: ORDER OF MAGNITUDE
// =============================================================================

// DetectFromMagnitude always answers; it is the last resort.
func DetectFromMagnitude(values []float64) Detection {
	m := median(absAll(values))
	d := Detection{Signal: SignalMagnitude}
	switch {
	case m >= 100 && m < 10_000:
		d.Scale, d.Confidence = models.ScaleMillions, 0.75
	case m >= 10_000 && m < 1_000_000:
		d.Scale, d.Confidence = models.ScaleThousands, 0.7
	case m >= 1_000_000:
		d.Scale, d.Confidence = models.ScaleActual, 0.9
	default:
		d.Scale, d.Confidence = models.ScaleActual, 0.6
	}
	d.Reason = fmt.Sprintf("median magnitude %.4g", m)
	return d
}

// =============================================================================
// HELPERS
// =============================================================================

func absAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Abs(v)
	}
	return out
}

// median of a copy of values; 0 when empty.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted)%2 == 1 {
		return stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}
	mid := len(sorted) / 2
	return (sorted[mid-1] + sorted[mid]) / 2
}
