package outlier

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// =============================================================================
// MAD (modified z-score)
// =============================================================================

// MAD flags points whose modified z-score 0.6745·|x−median|/MAD exceeds the
// threshold (Iglewicz & Hoaglin recommend 3.5).
type MAD struct {
	threshold float64
}

func NewMAD(threshold float64) *MAD { return &MAD{threshold: threshold} }

func (d *MAD) Name() string   { return "mad" }
func (d *MAD) MinPoints() int { return 3 }

func (d *MAD) Detect(values []float64) []bool {
	out := make([]bool, len(values))
	m := median(values)

	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - m)
	}
	mad := median(dev)

	var scale float64
	switch {
	case mad > 0:
		scale = mad / 0.6745
	default:
		// More than half the points are identical; fall back to mean absolute deviation.
		meanAD := stat.Mean(dev, nil)
		if meanAD == 0 {
			return out
		}
		scale = 1.253314 * meanAD
	}

	for i, v := range values {
		out[i] = math.Abs(v-m)/scale > d.threshold
	}
	return out
}

// =============================================================================
// IQR fences
// =============================================================================

// IQR flags points outside [Q1 − k·IQR, Q3 + k·IQR]. Quartiles use linear
// interpolation of the empirical CDF.
type IQR struct {
	k float64
}

func NewIQR(k float64) *IQR { return &IQR{k: k} }

func (d *IQR) Name() string   { return "iqr" }
func (d *IQR) MinPoints() int { return 4 }

func (d *IQR) Detect(values []float64) []bool {
	out := make([]bool, len(values))
	sorted := sortedCopy(values)
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	lo, hi := q1-d.k*iqr, q3+d.k*iqr
	for i, v := range values {
		out[i] = v < lo || v > hi
	}
	return out
}

// =============================================================================
// Rolling z-score
// =============================================================================

// RollingZScore compares each point with the mean and standard deviation of
// the window before it. It needs enough history to be meaningful.
type RollingZScore struct {
	window    int
	threshold float64
	minPoints int
}

func NewRollingZScore(window int, threshold float64, minPoints int) *RollingZScore {
	return &RollingZScore{window: window, threshold: threshold, minPoints: minPoints}
}

func (d *RollingZScore) Name() string   { return "rolling_zscore" }
func (d *RollingZScore) MinPoints() int { return d.minPoints }

func (d *RollingZScore) Detect(values []float64) []bool {
	out := make([]bool, len(values))
	for i := d.window; i < len(values); i++ {
		mean, sd := stat.MeanStdDev(values[i-d.window:i], nil)
		if sd == 0 || math.IsNaN(sd) {
			continue
		}
		out[i] = math.Abs(values[i]-mean)/sd > d.threshold
	}
	return out
}

// =============================================================================
// HELPERS
// =============================================================================

func sortedCopy(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := sortedCopy(values)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
