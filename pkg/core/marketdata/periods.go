package marketdata

import (
	"sort"
	"valuation_data/pkg/core/extract"
	"valuation_data/pkg/models"
)

// periodSet accumulates per-year values from several statement payloads.
type periodSet map[string]map[models.Field]float64

func newPeriodSet() periodSet { return make(periodSet) }

func (s periodSet) put(year string, f models.Field, v *float64) {
	if v == nil || year == "" {
		return
	}
	s.set(year, f, *v)
}

func (s periodSet) set(year string, f models.Field, v float64) {
	vals, ok := s[year]
	if !ok {
		vals = make(map[models.Field]float64)
		s[year] = vals
	}
	vals[f] = v
}

// list returns periods newest first, the order providers report them in.
func (s periodSet) list() []extract.Period {
	years := make([]string, 0, len(s))
	for y := range s {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))

	out := make([]extract.Period, 0, len(years))
	for _, y := range years {
		out = append(out, extract.Period{Year: y, Values: s[y]})
	}
	return out
}
