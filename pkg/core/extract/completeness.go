package extract

import "valuation_data/pkg/models"

// Completeness is the weighted share of expected fields that are present:
// sum(weight of present expected fields) / sum(weight of expected fields).
func Completeness(presence map[models.Field]bool, analyses []models.Analysis) float64 {
	var have, want float64
	for _, f := range models.ExpectedFields(analyses) {
		w := models.Weight(f)
		want += w
		if presence[f] {
			have += w
		}
	}
	if want == 0 {
		return 0
	}
	return have / want
}

// MissingFields lists expected fields that are absent, in registry order.
func MissingFields(presence map[models.Field]bool, analyses []models.Analysis) []models.Field {
	var out []models.Field
	for _, f := range models.ExpectedFields(analyses) {
		if !presence[f] {
			out = append(out, f)
		}
	}
	return out
}
