// Package outlier flags anomalous points in short per-year series. Several
// independent detectors vote and a point is flagged only on quorum.
package outlier

import (
	"sort"
)

// Detector marks suspicious points in a series. The returned slice has one
// entry per input value.
type Detector interface {
	Name() string
	// MinPoints is the shortest series the detector is meaningful on.
	MinPoints() int
	Detect(values []float64) []bool
}

// Flag is a point that reached quorum.
type Flag struct {
	Index     int
	Votes     int
	Detectors []string
}

// Config holds every tunable of the default ensemble.
type Config struct {
	Quorum    int `yaml:"quorum" validate:"min=1"`
	MinLength int `yaml:"min_length" validate:"min=2"`

	Contamination float64 `yaml:"contamination" validate:"gt=0,lt=0.5"`
	Trees         int     `yaml:"trees" validate:"min=1"`
	Seed          uint64  `yaml:"seed"`

	MADThreshold  float64 `yaml:"mad_threshold" validate:"gt=0"`
	IQRMultiplier float64 `yaml:"iqr_multiplier" validate:"gt=0"`

	RollingWindow    int     `yaml:"rolling_window" validate:"min=2"`
	RollingThreshold float64 `yaml:"rolling_threshold" validate:"gt=0"`
	RollingMinLength int     `yaml:"rolling_min_length" validate:"min=3"`
}

// DefaultConfig: quorum 2 regardless of how many detectors apply.
func DefaultConfig() Config {
	return Config{
		Quorum:           2,
		MinLength:        4,
		Contamination:    0.1,
		Trees:            100,
		Seed:             42,
		MADThreshold:     3.5,
		IQRMultiplier:    1.5,
		RollingWindow:    4,
		RollingThreshold: 3.0,
		RollingMinLength: 8,
	}
}

// Ensemble runs detectors and keeps points with at least Quorum votes.
type Ensemble struct {
	quorum    int
	minLength int
	detectors []Detector
}

// NewEnsemble builds an ensemble from arbitrary detectors.
func NewEnsemble(quorum, minLength int, detectors ...Detector) *Ensemble {
	if quorum < 1 {
		quorum = 1
	}
	return &Ensemble{quorum: quorum, minLength: minLength, detectors: detectors}
}

// Default is isolation forest + MAD + IQR, plus rolling z-score on long series.
func Default(cfg Config) *Ensemble {
	return NewEnsemble(cfg.Quorum, cfg.MinLength,
		NewIsolationForest(cfg.Trees, cfg.Contamination, cfg.Seed),
		NewMAD(cfg.MADThreshold),
		NewIQR(cfg.IQRMultiplier),
		NewRollingZScore(cfg.RollingWindow, cfg.RollingThreshold, cfg.RollingMinLength),
	)
}

// Detectors lists the ensemble members in vote order.
func (e *Ensemble) Detectors() []string {
	names := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		names[i] = d.Name()
	}
	return names
}

// Flag returns the points at least Quorum detectors agree on, by index.
// Series shorter than the ensemble minimum are never flagged.
func (e *Ensemble) Flag(values []float64) []Flag {
	if len(values) < e.minLength {
		return nil
	}

	voters := make([][]string, len(values))
	for _, d := range e.detectors {
		if len(values) < d.MinPoints() {
			continue
		}
		marks := d.Detect(values)
		for i := range values {
			if i < len(marks) && marks[i] {
				voters[i] = append(voters[i], d.Name())
			}
		}
	}

	var flags []Flag
	for i, names := range voters {
		if len(names) >= e.quorum {
			flags = append(flags, Flag{Index: i, Votes: len(names), Detectors: names})
		}
	}
	sort.Slice(flags, func(a, b int) bool { return flags[a].Index < flags[b].Index })
	return flags
}
