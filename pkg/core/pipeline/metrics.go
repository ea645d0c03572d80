package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's Prometheus collectors.
type Metrics struct {
	Runs         *prometheus.CounterVec
	Attempts     *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// keeps them unregistered, which is what tests and one-shot CLI runs want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valdata",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by source kind and outcome (valid, invalid, error).",
		}, []string{"kind", "status"}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valdata",
			Subsystem: "pipeline",
			Name:      "extraction_attempts_total",
			Help:      "Extractor invocations by extractor and outcome.",
		}, []string{"extractor", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valdata",
			Subsystem: "pipeline",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "valdata",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Attempts, m.CacheLookups, m.RunDuration)
	}
	return m
}
