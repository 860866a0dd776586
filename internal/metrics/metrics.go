// Package metrics counts discovery passes and candidate outcomes. A CLI run
// writes them as a node exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spigell/knot-matcher/internal/discovery"
)

type Recorder struct {
	registry *prometheus.Registry

	runs       *prometheus.CounterVec
	candidates *prometheus.CounterVec
	duration   prometheus.Histogram
}

const (
	resultOK       = "ok"
	resultRejected = "subject_rejected"
	resultCached   = "cached"
)

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knot_discovery_runs_total",
				Help: "Total number of discovery passes by result",
			},
			[]string{"result"},
		),
		candidates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knot_discovery_candidates_total",
				Help: "Total number of pool entries by discovery outcome",
			},
			[]string{"outcome"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "knot_discovery_duration_seconds",
				Help:    "Duration of discovery passes in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records one finished discovery pass.
func (r *Recorder) Observe(stats discovery.Stats, took time.Duration) {
	if r == nil {
		return
	}

	if stats.SubjectRejected != "" {
		r.runs.WithLabelValues(resultRejected).Inc()
	} else {
		r.runs.WithLabelValues(resultOK).Inc()
	}
	for outcome, n := range stats.Outcomes() {
		r.candidates.WithLabelValues(outcome).Add(float64(n))
	}
	r.duration.Observe(took.Seconds())
}

// ObserveCached records a pass answered from the result cache.
func (r *Recorder) ObserveCached() {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(resultCached).Inc()
}

// WriteTextfile dumps every metric to path in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %q: %w", path, err)
	}
	return nil
}
