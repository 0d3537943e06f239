// Package metrics records run counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docgap"

// Generation outcome labels.
const (
	OutcomeGenerated = "generated"
	OutcomeCached    = "cached"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// File outcome labels.
const (
	FileAnalyzed = "analyzed"
	FileCached   = "cached"
	FileSkipped  = "skipped"
	FileFailed   = "failed"
)

// Metrics holds the collectors for one engine. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs          prometheus.Counter
	files         *prometheus.CounterVec
	gaps          *prometheus.CounterVec
	generations   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	coverage      *prometheus.GaugeVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed analysis runs.",
		}),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files visited, by outcome.",
		}, []string{"outcome"}),
		gaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gaps_total",
			Help:      "Documentation gaps found, by severity.",
		}, []string{"severity"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests, by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each run stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		coverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coverage_ratio",
			Help:      "Documented fraction of entities in the latest run, by root.",
		}, []string{"root"}),
	}
	m.registry.MustRegister(m.runs, m.files, m.gaps, m.generations, m.stageDuration, m.coverage)
	return m
}

// Registry exposes the collectors for scraping or tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format. A nil
// *Metrics serves an empty registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) File(outcome string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Gap(severity string) {
	if m == nil {
		return
	}
	m.gaps.WithLabelValues(severity).Inc()
}

func (m *Metrics) Generation(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}

// Stage observes the time since start under the given stage name.
func (m *Metrics) Stage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RunFinished counts a run and records its coverage ratio (0..1).
func (m *Metrics) RunFinished(root string, coverage float64) {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.coverage.WithLabelValues(root).Set(coverage)
}
