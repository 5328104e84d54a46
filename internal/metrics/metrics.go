// Package metrics exposes prometheus counters for migration runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evalgo.org/dataflowmigrator/internal/domain"
)

const namespace = "dataflowmigrator"

// Metrics holds the collectors of one process. Each instance owns its own
// registry so tests can create as many as they like.
type Metrics struct {
	registry     *prometheus.Registry
	items        *prometheus.CounterVec
	runs         *prometheus.CounterVec
	replacements prometheus.Counter
	activeRuns   prometheus.Gauge
	runDuration  prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Dataflow items processed, by outcome and failing stage.",
		}, []string{"outcome", "stage"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Migration runs, by final status.",
		}, []string{"status"}),
		replacements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replacements_total",
			Help:      "Identifier substitutions applied to definition scripts.",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of migration runs.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	m.registry.MustRegister(
		m.items,
		m.runs,
		m.replacements,
		m.activeRuns,
		m.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunStarted marks a run as in progress.
func (m *Metrics) RunStarted() {
	m.activeRuns.Inc()
}

// RunFinished records the final status and duration of a run.
func (m *Metrics) RunFinished(status string, d time.Duration) {
	m.activeRuns.Dec()
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

// ObserveItem counts one item result.
func (m *Metrics) ObserveItem(r domain.ItemResult) {
	m.items.WithLabelValues(r.Outcome.String(), r.Stage).Inc()
	if r.Outcome == domain.OutcomeUpdated || r.PartiallyApplied {
		m.replacements.Add(float64(r.Replacements))
	}
}
