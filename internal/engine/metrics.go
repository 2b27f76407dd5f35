package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/autoload/internal/event"
)

// Fetch outcomes used as the "outcome" label.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	fetchTotal     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	refreshTasks   prometheus.Gauge
	eventsTotal    *prometheus.CounterVec
	discardedTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoload_fetch_total",
				Help: "Completed fetches by loader and outcome.",
			},
			[]string{"loader", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autoload_fetch_duration_seconds",
				Help:    "Duration of fetch calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"loader"},
		),
		refreshTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "autoload_refresh_tasks",
				Help: "Live auto-refresh tasks.",
			},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoload_events_total",
				Help: "Events observed on the dispatch stream by type.",
			},
			[]string{"type"},
		),
		discardedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoload_discarded_total",
				Help: "Fetch lifecycle events dropped because the loader was stopped or reset.",
			},
			[]string{"loader", "type"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.fetchTotal, m.fetchDuration, m.refreshTasks, m.eventsTotal, m.discardedTotal)
	}
	return m
}

func (m *Metrics) observeEvent(t event.Type) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(t.Short()).Inc()
}

func (m *Metrics) observeFetch(loader string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.fetchTotal.WithLabelValues(loader, outcome).Inc()
	m.fetchDuration.WithLabelValues(loader).Observe(d.Seconds())
}

func (m *Metrics) observeDiscard(loader string, t event.Type) {
	if m == nil {
		return
	}
	m.discardedTotal.WithLabelValues(loader, t.Short()).Inc()
}

func (m *Metrics) taskStarted() {
	if m == nil {
		return
	}
	m.refreshTasks.Inc()
}

func (m *Metrics) taskStopped() {
	if m == nil {
		return
	}
	m.refreshTasks.Dec()
}
