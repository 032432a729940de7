// Package metrics exposes Prometheus counters for the catalog workflows.
//
// All methods are safe on a nil *Metrics so services built in tests can
// skip instrumentation entirely.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "groupvault"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	reg *prometheus.Registry

	uploads    *prometheus.CounterVec
	deletes    *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	reconciles *prometheus.CounterVec
	inits      *prometheus.CounterVec
	workflows  prometheus.Gauge
	searches   prometheus.Histogram
}

// New creates a registry with Go/process collectors and the app metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_workflows_total",
			Help:      "Upload workflows by terminal outcome (committed, cancelled, expired).",
		}, []string{"outcome"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_deletes_total",
			Help:      "Resource delete requests by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_deliveries_total",
			Help:      "Resource re-deliveries by outcome.",
		}, []string{"outcome"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tombstone_reconciles_total",
			Help:      "Tombstones processed by the reconciliation sweep, by outcome.",
		}, []string{"outcome"}),
		inits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_init_attempts_total",
			Help:      "Group initialization attempts by outcome.",
		}, []string{"outcome"}),
		workflows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_workflows_active",
			Help:      "Upload workflows currently held in memory.",
		}),
		searches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Catalog search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.uploads, m.deletes, m.deliveries, m.reconciles, m.inits, m.workflows, m.searches)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) UploadFinished(outcome string) {
	if m != nil {
		m.uploads.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) DeleteOutcome(outcome string) {
	if m != nil {
		m.deletes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) DeliveryOutcome(outcome string) {
	if m != nil {
		m.deliveries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ReconcileOutcome(outcome string) {
	if m != nil {
		m.reconciles.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) InitOutcome(outcome string) {
	if m != nil {
		m.inits.WithLabelValues(outcome).Inc()
	}
}

// SetActiveWorkflows records the current in-memory workflow count.
func (m *Metrics) SetActiveWorkflows(n int) {
	if m != nil {
		m.workflows.Set(float64(n))
	}
}

// ObserveSearch records one search duration in seconds.
func (m *Metrics) ObserveSearch(seconds float64) {
	if m != nil {
		m.searches.Observe(seconds)
	}
}
