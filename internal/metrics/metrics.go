// Package metrics exposes Prometheus collectors for webhook deliveries and
// sync attempts.
//
// All recording methods are safe on a nil *Metrics, so components can be
// constructed without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pullhook"

// Metrics holds the listener's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	signatureFailures prometheus.Counter
	syncCount         *prometheus.CounterVec
	syncDuration      *prometheus.SummaryVec
	syncInProgress    prometheus.Gauge
}

// New registers the collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook POSTs handled, partitioned by event header and response status.",
		}, []string{"event", "status"}),

		signatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_failures_total",
			Help:      "Webhook POSTs rejected for a missing or bad signature.",
		}),

		syncCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_total",
			Help:      "Sync attempts, partitioned by outcome (ok, exit_error, timeout, launch_error).",
		}, []string{"outcome"}),

		syncDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  namespace,
			Name:       "sync_duration_seconds",
			Help:       "Summary of sync durations, partitioned by outcome.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"outcome"}),

		syncInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_in_progress",
			Help:      "Syncs currently running or waiting for the repository lock.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.signatureFailures,
		m.syncCount,
		m.syncDuration,
		m.syncInProgress,
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest counts one handled webhook POST.
func (m *Metrics) ObserveRequest(event string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(event, strconv.Itoa(status)).Inc()
}

// SignatureFailed counts one rejected signature.
func (m *Metrics) SignatureFailed() {
	if m == nil {
		return
	}
	m.signatureFailures.Inc()
}

// SyncStarted counts a sync that is about to run or queue.
func (m *Metrics) SyncStarted() {
	if m == nil {
		return
	}
	m.syncInProgress.Inc()
}

// SyncFinished records the outcome and duration of a sync.
func (m *Metrics) SyncFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncInProgress.Dec()
	m.syncCount.WithLabelValues(outcome).Inc()
	m.syncDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
