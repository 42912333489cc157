// Package metrics exposes agent counters to Prometheus. A nil *Metrics is
// valid and records nothing, so components can run without it in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matakeeper"

type Metrics struct {
	registry *prometheus.Registry

	relaysConnected prometheus.Gauge
	relayRequests   *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	syncedRecords   prometheus.Counter
	syncErrors      prometheus.Counter
	syncDuration    prometheus.Histogram
	keyLookups      *prometheus.CounterVec
	busRequests     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		relaysConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relays_connected",
			Help:      "Page relays currently connected.",
		}),
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "Requests sent to page relays by action and result.",
		}, []string{"action", "result"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Critical-data sync runs by result.",
		}, []string{"result"}),
		syncedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synced_records_total",
			Help:      "Critical records written by sync runs.",
		}),
		syncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Per-user failures during sync runs.",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of sync runs.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		keyLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_lookups_total",
			Help:      "Key bundle lookups by outcome.",
		}, []string{"result"}),
		busRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_requests_total",
			Help:      "Message bus requests by type and result.",
		}, []string{"type", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.relaysConnected,
		m.relayRequests,
		m.syncRuns,
		m.syncedRecords,
		m.syncErrors,
		m.syncDuration,
		m.keyLookups,
		m.busRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (m *Metrics) RelayConnected() {
	if m != nil {
		m.relaysConnected.Inc()
	}
}

func (m *Metrics) RelayDisconnected() {
	if m != nil {
		m.relaysConnected.Dec()
	}
}

func (m *Metrics) RelayRequest(action string, ok bool) {
	if m != nil {
		m.relayRequests.WithLabelValues(action, result(ok)).Inc()
	}
}

func (m *Metrics) SyncRun(ok bool, synced, errs int, seconds float64) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result(ok)).Inc()
	m.syncedRecords.Add(float64(synced))
	m.syncErrors.Add(float64(errs))
	m.syncDuration.Observe(seconds)
}

// KeyLookup records a lookup outcome: the backend that answered, or
// "not_found", "isolation" or "error".
func (m *Metrics) KeyLookup(outcome string) {
	if m != nil {
		m.keyLookups.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) BusRequest(msgType string, ok bool) {
	if m != nil {
		m.busRequests.WithLabelValues(msgType, result(ok)).Inc()
	}
}
