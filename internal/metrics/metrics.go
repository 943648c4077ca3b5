// Package metrics exposes Prometheus collectors for tool invocations,
// backend calls and pagination.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

const namespace = "graphql_mcp"

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	backendCallsTotal  *prometheus.CounterVec
	backendDuration    *prometheus.HistogramVec
	pageFetchesTotal   *prometheus.CounterVec
	cursorLookups      *prometheus.CounterVec
}

// New registers all collectors, plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool, outcome status and error kind.",
		}, []string{"tool", "status", "error_kind"}),
		invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		backendCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "GraphQL backend calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "GraphQL backend call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		pageFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_fetches_total",
			Help:      "Connection pages fetched while materializing windows.",
		}, []string{"operation"}),
		cursorLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cursor_cache_lookups_total",
			Help:      "Cursor cache lookups by result.",
		}, []string{"operation", "result"}),
	}

	m.registry.MustRegister(
		m.invocationsTotal,
		m.invocationDuration,
		m.backendCallsTotal,
		m.backendDuration,
		m.pageFetchesTotal,
		m.cursorLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterCursorCacheSize exposes size() as the cursor cache size gauge.
func (m *Metrics) RegisterCursorCacheSize(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cursor_cache_entries",
		Help:      "Live offset to cursor entries in the cursor cache.",
	}, func() float64 { return float64(size()) }))
}

// ObserveInvocation records one dispatched tool call. kind is empty on success.
func (m *Metrics) ObserveInvocation(tool string, kind toolerr.Kind, elapsed time.Duration) {
	status := "success"
	if kind != "" {
		status = "error"
	}
	m.invocationsTotal.WithLabelValues(tool, status, string(kind)).Inc()
	m.invocationDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveBackendCall implements graphql.Observer.
func (m *Metrics) ObserveBackendCall(operation string, outcome toolerr.Kind, elapsed time.Duration) {
	label := "ok"
	if outcome != "" {
		label = string(outcome)
	}
	m.backendCallsTotal.WithLabelValues(operation, label).Inc()
	m.backendDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObservePageFetch implements pagination.Observer.
func (m *Metrics) ObservePageFetch(operation string) {
	m.pageFetchesTotal.WithLabelValues(operation).Inc()
}

// ObserveCursorLookup implements pagination.Observer.
func (m *Metrics) ObserveCursorLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cursorLookups.WithLabelValues(operation, result).Inc()
}
