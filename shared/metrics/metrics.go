package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Command metrics
	CommandsTotal    *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	CommandsInFlight prometheus.Gauge
	GasFallbacks     prometheus.Counter

	// Reconciliation metrics
	ReconcileTicks   prometheus.Counter
	BackendRefetches *prometheus.CounterVec

	// Database metrics
	DBQueriesTotal  *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Event metrics
	EventsPublished *prometheus.CounterVec

	// Error metrics
	ErrorsTotal     *prometheus.CounterVec
	PanicsRecovered prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics(namespace, service string) *Metrics {
	return &Metrics{
		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "commands_total",
				Help:      "Total number of transaction commands executed",
			},
			[]string{"action", "status"},
		),
		CommandDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "command_duration_seconds",
				Help:      "Transaction command latencies in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"action"},
		),
		CommandsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "commands_in_flight",
				Help:      "Number of commands awaiting a receipt",
			},
		),
		GasFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "gas_fallbacks_total",
				Help:      "Total number of gas oracle failures served from the fallback price",
			},
		),

		ReconcileTicks: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "reconcile_ticks_total",
				Help:      "Total number of reconciliation poll ticks",
			},
		),
		BackendRefetches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "backend_refetches_total",
				Help:      "Total number of backend queries issued by the reconciler",
			},
			[]string{"query"},
		),

		DBQueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "db_queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"query_type", "table", "status"},
		),
		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "db_query_duration_seconds",
				Help:      "Database query latencies in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"query_type", "table"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache_name"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache_name"},
		),

		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "events_published_total",
				Help:      "Total number of settlement events published",
			},
			[]string{"routing_key"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "code"},
		),
		PanicsRecovered: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: service,
				Name:      "panics_recovered_total",
				Help:      "Total number of panics recovered",
			},
		),
	}
}

// RecordCommand records a finished command execution
func (m *Metrics) RecordCommand(action, status string, duration time.Duration) {
	m.CommandsTotal.WithLabelValues(action, status).Inc()
	m.CommandDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordDBQuery records database query metrics
func (m *Metrics) RecordDBQuery(queryType, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.DBQueriesTotal.WithLabelValues(queryType, table, status).Inc()
	m.DBQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())

	if err != nil {
		m.ErrorsTotal.WithLabelValues("database", queryType).Inc()
	}
}

// RecordCacheOperation records cache operation metrics
func (m *Metrics) RecordCacheOperation(cacheName string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(cacheName).Inc()
	} else {
		m.CacheMisses.WithLabelValues(cacheName).Inc()
	}
}

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
