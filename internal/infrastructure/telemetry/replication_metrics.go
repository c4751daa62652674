package telemetry

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erp/salesync/internal/domain/replication"
)

// Prometheus metric names.
const (
	MetricReplicationOperationsTotal = "salesync_replication_operations_total"
	MetricReplicationRPCDuration     = "salesync_replication_rpc_duration_seconds"
	MetricReplicationRPCErrorsTotal  = "salesync_replication_rpc_errors_total"
	MetricReplicationDegradedTotal   = "salesync_replication_degraded_total"
)

// ReplicationMetrics counts replication outcomes and times remote calls.
// It satisfies the engine's metrics sink and the gateway's RPC observer.
//
// Safe for concurrent use.
type ReplicationMetrics struct {
	registry *prometheus.Registry

	operations  *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcErrors   *prometheus.CounterVec
	degraded    *prometheus.CounterVec
}

// MetricsOption configures ReplicationMetrics
type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	buckets        []float64
	runtimeMetrics bool
	db             *sql.DB
	dbName         string
}

// WithRPCBuckets overrides the RPC latency histogram buckets
func WithRPCBuckets(buckets []float64) MetricsOption {
	return func(o *metricsOptions) {
		o.buckets = buckets
	}
}

// WithRuntimeMetrics also exports Go runtime and process collectors
func WithRuntimeMetrics() MetricsOption {
	return func(o *metricsOptions) {
		o.runtimeMetrics = true
	}
}

// WithDBStats exports the connection pool statistics of db, labelled with
// db_name
func WithDBStats(db *sql.DB, dbName string) MetricsOption {
	return func(o *metricsOptions) {
		o.db = db
		o.dbName = dbName
	}
}

// NewReplicationMetrics registers the replication collectors on a private
// registry.
func NewReplicationMetrics(opts ...MetricsOption) *ReplicationMetrics {
	o := metricsOptions{buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		opt(&o)
	}

	m := &ReplicationMetrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricReplicationOperationsTotal,
				Help: "Replication operations by entity type, operation and outcome.",
			},
			[]string{"entity_type", "operation", "outcome"},
		),
		rpcDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricReplicationRPCDuration,
				Help:    "Latency of calls to the remote system in seconds.",
				Buckets: o.buckets,
			},
			[]string{"model", "method"},
		),
		rpcErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricReplicationRPCErrorsTotal,
				Help: "Remote calls that returned an error.",
			},
			[]string{"model", "method"},
		),
		degraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricReplicationDegradedTotal,
				Help: "Operations that fell back to local-only behavior, by reason.",
			},
			[]string{"reason"},
		),
	}

	m.registry.MustRegister(m.operations, m.rpcDuration, m.rpcErrors, m.degraded)
	if o.runtimeMetrics {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if o.db != nil {
		m.registry.MustRegister(collectors.NewDBStatsCollector(o.db, o.dbName))
	}
	return m
}

// ObserveOutcome counts one finished operation
func (m *ReplicationMetrics) ObserveOutcome(t replication.EntityType, op, outcome string) {
	m.operations.WithLabelValues(string(t), op, outcome).Inc()
}

// ObserveDegraded counts one fallback to local-only behavior
func (m *ReplicationMetrics) ObserveDegraded(reason string) {
	m.degraded.WithLabelValues(reason).Inc()
}

// ObserveRPC records the latency of one remote call
func (m *ReplicationMetrics) ObserveRPC(model, method string, elapsed time.Duration, err error) {
	m.rpcDuration.WithLabelValues(model, method).Observe(elapsed.Seconds())
	if err != nil {
		m.rpcErrors.WithLabelValues(model, method).Inc()
	}
}

// Registry exposes the underlying registry
func (m *ReplicationMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *ReplicationMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
