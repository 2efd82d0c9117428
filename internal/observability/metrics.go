// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	UpdatesReceived  *prometheus.CounterVec
	UpdatesDropped   *prometheus.CounterVec
	DecodeFailures   prometheus.Counter
	Reconnects       prometheus.Counter
	StateTransitions *prometheus.CounterVec
	StreamConnected  prometheus.Gauge
	HighestSlotSeen  prometheus.Gauge

	// Ingestion metrics
	UpdatesStored          *prometheus.CounterVec
	UpdateProcessingErrors *prometheus.CounterVec
	ChannelDepth           prometheus.Gauge

	// Latency metrics
	RPCCallLatency        *prometheus.HistogramVec
	UpdateHandlingLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	DBConnections   *prometheus.GaugeVec

	// Health metrics
	LastUpdateReceived prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "geyser_stream"
	}

	return &Metrics{
		// Stream metrics
		UpdatesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "updates_received_total",
			Help:      "Total number of stream updates received by kind",
		}, []string{"kind"}),
		UpdatesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "updates_dropped_total",
			Help:      "Total number of updates rejected by the slot gate",
		}, []string{"kind"}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "decode_failures_total",
			Help:      "Total number of frames that failed to decode",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of completed reconnect attempts",
		}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state_transitions_total",
			Help:      "Total number of connection state transitions",
		}, []string{"from", "to"}),
		StreamConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connected",
			Help:      "1 while the stream session is established, 0 otherwise",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		// Ingestion metrics
		UpdatesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "updates_stored_total",
			Help:      "Total number of updates stored by kind",
		}, []string{"kind"}),
		UpdateProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "update_processing_errors_total",
			Help:      "Total number of update processing errors by kind and type",
		}, []string{"kind", "error_type"}),
		ChannelDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "channel_depth",
			Help:      "Current number of updates buffered ahead of the consumer",
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "rpc_call_latency_seconds",
			Help:      "Unary RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		UpdateHandlingLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "update_handling_latency_seconds",
			Help:      "Per-update handling latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		DBConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connections",
			Help:      "Number of database connections by state",
		}, []string{"database", "state"}),

		// Health metrics
		LastUpdateReceived: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_update_received_timestamp",
			Help:      "Unix timestamp of the last update received",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordUpdateStored increments the stored-updates counter for kind.
func RecordUpdateStored(kind string) {
	DefaultMetrics.UpdatesStored.WithLabelValues(kind).Inc()
}

// RecordUpdatesStored adds n to the stored-updates counter for kind.
func RecordUpdatesStored(kind string, n int) {
	DefaultMetrics.UpdatesStored.WithLabelValues(kind).Add(float64(n))
}

// RecordUpdateError records an update processing error.
func RecordUpdateError(kind, errorType string) {
	DefaultMetrics.UpdateProcessingErrors.WithLabelValues(kind, errorType).Inc()
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot uint64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// UpdateChannelDepth updates the buffered-updates gauge.
func UpdateChannelDepth(n int) {
	DefaultMetrics.ChannelDepth.Set(float64(n))
}

// RecordRPCLatency records unary RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
