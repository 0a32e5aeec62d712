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
	// Recompute metrics
	RecomputesTotal   prometheus.Counter
	RecomputeDuration prometheus.Histogram
	ItemsByStatus     *prometheus.GaugeVec
	SlipTotal         prometheus.Gauge

	// Batch metrics
	LegsAssembled prometheus.Counter
	LegsDropped   *prometheus.CounterVec
	Submissions   *prometheus.CounterVec

	// Snapshot metrics
	SnapshotFetchLatency prometheus.Histogram
	SnapshotFetchErrors  *prometheus.CounterVec
	StaleSnapshots       prometheus.Counter
	SnapshotGeneration   prometheus.Gauge

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	NewHeadsSeen   prometheus.Counter
	WSReconnects   prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Cache metrics
	CacheRequests *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tradeslip"
	}

	return &Metrics{
		// Recompute metrics
		RecomputesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slip",
			Name:      "recomputes_total",
			Help:      "Total number of whole-state recomputations",
		}),
		RecomputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "slip",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of one recomputation in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		ItemsByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "slip",
			Name:      "items",
			Help:      "Number of slip items by derived status",
		}, []string{"status"}),
		SlipTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "slip",
			Name:      "total_base_units",
			Help:      "Signed slip total in base asset units",
		}),

		// Batch metrics
		LegsAssembled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "legs_assembled_total",
			Help:      "Total number of legs placed into batch transactions",
		}),
		LegsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "legs_dropped_total",
			Help:      "Total number of legs dropped by reason",
		}, []string{"reason"}),
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "submissions_total",
			Help:      "Total number of batch submissions by status",
		}, []string{"status"}),

		// Snapshot metrics
		SnapshotFetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "fetch_latency_seconds",
			Help:      "Snapshot fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SnapshotFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed source queries by kind",
		}, []string{"kind"}),
		StaleSnapshots: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "stale_discarded_total",
			Help:      "Total number of fetched snapshots discarded as stale",
		}),
		SnapshotGeneration: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "generation",
			Help:      "Generation of the snapshot currently in use",
		}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "Chain RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		NewHeadsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "new_heads_total",
			Help:      "Total number of new block headers received",
		}),
		WSReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "ws_reconnects_total",
			Help:      "WebSocket connections lost and redialed",
		}),

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

		// Cache metrics
		CacheRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total number of pool cache lookups by result",
		}, []string{"result"}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRecompute records one recomputation with its per-status item counts.
func RecordRecompute(seconds float64, ready, notReady, invalid int, total float64) {
	DefaultMetrics.RecomputesTotal.Inc()
	DefaultMetrics.RecomputeDuration.Observe(seconds)
	DefaultMetrics.ItemsByStatus.WithLabelValues("ready").Set(float64(ready))
	DefaultMetrics.ItemsByStatus.WithLabelValues("not_ready").Set(float64(notReady))
	DefaultMetrics.ItemsByStatus.WithLabelValues("invalid").Set(float64(invalid))
	DefaultMetrics.SlipTotal.Set(total)
}

// RecordLegs records assembled and dropped legs.
func RecordLegs(assembled int, droppedReasons []string) {
	DefaultMetrics.LegsAssembled.Add(float64(assembled))
	for _, reason := range droppedReasons {
		DefaultMetrics.LegsDropped.WithLabelValues(reason).Inc()
	}
}

// RecordSubmission records a submission attempt.
func RecordSubmission(status string) {
	DefaultMetrics.Submissions.WithLabelValues(status).Inc()
}

// RecordSnapshotFetch records a completed snapshot fetch.
func RecordSnapshotFetch(seconds float64, generation uint64) {
	DefaultMetrics.SnapshotFetchLatency.Observe(seconds)
	DefaultMetrics.SnapshotGeneration.Set(float64(generation))
}

// RecordSourceError records a failed source query.
func RecordSourceError(kind string) {
	DefaultMetrics.SnapshotFetchErrors.WithLabelValues(kind).Inc()
}

// RecordStaleSnapshot increments the stale snapshot counter.
func RecordStaleSnapshot() {
	DefaultMetrics.StaleSnapshots.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordNewHead increments the new heads counter.
func RecordNewHead() {
	DefaultMetrics.NewHeadsSeen.Inc()
}

// RecordWSReconnect counts a lost WebSocket connection.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordCache records a cache lookup result ("hit", "miss" or "error").
func RecordCache(result string) {
	DefaultMetrics.CacheRequests.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records a served API request.
func RecordHTTPRequest(route, code string) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, code).Inc()
}
