// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Aggregation metrics
	BlocksProcessed    prometheus.Counter
	FillsAggregated    prometheus.Counter
	FillsSkipped       prometheus.Counter
	BucketsCreated     *prometheus.CounterVec
	BucketsUpdated     *prometheus.CounterVec
	BucketsEvicted     *prometheus.CounterVec
	BlockApplyDuration prometheus.Histogram
	HighestBlockSeen   prometheus.Gauge

	// Journal metrics
	FillsJournaled prometheus.Counter

	// Archive metrics
	BucketsArchived    prometheus.Counter
	ArchiveDropped     prometheus.Counter
	ArchiveWriteErrors prometheus.Counter
	ArchiveQueueSize   prometheus.Gauge

	// Block feed metrics
	FeedBlocksReceived prometheus.Counter
	FeedReconnects     prometheus.Counter
	FeedDecodeErrors   prometheus.Counter

	// Query metrics
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec

	// Health metrics
	LastAppliedBlockTime prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_history"
	}

	return &Metrics{
		// Aggregation metrics
		BlocksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "blocks_processed_total",
			Help:      "Total number of committed blocks processed",
		}),
		FillsAggregated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "fills_aggregated_total",
			Help:      "Total number of fill events folded into buckets",
		}),
		FillsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "fills_skipped_total",
			Help:      "Total number of fill events discarded by the dedup filter",
		}),
		BucketsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "buckets_created_total",
			Help:      "Total number of buckets opened by resolution",
		}, []string{"bucket_seconds"}),
		BucketsUpdated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "buckets_updated_total",
			Help:      "Total number of in-place bucket updates by resolution",
		}, []string{"bucket_seconds"}),
		BucketsEvicted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "buckets_evicted_total",
			Help:      "Total number of buckets evicted past retention by resolution",
		}, []string{"bucket_seconds"}),
		BlockApplyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "block_apply_duration_seconds",
			Help:      "Time spent aggregating one block in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		HighestBlockSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "highest_block_seen",
			Help:      "Highest block height applied",
		}),

		// Journal metrics
		FillsJournaled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "fills_journaled_total",
			Help:      "Total number of fill events written to the journal",
		}),

		// Archive metrics
		BucketsArchived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "buckets_archived_total",
			Help:      "Total number of evicted buckets written to the archive",
		}),
		ArchiveDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "buckets_dropped_total",
			Help:      "Total number of evicted buckets dropped on a full archive queue",
		}),
		ArchiveWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "write_errors_total",
			Help:      "Total number of failed archive batch writes",
		}),
		ArchiveQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "queue_size",
			Help:      "Current number of buckets waiting in the archive queue",
		}),

		// Block feed metrics
		FeedBlocksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blockfeed",
			Name:      "blocks_received_total",
			Help:      "Total number of block notifications received",
		}),
		FeedReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blockfeed",
			Name:      "reconnects_total",
			Help:      "Total number of websocket reconnect attempts",
		}),
		FeedDecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blockfeed",
			Name:      "decode_errors_total",
			Help:      "Total number of block notifications that failed to decode",
		}),

		// Query metrics
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "History query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Total number of history query errors",
		}, []string{"operation"}),

		// Health metrics
		LastAppliedBlockTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_applied_block_timestamp",
			Help:      "Block timestamp of the most recently applied block",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBlockApplied records one processed block with its height, timestamp,
// and processing duration.
func RecordBlockApplied(height uint64, blockTime int64, seconds float64) {
	DefaultMetrics.BlocksProcessed.Inc()
	DefaultMetrics.BlockApplyDuration.Observe(seconds)
	DefaultMetrics.HighestBlockSeen.Set(float64(height))
	DefaultMetrics.LastAppliedBlockTime.Set(float64(blockTime))
}

// RecordFillAggregated increments the accepted-fill counter.
func RecordFillAggregated() {
	DefaultMetrics.FillsAggregated.Inc()
}

// RecordFillSkipped increments the discarded-fill counter.
func RecordFillSkipped() {
	DefaultMetrics.FillsSkipped.Inc()
}

// RecordBucketCreated increments the bucket-open counter for a resolution.
func RecordBucketCreated(bucketSeconds uint32) {
	DefaultMetrics.BucketsCreated.WithLabelValues(secondsLabel(bucketSeconds)).Inc()
}

// RecordBucketUpdated increments the bucket-update counter for a resolution.
func RecordBucketUpdated(bucketSeconds uint32) {
	DefaultMetrics.BucketsUpdated.WithLabelValues(secondsLabel(bucketSeconds)).Inc()
}

// RecordBucketsEvicted adds evicted buckets for a resolution.
func RecordBucketsEvicted(bucketSeconds uint32, count int) {
	DefaultMetrics.BucketsEvicted.WithLabelValues(secondsLabel(bucketSeconds)).Add(float64(count))
}

// RecordFillsJournaled adds journaled fill events.
func RecordFillsJournaled(count int) {
	DefaultMetrics.FillsJournaled.Add(float64(count))
}

// RecordBucketsArchived adds archived buckets.
func RecordBucketsArchived(count int) {
	DefaultMetrics.BucketsArchived.Add(float64(count))
}

// RecordArchiveDropped adds buckets dropped on a full archive queue.
func RecordArchiveDropped(count int) {
	DefaultMetrics.ArchiveDropped.Add(float64(count))
}

// RecordArchiveWriteError increments the archive write error counter.
func RecordArchiveWriteError() {
	DefaultMetrics.ArchiveWriteErrors.Inc()
}

// UpdateArchiveQueueSize updates the archive queue size gauge.
func UpdateArchiveQueueSize(size int) {
	DefaultMetrics.ArchiveQueueSize.Set(float64(size))
}

// RecordFeedBlock increments the feed block counter.
func RecordFeedBlock() {
	DefaultMetrics.FeedBlocksReceived.Inc()
}

// RecordFeedReconnect increments the feed reconnect counter.
func RecordFeedReconnect() {
	DefaultMetrics.FeedReconnects.Inc()
}

// RecordFeedDecodeError increments the feed decode error counter.
func RecordFeedDecodeError() {
	DefaultMetrics.FeedDecodeErrors.Inc()
}

// RecordQuery records history query metrics.
func RecordQuery(operation string, seconds float64, err error) {
	DefaultMetrics.QueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.QueryErrors.WithLabelValues(operation).Inc()
	}
}

func secondsLabel(bucketSeconds uint32) string {
	return strconv.FormatUint(uint64(bucketSeconds), 10)
}
