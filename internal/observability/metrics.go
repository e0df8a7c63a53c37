package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the venue.
type Metrics struct {
	// --- Transaction engine ---
	TxApplied    *prometheus.CounterVec
	TxRejected   *prometheus.CounterVec
	TxDuration   *prometheus.HistogramVec
	CoreSequence prometheus.Gauge

	// --- Events ---
	EventsEmitted *prometheus.CounterVec
	PublishDrops  prometheus.Counter

	// --- Oracle ---
	OraclePrice    *prometheus.GaugeVec
	FeedMessages   *prometheus.CounterVec
	FeedDuplicates *prometheus.CounterVec

	// --- Pool ---
	PoolAvailable prometheus.Gauge
	PoolReserved  prometheus.Gauge

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		TxApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "venue_tx_applied_total",
			Help: "Transactions accepted, by operation",
		}, []string{"operation"}),

		TxRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "venue_tx_rejected_total",
			Help: "Transactions rejected, by operation",
		}, []string{"operation"}),

		TxDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "venue_tx_duration_seconds",
			Help:    "Time to apply an accepted transaction",
			Buckets: latencyBuckets,
		}, []string{"operation"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "venue_core_sequence",
			Help: "Next event sequence the venue will assign",
		}),

		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "venue_events_emitted_total",
			Help: "Events emitted to the durable log",
		}, []string{"event_type"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "venue_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		OraclePrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "venue_oracle_price",
			Help: "Current oracle price (1e8 fixed-point)",
		}, []string{"pair"}),

		FeedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "venue_feed_messages_total",
			Help: "Feed messages processed, by path and outcome",
		}, []string{"path", "outcome"}),

		FeedDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "venue_feed_duplicates_total",
			Help: "Redelivered feed messages caught by dedup",
		}, []string{"path"}),

		PoolAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "venue_pool_available",
			Help: "Pool available liquidity (1e6 fixed-point USD)",
		}),

		PoolReserved: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "venue_pool_reserved",
			Help: "Pool reserved liquidity (1e6 fixed-point USD)",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "venue_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "venue_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "venue_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "venue_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "venue_persist_last_sequence",
			Help: "Last persisted sequence",
		}),
	}
}
