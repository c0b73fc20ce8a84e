package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for BookLedger.
type Metrics struct {
	// --- Core Processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreSequence       prometheus.Gauge
	CoreHeadBlock      prometheus.Gauge

	// --- Domain ---
	VaultCount       prometheus.Gauge
	OrdersRegistered prometheus.Counter
	OrdersRemoved    prometheus.Counter
	TradesSettled    prometheus.Counter

	// --- Channel & Backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	ProjectionDrops    prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	EventOutOfOrder       prometheus.Counter

	// --- Ingestion ---
	IngestMessages   *prometheus.CounterVec
	IngestParseFails *prometheus.CounterVec

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistRowsWritten   *prometheus.CounterVec
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec

	// --- Snapshot & Replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CoreEventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "book_core_events_applied_total",
			Help: "Events successfully applied by the engine",
		}, []string{"event_type"}),

		CoreEventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "book_core_events_rejected_total",
			Help: "Events rejected (duplicate, out_of_order, invalid)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "book_core_event_apply_duration_seconds",
			Help:    "Time to apply a single event",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "book_core_sequence",
			Help: "Current engine sequence number",
		}),

		CoreHeadBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "book_core_head_block",
			Help: "Block number of the last fully processed event",
		}),

		VaultCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "book_vaults_total",
			Help: "Vault rows materialized in memory",
		}),

		OrdersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "book_orders_registered_total",
			Help: "Add-order events applied",
		}),

		OrdersRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "book_orders_removed_total",
			Help: "Remove-order events applied",
		}),

		TradesSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "book_trades_settled_total",
			Help: "Take-order events settled",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "book_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "book_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "book_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "book_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "book_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_type", "tier"}),

		EventOutOfOrder: promauto.NewCounter(prometheus.CounterOpts{
			Name: "book_event_out_of_order_total",
			Help: "Deliveries rejected for violating log-position order",
		}),

		IngestMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "book_ingest_messages_total",
			Help: "Messages received per subject",
		}, []string{"subject"}),

		IngestParseFails: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "book_ingest_parse_failures_total",
			Help: "Messages that failed to decode",
		}, []string{"subject"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "book_persist_events_written_total",
			Help: "Events written to the event log",
		}),

		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "book_persist_rows_written_total",
			Help: "Rows written per table",
		}, []string{"table"}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "book_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "book_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "book_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "book_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "book_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "book_replay_events_total",
			Help: "Events replayed on startup",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "book_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "book_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
