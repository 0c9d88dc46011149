package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for basketd.
type Metrics struct {
	// --- Engine ---
	CommandsApplied  *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	Journals         *prometheus.CounterVec
	StateHashDur     prometheus.Histogram
	Sequence         prometheus.Gauge

	// --- Domain ---
	DeferredWithdrawals *prometheus.CounterVec
	OutstandingBalance  *prometheus.GaugeVec
	BasketSupply        *prometheus.GaugeVec
	OrdersOpen          prometheus.Gauge
	OrderFills          *prometheus.CounterVec
	FeesCollected       *prometheus.CounterVec

	// --- Channels and backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Errors      prometheus.Counter

	// --- Ingestion ---
	IngestReceived *prometheus.CounterVec
	IngestInvalid  *prometheus.CounterVec

	// --- Persistence ---
	PersistCommandsWritten prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge
	ReplayCommandsTotal    prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates every metric and registers it with reg. Tests pass a
// fresh prometheus.NewRegistry() so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CommandsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_engine_commands_applied_total",
			Help: "Commands applied by the engine",
		}, []string{"op"}),

		CommandsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_engine_commands_rejected_total",
			Help: "Commands rejected (duplicate, domain error)",
		}, []string{"op", "reason"}),

		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "basket_engine_command_duration_seconds",
			Help:    "Time to execute a single command",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		Journals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_engine_journals_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		StateHashDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "basket_engine_state_hash_duration_seconds",
			Help:    "Time to compute the state hash",
			Buckets: latencyBuckets,
		}),

		Sequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basket_engine_sequence",
			Help: "Current global sequence number",
		}),

		DeferredWithdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_deferred_withdrawals_total",
			Help: "Withdrawals parked as outstanding balances",
		}, []string{"basket", "token"}),

		OutstandingBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "basket_outstanding_balance",
			Help: "Total outstanding balance per basket and token",
		}, []string{"basket", "token"}),

		BasketSupply: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "basket_supply",
			Help: "Circulating basket units (minted minus burned)",
		}, []string{"basket"}),

		OrdersOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basket_escrow_orders_open",
			Help: "Open escrow orders",
		}),

		OrderFills: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_escrow_fills_total",
			Help: "Escrow order fills",
		}, []string{"direction"}),

		FeesCollected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_fees_collected_total",
			Help: "Currency collected as fees",
		}, []string{"scope"}),

		ChannelSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "basket_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "basket_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		PublishDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "basket_publish_drops_total",
			Help: "Outputs dropped due to a full publish channel",
		}),

		PersistBackpressure: factory.NewCounter(prometheus.CounterOpts{
			Name: "basket_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		IdempotencyDuplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"op", "tier"}),

		DedupLRUSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basket_dedup_lru_size",
			Help: "Entries in the idempotency LRU",
		}),

		DedupTier2Errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "basket_dedup_tier2_errors_total",
			Help: "Postgres idempotency lookups that failed",
		}),

		IngestReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_ingest_received_total",
			Help: "Commands received per transport",
		}, []string{"transport"}),

		IngestInvalid: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_ingest_invalid_total",
			Help: "Commands that failed to parse per transport",
		}, []string{"transport"}),

		PersistCommandsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "basket_persist_commands_written_total",
			Help: "Commands written to the command log",
		}),

		PersistJournalsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "basket_persist_journals_written_total",
			Help: "Journal rows written",
		}),

		PersistBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "basket_persist_batch_size",
			Help:    "Outputs per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "basket_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"stage"}),

		PersistRetry: factory.NewCounter(prometheus.CounterOpts{
			Name: "basket_persist_retries_total",
			Help: "Persist batch retries",
		}),

		PersistLastSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "basket_persist_last_sequence",
			Help: "Last sequence committed to Postgres",
		}),

		ReplayCommandsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "basket_replay_commands_total",
			Help: "Commands replayed at startup",
		}),

		QueryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_query_requests_total",
			Help: "Query API requests",
		}, []string{"method"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "basket_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_query_errors_total",
			Help: "Query API errors",
		}, []string{"method", "code"}),
	}
}
