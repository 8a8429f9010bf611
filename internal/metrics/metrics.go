package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ledgerdash"

// Sync and mine outcomes used as label values.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultStale    = "stale"
	ResultRejected = "rejected"
	ResultBusy     = "busy"
)

// Metrics holds the dashboard's collectors.
type Metrics struct {
	SyncCycles          *prometheus.CounterVec
	SyncDuration        prometheus.Histogram
	MineRequests        *prometheus.CounterVec
	LedgerBlocks        prometheus.Gauge
	RegisteredVoters    prometheus.Gauge
	PendingTransactions prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncCycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Sync cycles by result (success, failure, stale).",
		}, []string{"result"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Time from issuing the state request to committing or discarding the result.",
			Buckets:   prometheus.DefBuckets,
		}),
		MineRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mine_requests_total",
			Help:      "Mine actions by result (success, rejected, failure, busy).",
		}, []string{"result"}),
		LedgerBlocks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_blocks",
			Help:      "Blocks in the last committed snapshot.",
		}),
		RegisteredVoters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_voters",
			Help:      "Registered voters in the last committed snapshot.",
		}),
		PendingTransactions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_transactions",
			Help:      "Pending pool count in the last committed snapshot.",
		}),
	}
}
