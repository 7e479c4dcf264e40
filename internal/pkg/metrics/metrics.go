package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LedgerMetrics holds the Prometheus collectors of the credit ledger.
type LedgerMetrics struct {
	// balance calculator
	BalanceComputeTotal    *prometheus.CounterVec // result: ok/unavailable
	BalanceComputeDuration prometheus.Histogram

	// decay engine
	DecayAppliedTotal  prometheus.Counter // credits removed by offline decay
	DecayEntriesTotal  prometheus.Counter
	DecayLockFailTotal prometheus.Counter

	// pool accountant
	PoolDistributed prometheus.Gauge
	PoolRemaining   prometheus.Gauge
	PoolCeiling     prometheus.Gauge

	// payouts
	PayoutTotal  *prometheus.CounterVec // result: paid/conflict/empty/error
	PayoutAmount prometheus.Counter

	// realtime
	RealtimeConnections prometheus.Gauge
	RealtimeEventsSent  prometheus.Counter
	RealtimeEventsDrop  prometheus.Counter
}

func newLedgerMetrics() *LedgerMetrics {
	return &LedgerMetrics{
		BalanceComputeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_compute_total",
				Help: "Total number of spendable balance computations",
			},
			[]string{"result"},
		),
		BalanceComputeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_balance_compute_duration_seconds",
				Help:    "Duration of spendable balance computations",
				Buckets: prometheus.DefBuckets,
			},
		),

		DecayAppliedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_decay_applied_credits_total",
				Help: "Credits removed from unpaid balances by offline decay",
			},
		),
		DecayEntriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_decay_entries_total",
				Help: "Offline Decay ledger entries written",
			},
		),
		DecayLockFailTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_decay_lock_failed_total",
				Help: "Failed attempts to acquire the per-user decay lock",
			},
		),

		PoolDistributed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_pool_distributed_credits",
				Help: "Credits paid out across all users and sources",
			},
		),
		PoolRemaining: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_pool_remaining_credits",
				Help: "Pool ceiling minus distributed credits, negative when over-distributed",
			},
		),
		PoolCeiling: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_pool_ceiling_credits",
				Help: "Configured pool ceiling",
			},
		),

		PayoutTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_payout_total",
				Help: "Payout claims by result",
			},
			[]string{"result"},
		),
		PayoutAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_payout_credits_total",
				Help: "Credits released by successful payout claims",
			},
		),

		RealtimeConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_realtime_connections",
				Help: "Open realtime WebSocket connections on this instance",
			},
		),
		RealtimeEventsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_realtime_events_sent_total",
				Help: "Realtime events delivered to clients",
			},
		),
		RealtimeEventsDrop: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_realtime_events_dropped_total",
				Help: "Realtime events dropped because a client buffer was full",
			},
		),
	}
}

var (
	defaultMetrics *LedgerMetrics
	once           sync.Once
)

// Get returns the process-wide metrics, registering them on first use.
func Get() *LedgerMetrics {
	once.Do(func() {
		defaultMetrics = newLedgerMetrics()
	})
	return defaultMetrics
}
