package pool

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/domain/settings"
	"github.com/avalove/avalove-ledger/internal/pkg/metrics"
)

var hundred = decimal.NewFromInt(100)

type PaidSummer interface {
	SumPaidBySource(ctx context.Context) (map[earning.Source]decimal.Decimal, error)
}

type ConfigLoader interface {
	Load(ctx context.Context) (settings.Ledger, error)
}

// Accountant computes the pool state. It holds no state of its own and is
// safe for concurrent use.
type Accountant struct {
	paid    PaidSummer
	config  ConfigLoader
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

func NewAccountant(paid PaidSummer, config ConfigLoader, m *metrics.LedgerMetrics) *Accountant {
	return &Accountant{
		paid:    paid,
		config:  config,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ComputePoolState sums every paid record across users and sources and
// compares it to the ceiling read on this call.
func (a *Accountant) ComputePoolState(ctx context.Context) (*State, error) {
	cfg, err := a.config.Load(ctx)
	if err != nil {
		return nil, err
	}

	bySource, err := a.paid.SumPaidBySource(ctx)
	if err != nil {
		return nil, err
	}

	state := Compute(cfg.TotalPoolCeiling, bySource)
	state.ComputedAt = a.now()

	if state.OverDistributed {
		log.Warn().
			Str("ceiling", state.TotalPoolCeiling.String()).
			Str("distributed", state.TotalPaidAcrossSources.String()).
			Str("remaining", state.Remaining.String()).
			Msg("pool over-distributed, check total_pool_ceiling")
	}

	if a.metrics != nil {
		distributed, _ := state.TotalPaidAcrossSources.Float64()
		remaining, _ := state.Remaining.Float64()
		ceiling, _ := state.TotalPoolCeiling.Float64()
		a.metrics.PoolDistributed.Set(distributed)
		a.metrics.PoolRemaining.Set(remaining)
		a.metrics.PoolCeiling.Set(ceiling)
	}
	return state, nil
}

// Compute derives the pool state from a ceiling and per-source paid sums.
func Compute(ceiling decimal.Decimal, bySource map[earning.Source]decimal.Decimal) *State {
	sources := make(map[earning.Source]decimal.Decimal, len(earning.AllSources))
	for _, src := range earning.AllSources {
		sources[src] = decimal.Zero
	}

	distributed := decimal.Zero
	for src, amount := range bySource {
		sources[src] = amount
		distributed = distributed.Add(amount)
	}

	remaining := ceiling.Sub(distributed)

	var percentage decimal.Decimal
	switch {
	case ceiling.IsPositive():
		percentage = distributed.Div(ceiling).Mul(hundred).Round(2)
	case distributed.IsPositive():
		percentage = hundred
	default:
		percentage = decimal.Zero
	}

	return &State{
		TotalPoolCeiling:       ceiling,
		TotalPaidAcrossSources: distributed,
		Remaining:              remaining,
		DisplayRemaining:       ledger.ClampZero(remaining),
		Percentage:             ledger.Clamp(percentage, decimal.Zero, hundred),
		OverDistributed:        remaining.IsNegative(),
		BySource:               sources,
	}
}
