package balance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/burn"
	"github.com/avalove/avalove-ledger/internal/domain/decay"
	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/domain/settings"
	"github.com/avalove/avalove-ledger/internal/pkg/metrics"
)

type EarningStore interface {
	List(ctx context.Context, userID uuid.UUID, filter earning.Filter) ([]earning.Record, error)
	Create(ctx context.Context, rec *earning.Record) error
}

type BurnStore interface {
	List(ctx context.Context, userID uuid.UUID, since *time.Time, types []burn.Type) ([]burn.Record, error)
	Record(ctx context.Context, userID uuid.UUID, burnType burn.Type, amount decimal.Decimal) (*burn.Record, error)
}

type DecayApplier interface {
	Apply(ctx context.Context, in decay.ApplyInput) (*decay.Result, error)
	Preview(ctx context.Context, in decay.ApplyInput) (*decay.Result, error)
}

type ConfigLoader interface {
	Load(ctx context.Context) (settings.Ledger, error)
}

// Notifier is told about writes so connected clients can recompute.
type Notifier interface {
	BalanceChanged(ctx context.Context, userID uuid.UUID)
}

// EarningInput is a completed activity reported by the game/music/watch services.
type EarningInput struct {
	Source           earning.Source
	Amount           decimal.Decimal
	CompletionStatus earning.CompletionStatus
	DurationSeconds  int64
}

// readMode says what a balance computation may write.
type readMode int

const (
	// modePreview writes nothing; pending decay is reported but not persisted.
	modePreview readMode = iota
	// modeSettle persists pending decay without recording activity.
	modeSettle
	// modeTouch persists pending decay and records the user as active.
	modeTouch
)

type Service struct {
	earnings EarningStore
	burns    BurnStore
	decay    DecayApplier
	config   ConfigLoader
	notifier Notifier
	metrics  *metrics.LedgerMetrics
	now      func() time.Time
}

func NewService(earnings EarningStore, burns BurnStore, decayEngine DecayApplier, config ConfigLoader, notifier Notifier, m *metrics.LedgerMetrics) *Service {
	return &Service{
		earnings: earnings,
		burns:    burns,
		decay:    decayEngine,
		config:   config,
		notifier: notifier,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ComputeSpendable recomputes the user's snapshot from the stores for an
// observer. Pending decay is included but nothing is written, so admin views
// and the live feed never count as user activity. Any store failure is
// returned as-is (wrapping ledger.ErrDataUnavailable); a zero balance is never
// substituted.
func (s *Service) ComputeSpendable(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.measure(ctx, userID, modePreview)
}

// Touch is the user's own read: pending decay is persisted and the activity
// clock restarts.
func (s *Service) Touch(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.measure(ctx, userID, modeTouch)
}

// Settle persists pending decay without treating the call as activity. Payouts
// settle before snapshotting the unpaid records.
func (s *Service) Settle(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.measure(ctx, userID, modeSettle)
}

func (s *Service) measure(ctx context.Context, userID uuid.UUID, mode readMode) (*Snapshot, error) {
	start := time.Now()
	snap, err := s.compute(ctx, userID, mode)
	if s.metrics != nil {
		s.metrics.BalanceComputeDuration.Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = "unavailable"
		}
		s.metrics.BalanceComputeTotal.WithLabelValues(result).Inc()
	}
	return snap, err
}

func (s *Service) compute(ctx context.Context, userID uuid.UUID, mode readMode) (*Snapshot, error) {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.earnings.List(ctx, userID, earning.Filter{})
	if err != nil {
		return nil, err
	}
	totals := Summarize(records)

	burns, err := s.burns.List(ctx, userID, totals.LastPaidAt, burn.SpendableTypes)
	if err != nil {
		return nil, err
	}
	burned := SumBurns(burns)

	now := s.now()
	in := decay.ApplyInput{
		UserID:     userID,
		UnpaidRaw:  totals.UnpaidRaw,
		LastPaidAt: totals.LastPaidAt,
		Rate:       cfg.DecayRatePerSecond,
		Window:     cfg.ActiveWindow(),
		Now:        now,
		Touch:      mode == modeTouch,
	}
	var applied *decay.Result
	if mode == modePreview {
		applied, err = s.decay.Preview(ctx, in)
	} else {
		applied, err = s.decay.Apply(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		UserID:                 userID,
		TotalEarnedAllTime:     totals.TotalEarnedAllTime,
		UnpaidRaw:              totals.UnpaidRaw,
		BurnedSinceLastPayout:  burned,
		DecaySinceLastActivity: applied.Applied,
		DecayedSinceLastPayout: applied.DecayedSinceLastPayout,
		LastPaidAt:             totals.LastPaidAt,
		LastActivityAt:         applied.LastActivityAt,
		Phase:                  applied.Phase,
		SpendableBalance:       Spendable(totals.UnpaidRaw, burned, applied.DecayedSinceLastPayout),
		BySource:               totals.BySource,
		ComputedAt:             now,
		UnpaidRecordIDs:        totals.UnpaidRecordIDs,
	}, nil
}

// Heartbeat marks the user active. Pending decay is finalised first, so the
// returned snapshot already reflects it.
func (s *Service) Heartbeat(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	snap, err := s.Touch(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !snap.DecaySinceLastActivity.IsZero() && s.notifier != nil {
		s.notifier.BalanceChanged(ctx, userID)
	}
	return snap, nil
}

// RecordEarning stores a new earning. Decay accrued while offline is settled
// against the old balance before the new record lands.
func (s *Service) RecordEarning(ctx context.Context, userID uuid.UUID, in EarningInput) (*earning.Record, error) {
	if in.Amount.IsNegative() {
		return nil, ledger.ErrInvalidAmount
	}
	if !in.Source.Valid() {
		return nil, earning.ErrInvalidSource
	}
	if !in.CompletionStatus.Valid() {
		return nil, earning.ErrInvalidCompletion
	}

	if _, err := s.Touch(ctx, userID); err != nil {
		return nil, err
	}

	rec := &earning.Record{
		UserID:           userID,
		Source:           in.Source,
		Amount:           in.Amount,
		CompletionStatus: in.CompletionStatus,
		DurationSeconds:  in.DurationSeconds,
	}
	if err := s.earnings.Create(ctx, rec); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("source", string(rec.Source)).
		Str("amount", rec.Amount.String()).
		Msg("earning recorded")

	if s.notifier != nil {
		s.notifier.BalanceChanged(ctx, userID)
	}
	return rec, nil
}

// RecordBurn stores a spend event.
func (s *Service) RecordBurn(ctx context.Context, userID uuid.UUID, burnType burn.Type, amount decimal.Decimal) (*burn.Record, error) {
	if amount.IsNegative() {
		return nil, ledger.ErrInvalidAmount
	}
	if !burnType.Valid() {
		return nil, burn.ErrInvalidBurnType
	}

	rec, err := s.burns.Record(ctx, userID, burnType, amount)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("burn_type", string(burnType)).
		Str("amount", rec.Amount.String()).
		Msg("burn recorded")

	if s.notifier != nil {
		s.notifier.BalanceChanged(ctx, userID)
	}
	return rec, nil
}
