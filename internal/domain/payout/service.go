package payout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/balance"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
	"github.com/avalove/avalove-ledger/internal/pkg/metrics"
)

var ErrNothingToPay = errors.New("nothing to pay out")

// BalanceSettler persists pending decay and returns the settled snapshot.
type BalanceSettler interface {
	Settle(ctx context.Context, userID uuid.UUID) (*balance.Snapshot, error)
}

type Notifier interface {
	BalanceChanged(ctx context.Context, userID uuid.UUID)
	PoolChanged(ctx context.Context)
}

// Result describes one settled payout.
type Result struct {
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	RecordIDs []uuid.UUID     `json:"record_ids"`
	PaidAt    time.Time       `json:"paid_at"`
}

type Service struct {
	balances BalanceSettler
	settler  Settler
	notifier Notifier
	metrics  *metrics.LedgerMetrics
}

func NewService(balances BalanceSettler, settler Settler, notifier Notifier, m *metrics.LedgerMetrics) *Service {
	return &Service{
		balances: balances,
		settler:  settler,
		notifier: notifier,
		metrics:  m,
	}
}

// Claim pays out the user's spendable balance. The counted records are
// marked paid only if no payout, burn or decay touched the user since the
// balance was settled; otherwise the claim fails with
// ledger.ErrConcurrentPayoutConflict and the caller must recompute rather
// than retry the same record set.
func (s *Service) Claim(ctx context.Context, userID uuid.UUID) (*Result, error) {
	snap, err := s.balances.Settle(ctx, userID)
	if err != nil {
		s.count("error")
		return nil, err
	}
	if !snap.SpendableBalance.IsPositive() || len(snap.UnpaidRecordIDs) == 0 {
		s.count("empty")
		return nil, ErrNothingToPay
	}

	paidAt, err := s.settler.Settle(ctx, Settlement{
		UserID:     userID,
		RecordIDs:  snap.UnpaidRecordIDs,
		LastPaidAt: snap.LastPaidAt,
		Burned:     snap.BurnedSinceLastPayout,
		Decayed:    snap.DecayedSinceLastPayout,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrConcurrentPayoutConflict) {
			s.count("conflict")
			log.Warn().Str("user_id", userID.String()).Msg("payout lost race, balance changed before settlement")
		} else {
			s.count("error")
		}
		return nil, err
	}

	s.count("paid")
	if s.metrics != nil {
		f, _ := snap.SpendableBalance.Float64()
		s.metrics.PayoutAmount.Add(f)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("amount", snap.SpendableBalance.String()).
		Int("records", len(snap.UnpaidRecordIDs)).
		Msg("payout settled")

	if s.notifier != nil {
		s.notifier.BalanceChanged(ctx, userID)
		s.notifier.PoolChanged(ctx)
	}

	return &Result{
		UserID:    userID,
		Amount:    snap.SpendableBalance,
		RecordIDs: snap.UnpaidRecordIDs,
		PaidAt:    paidAt,
	}, nil
}

func (s *Service) count(result string) {
	if s.metrics != nil {
		s.metrics.PayoutTotal.WithLabelValues(result).Inc()
	}
}
