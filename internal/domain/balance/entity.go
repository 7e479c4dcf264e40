package balance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/decay"
	"github.com/avalove/avalove-ledger/internal/domain/earning"
)

// Snapshot is a user's credit position, recomputed from the record stores on
// every read. It is never persisted as a source of truth.
type Snapshot struct {
	UserID             uuid.UUID       `json:"user_id"`
	TotalEarnedAllTime decimal.Decimal `json:"total_earned_all_time"`
	UnpaidRaw          decimal.Decimal `json:"unpaid_raw"`

	BurnedSinceLastPayout decimal.Decimal `json:"burned_since_last_payout"`

	// DecaySinceLastActivity is the decay this read applied, or for an
	// observer read the decay still pending.
	DecaySinceLastActivity decimal.Decimal `json:"decay_since_last_activity"`
	// DecayedSinceLastPayout is every persisted decay entry after the last payout.
	DecayedSinceLastPayout decimal.Decimal `json:"decayed_since_last_payout"`

	LastPaidAt     *time.Time `json:"last_paid_at,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	Phase          decay.Phase `json:"phase"`

	SpendableBalance decimal.Decimal                    `json:"spendable_balance"`
	BySource         map[earning.Source]decimal.Decimal `json:"by_source"`
	ComputedAt       time.Time                          `json:"computed_at"`

	// UnpaidRecordIDs are the records UnpaidRaw was summed from; a payout
	// marks exactly these as paid.
	UnpaidRecordIDs []uuid.UUID `json:"-"`
}

// Totals is the pure part of the calculation.
type Totals struct {
	TotalEarnedAllTime decimal.Decimal
	UnpaidRaw          decimal.Decimal
	LastPaidAt         *time.Time
	BySource           map[earning.Source]decimal.Decimal
	UnpaidRecordIDs    []uuid.UUID
}
