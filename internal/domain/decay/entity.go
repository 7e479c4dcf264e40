package decay

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryDescription tags every persisted decay adjustment.
const EntryDescription = "Offline Decay"

// Entry is an append-only negative adjustment written when offline decay is
// applied. It is distinct from a burn and exists for history and for the
// cumulative decay subtracted from the spendable balance.
type Entry struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	ElapsedSeconds decimal.Decimal `db:"elapsed_seconds" json:"elapsed_seconds"`
	RatePerSecond  decimal.Decimal `db:"rate_per_second" json:"rate_per_second"`
	Description    string          `db:"description" json:"description"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// State is what the engine sees while holding the user's activity lock.
type State struct {
	LastActivityAt *time.Time
	// SettledThrough is the instant up to which offline decay has already
	// been written. It moves independently of activity, so settling a
	// balance for a payout does not make the user look online.
	SettledThrough *time.Time
	// DecayedSinceLastPayout sums persisted entries created after the last payout.
	DecayedSinceLastPayout decimal.Decimal
}

// Decision is what the engine persists atomically for one application.
type Decision struct {
	Entry          *Entry
	LastActivityAt *time.Time
	SettledThrough time.Time
}

// Phase is the conceptual per-user decay state.
type Phase string

const (
	PhaseActive  Phase = "active"
	PhaseOffline Phase = "offline"
)
