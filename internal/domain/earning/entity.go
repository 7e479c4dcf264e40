package earning

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source identifies the activity that produced an earning record.
type Source string

const (
	SourceGame       Source = "game"
	SourceMusic      Source = "music"
	SourceWatch      Source = "watch"
	SourceShortVideo Source = "short_video"
	SourceSwap       Source = "swap"
)

// AllSources lists every earning source in display order.
var AllSources = []Source{SourceGame, SourceMusic, SourceWatch, SourceShortVideo, SourceSwap}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	for _, known := range AllSources {
		if s == known {
			return true
		}
	}
	return false
}

// CompletionStatus is the state of the activity session behind a record.
type CompletionStatus string

const (
	StatusCompleted  CompletionStatus = "completed"
	StatusInProgress CompletionStatus = "in_progress"
	StatusAbandoned  CompletionStatus = "abandoned"
)

func (s CompletionStatus) Valid() bool {
	return s == StatusCompleted || s == StatusInProgress || s == StatusAbandoned
}

// Record is an immutable earning event. The only mutation ever applied is the
// single unpaid -> paid transition performed by MarkPaid.
type Record struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	UserID           uuid.UUID        `db:"user_id" json:"user_id"`
	Source           Source           `db:"source" json:"source"`
	Amount           decimal.Decimal  `db:"amount" json:"amount"`
	CompletionStatus CompletionStatus `db:"completion_status" json:"completion_status"`
	DurationSeconds  int64            `db:"duration_seconds" json:"duration_seconds"`
	Paid             bool             `db:"paid" json:"paid"`
	PaidAt           *time.Time       `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Counts reports whether the record contributes to the unpaid balance.
func (r Record) Counts() bool {
	return !r.Paid &&
		r.CompletionStatus == StatusCompleted &&
		r.DurationSeconds > 0 &&
		r.Amount.IsPositive()
}

// Filter narrows List results. Nil Paid means both states.
type Filter struct {
	Paid          *bool
	Sources       []Source
	CompletedOnly bool
}

// Unpaid is the filter used to find payout-eligible records.
func Unpaid() Filter {
	paid := false
	return Filter{Paid: &paid, CompletedOnly: true}
}
