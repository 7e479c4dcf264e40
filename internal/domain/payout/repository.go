package payout

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/burn"
	"github.com/avalove/avalove-ledger/internal/domain/decay"
	"github.com/avalove/avalove-ledger/internal/domain/earning"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

const queryTimeout = 3 * time.Second

// Settlement is the balance a payout was computed from. The store pays it
// only if every figure still holds under the user's lock.
type Settlement struct {
	UserID     uuid.UUID
	RecordIDs  []uuid.UUID
	LastPaidAt *time.Time
	Burned     decimal.Decimal
	Decayed    decimal.Decimal
}

// Settler marks a settlement paid and returns the paid_at it stamped.
type Settler interface {
	Settle(ctx context.Context, s Settlement) (time.Time, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Settle locks the user's activity row, which burns and decay also take,
// re-checks the burns, decay and last payout the amount was computed from and
// flips the records to paid. Any drift fails with
// ledger.ErrConcurrentPayoutConflict and leaves every record unpaid.
func (r *PostgresRepository) Settle(ctx context.Context, s Settlement) (time.Time, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: begin tx", ledger.ErrDataUnavailable)
	}
	defer tx.Rollback()

	if err := decay.LockActivity(ctx2, tx, s.UserID); err != nil {
		return time.Time{}, err
	}

	var lastPaid sql.NullTime
	if err := tx.GetContext(ctx2, &lastPaid, `SELECT MAX(paid_at) FROM earning_records WHERE user_id = $1`, s.UserID); err != nil {
		return time.Time{}, fmt.Errorf("%w: read last payout", ledger.ErrDataUnavailable)
	}
	if lastPaid.Valid != (s.LastPaidAt != nil) || (lastPaid.Valid && !lastPaid.Time.Equal(*s.LastPaidAt)) {
		return time.Time{}, ledger.ErrConcurrentPayoutConflict
	}

	burned, err := burn.SumSince(ctx2, tx, s.UserID, s.LastPaidAt, burn.SpendableTypes)
	if err != nil {
		return time.Time{}, err
	}
	if !burned.Equal(s.Burned) {
		return time.Time{}, ledger.ErrConcurrentPayoutConflict
	}

	decayed, err := decay.SumSince(ctx2, tx, s.UserID, s.LastPaidAt)
	if err != nil {
		return time.Time{}, err
	}
	if !decayed.Equal(s.Decayed) {
		return time.Time{}, ledger.ErrConcurrentPayoutConflict
	}

	var paidAt time.Time
	if err := tx.GetContext(ctx2, &paidAt, `SELECT clock_timestamp()`); err != nil {
		return time.Time{}, fmt.Errorf("%w: read clock", ledger.ErrDataUnavailable)
	}
	if err := earning.MarkPaidTx(ctx2, tx, s.RecordIDs, paidAt); err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("%w: commit tx", ledger.ErrDataUnavailable)
	}
	return paidAt, nil
}
