package decay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

const queryTimeout = 3 * time.Second

type Repository interface {
	// Load reads the user's decay state without locking or writing.
	Load(ctx context.Context, userID uuid.UUID, lastPaidAt *time.Time) (State, error)
	// Update locks the user's activity row, hands the current state to plan and
	// persists the returned decision in the same transaction.
	Update(ctx context.Context, userID uuid.UUID, lastPaidAt *time.Time, plan func(State) Decision) (State, Decision, error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type activityRow struct {
	LastActivityAt sql.NullTime `db:"last_activity_at"`
	DecaySettledAt sql.NullTime `db:"decay_settled_at"`
}

func (row activityRow) apply(state *State) {
	if row.LastActivityAt.Valid {
		t := row.LastActivityAt.Time
		state.LastActivityAt = &t
	}
	if row.DecaySettledAt.Valid {
		t := row.DecaySettledAt.Time
		state.SettledThrough = &t
	}
}

// SumSince totals the user's decay entries created after lastPaidAt.
func SumSince(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID, lastPaidAt *time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM decay_entries WHERE user_id = $1`
	args := []interface{}{userID}
	if lastPaidAt != nil {
		query += ` AND created_at > $2`
		args = append(args, *lastPaidAt)
	}
	var decayed decimal.Decimal
	if err := sqlx.GetContext(ctx, q, &decayed, query, args...); err != nil {
		return decimal.Zero, fmt.Errorf("%w: sum decay entries", ledger.ErrDataUnavailable)
	}
	return decayed, nil
}

func (r *PostgresRepository) Load(ctx context.Context, userID uuid.UUID, lastPaidAt *time.Time) (State, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var state State
	var row activityRow
	err := r.db.GetContext(ctx2, &row, `SELECT last_activity_at, decay_settled_at FROM user_activity WHERE user_id = $1`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return State{}, fmt.Errorf("%w: read activity row", ledger.ErrDataUnavailable)
	default:
		row.apply(&state)
	}

	decayed, err := SumSince(ctx2, r.db, userID, lastPaidAt)
	if err != nil {
		return State{}, err
	}
	state.DecayedSinceLastPayout = decayed
	return state, nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID uuid.UUID, lastPaidAt *time.Time, plan func(State) Decision) (State, Decision, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return State{}, Decision{}, fmt.Errorf("%w: begin tx", ledger.ErrDataUnavailable)
	}
	defer tx.Rollback()

	if err := LockActivity(ctx2, tx, userID); err != nil {
		return State{}, Decision{}, err
	}

	var state State
	var row activityRow
	if err := tx.GetContext(ctx2, &row, `SELECT last_activity_at, decay_settled_at FROM user_activity WHERE user_id = $1`, userID); err != nil {
		return State{}, Decision{}, fmt.Errorf("%w: read activity row", ledger.ErrDataUnavailable)
	}
	row.apply(&state)

	decayed, err := SumSince(ctx2, tx, userID, lastPaidAt)
	if err != nil {
		return State{}, Decision{}, err
	}
	state.DecayedSinceLastPayout = decayed

	decision := plan(state)

	if decision.Entry != nil {
		entry := decision.Entry
		entry.ID = uuid.New()
		entry.UserID = userID
		// created_at comes from the database clock so it orders correctly
		// against burns and payouts taken under the same row lock.
		if err := tx.GetContext(ctx2, &entry.CreatedAt, `
			INSERT INTO decay_entries (id, user_id, amount, elapsed_seconds, rate_per_second, description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, clock_timestamp())
			RETURNING created_at
		`, entry.ID, entry.UserID, entry.Amount, entry.ElapsedSeconds, entry.RatePerSecond, entry.Description); err != nil {
			return State{}, Decision{}, fmt.Errorf("%w: insert decay entry", ledger.ErrDataUnavailable)
		}
	}

	if _, err := tx.ExecContext(ctx2, `
		UPDATE user_activity
		SET last_activity_at = $2, decay_settled_at = $3, updated_at = NOW()
		WHERE user_id = $1
	`, userID, decision.LastActivityAt, decision.SettledThrough); err != nil {
		return State{}, Decision{}, fmt.Errorf("%w: update activity", ledger.ErrDataUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return State{}, Decision{}, fmt.Errorf("%w: commit tx", ledger.ErrDataUnavailable)
	}
	return state, decision, nil
}

// LockActivity ensures the user's activity row exists and locks it for the
// rest of tx. Decay, burns and payouts for one user serialise on this row.
func LockActivity(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_activity (user_id, last_activity_at)
		VALUES ($1, NULL)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return fmt.Errorf("%w: ensure activity row", ledger.ErrDataUnavailable)
	}
	var id uuid.UUID
	if err := tx.GetContext(ctx, &id, `SELECT user_id FROM user_activity WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
		return fmt.Errorf("%w: lock activity row", ledger.ErrDataUnavailable)
	}
	return nil
}

func (r *PostgresRepository) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	entries := make([]Entry, 0)
	err := r.db.SelectContext(ctx2, &entries, `
		SELECT id, user_id, amount, elapsed_seconds, rate_per_second, description, created_at
		FROM decay_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list decay entries: %v", ledger.ErrDataUnavailable, err)
	}
	return entries, nil
}
