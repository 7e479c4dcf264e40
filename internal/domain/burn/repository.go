package burn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/decay"
	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

const queryTimeout = 3 * time.Second

var ErrInvalidBurnType = errors.New("invalid burn type")

// Repository is the burn record store.
type Repository interface {
	List(ctx context.Context, userID uuid.UUID, since *time.Time, types []Type) ([]Record, error)
	Record(ctx context.Context, userID uuid.UUID, burnType Type, amount decimal.Decimal) (*Record, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// List returns burns created strictly after since (all burns when since is nil)
// restricted to types. An empty type list matches nothing.
func (r *PostgresRepository) List(ctx context.Context, userID uuid.UUID, since *time.Time, types []Type) ([]Record, error) {
	records := make([]Record, 0)
	if len(types) == 0 {
		return records, nil
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, user_id, burn_type, amount, created_at
		FROM burn_records
		WHERE user_id = $1 AND burn_type = ANY($2)`
	args := []interface{}{userID, pq.Array(typeNames(types))}
	if since != nil {
		query += ` AND created_at > $3`
		args = append(args, *since)
	}
	query += ` ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx2, &records, query, args...); err != nil {
		return nil, fmt.Errorf("%w: list burn records: %v", ledger.ErrDataUnavailable, err)
	}
	return records, nil
}

func (r *PostgresRepository) Record(ctx context.Context, userID uuid.UUID, burnType Type, amount decimal.Decimal) (*Record, error) {
	if amount.IsNegative() {
		return nil, ledger.ErrInvalidAmount
	}
	if !burnType.Valid() {
		return nil, ErrInvalidBurnType
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rec := &Record{
		ID:       uuid.New(),
		UserID:   userID,
		BurnType: burnType,
		Amount:   ledger.Round(amount),
	}

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ledger.ErrDataUnavailable)
	}
	defer tx.Rollback()

	// A payout settling this user holds the same row, so a burn lands either
	// before its verification or after its paid_at.
	if err := decay.LockActivity(ctx2, tx, userID); err != nil {
		return nil, err
	}

	err = tx.QueryRowxContext(ctx2, `
		INSERT INTO burn_records (id, user_id, burn_type, amount, created_at)
		VALUES ($1, $2, $3, $4, clock_timestamp())
		RETURNING created_at
	`, rec.ID, rec.UserID, string(rec.BurnType), rec.Amount).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: insert burn record: %v", ledger.ErrDataUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ledger.ErrDataUnavailable)
	}
	return rec, nil
}

// SumSince totals the user's burns of the given types created after since.
func SumSince(ctx context.Context, q sqlx.QueryerContext, userID uuid.UUID, since *time.Time, types []Type) (decimal.Decimal, error) {
	if len(types) == 0 {
		return decimal.Zero, nil
	}
	query := `SELECT COALESCE(SUM(amount), 0) FROM burn_records WHERE user_id = $1 AND burn_type = ANY($2)`
	args := []interface{}{userID, pq.Array(typeNames(types))}
	if since != nil {
		query += ` AND created_at > $3`
		args = append(args, *since)
	}
	var sum decimal.Decimal
	if err := sqlx.GetContext(ctx, q, &sum, query, args...); err != nil {
		return decimal.Zero, fmt.Errorf("%w: sum burn records", ledger.ErrDataUnavailable)
	}
	return sum, nil
}

func typeNames(types []Type) []string {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return names
}
