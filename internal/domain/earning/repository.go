package earning

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

const queryTimeout = 3 * time.Second

const recordColumns = `id, user_id, source, amount, completion_status, duration_seconds, paid, paid_at, created_at`

// Repository is the earning record store.
type Repository interface {
	List(ctx context.Context, userID uuid.UUID, filter Filter) ([]Record, error)
	Create(ctx context.Context, rec *Record) error
	MarkPaid(ctx context.Context, ids []uuid.UUID) (time.Time, error)
	SumPaidBySource(ctx context.Context) (map[Source]decimal.Decimal, error)
}

// PostgresRepository stores earning records in the earning_records table.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context, userID uuid.UUID, filter Filter) ([]Record, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + recordColumns + ` FROM earning_records WHERE user_id = $1`
	args := []interface{}{userID}
	idx := 2

	if filter.Paid != nil {
		query += fmt.Sprintf(" AND paid = $%d", idx)
		args = append(args, *filter.Paid)
		idx++
	}
	if len(filter.Sources) > 0 {
		sources := make([]string, 0, len(filter.Sources))
		for _, s := range filter.Sources {
			sources = append(sources, string(s))
		}
		query += fmt.Sprintf(" AND source = ANY($%d)", idx)
		args = append(args, pq.Array(sources))
		idx++
	}
	if filter.CompletedOnly {
		query += fmt.Sprintf(" AND completion_status = $%d AND duration_seconds > 0", idx)
		args = append(args, string(StatusCompleted))
	}
	query = strings.TrimSpace(query) + " ORDER BY created_at ASC"

	records := make([]Record, 0)
	if err := r.db.SelectContext(ctx2, &records, query, args...); err != nil {
		return nil, fmt.Errorf("%w: list earning records: %v", ledger.ErrDataUnavailable, err)
	}
	return records, nil
}

func (r *PostgresRepository) Create(ctx context.Context, rec *Record) error {
	if rec.Amount.IsNegative() {
		return ledger.ErrInvalidAmount
	}
	if !rec.Source.Valid() {
		return ErrInvalidSource
	}
	if !rec.CompletionStatus.Valid() {
		return ErrInvalidCompletion
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Amount = ledger.Round(rec.Amount)
	rec.Paid = false
	rec.PaidAt = nil

	err := r.db.QueryRowxContext(ctx2, `
		INSERT INTO earning_records (id, user_id, source, amount, completion_status, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rec.ID, rec.UserID, string(rec.Source), rec.Amount, string(rec.CompletionStatus), rec.DurationSeconds).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert earning record: %v", ledger.ErrDataUnavailable, err)
	}
	return nil
}

// MarkPaid flips every id from unpaid to paid in one transaction and returns
// the paid_at it stamped, read from the database clock. The update is
// conditional on paid = false, so a record already claimed by a concurrent
// payout makes the whole call fail with ErrConcurrentPayoutConflict.
func (r *PostgresRepository) MarkPaid(ctx context.Context, ids []uuid.UUID) (time.Time, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: begin tx", ledger.ErrDataUnavailable)
	}
	defer tx.Rollback()

	var paidAt time.Time
	if err := tx.GetContext(ctx2, &paidAt, `SELECT clock_timestamp()`); err != nil {
		return time.Time{}, fmt.Errorf("%w: read clock", ledger.ErrDataUnavailable)
	}
	if err := MarkPaidTx(ctx2, tx, ids, paidAt); err != nil {
		return time.Time{}, err
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("%w: commit tx", ledger.ErrDataUnavailable)
	}
	return paidAt, nil
}

// MarkPaidTx is the compare-and-set at the heart of MarkPaid, run inside a
// caller's transaction. Either every id flips or none does.
func MarkPaidTx(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID, paidAt time.Time) error {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE earning_records
		SET paid = true, paid_at = $2
		WHERE id = ANY($1::uuid[]) AND paid = false
	`, pq.Array(unique), paidAt)
	if err != nil {
		return fmt.Errorf("%w: mark paid", ledger.ErrDataUnavailable)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected", ledger.ErrDataUnavailable)
	}

	if rows != int64(len(unique)) {
		var existing int64
		if err := tx.GetContext(ctx, &existing, `SELECT count(*) FROM earning_records WHERE id = ANY($1::uuid[])`, pq.Array(unique)); err != nil {
			return fmt.Errorf("%w: count records", ledger.ErrDataUnavailable)
		}
		if existing != int64(len(unique)) {
			return ErrRecordNotFound
		}
		return ledger.ErrConcurrentPayoutConflict
	}
	return nil
}

func dedupe(ids []uuid.UUID) []string {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id.String())
	}
	return out
}
