package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

const queryTimeout = 3 * time.Second

// Snapshot is a recorded pool state, written periodically by the ledger worker.
type Snapshot struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	TotalPoolCeiling decimal.Decimal `db:"total_pool_ceiling" json:"total_pool_ceiling"`
	Distributed      decimal.Decimal `db:"distributed" json:"distributed"`
	Remaining        decimal.Decimal `db:"remaining" json:"remaining"`
	Percentage       decimal.Decimal `db:"percentage" json:"percentage"`
	OverDistributed  bool            `db:"over_distributed" json:"over_distributed"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

type SnapshotRepository interface {
	Save(ctx context.Context, s *Snapshot) error
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

type PostgresSnapshotRepository struct {
	db *sqlx.DB
}

func NewSnapshotRepository(db *sqlx.DB) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

func (r *PostgresSnapshotRepository) Save(ctx context.Context, s *Snapshot) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.NamedExecContext(ctx2, `
		INSERT INTO pool_snapshots (id, total_pool_ceiling, distributed, remaining, percentage, over_distributed, created_at)
		VALUES (:id, :total_pool_ceiling, :distributed, :remaining, :percentage, :over_distributed, :created_at)
	`, s)
	if err != nil {
		return fmt.Errorf("%w: save pool snapshot: %v", ledger.ErrDataUnavailable, err)
	}
	return nil
}

func (r *PostgresSnapshotRepository) List(ctx context.Context, limit int) ([]Snapshot, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	out := make([]Snapshot, 0, limit)
	err := r.db.SelectContext(ctx2, &out, `
		SELECT id, total_pool_ceiling, distributed, remaining, percentage, over_distributed, created_at
		FROM pool_snapshots
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list pool snapshots: %v", ledger.ErrDataUnavailable, err)
	}
	return out, nil
}

// Recorder computes the pool state and persists it.
type Recorder struct {
	accountant *Accountant
	repo       SnapshotRepository
}

func NewRecorder(accountant *Accountant, repo SnapshotRepository) *Recorder {
	return &Recorder{accountant: accountant, repo: repo}
}

// Record takes one snapshot.
func (r *Recorder) Record(ctx context.Context) (*Snapshot, error) {
	state, err := r.accountant.ComputePoolState(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:               uuid.New(),
		TotalPoolCeiling: state.TotalPoolCeiling,
		Distributed:      state.TotalPaidAcrossSources,
		Remaining:        state.Remaining,
		Percentage:       state.Percentage,
		OverDistributed:  state.OverDistributed,
		CreatedAt:        state.ComputedAt,
	}
	if err := r.repo.Save(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// History lists recent snapshots, newest first.
func (r *Recorder) History(ctx context.Context, limit int) ([]Snapshot, error) {
	return r.repo.List(ctx, limit)
}
