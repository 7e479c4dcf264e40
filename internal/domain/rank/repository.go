package rank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

const queryTimeout = 3 * time.Second

type Repository interface {
	Get(ctx context.Context, tokenID string, userID uuid.UUID) (*Entry, error)
	// CountAhead counts entries that rank before e on its board.
	CountAhead(ctx context.Context, e *Entry) (int, error)
	Top(ctx context.Context, tokenID string, limit int) ([]Entry, error)
	Upsert(ctx context.Context, e *Entry) error
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, tokenID string, userID uuid.UUID) (*Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var e Entry
	err := r.db.GetContext(ctx2, &e, `
		SELECT token_id, user_id, score, achieved_at
		FROM leaderboard_scores
		WHERE token_id = $1 AND user_id = $2
	`, tokenID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotRanked
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get score: %v", ledger.ErrDataUnavailable, err)
	}
	return &e, nil
}

func (r *PostgresRepository) CountAhead(ctx context.Context, e *Entry) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	err := r.db.GetContext(ctx2, &n, `
		SELECT COUNT(*)
		FROM leaderboard_scores
		WHERE token_id = $1
		  AND (score > $2
		       OR (score = $2 AND achieved_at < $3)
		       OR (score = $2 AND achieved_at = $3 AND user_id < $4))
	`, e.TokenID, e.Score, e.AchievedAt, e.UserID)
	if err != nil {
		return 0, fmt.Errorf("%w: count ahead: %v", ledger.ErrDataUnavailable, err)
	}
	return n, nil
}

func (r *PostgresRepository) Top(ctx context.Context, tokenID string, limit int) ([]Entry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	entries := make([]Entry, 0, limit)
	err := r.db.SelectContext(ctx2, &entries, `
		SELECT token_id, user_id, score, achieved_at
		FROM leaderboard_scores
		WHERE token_id = $1
		ORDER BY score DESC, achieved_at ASC, user_id ASC
		LIMIT $2
	`, tokenID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: top scores: %v", ledger.ErrDataUnavailable, err)
	}
	return entries, nil
}

// Upsert writes a score. achieved_at only moves when the score itself changes,
// so resubmitting the same score keeps the original tie-break position.
func (r *PostgresRepository) Upsert(ctx context.Context, e *Entry) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.QueryRowxContext(ctx2, `
		INSERT INTO leaderboard_scores (token_id, user_id, score, achieved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id, user_id) DO UPDATE SET
			achieved_at = CASE WHEN leaderboard_scores.score <> EXCLUDED.score
			                   THEN EXCLUDED.achieved_at
			                   ELSE leaderboard_scores.achieved_at END,
			score = EXCLUDED.score
		RETURNING achieved_at
	`, e.TokenID, e.UserID, e.Score, e.AchievedAt).Scan(&e.AchievedAt)
	if err != nil {
		return fmt.Errorf("%w: upsert score: %v", ledger.ErrDataUnavailable, err)
	}
	return nil
}
