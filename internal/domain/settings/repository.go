package settings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/avalove/avalove-ledger/internal/domain/ledger"
)

const queryTimeout = 3 * time.Second

type Repository interface {
	List(ctx context.Context) ([]Record, error)
	PutAll(ctx context.Context, values map[string]string, updatedBy uuid.UUID) ([]Record, error)
}

// PostgresRepository persists settings in the ledger_settings table.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context) ([]Record, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	records := make([]Record, 0)
	err := r.db.SelectContext(ctx2, &records, `
		SELECT key, value, version, updated_by, updated_at
		FROM ledger_settings
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list settings: %v", ledger.ErrDataUnavailable, err)
	}
	return records, nil
}

// PutAll upserts every value in one transaction, bumping each row's version.
func (r *PostgresRepository) PutAll(ctx context.Context, values map[string]string, updatedBy uuid.UUID) ([]Record, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ledger.ErrDataUnavailable)
	}
	defer tx.Rollback()

	var by interface{}
	if updatedBy != uuid.Nil {
		by = updatedBy
	}

	out := make([]Record, 0, len(values))
	for key, value := range values {
		var rec Record
		err := tx.GetContext(ctx2, &rec, `
			INSERT INTO ledger_settings (key, value, version, updated_by, updated_at)
			VALUES ($1, $2, 1, $3, NOW())
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value,
				version = ledger_settings.version + 1,
				updated_by = EXCLUDED.updated_by,
				updated_at = NOW()
			RETURNING key, value, version, updated_by, updated_at
		`, key, value, by)
		if err != nil {
			return nil, fmt.Errorf("%w: upsert setting %s: %v", ledger.ErrDataUnavailable, key, err)
		}
		out = append(out, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ledger.ErrDataUnavailable)
	}
	return out, nil
}
