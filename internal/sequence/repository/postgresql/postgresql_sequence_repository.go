// Package postgresql implements the sequence provider on PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/sequence"
)

// PostgreSQLSequenceRepository issues sequence values with a single upsert per call.
type PostgreSQLSequenceRepository struct {
	db *sql.DB

	nextQuery    string
	currentQuery string
	resetQuery   string
}

// NewPostgreSQLSequenceRepository creates a provider backed by tables.Sequences.
func NewPostgreSQLSequenceRepository(db *sql.DB, tables database.Tables) *PostgreSQLSequenceRepository {
	return &PostgreSQLSequenceRepository{
		db: db,
		nextQuery: tables.Expand(`INSERT INTO {{sequences}} (sequence_name, current_value, increment_by, last_updated_at)
			VALUES ($1, 0, 1, NOW())
			ON CONFLICT (sequence_name) DO UPDATE
			SET current_value = {{sequences}}.current_value + {{sequences}}.increment_by,
			    last_updated_at = NOW()
			RETURNING current_value`),
		currentQuery: tables.Expand(`SELECT current_value FROM {{sequences}} WHERE sequence_name = $1`),
		resetQuery: tables.Expand(`INSERT INTO {{sequences}} (sequence_name, current_value, increment_by, last_updated_at)
			VALUES ($1, $2, 1, NOW())
			ON CONFLICT (sequence_name) DO UPDATE
			SET current_value = EXCLUDED.current_value, last_updated_at = NOW()`),
	}
}

// GetNext increments and returns the value for key.
func (r *PostgreSQLSequenceRepository) GetNext(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := sequence.ValidateKey(key); err != nil {
		return 0, err
	}

	querier := database.GetTx(ctx, r.db)

	var value int64
	if err := querier.QueryRowContext(ctx, r.nextQuery, key).Scan(&value); err != nil {
		return 0, apperrors.Wrap(err, "failed to get next sequence value")
	}
	return value, nil
}

// GetCurrent returns the last issued value for key, or sequence.Unused.
func (r *PostgreSQLSequenceRepository) GetCurrent(ctx context.Context, key string) (int64, error) {
	if err := sequence.ValidateKey(key); err != nil {
		return 0, err
	}

	querier := database.GetTx(ctx, r.db)

	var value int64
	err := querier.QueryRowContext(ctx, r.currentQuery, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sequence.Unused, nil
		}
		return 0, apperrors.Wrap(err, "failed to get current sequence value")
	}
	return value, nil
}

// Reset stores newValue-1 so the next GetNext returns newValue.
func (r *PostgreSQLSequenceRepository) Reset(ctx context.Context, key string, newValue int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sequence.ValidateKey(key); err != nil {
		return err
	}

	querier := database.GetTx(ctx, r.db)

	if _, err := querier.ExecContext(ctx, r.resetQuery, key, newValue-1); err != nil {
		return apperrors.Wrap(err, "failed to reset sequence")
	}
	return nil
}
