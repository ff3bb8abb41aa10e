// Package mysql implements the sequence provider on MySQL.
package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/sequence"
)

// MySQLSequenceRepository issues sequence values through LAST_INSERT_ID(expr), which
// reports the new value in the statement result without a second round trip.
type MySQLSequenceRepository struct {
	db *sql.DB

	nextQuery    string
	currentQuery string
	resetQuery   string
}

// NewMySQLSequenceRepository creates a provider backed by tables.Sequences.
func NewMySQLSequenceRepository(db *sql.DB, tables database.Tables) *MySQLSequenceRepository {
	return &MySQLSequenceRepository{
		db: db,
		nextQuery: tables.Expand(`INSERT INTO {{sequences}} (sequence_name, current_value, increment_by, last_updated_at)
			VALUES (?, LAST_INSERT_ID(0), 1, NOW(6))
			ON DUPLICATE KEY UPDATE
			current_value = LAST_INSERT_ID(current_value + increment_by),
			last_updated_at = NOW(6)`),
		currentQuery: tables.Expand(`SELECT current_value FROM {{sequences}} WHERE sequence_name = ?`),
		resetQuery: tables.Expand(`INSERT INTO {{sequences}} (sequence_name, current_value, increment_by, last_updated_at)
			VALUES (?, ?, 1, NOW(6))
			ON DUPLICATE KEY UPDATE current_value = VALUES(current_value), last_updated_at = NOW(6)`),
	}
}

// GetNext increments and returns the value for key.
func (r *MySQLSequenceRepository) GetNext(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := sequence.ValidateKey(key); err != nil {
		return 0, err
	}

	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx, r.nextQuery, key)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to get next sequence value")
	}

	value, err := result.LastInsertId()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read sequence value")
	}
	return value, nil
}

// GetCurrent returns the last issued value for key, or sequence.Unused.
func (r *MySQLSequenceRepository) GetCurrent(ctx context.Context, key string) (int64, error) {
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
func (r *MySQLSequenceRepository) Reset(ctx context.Context, key string, newValue int64) error {
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
