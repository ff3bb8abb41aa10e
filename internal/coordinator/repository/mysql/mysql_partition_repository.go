package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
)

// MySQLPartitionRepository handles partition ownership for MySQL
type MySQLPartitionRepository struct {
	db     *sql.DB
	tables database.Tables
}

// NewMySQLPartitionRepository creates a new MySQLPartitionRepository
func NewMySQLPartitionRepository(db *sql.DB, tables database.Tables) *MySQLPartitionRepository {
	return &MySQLPartitionRepository{db: db, tables: tables}
}

// Replace makes partitions the exact set owned by instanceID. Partitions taken over
// from another instance get a new assigned_at.
func (r *MySQLPartitionRepository) Replace(
	ctx context.Context,
	instanceID uuid.UUID,
	partitions []int,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	deleteQuery := `DELETE FROM {{partition_assignments}} WHERE instance_id = ?`
	deleteArgs := []any{instanceID[:]}
	if len(partitions) > 0 {
		deleteQuery += ` AND partition_number NOT IN (` + database.MySQLPlaceholders(len(partitions)) + `)`
		for _, p := range partitions {
			deleteArgs = append(deleteArgs, p)
		}
	}
	if _, err := querier.ExecContext(ctx, r.tables.Expand(deleteQuery), deleteArgs...); err != nil {
		return apperrors.Wrap(err, "failed to release partitions")
	}

	if len(partitions) == 0 {
		return nil
	}

	var args []any
	values := make([]string, len(partitions))
	for i, p := range partitions {
		values[i] = "(?, ?, ?, ?)"
		args = append(args, p, instanceID[:], now, now)
	}

	// assigned_at is evaluated before instance_id changes.
	upsert := r.tables.Expand(`INSERT INTO {{partition_assignments}}
		(partition_number, instance_id, assigned_at, last_heartbeat)
		VALUES ` + strings.Join(values, ", ") + `
		ON DUPLICATE KEY UPDATE
		assigned_at = IF(instance_id = VALUES(instance_id), assigned_at, VALUES(assigned_at)),
		instance_id = VALUES(instance_id),
		last_heartbeat = VALUES(last_heartbeat)`)

	if _, err := querier.ExecContext(ctx, upsert, args...); err != nil {
		return apperrors.Wrap(err, "failed to assign partitions")
	}
	return nil
}

// ListByInstance returns the partitions owned by instanceID in ascending order
func (r *MySQLPartitionRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]int, error) {
	query := r.tables.Expand(`SELECT partition_number FROM {{partition_assignments}}
		WHERE instance_id = ? ORDER BY partition_number`)

	rows, err := database.GetTx(ctx, r.db).QueryContext(ctx, query, instanceID[:])
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list partitions")
	}
	defer rows.Close() //nolint:errcheck

	var partitions []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan partition")
		}
		partitions = append(partitions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate partitions")
	}
	return partitions, nil
}

// DeleteByInstance releases every partition of instanceID
func (r *MySQLPartitionRepository) DeleteByInstance(ctx context.Context, instanceID uuid.UUID) error {
	query := r.tables.Expand(`DELETE FROM {{partition_assignments}} WHERE instance_id = ?`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, instanceID[:]); err != nil {
		return apperrors.Wrap(err, "failed to delete partitions")
	}
	return nil
}
