package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
)

// PostgreSQLPartitionRepository handles partition ownership for PostgreSQL
type PostgreSQLPartitionRepository struct {
	db     *sql.DB
	tables database.Tables
}

// NewPostgreSQLPartitionRepository creates a new PostgreSQLPartitionRepository
func NewPostgreSQLPartitionRepository(db *sql.DB, tables database.Tables) *PostgreSQLPartitionRepository {
	return &PostgreSQLPartitionRepository{db: db, tables: tables}
}

// Replace makes partitions the exact set owned by instanceID. Partitions taken over
// from another instance get a new assigned_at.
func (r *PostgreSQLPartitionRepository) Replace(
	ctx context.Context,
	instanceID uuid.UUID,
	partitions []int,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	deleteQuery := `DELETE FROM {{partition_assignments}} WHERE instance_id = $1`
	deleteArgs := []any{instanceID}
	if len(partitions) > 0 {
		deleteQuery += ` AND partition_number NOT IN (` + database.PostgresPlaceholders(2, len(partitions)) + `)`
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

	args := []any{instanceID, now}
	values := ""
	for i, p := range partitions {
		if i > 0 {
			values += ", "
		}
		values += "(" + database.PostgresPlaceholders(3+i, 1) + ", $1, $2, $2)"
		args = append(args, p)
	}

	upsert := r.tables.Expand(`INSERT INTO {{partition_assignments}} AS pa
		(partition_number, instance_id, assigned_at, last_heartbeat)
		VALUES ` + values + `
		ON CONFLICT (partition_number) DO UPDATE
		SET assigned_at = CASE WHEN pa.instance_id = EXCLUDED.instance_id THEN pa.assigned_at
		                       ELSE EXCLUDED.assigned_at END,
		    instance_id = EXCLUDED.instance_id,
		    last_heartbeat = EXCLUDED.last_heartbeat`)

	if _, err := querier.ExecContext(ctx, upsert, args...); err != nil {
		return apperrors.Wrap(err, "failed to assign partitions")
	}
	return nil
}

// ListByInstance returns the partitions owned by instanceID in ascending order
func (r *PostgreSQLPartitionRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]int, error) {
	query := r.tables.Expand(`SELECT partition_number FROM {{partition_assignments}}
		WHERE instance_id = $1 ORDER BY partition_number`)

	rows, err := database.GetTx(ctx, r.db).QueryContext(ctx, query, instanceID)
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
func (r *PostgreSQLPartitionRepository) DeleteByInstance(ctx context.Context, instanceID uuid.UUID) error {
	query := r.tables.Expand(`DELETE FROM {{partition_assignments}} WHERE instance_id = $1`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, instanceID); err != nil {
		return apperrors.Wrap(err, "failed to delete partitions")
	}
	return nil
}
