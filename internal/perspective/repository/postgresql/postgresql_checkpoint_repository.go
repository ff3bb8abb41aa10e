// Package postgresql provides perspective checkpoint persistence for PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/lease"
	"github.com/allisson/whizbang/internal/perspective/domain"
)

const checkpointColumns = `stream_id, perspective_name, last_event_id, status, processed_at, error,
	instance_id, claimed_at, partition_number`

// activeFlags are cleared when a checkpoint catches up with its stream.
const activeFlags = domain.StatusProcessing | domain.StatusCatchingUp | domain.StatusRebuildInProgress

// PostgreSQLCheckpointRepository handles checkpoint persistence for PostgreSQL
type PostgreSQLCheckpointRepository struct {
	db     *sql.DB
	tables database.Tables
}

// NewPostgreSQLCheckpointRepository creates a new PostgreSQLCheckpointRepository
func NewPostgreSQLCheckpointRepository(db *sql.DB, tables database.Tables) *PostgreSQLCheckpointRepository {
	return &PostgreSQLCheckpointRepository{db: db, tables: tables}
}

// Get retrieves a checkpoint by key
func (r *PostgreSQLCheckpointRepository) Get(ctx context.Context, key domain.Key) (*domain.Checkpoint, error) {
	query := r.tables.Expand(`SELECT ` + checkpointColumns + ` FROM {{perspective_checkpoints}}
		WHERE stream_id = $1 AND perspective_name = $2`)

	cp, err := scanCheckpoint(database.GetTx(ctx, r.db).QueryRowContext(ctx, query, key.StreamID, key.PerspectiveName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get checkpoint")
	}
	return cp, nil
}

// Acquire upserts Processing checkpoints for names on streamID
func (r *PostgreSQLCheckpointRepository) Acquire(
	ctx context.Context,
	streamID string,
	names []string,
	eventID uuid.UUID,
	partition int,
) ([]*domain.Checkpoint, error) {
	if len(names) == 0 {
		return nil, nil
	}

	args := []any{streamID, eventID, domain.StatusProcessing, domain.StatusCompleted, partition}
	values := make([]string, len(names))
	for i, name := range names {
		args = append(args, name)
		values[i] = "($1, " + database.PostgresPlaceholders(6+i, 1) + ", $3, $5)"
	}

	upsert := r.tables.Expand(`INSERT INTO {{perspective_checkpoints}} AS cp
		(stream_id, perspective_name, status, partition_number)
		VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (stream_id, perspective_name) DO UPDATE
		SET status = CASE
		        WHEN cp.last_event_id IS NOT NULL
		         AND (SELECT version FROM {{event_store}} WHERE event_id = cp.last_event_id)
		             >= (SELECT version FROM {{event_store}} WHERE event_id = $2)
		        THEN cp.status
		        ELSE (cp.status | $3) & ~$4::smallint
		    END,
		    error = CASE
		        WHEN cp.last_event_id IS NOT NULL
		         AND (SELECT version FROM {{event_store}} WHERE event_id = cp.last_event_id)
		             >= (SELECT version FROM {{event_store}} WHERE event_id = $2)
		        THEN cp.error
		        ELSE NULL
		    END`)

	querier := database.GetTx(ctx, r.db)
	if _, err := querier.ExecContext(ctx, upsert, args...); err != nil {
		return nil, apperrors.Wrap(err, "failed to acquire checkpoints")
	}

	selectArgs := []any{streamID}
	for _, name := range names {
		selectArgs = append(selectArgs, name)
	}
	query := r.tables.Expand(`SELECT ` + checkpointColumns + ` FROM {{perspective_checkpoints}}
		WHERE stream_id = $1 AND perspective_name IN (` + database.PostgresPlaceholders(2, len(names)) + `)
		ORDER BY perspective_name`)

	return r.list(ctx, query, selectArgs...)
}

// Advance moves the checkpoint forward to eventID
func (r *PostgreSQLCheckpointRepository) Advance(
	ctx context.Context,
	key domain.Key,
	eventID uuid.UUID,
	at time.Time,
) (bool, error) {
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} cp
		SET last_event_id = $3, status = cp.status & ~$4::smallint, processed_at = $5, error = NULL
		WHERE cp.stream_id = $1 AND cp.perspective_name = $2
		  AND (cp.last_event_id IS NULL
		       OR (SELECT version FROM {{event_store}} WHERE event_id = cp.last_event_id)
		          < (SELECT version FROM {{event_store}} WHERE event_id = $3))`)

	result, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, key.StreamID, key.PerspectiveName,
		eventID, domain.StatusFailed, at)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to advance checkpoint")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to advance checkpoint")
	}
	return affected == 1, nil
}

// MarkFailed records a perspective failure. A failure reported by an instance is
// ignored when another instance holds the claim.
func (r *PostgreSQLCheckpointRepository) MarkFailed(ctx context.Context, failure domain.Failure) error {
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}}
		SET status = (status | $3::smallint) & ~$4::smallint, error = $5, instance_id = NULL, claimed_at = NULL
		WHERE stream_id = $1 AND perspective_name = $2
		  AND ($6::uuid IS NULL OR instance_id IS NULL OR instance_id = $6)`)

	return r.execOne(ctx, "failed to mark checkpoint failed", query, failure.StreamID, failure.PerspectiveName,
		domain.StatusFailed, domain.StatusProcessing|domain.StatusCatchingUp, failure.Error,
		lease.Owner(failure.InstanceID))
}

// SetCatchingUp sets or clears the CatchingUp flag
func (r *PostgreSQLCheckpointRepository) SetCatchingUp(ctx context.Context, key domain.Key, catchingUp bool) error {
	set := `status = status | $3::smallint`
	if !catchingUp {
		set = `status = status & ~$3::smallint`
	}
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} SET ` + set + `
		WHERE stream_id = $1 AND perspective_name = $2`)

	return r.execOne(ctx, "failed to update checkpoint", query, key.StreamID, key.PerspectiveName,
		domain.StatusCatchingUp)
}

// Reset repositions a checkpoint
func (r *PostgreSQLCheckpointRepository) Reset(
	ctx context.Context,
	key domain.Key,
	eventID *uuid.UUID,
	status domain.CheckpointStatus,
) error {
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}}
		SET last_event_id = $3, status = $4, error = NULL, instance_id = NULL, claimed_at = NULL
		WHERE stream_id = $1 AND perspective_name = $2`)

	return r.execOne(ctx, "failed to reset checkpoint", query, key.StreamID, key.PerspectiveName,
		eventID, status)
}

// ListFailed returns failed checkpoints
func (r *PostgreSQLCheckpointRepository) ListFailed(ctx context.Context, offset, limit int) ([]*domain.Checkpoint, error) {
	query := r.tables.Expand(`SELECT ` + checkpointColumns + `
		FROM {{perspective_checkpoints}}
		WHERE (status & $1::smallint) <> 0
		ORDER BY processed_at ASC NULLS FIRST, stream_id ASC, perspective_name ASC
		LIMIT $2 OFFSET $3`)

	return r.list(ctx, query, domain.StatusFailed, limit, offset)
}

// ClaimProcessing locks eligible Processing checkpoints in the claimed partitions and assigns them
func (r *PostgreSQLCheckpointRepository) ClaimProcessing(ctx context.Context, claim lease.Claim) ([]*domain.Checkpoint, error) {
	if claim.Empty() {
		return nil, nil
	}

	args := []any{domain.StatusProcessing, claim.InstanceID, claim.StaleBefore, claim.Limit}
	for _, p := range claim.Partitions {
		args = append(args, p)
	}

	query := r.tables.Expand(`SELECT ` + checkpointColumns + `
		FROM {{perspective_checkpoints}} cp
		WHERE (cp.status & $1::smallint) <> 0
		  AND cp.partition_number IN (` + database.PostgresPlaceholders(5, len(claim.Partitions)) + `)
		  AND (cp.instance_id IS NULL
		       OR cp.instance_id = $2
		       OR NOT EXISTS (SELECT 1 FROM {{service_instances}} si
		                      WHERE si.instance_id = cp.instance_id AND si.last_heartbeat_at >= $3))
		ORDER BY cp.processed_at ASC NULLS FIRST, cp.stream_id ASC, cp.perspective_name ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED`)

	checkpoints, err := r.list(ctx, query, args...)
	if err != nil || len(checkpoints) == 0 {
		return checkpoints, err
	}

	updateArgs := []any{claim.InstanceID, claim.Now}
	for _, cp := range checkpoints {
		updateArgs = append(updateArgs, cp.StreamID, cp.PerspectiveName)
		cp.InstanceID = &claim.InstanceID
		cp.ClaimedAt = &claim.Now
	}

	update := r.tables.Expand(`UPDATE {{perspective_checkpoints}} SET instance_id = $1, claimed_at = $2
		WHERE (stream_id, perspective_name) IN (` + database.PostgresTuplePlaceholders(3, len(checkpoints), 2) + `)`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, update, updateArgs...); err != nil {
		return nil, apperrors.Wrap(err, "failed to claim checkpoints")
	}
	return checkpoints, nil
}

// Complete releases the claims instanceID holds on keys and settles the checkpoints
// that reached the head of their stream
func (r *PostgreSQLCheckpointRepository) Complete(ctx context.Context, instanceID uuid.UUID, keys ...domain.Key) error {
	if len(keys) == 0 {
		return nil
	}

	args := []any{activeFlags, domain.StatusCompleted, instanceID}
	args = appendKeys(args, keys)

	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} cp
		SET status = CASE
		        WHEN cp.last_event_id IS NOT DISTINCT FROM
		             (SELECT e.event_id FROM {{event_store}} e
		              WHERE e.aggregate_id = cp.stream_id ORDER BY e.version DESC LIMIT 1)
		        THEN (cp.status & ~$1::smallint) | $2::smallint
		        ELSE cp.status
		    END,
		    instance_id = NULL,
		    claimed_at = NULL
		WHERE (cp.instance_id IS NULL OR cp.instance_id = $3)
		  AND (cp.stream_id, cp.perspective_name) IN (` + database.PostgresTuplePlaceholders(4, len(keys), 2) + `)`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to complete checkpoints")
	}
	return nil
}

// Release clears the claims instanceID holds on keys
func (r *PostgreSQLCheckpointRepository) Release(ctx context.Context, instanceID uuid.UUID, keys ...domain.Key) error {
	if len(keys) == 0 {
		return nil
	}

	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} SET instance_id = NULL, claimed_at = NULL
		WHERE instance_id = $1
		  AND (stream_id, perspective_name) IN (` + database.PostgresTuplePlaceholders(2, len(keys), 2) + `)`)

	args := appendKeys([]any{instanceID}, keys)
	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to release checkpoints")
	}
	return nil
}

// ReleaseClaims clears the claims held by instanceID
func (r *PostgreSQLCheckpointRepository) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} SET instance_id = NULL, claimed_at = NULL
		WHERE instance_id = $1`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, instanceID); err != nil {
		return apperrors.Wrap(err, "failed to release checkpoint claims")
	}
	return nil
}

func (r *PostgreSQLCheckpointRepository) execOne(ctx context.Context, msg, query string, args ...any) error {
	result, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(err, msg)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, msg)
	}
	if affected == 0 {
		return domain.ErrCheckpointNotFound
	}
	return nil
}

func (r *PostgreSQLCheckpointRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Checkpoint, error) {
	rows, err := database.GetTx(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list checkpoints")
	}
	defer rows.Close() //nolint:errcheck

	var checkpoints []*domain.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan checkpoint")
		}
		checkpoints = append(checkpoints, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate checkpoints")
	}

	return checkpoints, nil
}

func appendKeys(args []any, keys []domain.Key) []any {
	for _, key := range keys {
		args = append(args, key.StreamID, key.PerspectiveName)
	}
	return args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (*domain.Checkpoint, error) {
	var (
		cp          domain.Checkpoint
		lastEventID uuid.NullUUID
		instanceID  uuid.NullUUID
		processedAt sql.NullTime
		claimedAt   sql.NullTime
		lastError   sql.NullString
	)
	err := row.Scan(&cp.StreamID, &cp.PerspectiveName, &lastEventID, &cp.Status, &processedAt, &lastError,
		&instanceID, &claimedAt, &cp.PartitionNumber)
	if err != nil {
		return nil, err
	}

	if lastEventID.Valid {
		cp.LastEventID = &lastEventID.UUID
	}
	if instanceID.Valid {
		cp.InstanceID = &instanceID.UUID
	}
	if processedAt.Valid {
		cp.ProcessedAt = &processedAt.Time
	}
	if lastError.Valid {
		cp.Error = &lastError.String
	}
	if claimedAt.Valid {
		cp.ClaimedAt = &claimedAt.Time
	}
	return &cp, nil
}
