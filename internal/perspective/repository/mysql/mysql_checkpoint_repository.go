// Package mysql provides perspective checkpoint persistence for MySQL.
package mysql

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

const activeFlags = domain.StatusProcessing | domain.StatusCatchingUp | domain.StatusRebuildInProgress

// MySQLCheckpointRepository handles checkpoint persistence for MySQL
type MySQLCheckpointRepository struct {
	db     *sql.DB
	tables database.Tables
}

// NewMySQLCheckpointRepository creates a new MySQLCheckpointRepository
func NewMySQLCheckpointRepository(db *sql.DB, tables database.Tables) *MySQLCheckpointRepository {
	return &MySQLCheckpointRepository{db: db, tables: tables}
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id[:]
}

// Get retrieves a checkpoint by key
func (r *MySQLCheckpointRepository) Get(ctx context.Context, key domain.Key) (*domain.Checkpoint, error) {
	query := r.tables.Expand(`SELECT ` + checkpointColumns + ` FROM {{perspective_checkpoints}}
		WHERE stream_id = ? AND perspective_name = ?`)

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
func (r *MySQLCheckpointRepository) Acquire(
	ctx context.Context,
	streamID string,
	names []string,
	eventID uuid.UUID,
	partition int,
) ([]*domain.Checkpoint, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var args []any
	values := make([]string, len(names))
	for i, name := range names {
		args = append(args, streamID, name, domain.StatusProcessing, partition)
		values[i] = "(?, ?, ?, ?)"
	}
	args = append(args, eventID[:], domain.StatusProcessing, domain.StatusCompleted, eventID[:])

	upsert := r.tables.Expand(`INSERT INTO {{perspective_checkpoints}}
		(stream_id, perspective_name, status, partition_number)
		VALUES ` + strings.Join(values, ", ") + `
		ON DUPLICATE KEY UPDATE
		status = CASE
		        WHEN {{perspective_checkpoints}}.last_event_id IS NOT NULL
		         AND (SELECT version FROM {{event_store}} WHERE event_id = {{perspective_checkpoints}}.last_event_id)
		             >= (SELECT version FROM {{event_store}} WHERE event_id = ?)
		        THEN status
		        ELSE (status | ?) & ~?
		    END,
		error = CASE
		        WHEN {{perspective_checkpoints}}.last_event_id IS NOT NULL
		         AND (SELECT version FROM {{event_store}} WHERE event_id = {{perspective_checkpoints}}.last_event_id)
		             >= (SELECT version FROM {{event_store}} WHERE event_id = ?)
		        THEN error
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
		WHERE stream_id = ? AND perspective_name IN (` + database.MySQLPlaceholders(len(names)) + `)
		ORDER BY perspective_name`)

	return r.list(ctx, query, selectArgs...)
}

// Advance moves the checkpoint forward to eventID
func (r *MySQLCheckpointRepository) Advance(
	ctx context.Context,
	key domain.Key,
	eventID uuid.UUID,
	at time.Time,
) (bool, error) {
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} cp
		SET cp.last_event_id = ?, cp.status = cp.status & ~?, cp.processed_at = ?, cp.error = NULL
		WHERE cp.stream_id = ? AND cp.perspective_name = ?
		  AND (cp.last_event_id IS NULL
		       OR (SELECT version FROM {{event_store}} WHERE event_id = cp.last_event_id)
		          < (SELECT version FROM {{event_store}} WHERE event_id = ?))`)

	result, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, eventID[:], domain.StatusFailed, at,
		key.StreamID, key.PerspectiveName, eventID[:])
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
func (r *MySQLCheckpointRepository) MarkFailed(ctx context.Context, failure domain.Failure) error {
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}}
		SET status = (status | ?) & ~?, error = ?, instance_id = NULL, claimed_at = NULL
		WHERE stream_id = ? AND perspective_name = ?
		  AND (? IS NULL OR instance_id IS NULL OR instance_id = ?)`)

	owner := nullableID(lease.Owner(failure.InstanceID))
	return r.execOne(ctx, "failed to mark checkpoint failed", query, domain.StatusFailed,
		domain.StatusProcessing|domain.StatusCatchingUp, failure.Error, failure.StreamID, failure.PerspectiveName,
		owner, owner)
}

// SetCatchingUp sets or clears the CatchingUp flag
func (r *MySQLCheckpointRepository) SetCatchingUp(ctx context.Context, key domain.Key, catchingUp bool) error {
	set := `status = status | ?`
	if !catchingUp {
		set = `status = status & ~?`
	}
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} SET ` + set + `
		WHERE stream_id = ? AND perspective_name = ?`)

	return r.execOne(ctx, "failed to update checkpoint", query, domain.StatusCatchingUp,
		key.StreamID, key.PerspectiveName)
}

// Reset repositions a checkpoint
func (r *MySQLCheckpointRepository) Reset(
	ctx context.Context,
	key domain.Key,
	eventID *uuid.UUID,
	status domain.CheckpointStatus,
) error {
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}}
		SET last_event_id = ?, status = ?, error = NULL, instance_id = NULL, claimed_at = NULL
		WHERE stream_id = ? AND perspective_name = ?`)

	return r.execOne(ctx, "failed to reset checkpoint", query, nullableID(eventID), status,
		key.StreamID, key.PerspectiveName)
}

// ListFailed returns failed checkpoints
func (r *MySQLCheckpointRepository) ListFailed(ctx context.Context, offset, limit int) ([]*domain.Checkpoint, error) {
	query := r.tables.Expand(`SELECT ` + checkpointColumns + `
		FROM {{perspective_checkpoints}}
		WHERE (status & ?) <> 0
		ORDER BY processed_at ASC, stream_id ASC, perspective_name ASC
		LIMIT ? OFFSET ?`)

	return r.list(ctx, query, domain.StatusFailed, limit, offset)
}

// ClaimProcessing locks eligible Processing checkpoints in the claimed partitions and assigns them
func (r *MySQLCheckpointRepository) ClaimProcessing(ctx context.Context, claim lease.Claim) ([]*domain.Checkpoint, error) {
	if claim.Empty() {
		return nil, nil
	}

	args := []any{domain.StatusProcessing}
	for _, p := range claim.Partitions {
		args = append(args, p)
	}
	args = append(args, claim.InstanceID[:], claim.StaleBefore, claim.Limit)

	query := r.tables.Expand(`SELECT ` + checkpointColumns + `
		FROM {{perspective_checkpoints}} cp
		WHERE (cp.status & ?) <> 0
		  AND cp.partition_number IN (` + database.MySQLPlaceholders(len(claim.Partitions)) + `)
		  AND (cp.instance_id IS NULL
		       OR cp.instance_id = ?
		       OR NOT EXISTS (SELECT 1 FROM {{service_instances}} si
		                      WHERE si.instance_id = cp.instance_id AND si.last_heartbeat_at >= ?))
		ORDER BY cp.processed_at ASC, cp.stream_id ASC, cp.perspective_name ASC
		LIMIT ?
		FOR UPDATE SKIP LOCKED`)

	checkpoints, err := r.list(ctx, query, args...)
	if err != nil || len(checkpoints) == 0 {
		return checkpoints, err
	}

	updateArgs := []any{claim.InstanceID[:], claim.Now}
	for _, cp := range checkpoints {
		updateArgs = append(updateArgs, cp.StreamID, cp.PerspectiveName)
		cp.InstanceID = &claim.InstanceID
		cp.ClaimedAt = &claim.Now
	}

	update := r.tables.Expand(`UPDATE {{perspective_checkpoints}} SET instance_id = ?, claimed_at = ?
		WHERE (stream_id, perspective_name) IN (` + database.MySQLTuplePlaceholders(len(checkpoints), 2) + `)`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, update, updateArgs...); err != nil {
		return nil, apperrors.Wrap(err, "failed to claim checkpoints")
	}
	return checkpoints, nil
}

// Complete releases the claims instanceID holds on keys and settles the checkpoints
// that reached the head of their stream
func (r *MySQLCheckpointRepository) Complete(ctx context.Context, instanceID uuid.UUID, keys ...domain.Key) error {
	if len(keys) == 0 {
		return nil
	}

	args := appendKeys([]any{activeFlags, domain.StatusCompleted, instanceID[:]}, keys)
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} cp
		SET cp.status = CASE
		        WHEN cp.last_event_id <=>
		             (SELECT e.event_id FROM {{event_store}} e
		              WHERE e.aggregate_id = cp.stream_id ORDER BY e.version DESC LIMIT 1)
		        THEN (cp.status & ~?) | ?
		        ELSE cp.status
		    END,
		    cp.instance_id = NULL,
		    cp.claimed_at = NULL
		WHERE (cp.instance_id IS NULL OR cp.instance_id = ?)
		  AND (cp.stream_id, cp.perspective_name) IN (` + database.MySQLTuplePlaceholders(len(keys), 2) + `)`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to complete checkpoints")
	}
	return nil
}

// Release clears the claims instanceID holds on keys
func (r *MySQLCheckpointRepository) Release(ctx context.Context, instanceID uuid.UUID, keys ...domain.Key) error {
	if len(keys) == 0 {
		return nil
	}

	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} SET instance_id = NULL, claimed_at = NULL
		WHERE instance_id = ?
		  AND (stream_id, perspective_name) IN (` + database.MySQLTuplePlaceholders(len(keys), 2) + `)`)

	args := appendKeys([]any{instanceID[:]}, keys)
	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to release checkpoints")
	}
	return nil
}

// ReleaseClaims clears the claims held by instanceID
func (r *MySQLCheckpointRepository) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	query := r.tables.Expand(`UPDATE {{perspective_checkpoints}} SET instance_id = NULL, claimed_at = NULL
		WHERE instance_id = ?`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, instanceID[:]); err != nil {
		return apperrors.Wrap(err, "failed to release checkpoint claims")
	}
	return nil
}

func (r *MySQLCheckpointRepository) execOne(ctx context.Context, msg, query string, args ...any) error {
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

func (r *MySQLCheckpointRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Checkpoint, error) {
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
		cp                      domain.Checkpoint
		lastEventID, instanceID []byte
		processedAt, claimedAt  sql.NullTime
		lastError               sql.NullString
	)
	err := row.Scan(&cp.StreamID, &cp.PerspectiveName, &lastEventID, &cp.Status, &processedAt, &lastError,
		&instanceID, &claimedAt, &cp.PartitionNumber)
	if err != nil {
		return nil, err
	}

	if lastEventID != nil {
		var id uuid.UUID
		if err := id.UnmarshalBinary(lastEventID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal last event id")
		}
		cp.LastEventID = &id
	}
	if instanceID != nil {
		var id uuid.UUID
		if err := id.UnmarshalBinary(instanceID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal instance id")
		}
		cp.InstanceID = &id
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
