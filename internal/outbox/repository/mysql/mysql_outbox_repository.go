// Package mysql provides outbox persistence for MySQL.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/lease"
	"github.com/allisson/whizbang/internal/outbox/domain"
)

const outboxColumns = `message_id, destination, stream_id, event_type, event_data, metadata, status,
	attempts, error, instance_id, claimed_at, partition_number, created_at, published_at`

// MySQLOutboxRepository handles outbox persistence for MySQL.
// UUIDs are stored as BINARY(16).
type MySQLOutboxRepository struct {
	db     *sql.DB
	tables database.Tables
}

// NewMySQLOutboxRepository creates a new MySQLOutboxRepository
func NewMySQLOutboxRepository(db *sql.DB, tables database.Tables) *MySQLOutboxRepository {
	return &MySQLOutboxRepository{db: db, tables: tables}
}

func nullableID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id[:]
}

// Create inserts a new outbox message
func (r *MySQLOutboxRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	querier := database.GetTx(ctx, r.db)

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox metadata")
	}

	query := r.tables.Expand(`INSERT INTO {{outbox}} (message_id, destination, stream_id, event_type,
		event_data, metadata, status, attempts, partition_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = querier.ExecContext(ctx, query, msg.MessageID[:], msg.Destination, msg.StreamID, msg.EventType,
		[]byte(msg.EventData), metadata, msg.Status, msg.Attempts, msg.PartitionNumber, msg.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrConflict, fmt.Sprintf("outbox message %s already stored", msg.MessageID))
		}
		return apperrors.Wrap(err, "failed to create outbox message")
	}
	return nil
}

// Get retrieves an outbox message by id
func (r *MySQLOutboxRepository) Get(ctx context.Context, messageID uuid.UUID) (*domain.OutboxMessage, error) {
	querier := database.GetTx(ctx, r.db)

	query := r.tables.Expand(`SELECT ` + outboxColumns + ` FROM {{outbox}} WHERE message_id = ?`)

	msg, err := scanMessage(querier.QueryRowContext(ctx, query, messageID[:]))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutboxMessageNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox message")
	}
	return msg, nil
}

// GetPending retrieves pending messages oldest first
func (r *MySQLOutboxRepository) GetPending(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	query := r.tables.Expand(`SELECT ` + outboxColumns + `
		FROM {{outbox}}
		WHERE status = ?
		ORDER BY created_at ASC, message_id ASC
		LIMIT ?
		FOR UPDATE SKIP LOCKED`)

	return r.list(ctx, query, domain.OutboxStatusPending, limit)
}

// ClaimPending locks eligible pending messages in the claimed partitions and assigns them
func (r *MySQLOutboxRepository) ClaimPending(ctx context.Context, claim lease.Claim) ([]*domain.OutboxMessage, error) {
	if claim.Empty() {
		return nil, nil
	}

	args := []any{domain.OutboxStatusPending}
	for _, p := range claim.Partitions {
		args = append(args, p)
	}
	args = append(args, claim.InstanceID[:], claim.StaleBefore, claim.Limit)

	query := r.tables.Expand(`SELECT ` + outboxColumns + `
		FROM {{outbox}} o
		WHERE o.status = ?
		  AND o.partition_number IN (` + database.MySQLPlaceholders(len(claim.Partitions)) + `)
		  AND (o.instance_id IS NULL
		       OR o.instance_id = ?
		       OR NOT EXISTS (SELECT 1 FROM {{service_instances}} si
		                      WHERE si.instance_id = o.instance_id AND si.last_heartbeat_at >= ?))
		ORDER BY o.created_at ASC, o.message_id ASC
		LIMIT ?
		FOR UPDATE SKIP LOCKED`)

	messages, err := r.list(ctx, query, args...)
	if err != nil || len(messages) == 0 {
		return messages, err
	}

	updateArgs := []any{claim.InstanceID[:], claim.Now}
	for _, msg := range messages {
		updateArgs = append(updateArgs, msg.MessageID[:])
		msg.InstanceID = &claim.InstanceID
		msg.ClaimedAt = &claim.Now
	}

	update := r.tables.Expand(`UPDATE {{outbox}} SET instance_id = ?, claimed_at = ?
		WHERE message_id IN (` + database.MySQLPlaceholders(len(messages)) + `)`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, update, updateArgs...); err != nil {
		return nil, apperrors.Wrap(err, "failed to claim outbox messages")
	}
	return messages, nil
}

// MarkPublished sets published status on the given messages
func (r *MySQLOutboxRepository) MarkPublished(ctx context.Context, at time.Time, messageIDs ...uuid.UUID) error {
	if len(messageIDs) == 0 {
		return nil
	}

	args := []any{domain.OutboxStatusPublished, at}
	for _, id := range messageIDs {
		args = append(args, id[:])
	}
	args = append(args, domain.OutboxStatusPublished)

	query := r.tables.Expand(`UPDATE {{outbox}}
		SET status = ?, published_at = ?, instance_id = NULL, claimed_at = NULL, error = NULL
		WHERE message_id IN (` + database.MySQLPlaceholders(len(messageIDs)) + `)
		  AND status <> ?`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to mark outbox messages published")
	}
	return nil
}

// MarkFailed records a failed publish attempt. The status assignment precedes the
// attempts increment because MySQL evaluates SET clauses left to right.
func (r *MySQLOutboxRepository) MarkFailed(ctx context.Context, failure domain.Failure, maxAttempts int) error {
	query := r.tables.Expand(`UPDATE {{outbox}}
		SET status = CASE WHEN ? OR attempts + 1 >= ? THEN ? ELSE status END,
		    attempts = attempts + 1,
		    error = ?,
		    instance_id = NULL,
		    claimed_at = NULL
		WHERE message_id = ? AND status = ?
		  AND (? IS NULL OR instance_id IS NULL OR instance_id = ?)`)

	owner := nullableID(lease.Owner(failure.InstanceID))
	_, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, failure.Terminal, maxAttempts,
		domain.OutboxStatusFailed, failure.Error, failure.MessageID[:], domain.OutboxStatusPending, owner, owner)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox message failed")
	}
	return nil
}

// ReleaseClaims clears the claims held by instanceID
func (r *MySQLOutboxRepository) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	query := r.tables.Expand(`UPDATE {{outbox}} SET instance_id = NULL, claimed_at = NULL
		WHERE instance_id = ? AND status = ?`)

	_, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, instanceID[:], domain.OutboxStatusPending)
	if err != nil {
		return apperrors.Wrap(err, "failed to release outbox claims")
	}
	return nil
}

// ListFailed returns failed messages oldest first
func (r *MySQLOutboxRepository) ListFailed(ctx context.Context, offset, limit int) ([]*domain.OutboxMessage, error) {
	query := r.tables.Expand(`SELECT ` + outboxColumns + `
		FROM {{outbox}}
		WHERE status = ?
		ORDER BY created_at ASC, message_id ASC
		LIMIT ? OFFSET ?`)

	return r.list(ctx, query, domain.OutboxStatusFailed, limit, offset)
}

// ResetFailed moves a failed message back to pending
func (r *MySQLOutboxRepository) ResetFailed(ctx context.Context, messageID uuid.UUID) error {
	query := r.tables.Expand(`UPDATE {{outbox}}
		SET status = ?, attempts = 0, error = NULL, instance_id = NULL, claimed_at = NULL
		WHERE message_id = ? AND status = ?`)

	result, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, domain.OutboxStatusPending,
		messageID[:], domain.OutboxStatusFailed)
	if err != nil {
		return apperrors.Wrap(err, "failed to reset outbox message")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to reset outbox message")
	}
	if affected == 0 {
		return domain.ErrOutboxMessageNotFound
	}
	return nil
}

func (r *MySQLOutboxRepository) list(ctx context.Context, query string, args ...any) ([]*domain.OutboxMessage, error) {
	rows, err := database.GetTx(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list outbox messages")
	}
	defer rows.Close() //nolint:errcheck

	var messages []*domain.OutboxMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox message")
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox messages")
	}

	return messages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*domain.OutboxMessage, error) {
	var (
		msg                 domain.OutboxMessage
		idBytes, instanceID []byte
		streamID, lastError sql.NullString
		claimedAt           sql.NullTime
		publishedAt         sql.NullTime
		data, metadata      []byte
	)
	err := row.Scan(&idBytes, &msg.Destination, &streamID, &msg.EventType, &data, &metadata,
		&msg.Status, &msg.Attempts, &lastError, &instanceID, &claimedAt, &msg.PartitionNumber,
		&msg.CreatedAt, &publishedAt)
	if err != nil {
		return nil, err
	}

	if err := msg.MessageID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal message id")
	}
	if instanceID != nil {
		var id uuid.UUID
		if err := id.UnmarshalBinary(instanceID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal instance id")
		}
		msg.InstanceID = &id
	}

	msg.EventData = json.RawMessage(data)
	if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal outbox metadata")
	}
	if streamID.Valid {
		msg.StreamID = &streamID.String
	}
	if lastError.Valid {
		msg.Error = &lastError.String
	}
	if claimedAt.Valid {
		msg.ClaimedAt = &claimedAt.Time
	}
	if publishedAt.Valid {
		msg.PublishedAt = &publishedAt.Time
	}
	return &msg, nil
}
