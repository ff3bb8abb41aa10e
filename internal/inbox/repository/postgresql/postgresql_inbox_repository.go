// Package postgresql provides inbox persistence for PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/inbox/domain"
	"github.com/allisson/whizbang/internal/lease"
)

const inboxColumns = `message_id, handler_name, event_type, event_data, metadata, status, attempts,
	error, instance_id, claimed_at, partition_number, received_at, processed_at`

// PostgreSQLInboxRepository handles inbox persistence for PostgreSQL
type PostgreSQLInboxRepository struct {
	db     *sql.DB
	tables database.Tables
}

// NewPostgreSQLInboxRepository creates a new PostgreSQLInboxRepository
func NewPostgreSQLInboxRepository(db *sql.DB, tables database.Tables) *PostgreSQLInboxRepository {
	return &PostgreSQLInboxRepository{db: db, tables: tables}
}

// TryMarkProcessing inserts the record if absent
func (r *PostgreSQLInboxRepository) TryMarkProcessing(ctx context.Context, msg *domain.InboxMessage) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal inbox metadata")
	}

	query := r.tables.Expand(`INSERT INTO {{inbox}} (message_id, handler_name, event_type, event_data,
		metadata, status, attempts, instance_id, claimed_at, partition_number, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (message_id, handler_name) DO NOTHING`)

	result, err := querier.ExecContext(ctx, query, msg.MessageID, msg.HandlerName, msg.EventType,
		[]byte(msg.EventData), metadata, msg.Status, msg.Attempts, msg.InstanceID, msg.ClaimedAt,
		msg.PartitionNumber, msg.ReceivedAt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to record inbox message")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to record inbox message")
	}
	return affected == 1, nil
}

// MarkProcessed sets processed status on the given records
func (r *PostgreSQLInboxRepository) MarkProcessed(ctx context.Context, at time.Time, keys ...domain.Key) error {
	if len(keys) == 0 {
		return nil
	}

	args := []any{domain.InboxStatusProcessed, at}
	for _, key := range keys {
		args = append(args, key.MessageID, key.HandlerName)
	}

	query := r.tables.Expand(`UPDATE {{inbox}}
		SET status = $1, processed_at = $2, instance_id = NULL, claimed_at = NULL, error = NULL
		WHERE (message_id, handler_name) IN (` + database.PostgresTuplePlaceholders(3, len(keys), 2) + `)
		  AND status <> $1`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to mark inbox messages processed")
	}
	return nil
}

// MarkFailed records a failed handler attempt
func (r *PostgreSQLInboxRepository) MarkFailed(ctx context.Context, failure domain.Failure, maxAttempts int) error {
	query := r.tables.Expand(`UPDATE {{inbox}}
		SET status = CASE WHEN $4::boolean OR attempts + 1 >= $5 THEN $6 ELSE status END,
		    attempts = attempts + 1,
		    error = $3,
		    instance_id = NULL,
		    claimed_at = NULL
		WHERE message_id = $1 AND handler_name = $2 AND status = $7
		  AND ($8::uuid IS NULL OR instance_id IS NULL OR instance_id = $8)`)

	_, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, failure.MessageID, failure.HandlerName,
		failure.Error, failure.Terminal, maxAttempts, domain.InboxStatusFailed, domain.InboxStatusPending,
		lease.Owner(failure.InstanceID))
	if err != nil {
		return apperrors.Wrap(err, "failed to mark inbox message failed")
	}
	return nil
}

// ClaimPending locks eligible pending records in the claimed partitions and assigns them
func (r *PostgreSQLInboxRepository) ClaimPending(ctx context.Context, claim lease.Claim) ([]*domain.InboxMessage, error) {
	if claim.Empty() {
		return nil, nil
	}

	args := []any{domain.InboxStatusPending, claim.InstanceID, claim.StaleBefore, claim.Limit}
	for _, p := range claim.Partitions {
		args = append(args, p)
	}

	query := r.tables.Expand(`SELECT ` + inboxColumns + `
		FROM {{inbox}} i
		WHERE i.status = $1
		  AND i.partition_number IN (` + database.PostgresPlaceholders(5, len(claim.Partitions)) + `)
		  AND (i.instance_id IS NULL
		       OR i.instance_id = $2
		       OR NOT EXISTS (SELECT 1 FROM {{service_instances}} si
		                      WHERE si.instance_id = i.instance_id AND si.last_heartbeat_at >= $3))
		ORDER BY i.received_at ASC, i.message_id ASC, i.handler_name ASC
		LIMIT $4
		FOR UPDATE SKIP LOCKED`)

	messages, err := r.list(ctx, query, args...)
	if err != nil || len(messages) == 0 {
		return messages, err
	}

	updateArgs := []any{claim.InstanceID, claim.Now}
	for _, msg := range messages {
		updateArgs = append(updateArgs, msg.MessageID, msg.HandlerName)
		msg.InstanceID = &claim.InstanceID
		msg.ClaimedAt = &claim.Now
	}

	update := r.tables.Expand(`UPDATE {{inbox}} SET instance_id = $1, claimed_at = $2
		WHERE (message_id, handler_name) IN (` + database.PostgresTuplePlaceholders(3, len(messages), 2) + `)`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, update, updateArgs...); err != nil {
		return nil, apperrors.Wrap(err, "failed to claim inbox messages")
	}
	return messages, nil
}

// ReleaseClaims clears the claims held by instanceID
func (r *PostgreSQLInboxRepository) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	query := r.tables.Expand(`UPDATE {{inbox}} SET instance_id = NULL, claimed_at = NULL
		WHERE instance_id = $1 AND status = $2`)

	_, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, instanceID, domain.InboxStatusPending)
	if err != nil {
		return apperrors.Wrap(err, "failed to release inbox claims")
	}
	return nil
}

// Get retrieves an inbox record by key
func (r *PostgreSQLInboxRepository) Get(ctx context.Context, key domain.Key) (*domain.InboxMessage, error) {
	querier := database.GetTx(ctx, r.db)

	query := r.tables.Expand(`SELECT ` + inboxColumns + ` FROM {{inbox}}
		WHERE message_id = $1 AND handler_name = $2`)

	msg, err := scanMessage(querier.QueryRowContext(ctx, query, key.MessageID, key.HandlerName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInboxMessageNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get inbox message")
	}
	return msg, nil
}

// ListFailed returns failed records oldest first
func (r *PostgreSQLInboxRepository) ListFailed(ctx context.Context, offset, limit int) ([]*domain.InboxMessage, error) {
	query := r.tables.Expand(`SELECT ` + inboxColumns + `
		FROM {{inbox}}
		WHERE status = $1
		ORDER BY received_at ASC, message_id ASC, handler_name ASC
		LIMIT $2 OFFSET $3`)

	return r.list(ctx, query, domain.InboxStatusFailed, limit, offset)
}

// ResetFailed moves a failed record back to pending
func (r *PostgreSQLInboxRepository) ResetFailed(ctx context.Context, key domain.Key) error {
	query := r.tables.Expand(`UPDATE {{inbox}}
		SET status = $3, attempts = 0, error = NULL, instance_id = NULL, claimed_at = NULL
		WHERE message_id = $1 AND handler_name = $2 AND status = $4`)

	result, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, key.MessageID, key.HandlerName,
		domain.InboxStatusPending, domain.InboxStatusFailed)
	if err != nil {
		return apperrors.Wrap(err, "failed to reset inbox message")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to reset inbox message")
	}
	if affected == 0 {
		return domain.ErrInboxMessageNotFound
	}
	return nil
}

func (r *PostgreSQLInboxRepository) list(ctx context.Context, query string, args ...any) ([]*domain.InboxMessage, error) {
	rows, err := database.GetTx(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list inbox messages")
	}
	defer rows.Close() //nolint:errcheck

	var messages []*domain.InboxMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan inbox message")
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate inbox messages")
	}

	return messages, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*domain.InboxMessage, error) {
	var (
		msg            domain.InboxMessage
		lastError      sql.NullString
		instanceID     uuid.NullUUID
		claimedAt      sql.NullTime
		processedAt    sql.NullTime
		data, metadata []byte
	)
	err := row.Scan(&msg.MessageID, &msg.HandlerName, &msg.EventType, &data, &metadata, &msg.Status,
		&msg.Attempts, &lastError, &instanceID, &claimedAt, &msg.PartitionNumber, &msg.ReceivedAt,
		&processedAt)
	if err != nil {
		return nil, err
	}

	msg.EventData = json.RawMessage(data)
	if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal inbox metadata")
	}
	if lastError.Valid {
		msg.Error = &lastError.String
	}
	if instanceID.Valid {
		msg.InstanceID = &instanceID.UUID
	}
	if claimedAt.Valid {
		msg.ClaimedAt = &claimedAt.Time
	}
	if processedAt.Valid {
		msg.ProcessedAt = &processedAt.Time
	}
	return &msg, nil
}
