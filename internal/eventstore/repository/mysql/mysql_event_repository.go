// Package mysql implements event persistence for MySQL.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/eventstore/domain"
)

const eventColumns = `event_id, aggregate_id, aggregate_type, event_type, event_data, metadata,
	sequence_number, version, created_at`

// MySQLEventRepository implements event persistence for MySQL.
// Uses BINARY(16) for UUIDs and JSON columns with transaction support.
type MySQLEventRepository struct {
	db     *sql.DB
	tables database.Tables
}

// NewMySQLEventRepository creates a new MySQLEventRepository.
func NewMySQLEventRepository(db *sql.DB, tables database.Tables) *MySQLEventRepository {
	return &MySQLEventRepository{db: db, tables: tables}
}

// Insert stores event, mapping a (aggregate_id, version) collision to ErrConcurrencyConflict.
func (m *MySQLEventRepository) Insert(ctx context.Context, event *domain.Event) error {
	querier := database.GetTx(ctx, m.db)

	id, err := event.EventID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal event id")
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal event metadata")
	}

	query := m.tables.Expand(`INSERT INTO {{event_store}} (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		event.StreamID,
		event.StreamType,
		event.EventType,
		[]byte(event.Data),
		metadata,
		event.SequenceNumber,
		event.Version,
		event.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
		}
		return apperrors.Wrap(err, "failed to insert event")
	}
	return nil
}

// GetByID returns the event with eventID.
func (m *MySQLEventRepository) GetByID(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := eventID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal event id")
	}

	query := m.tables.Expand(`SELECT ` + eventColumns + ` FROM {{event_store}} WHERE event_id = ?`)

	event, err := scanEvent(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get event")
	}
	return event, nil
}

// GetLastVersion returns the highest version of streamID.
func (m *MySQLEventRepository) GetLastVersion(ctx context.Context, streamID string) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := m.tables.Expand(`SELECT COALESCE(MAX(version), 0) FROM {{event_store}} WHERE aggregate_id = ?`)

	var version int64
	if err := querier.QueryRowContext(ctx, query, streamID).Scan(&version); err != nil {
		return 0, apperrors.Wrap(err, "failed to get last version")
	}
	return version, nil
}

// GetLastSequence returns the highest sequence number of streamID.
func (m *MySQLEventRepository) GetLastSequence(ctx context.Context, streamID string) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := m.tables.Expand(`SELECT COALESCE(MAX(sequence_number), -1) FROM {{event_store}} WHERE aggregate_id = ?`)

	var seq int64
	if err := querier.QueryRowContext(ctx, query, streamID).Scan(&seq); err != nil {
		return 0, apperrors.Wrap(err, "failed to get last sequence")
	}
	return seq, nil
}

// ListFromSequence returns events of streamID with sequence_number >= fromSequence.
func (m *MySQLEventRepository) ListFromSequence(
	ctx context.Context,
	streamID string,
	fromSequence int64,
	limit int,
) ([]*domain.Event, error) {
	query := m.tables.Expand(`SELECT ` + eventColumns + ` FROM {{event_store}}
		WHERE aggregate_id = ? AND sequence_number >= ?
		ORDER BY sequence_number ASC
		LIMIT ?`)
	return m.list(ctx, query, streamID, fromSequence, limit)
}

// ListAfterVersion returns events of streamID with version > afterVersion.
func (m *MySQLEventRepository) ListAfterVersion(
	ctx context.Context,
	streamID string,
	afterVersion int64,
	limit int,
) ([]*domain.Event, error) {
	query := m.tables.Expand(`SELECT ` + eventColumns + ` FROM {{event_store}}
		WHERE aggregate_id = ? AND version > ?
		ORDER BY version ASC
		LIMIT ?`)
	return m.list(ctx, query, streamID, afterVersion, limit)
}

func (m *MySQLEventRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list events")
	}
	defer rows.Close() //nolint:errcheck

	var events []*domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan event")
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate events")
	}

	return events, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*domain.Event, error) {
	var (
		event          domain.Event
		idBytes        []byte
		data, metadata []byte
	)
	err := row.Scan(
		&idBytes,
		&event.StreamID,
		&event.StreamType,
		&event.EventType,
		&data,
		&metadata,
		&event.SequenceNumber,
		&event.Version,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := event.EventID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal event id")
	}

	event.Data = json.RawMessage(data)
	if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal event metadata")
	}
	return &event, nil
}
