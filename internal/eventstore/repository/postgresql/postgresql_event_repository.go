// Package postgresql implements event persistence for PostgreSQL.
package postgresql

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

// PostgreSQLEventRepository implements event persistence for PostgreSQL.
// Uses native UUID and JSONB types with transaction support via database.GetTx().
type PostgreSQLEventRepository struct {
	db     *sql.DB
	tables database.Tables
}

// NewPostgreSQLEventRepository creates a new PostgreSQLEventRepository.
func NewPostgreSQLEventRepository(db *sql.DB, tables database.Tables) *PostgreSQLEventRepository {
	return &PostgreSQLEventRepository{db: db, tables: tables}
}

// Insert stores event, mapping a (aggregate_id, version) collision to ErrConcurrencyConflict.
func (p *PostgreSQLEventRepository) Insert(ctx context.Context, event *domain.Event) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal event metadata")
	}

	query := p.tables.Expand(`INSERT INTO {{event_store}} (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)

	_, err = querier.ExecContext(
		ctx,
		query,
		event.EventID,
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
func (p *PostgreSQLEventRepository) GetByID(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	querier := database.GetTx(ctx, p.db)

	query := p.tables.Expand(`SELECT ` + eventColumns + ` FROM {{event_store}} WHERE event_id = $1`)

	event, err := scanEvent(querier.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get event")
	}
	return event, nil
}

// GetLastVersion returns the highest version of streamID.
func (p *PostgreSQLEventRepository) GetLastVersion(ctx context.Context, streamID string) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := p.tables.Expand(`SELECT COALESCE(MAX(version), 0) FROM {{event_store}} WHERE aggregate_id = $1`)

	var version int64
	if err := querier.QueryRowContext(ctx, query, streamID).Scan(&version); err != nil {
		return 0, apperrors.Wrap(err, "failed to get last version")
	}
	return version, nil
}

// GetLastSequence returns the highest sequence number of streamID.
func (p *PostgreSQLEventRepository) GetLastSequence(ctx context.Context, streamID string) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := p.tables.Expand(`SELECT COALESCE(MAX(sequence_number), -1) FROM {{event_store}} WHERE aggregate_id = $1`)

	var seq int64
	if err := querier.QueryRowContext(ctx, query, streamID).Scan(&seq); err != nil {
		return 0, apperrors.Wrap(err, "failed to get last sequence")
	}
	return seq, nil
}

// ListFromSequence returns events of streamID with sequence_number >= fromSequence.
func (p *PostgreSQLEventRepository) ListFromSequence(
	ctx context.Context,
	streamID string,
	fromSequence int64,
	limit int,
) ([]*domain.Event, error) {
	query := p.tables.Expand(`SELECT ` + eventColumns + ` FROM {{event_store}}
		WHERE aggregate_id = $1 AND sequence_number >= $2
		ORDER BY sequence_number ASC
		LIMIT $3`)
	return p.list(ctx, query, streamID, fromSequence, limit)
}

// ListAfterVersion returns events of streamID with version > afterVersion.
func (p *PostgreSQLEventRepository) ListAfterVersion(
	ctx context.Context,
	streamID string,
	afterVersion int64,
	limit int,
) ([]*domain.Event, error) {
	query := p.tables.Expand(`SELECT ` + eventColumns + ` FROM {{event_store}}
		WHERE aggregate_id = $1 AND version > $2
		ORDER BY version ASC
		LIMIT $3`)
	return p.list(ctx, query, streamID, afterVersion, limit)
}

func (p *PostgreSQLEventRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	querier := database.GetTx(ctx, p.db)

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
		data, metadata []byte
	)
	err := row.Scan(
		&event.EventID,
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

	event.Data = json.RawMessage(data)
	if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal event metadata")
	}
	return &event, nil
}
