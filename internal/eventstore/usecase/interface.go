// Package usecase implements the event store operations on top of a dialect repository.
package usecase

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/eventstore/domain"
)

// EventRepository persists events. Implementations join the caller's transaction
// through database.GetTx.
type EventRepository interface {
	// Insert stores event. A (stream_id, version) unique violation is returned as
	// domain.ErrConcurrencyConflict.
	Insert(ctx context.Context, event *domain.Event) error

	// GetByID returns the event with eventID or domain.ErrEventNotFound.
	GetByID(ctx context.Context, eventID uuid.UUID) (*domain.Event, error)

	// GetLastVersion returns the highest version in streamID or domain.NoVersion.
	GetLastVersion(ctx context.Context, streamID string) (int64, error)

	// GetLastSequence returns the highest sequence number in streamID or domain.NoSequence.
	GetLastSequence(ctx context.Context, streamID string) (int64, error)

	// ListFromSequence returns up to limit events with sequence_number >= fromSequence, ascending.
	ListFromSequence(ctx context.Context, streamID string, fromSequence int64, limit int) ([]*domain.Event, error)

	// ListAfterVersion returns up to limit events with version > afterVersion, ascending.
	ListAfterVersion(ctx context.Context, streamID string, afterVersion int64, limit int) ([]*domain.Event, error)
}

// EventStore is the append-only, versioned per-stream event log.
type EventStore interface {
	// Append adds event at the next version of streamID.
	Append(ctx context.Context, streamID string, event *domain.NewEvent) (*domain.Event, error)

	// AppendExpected appends only when the stream is at expectedVersion, otherwise
	// it returns domain.ErrConcurrencyConflict.
	AppendExpected(
		ctx context.Context,
		streamID string,
		expectedVersion int64,
		event *domain.NewEvent,
	) (*domain.Event, error)

	// Read yields events with sequence_number >= fromSequence in order.
	Read(ctx context.Context, streamID string, fromSequence int64) iter.Seq2[*domain.Event, error]

	// ReadAfter yields events after afterEventID in order. uuid.Nil reads from the start.
	ReadAfter(ctx context.Context, streamID string, afterEventID uuid.UUID) iter.Seq2[*domain.Event, error]

	// ReadPolymorphic is Read with each payload decoded through the type registry.
	// An unregistered event type yields messaging.ErrUnknownEventType and ends iteration.
	ReadPolymorphic(
		ctx context.Context,
		streamID string,
		fromSequence int64,
	) iter.Seq2[*domain.DecodedEvent, error]

	GetLastSequence(ctx context.Context, streamID string) (int64, error)
	GetLastVersion(ctx context.Context, streamID string) (int64, error)
}
