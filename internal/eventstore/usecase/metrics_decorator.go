package usecase

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/eventstore/domain"
	"github.com/allisson/whizbang/internal/metrics"
)

// eventStoreWithMetrics decorates EventStore with metrics instrumentation.
// Reads are lazy and pass through untouched.
type eventStoreWithMetrics struct {
	next    EventStore
	metrics metrics.BusinessMetrics
}

// NewEventStoreWithMetrics wraps an EventStore with metrics recording.
func NewEventStoreWithMetrics(store EventStore, m metrics.BusinessMetrics) EventStore {
	return &eventStoreWithMetrics{next: store, metrics: m}
}

func (e *eventStoreWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusFor(err)
	e.metrics.RecordOperation(ctx, "eventstore", operation, status)
	e.metrics.RecordDuration(ctx, "eventstore", operation, time.Since(start), status)
}

// Append records metrics for append operations.
func (e *eventStoreWithMetrics) Append(
	ctx context.Context,
	streamID string,
	event *domain.NewEvent,
) (*domain.Event, error) {
	start := time.Now()
	appended, err := e.next.Append(ctx, streamID, event)
	e.record(ctx, "event_append", start, err)
	return appended, err
}

// AppendExpected records metrics for exclusive append operations.
func (e *eventStoreWithMetrics) AppendExpected(
	ctx context.Context,
	streamID string,
	expectedVersion int64,
	event *domain.NewEvent,
) (*domain.Event, error) {
	start := time.Now()
	appended, err := e.next.AppendExpected(ctx, streamID, expectedVersion, event)
	e.record(ctx, "event_append_expected", start, err)
	return appended, err
}

func (e *eventStoreWithMetrics) Read(
	ctx context.Context,
	streamID string,
	fromSequence int64,
) iter.Seq2[*domain.Event, error] {
	return e.next.Read(ctx, streamID, fromSequence)
}

func (e *eventStoreWithMetrics) ReadAfter(
	ctx context.Context,
	streamID string,
	afterEventID uuid.UUID,
) iter.Seq2[*domain.Event, error] {
	return e.next.ReadAfter(ctx, streamID, afterEventID)
}

func (e *eventStoreWithMetrics) ReadPolymorphic(
	ctx context.Context,
	streamID string,
	fromSequence int64,
) iter.Seq2[*domain.DecodedEvent, error] {
	return e.next.ReadPolymorphic(ctx, streamID, fromSequence)
}

func (e *eventStoreWithMetrics) GetLastSequence(ctx context.Context, streamID string) (int64, error) {
	return e.next.GetLastSequence(ctx, streamID)
}

func (e *eventStoreWithMetrics) GetLastVersion(ctx context.Context, streamID string) (int64, error) {
	return e.next.GetLastVersion(ctx, streamID)
}
