package usecase

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	"github.com/allisson/whizbang/internal/eventstore/domain"
	"github.com/allisson/whizbang/internal/messaging"
	"github.com/allisson/whizbang/internal/sequence"
)

// DefaultPageSize is the number of events fetched per query while iterating a stream.
const DefaultPageSize = 100

// eventStoreUseCase implements EventStore.
type eventStoreUseCase struct {
	txManager database.TxManager
	repo      EventRepository
	sequences sequence.Provider
	types     *messaging.TypeRegistry
	pageSize  int
	now       func() time.Time
}

// Option customizes the event store.
type Option func(*eventStoreUseCase)

// WithPageSize sets the number of events fetched per query.
func WithPageSize(size int) Option {
	return func(u *eventStoreUseCase) {
		if size > 0 {
			u.pageSize = size
		}
	}
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(u *eventStoreUseCase) { u.now = now }
}

// NewEventStore creates an EventStore.
func NewEventStore(
	txManager database.TxManager,
	repo EventRepository,
	sequences sequence.Provider,
	types *messaging.TypeRegistry,
	opts ...Option,
) EventStore {
	u := &eventStoreUseCase{
		txManager: txManager,
		repo:      repo,
		sequences: sequences,
		types:     types,
		pageSize:  DefaultPageSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *eventStoreUseCase) Append(
	ctx context.Context,
	streamID string,
	event *domain.NewEvent,
) (*domain.Event, error) {
	return u.append(ctx, streamID, nil, event)
}

func (u *eventStoreUseCase) AppendExpected(
	ctx context.Context,
	streamID string,
	expectedVersion int64,
	event *domain.NewEvent,
) (*domain.Event, error) {
	return u.append(ctx, streamID, &expectedVersion, event)
}

// append draws the sequence value first: the upsert locks the stream's sequence row
// until the transaction ends, so the version read after it sees every committed
// append of the stream.
func (u *eventStoreUseCase) append(
	ctx context.Context,
	streamID string,
	expectedVersion *int64,
	newEvent *domain.NewEvent,
) (*domain.Event, error) {
	if strings.TrimSpace(streamID) == "" {
		return nil, domain.ErrEmptyStreamID
	}
	if err := newEvent.Validate(); err != nil {
		return nil, err
	}

	var appended *domain.Event
	err := u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		seq, err := u.sequences.GetNext(txCtx, sequence.StreamKey(streamID))
		if err != nil {
			return err
		}

		lastVersion, err := u.repo.GetLastVersion(txCtx, streamID)
		if err != nil {
			return err
		}

		if expectedVersion != nil && lastVersion != *expectedVersion {
			return fmt.Errorf(
				"%w: stream %s is at version %d, expected %d",
				domain.ErrConcurrencyConflict, streamID, lastVersion, *expectedVersion,
			)
		}

		if err := txCtx.Err(); err != nil {
			return err
		}

		event := newEvent.ToEvent(streamID, lastVersion+1, seq, u.now())
		if err := u.repo.Insert(txCtx, event); err != nil {
			return err
		}

		appended = event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appended, nil
}

func (u *eventStoreUseCase) Read(
	ctx context.Context,
	streamID string,
	fromSequence int64,
) iter.Seq2[*domain.Event, error] {
	return u.paginate(ctx, fromSequence, func(cursor int64) ([]*domain.Event, error) {
		return u.repo.ListFromSequence(ctx, streamID, cursor, u.pageSize)
	}, func(e *domain.Event) int64 { return e.SequenceNumber + 1 })
}

func (u *eventStoreUseCase) ReadAfter(
	ctx context.Context,
	streamID string,
	afterEventID uuid.UUID,
) iter.Seq2[*domain.Event, error] {
	return func(yield func(*domain.Event, error) bool) {
		afterVersion := domain.NoVersion
		if afterEventID != uuid.Nil {
			after, err := u.repo.GetByID(ctx, afterEventID)
			if err != nil {
				yield(nil, err)
				return
			}
			if after.StreamID != streamID {
				yield(nil, fmt.Errorf("%w: %s is not in stream %s", domain.ErrEventNotFound, afterEventID, streamID))
				return
			}
			afterVersion = after.Version
		}

		events := u.paginate(ctx, afterVersion, func(cursor int64) ([]*domain.Event, error) {
			return u.repo.ListAfterVersion(ctx, streamID, cursor, u.pageSize)
		}, func(e *domain.Event) int64 { return e.Version })

		for e, err := range events {
			if !yield(e, err) {
				return
			}
		}
	}
}

func (u *eventStoreUseCase) ReadPolymorphic(
	ctx context.Context,
	streamID string,
	fromSequence int64,
) iter.Seq2[*domain.DecodedEvent, error] {
	return func(yield func(*domain.DecodedEvent, error) bool) {
		for e, err := range u.Read(ctx, streamID, fromSequence) {
			if err != nil {
				yield(nil, err)
				return
			}

			payload, err := u.types.Decode(e.EventType, e.Data)
			if err != nil {
				yield(nil, err)
				return
			}

			if !yield(&domain.DecodedEvent{Event: e, Payload: payload}, nil) {
				return
			}
		}
	}
}

func (u *eventStoreUseCase) GetLastSequence(ctx context.Context, streamID string) (int64, error) {
	return u.repo.GetLastSequence(ctx, streamID)
}

func (u *eventStoreUseCase) GetLastVersion(ctx context.Context, streamID string) (int64, error) {
	return u.repo.GetLastVersion(ctx, streamID)
}

// paginate re-queries fetch from cursor until a short page, advancing the cursor
// past each yielded event. Each range over the result starts from the beginning.
func (u *eventStoreUseCase) paginate(
	ctx context.Context,
	start int64,
	fetch func(cursor int64) ([]*domain.Event, error),
	advance func(*domain.Event) int64,
) iter.Seq2[*domain.Event, error] {
	return func(yield func(*domain.Event, error) bool) {
		cursor := start
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := fetch(cursor)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, e := range page {
				if !yield(e, nil) {
					return
				}
				cursor = advance(e)
			}

			if len(page) < u.pageSize {
				return
			}
		}
	}
}
