package usecase

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/whizbang/internal/eventstore/domain"
	"github.com/allisson/whizbang/internal/lease"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// MockTxManager is a mock implementation of database.TxManager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

// MockCheckpointRepository is a mock implementation of CheckpointRepository
type MockCheckpointRepository struct {
	mock.Mock
}

func (m *MockCheckpointRepository) Get(ctx context.Context, key pdomain.Key) (*pdomain.Checkpoint, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pdomain.Checkpoint), args.Error(1)
}

func (m *MockCheckpointRepository) Acquire(
	ctx context.Context,
	streamID string,
	names []string,
	eventID uuid.UUID,
	partition int,
) ([]*pdomain.Checkpoint, error) {
	args := m.Called(ctx, streamID, names, eventID, partition)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*pdomain.Checkpoint), args.Error(1)
}

func (m *MockCheckpointRepository) Advance(
	ctx context.Context,
	key pdomain.Key,
	eventID uuid.UUID,
	at time.Time,
) (bool, error) {
	args := m.Called(ctx, key, eventID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockCheckpointRepository) MarkFailed(ctx context.Context, failure pdomain.Failure) error {
	args := m.Called(ctx, failure)
	return args.Error(0)
}

func (m *MockCheckpointRepository) SetCatchingUp(ctx context.Context, key pdomain.Key, catchingUp bool) error {
	args := m.Called(ctx, key, catchingUp)
	return args.Error(0)
}

func (m *MockCheckpointRepository) Reset(
	ctx context.Context,
	key pdomain.Key,
	eventID *uuid.UUID,
	status pdomain.CheckpointStatus,
) error {
	args := m.Called(ctx, key, eventID, status)
	return args.Error(0)
}

func (m *MockCheckpointRepository) ListFailed(ctx context.Context, offset, limit int) ([]*pdomain.Checkpoint, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*pdomain.Checkpoint), args.Error(1)
}

func (m *MockCheckpointRepository) ClaimProcessing(ctx context.Context, claim lease.Claim) ([]*pdomain.Checkpoint, error) {
	args := m.Called(ctx, claim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*pdomain.Checkpoint), args.Error(1)
}

func (m *MockCheckpointRepository) Complete(ctx context.Context, instanceID uuid.UUID, keys ...pdomain.Key) error {
	args := m.Called(ctx, instanceID, keys)
	return args.Error(0)
}

func (m *MockCheckpointRepository) Release(ctx context.Context, instanceID uuid.UUID, keys ...pdomain.Key) error {
	args := m.Called(ctx, instanceID, keys)
	return args.Error(0)
}

func (m *MockCheckpointRepository) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// stubEventStore serves ReadAfter from an in-memory stream.
type stubEventStore struct {
	events []*domain.Event
}

func (s *stubEventStore) Append(context.Context, string, *domain.NewEvent) (*domain.Event, error) {
	panic("not used")
}

func (s *stubEventStore) AppendExpected(context.Context, string, int64, *domain.NewEvent) (*domain.Event, error) {
	panic("not used")
}

func (s *stubEventStore) Read(context.Context, string, int64) iter.Seq2[*domain.Event, error] {
	panic("not used")
}

func (s *stubEventStore) ReadAfter(_ context.Context, streamID string, afterEventID uuid.UUID) iter.Seq2[*domain.Event, error] {
	return func(yield func(*domain.Event, error) bool) {
		started := afterEventID == uuid.Nil
		for _, event := range s.events {
			if event.StreamID != streamID {
				continue
			}
			if !started {
				started = event.EventID == afterEventID
				continue
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

func (s *stubEventStore) ReadPolymorphic(context.Context, string, int64) iter.Seq2[*domain.DecodedEvent, error] {
	panic("not used")
}

func (s *stubEventStore) GetLastSequence(context.Context, string) (int64, error) { panic("not used") }
func (s *stubEventStore) GetLastVersion(context.Context, string) (int64, error)  { panic("not used") }

// recordingPerspective records applied events and fails on failOn.
type recordingPerspective struct {
	name    string
	failOn  uuid.UUID
	applied []uuid.UUID
}

func (p *recordingPerspective) Name() string { return p.name }

func (p *recordingPerspective) Apply(_ context.Context, event *domain.Event) error {
	if event.EventID == p.failOn {
		return errProjection
	}
	p.applied = append(p.applied, event.EventID)
	return nil
}
