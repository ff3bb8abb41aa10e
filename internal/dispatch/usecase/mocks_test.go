package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	esdomain "github.com/allisson/whizbang/internal/eventstore/domain"
	outboxdomain "github.com/allisson/whizbang/internal/outbox/domain"
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

// MockEventAppender is a mock implementation of EventAppender
type MockEventAppender struct {
	mock.Mock
}

func (m *MockEventAppender) Append(ctx context.Context, streamID string, event *esdomain.NewEvent) (*esdomain.Event, error) {
	args := m.Called(ctx, streamID, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*esdomain.Event), args.Error(1)
}

// MockOutboxStore is a mock implementation of OutboxStore
type MockOutboxStore struct {
	mock.Mock
}

func (m *MockOutboxStore) Store(ctx context.Context, msg *outboxdomain.OutboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockCheckpointAcquirer is a mock implementation of CheckpointAcquirer
type MockCheckpointAcquirer struct {
	mock.Mock
}

func (m *MockCheckpointAcquirer) AcquirePerspectiveCheckpointWork(
	ctx context.Context,
	streamID string,
	perspectiveNames []string,
	eventID uuid.UUID,
) ([]*pdomain.Checkpoint, error) {
	args := m.Called(ctx, streamID, perspectiveNames, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*pdomain.Checkpoint), args.Error(1)
}

type staticFollowers map[string][]string

func (f staticFollowers) Names(streamType string) []string { return f[streamType] }
