package http

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	coordinatorDomain "github.com/allisson/whizbang/internal/coordinator/domain"
	inboxDomain "github.com/allisson/whizbang/internal/inbox/domain"
	"github.com/allisson/whizbang/internal/messaging"
	outboxDomain "github.com/allisson/whizbang/internal/outbox/domain"
	perspectiveDomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// MockOutbox is a mock implementation of outbox usecase.Outbox
type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) Store(ctx context.Context, msg *outboxDomain.OutboxMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockOutbox) GetPending(ctx context.Context, batchSize int) ([]*outboxDomain.OutboxMessage, error) {
	args := m.Called(ctx, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxDomain.OutboxMessage), args.Error(1)
}

func (m *MockOutbox) MarkPublished(ctx context.Context, messageID uuid.UUID) error {
	return m.Called(ctx, messageID).Error(0)
}

func (m *MockOutbox) ListFailed(ctx context.Context, offset, limit int) ([]*outboxDomain.OutboxMessage, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxDomain.OutboxMessage), args.Error(1)
}

func (m *MockOutbox) ResetFailed(ctx context.Context, messageID uuid.UUID) error {
	return m.Called(ctx, messageID).Error(0)
}

// MockInbox is a mock implementation of inbox usecase.Inbox
type MockInbox struct {
	mock.Mock
}

func (m *MockInbox) TryMarkProcessing(ctx context.Context, msg *inboxDomain.InboxMessage) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MockInbox) MarkProcessed(ctx context.Context, messageID uuid.UUID, handlerName string) error {
	return m.Called(ctx, messageID, handlerName).Error(0)
}

func (m *MockInbox) Receive(ctx context.Context, envelope *messaging.Envelope, destination string) error {
	return m.Called(ctx, envelope, destination).Error(0)
}

func (m *MockInbox) Handle(ctx context.Context, msg *inboxDomain.InboxMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockInbox) Subscribe(ctx context.Context, destinations ...string) ([]messaging.Subscription, error) {
	args := m.Called(ctx, destinations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]messaging.Subscription), args.Error(1)
}

func (m *MockInbox) Get(ctx context.Context, messageID uuid.UUID, handlerName string) (*inboxDomain.InboxMessage, error) {
	args := m.Called(ctx, messageID, handlerName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*inboxDomain.InboxMessage), args.Error(1)
}

func (m *MockInbox) ListFailed(ctx context.Context, offset, limit int) ([]*inboxDomain.InboxMessage, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*inboxDomain.InboxMessage), args.Error(1)
}

func (m *MockInbox) ResetFailed(ctx context.Context, messageID uuid.UUID, handlerName string) error {
	return m.Called(ctx, messageID, handlerName).Error(0)
}

// MockTracker is a mock implementation of perspective usecase.Tracker
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) Checkpoint(ctx context.Context, key perspectiveDomain.Key) (*perspectiveDomain.Checkpoint, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perspectiveDomain.Checkpoint), args.Error(1)
}

func (m *MockTracker) MarkFailed(ctx context.Context, key perspectiveDomain.Key, cause error) error {
	return m.Called(ctx, key, cause).Error(0)
}

func (m *MockTracker) ListFailed(ctx context.Context, offset, limit int) ([]*perspectiveDomain.Checkpoint, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*perspectiveDomain.Checkpoint), args.Error(1)
}

func (m *MockTracker) Retry(ctx context.Context, key perspectiveDomain.Key) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockTracker) Rewind(ctx context.Context, key perspectiveDomain.Key, eventID *uuid.UUID) error {
	return m.Called(ctx, key, eventID).Error(0)
}

// MockCoordinator is a mock implementation of coordinator usecase.Coordinator
type MockCoordinator struct {
	mock.Mock
}

func (m *MockCoordinator) ProcessWorkBatch(
	ctx context.Context,
	req *coordinatorDomain.WorkBatchRequest,
) (*coordinatorDomain.WorkBatch, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coordinatorDomain.WorkBatch), args.Error(1)
}

func (m *MockCoordinator) AcquirePerspectiveCheckpointWork(
	ctx context.Context,
	streamID string,
	perspectiveNames []string,
	eventID uuid.UUID,
) ([]*perspectiveDomain.Checkpoint, error) {
	args := m.Called(ctx, streamID, perspectiveNames, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*perspectiveDomain.Checkpoint), args.Error(1)
}

func (m *MockCoordinator) Deregister(ctx context.Context, instanceID uuid.UUID) error {
	return m.Called(ctx, instanceID).Error(0)
}

func (m *MockCoordinator) ListInstances(ctx context.Context) ([]*coordinatorDomain.ServiceInstance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coordinatorDomain.ServiceInstance), args.Error(1)
}
