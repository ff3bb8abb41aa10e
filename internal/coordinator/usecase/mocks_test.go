package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/whizbang/internal/coordinator/domain"
	inboxdomain "github.com/allisson/whizbang/internal/inbox/domain"
	"github.com/allisson/whizbang/internal/lease"
	"github.com/allisson/whizbang/internal/metrics"
	outboxdomain "github.com/allisson/whizbang/internal/outbox/domain"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
	perspectiveusecase "github.com/allisson/whizbang/internal/perspective/usecase"
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

// MockInstanceRepository is a mock implementation of InstanceRepository
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) Heartbeat(ctx context.Context, instance *domain.ServiceInstance) error {
	args := m.Called(ctx, instance)
	return args.Error(0)
}

func (m *MockInstanceRepository) ListLive(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockInstanceRepository) Get(ctx context.Context, instanceID uuid.UUID) (*domain.ServiceInstance, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ServiceInstance), args.Error(1)
}

func (m *MockInstanceRepository) List(ctx context.Context) ([]*domain.ServiceInstance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ServiceInstance), args.Error(1)
}

func (m *MockInstanceRepository) Delete(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// MockPartitionRepository is a mock implementation of PartitionRepository
type MockPartitionRepository struct {
	mock.Mock
}

func (m *MockPartitionRepository) Replace(
	ctx context.Context,
	instanceID uuid.UUID,
	partitions []int,
	now time.Time,
) error {
	args := m.Called(ctx, instanceID, partitions, now)
	return args.Error(0)
}

func (m *MockPartitionRepository) ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]int, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockPartitionRepository) DeleteByInstance(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// MockOutboxWork is a mock implementation of OutboxWork
type MockOutboxWork struct {
	mock.Mock
}

func (m *MockOutboxWork) ClaimPending(ctx context.Context, claim lease.Claim) ([]*outboxdomain.OutboxMessage, error) {
	args := m.Called(ctx, claim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxdomain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxWork) MarkPublished(ctx context.Context, at time.Time, messageIDs ...uuid.UUID) error {
	args := m.Called(ctx, at, messageIDs)
	return args.Error(0)
}

func (m *MockOutboxWork) MarkFailed(ctx context.Context, failure outboxdomain.Failure, maxAttempts int) error {
	args := m.Called(ctx, failure, maxAttempts)
	return args.Error(0)
}

func (m *MockOutboxWork) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// MockInboxWork is a mock implementation of InboxWork
type MockInboxWork struct {
	mock.Mock
}

func (m *MockInboxWork) ClaimPending(ctx context.Context, claim lease.Claim) ([]*inboxdomain.InboxMessage, error) {
	args := m.Called(ctx, claim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*inboxdomain.InboxMessage), args.Error(1)
}

func (m *MockInboxWork) MarkProcessed(ctx context.Context, at time.Time, keys ...inboxdomain.Key) error {
	args := m.Called(ctx, at, keys)
	return args.Error(0)
}

func (m *MockInboxWork) MarkFailed(ctx context.Context, failure inboxdomain.Failure, maxAttempts int) error {
	args := m.Called(ctx, failure, maxAttempts)
	return args.Error(0)
}

func (m *MockInboxWork) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// MockCheckpointWork is a mock implementation of CheckpointWork
type MockCheckpointWork struct {
	mock.Mock
}

func (m *MockCheckpointWork) Acquire(
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

func (m *MockCheckpointWork) ClaimProcessing(ctx context.Context, claim lease.Claim) ([]*pdomain.Checkpoint, error) {
	args := m.Called(ctx, claim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*pdomain.Checkpoint), args.Error(1)
}

func (m *MockCheckpointWork) Complete(ctx context.Context, instanceID uuid.UUID, keys ...pdomain.Key) error {
	args := m.Called(ctx, instanceID, keys)
	return args.Error(0)
}

func (m *MockCheckpointWork) Release(ctx context.Context, instanceID uuid.UUID, keys ...pdomain.Key) error {
	args := m.Called(ctx, instanceID, keys)
	return args.Error(0)
}

func (m *MockCheckpointWork) MarkFailed(ctx context.Context, failure pdomain.Failure) error {
	args := m.Called(ctx, failure)
	return args.Error(0)
}

func (m *MockCheckpointWork) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// MockCoordinator is a mock implementation of Coordinator
type MockCoordinator struct {
	mock.Mock
}

func (m *MockCoordinator) ProcessWorkBatch(ctx context.Context, req *domain.WorkBatchRequest) (*domain.WorkBatch, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WorkBatch), args.Error(1)
}

func (m *MockCoordinator) AcquirePerspectiveCheckpointWork(
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

func (m *MockCoordinator) Deregister(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

func (m *MockCoordinator) ListInstances(ctx context.Context) ([]*domain.ServiceInstance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ServiceInstance), args.Error(1)
}

// MockOutboxPublisher is a mock implementation of OutboxPublisher
type MockOutboxPublisher struct {
	mock.Mock
}

func (m *MockOutboxPublisher) Publish(ctx context.Context, msg *outboxdomain.OutboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockInboxHandler is a mock implementation of InboxHandler
type MockInboxHandler struct {
	mock.Mock
}

func (m *MockInboxHandler) Handle(ctx context.Context, msg *inboxdomain.InboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockRunner is a mock implementation of perspective usecase.Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, key pdomain.Key) (*perspectiveusecase.RunResult, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perspectiveusecase.RunResult), args.Error(1)
}

// MockBusinessMetrics is a mock implementation of metrics.BusinessMetrics
type MockBusinessMetrics struct {
	mock.Mock
}

var _ metrics.BusinessMetrics = (*MockBusinessMetrics)(nil)

func (m *MockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *MockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *MockBusinessMetrics) RecordWorkItems(ctx context.Context, kind, outcome string, count int) {
	m.Called(ctx, kind, outcome, count)
}
