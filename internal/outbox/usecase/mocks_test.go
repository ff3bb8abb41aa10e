package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/whizbang/internal/lease"
	"github.com/allisson/whizbang/internal/messaging"
	"github.com/allisson/whizbang/internal/metrics"
	"github.com/allisson/whizbang/internal/outbox/domain"
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

// MockOutboxRepository is a mock implementation of OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockOutboxRepository) Get(ctx context.Context, messageID uuid.UUID) (*domain.OutboxMessage, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, claim lease.Claim) ([]*domain.OutboxMessage, error) {
	args := m.Called(ctx, claim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, at time.Time, messageIDs ...uuid.UUID) error {
	args := m.Called(ctx, at, messageIDs)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, failure domain.Failure, maxAttempts int) error {
	args := m.Called(ctx, failure, maxAttempts)
	return args.Error(0)
}

func (m *MockOutboxRepository) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

func (m *MockOutboxRepository) ListFailed(ctx context.Context, offset, limit int) ([]*domain.OutboxMessage, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxMessage), args.Error(1)
}

func (m *MockOutboxRepository) ResetFailed(ctx context.Context, messageID uuid.UUID) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

// MockMessagePublisher is a mock implementation of MessagePublisher
type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, msg *domain.OutboxMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockTransport is a mock implementation of messaging.Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Publish(ctx context.Context, envelope *messaging.Envelope, destination string) error {
	args := m.Called(ctx, envelope, destination)
	return args.Error(0)
}

func (m *MockTransport) Subscribe(
	ctx context.Context,
	destination string,
	handler messaging.Handler,
) (messaging.Subscription, error) {
	args := m.Called(ctx, destination, handler)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(messaging.Subscription), args.Error(1)
}

func (m *MockTransport) IsReady(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *MockTransport) Close() error {
	return m.Called().Error(0)
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

func newTestMessage(t *testing.T, destination, streamID string) *domain.OutboxMessage {
	t.Helper()
	envelope := messaging.NewEnvelope("OrderCreated", []byte(`{"order_id":"order-123"}`))
	msg, err := domain.NewOutboxMessage(envelope, destination, streamID, time.Now().UTC())
	require.NoError(t, err)
	return msg
}
