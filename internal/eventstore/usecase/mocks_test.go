package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/whizbang/internal/eventstore/domain"
	"github.com/allisson/whizbang/internal/metrics"
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
	// Execute the function to test the logic inside
	return fn(ctx)
}

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Insert(ctx context.Context, event *domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) GetByID(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockEventRepository) GetLastVersion(ctx context.Context, streamID string) (int64, error) {
	args := m.Called(ctx, streamID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEventRepository) GetLastSequence(ctx context.Context, streamID string) (int64, error) {
	args := m.Called(ctx, streamID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEventRepository) ListFromSequence(
	ctx context.Context,
	streamID string,
	fromSequence int64,
	limit int,
) ([]*domain.Event, error) {
	args := m.Called(ctx, streamID, fromSequence, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Event), args.Error(1)
}

func (m *MockEventRepository) ListAfterVersion(
	ctx context.Context,
	streamID string,
	afterVersion int64,
	limit int,
) ([]*domain.Event, error) {
	args := m.Called(ctx, streamID, afterVersion, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Event), args.Error(1)
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
