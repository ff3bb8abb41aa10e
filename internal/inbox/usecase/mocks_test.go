package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/whizbang/internal/inbox/domain"
	"github.com/allisson/whizbang/internal/lease"
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

// MockInboxRepository is a mock implementation of InboxRepository
type MockInboxRepository struct {
	mock.Mock
}

func (m *MockInboxRepository) TryMarkProcessing(ctx context.Context, msg *domain.InboxMessage) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MockInboxRepository) MarkProcessed(ctx context.Context, at time.Time, keys ...domain.Key) error {
	args := m.Called(ctx, at, keys)
	return args.Error(0)
}

func (m *MockInboxRepository) MarkFailed(ctx context.Context, failure domain.Failure, maxAttempts int) error {
	args := m.Called(ctx, failure, maxAttempts)
	return args.Error(0)
}

func (m *MockInboxRepository) ClaimPending(ctx context.Context, claim lease.Claim) ([]*domain.InboxMessage, error) {
	args := m.Called(ctx, claim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InboxMessage), args.Error(1)
}

func (m *MockInboxRepository) ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

func (m *MockInboxRepository) Get(ctx context.Context, key domain.Key) (*domain.InboxMessage, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InboxMessage), args.Error(1)
}

func (m *MockInboxRepository) ListFailed(ctx context.Context, offset, limit int) ([]*domain.InboxMessage, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InboxMessage), args.Error(1)
}

func (m *MockInboxRepository) ResetFailed(ctx context.Context, key domain.Key) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
