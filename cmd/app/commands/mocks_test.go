package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	inboxDomain "github.com/allisson/whizbang/internal/inbox/domain"
	outboxDomain "github.com/allisson/whizbang/internal/outbox/domain"
	perspectiveDomain "github.com/allisson/whizbang/internal/perspective/domain"
)

type MockFailedOutbox struct {
	mock.Mock
}

func (m *MockFailedOutbox) ListFailed(ctx context.Context, offset, limit int) ([]*outboxDomain.OutboxMessage, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outboxDomain.OutboxMessage), args.Error(1)
}

func (m *MockFailedOutbox) ResetFailed(ctx context.Context, messageID uuid.UUID) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type MockFailedInbox struct {
	mock.Mock
}

func (m *MockFailedInbox) ListFailed(ctx context.Context, offset, limit int) ([]*inboxDomain.InboxMessage, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*inboxDomain.InboxMessage), args.Error(1)
}

func (m *MockFailedInbox) ResetFailed(ctx context.Context, messageID uuid.UUID, handlerName string) error {
	args := m.Called(ctx, messageID, handlerName)
	return args.Error(0)
}

type MockFailedCheckpoints struct {
	mock.Mock
}

func (m *MockFailedCheckpoints) ListFailed(
	ctx context.Context,
	offset, limit int,
) ([]*perspectiveDomain.Checkpoint, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*perspectiveDomain.Checkpoint), args.Error(1)
}

func (m *MockFailedCheckpoints) Retry(ctx context.Context, key perspectiveDomain.Key) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
