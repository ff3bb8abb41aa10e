package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/outbox/domain"
)

func newTestPollingPublisher(
	txManager *MockTxManager,
	repo *MockOutboxRepository,
	publisher *MockMessagePublisher,
) *PollingPublisher {
	return NewPollingPublisher(
		Config{Interval: 10 * time.Millisecond, BatchSize: 10, MaxAttempts: 3},
		txManager,
		repo,
		publisher,
		nil,
	)
}

func TestPollingPublisher_ProcessPending(t *testing.T) {
	t.Run("no pending messages", func(t *testing.T) {
		txManager := &MockTxManager{}
		repo := &MockOutboxRepository{}
		publisher := &MockMessagePublisher{}
		p := newTestPollingPublisher(txManager, repo, publisher)

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetPending", mock.Anything, 10).Return([]*domain.OutboxMessage{}, nil).Once()

		require.NoError(t, p.ProcessPending(context.Background()))
		publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "MarkPublished", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("publishes and marks published", func(t *testing.T) {
		txManager := &MockTxManager{}
		repo := &MockOutboxRepository{}
		publisher := &MockMessagePublisher{}
		p := newTestPollingPublisher(txManager, repo, publisher)
		first := newTestMessage(t, "orders", "order-123")
		second := newTestMessage(t, "orders", "order-124")

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetPending", mock.Anything, 10).
			Return([]*domain.OutboxMessage{first, second}, nil).Once()
		publisher.On("Publish", mock.Anything, first).Return(nil).Once()
		publisher.On("Publish", mock.Anything, second).Return(nil).Once()
		repo.On("MarkPublished", mock.Anything, mock.AnythingOfType("time.Time"),
			[]uuid.UUID{first.MessageID, second.MessageID}).Return(nil).Once()

		require.NoError(t, p.ProcessPending(context.Background()))
		publisher.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("transient failure counts an attempt", func(t *testing.T) {
		txManager := &MockTxManager{}
		repo := &MockOutboxRepository{}
		publisher := &MockMessagePublisher{}
		p := newTestPollingPublisher(txManager, repo, publisher)
		failing := newTestMessage(t, "orders", "order-123")
		ok := newTestMessage(t, "orders", "order-124")

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetPending", mock.Anything, 10).
			Return([]*domain.OutboxMessage{failing, ok}, nil).Once()
		publisher.On("Publish", mock.Anything, failing).Return(errors.New("broker down")).Once()
		publisher.On("Publish", mock.Anything, ok).Return(nil).Once()
		repo.On("MarkFailed", mock.Anything, domain.Failure{
			MessageID: failing.MessageID,
			Error:     "broker down",
		}, 3).Return(nil).Once()
		repo.On("MarkPublished", mock.Anything, mock.AnythingOfType("time.Time"),
			[]uuid.UUID{ok.MessageID}).Return(nil).Once()

		require.NoError(t, p.ProcessPending(context.Background()))
		repo.AssertExpectations(t)
	})

	t.Run("terminal failure is flagged", func(t *testing.T) {
		txManager := &MockTxManager{}
		repo := &MockOutboxRepository{}
		publisher := &MockMessagePublisher{}
		p := newTestPollingPublisher(txManager, repo, publisher)
		msg := newTestMessage(t, "orders", "")

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetPending", mock.Anything, 10).Return([]*domain.OutboxMessage{msg}, nil).Once()
		publisher.On("Publish", mock.Anything, msg).Return(domain.ErrCorruptEnvelope).Once()
		repo.On("MarkFailed", mock.Anything, mock.MatchedBy(func(f domain.Failure) bool {
			return f.MessageID == msg.MessageID && f.Terminal
		}), 3).Return(nil).Once()

		require.NoError(t, p.ProcessPending(context.Background()))
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "MarkPublished", mock.Anything, mock.Anything, mock.Anything)
		assert.True(t, apperrors.Is(domain.ErrCorruptEnvelope, apperrors.ErrTerminal))
	})

	t.Run("get pending error", func(t *testing.T) {
		txManager := &MockTxManager{}
		repo := &MockOutboxRepository{}
		publisher := &MockMessagePublisher{}
		p := newTestPollingPublisher(txManager, repo, publisher)
		expectedErr := errors.New("database error")

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetPending", mock.Anything, 10).Return(nil, expectedErr).Once()

		assert.Equal(t, expectedErr, p.ProcessPending(context.Background()))
	})

	t.Run("mark failed error aborts the batch", func(t *testing.T) {
		txManager := &MockTxManager{}
		repo := &MockOutboxRepository{}
		publisher := &MockMessagePublisher{}
		p := newTestPollingPublisher(txManager, repo, publisher)
		msg := newTestMessage(t, "orders", "")
		expectedErr := errors.New("database error")

		txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetPending", mock.Anything, 10).Return([]*domain.OutboxMessage{msg}, nil).Once()
		publisher.On("Publish", mock.Anything, msg).Return(errors.New("broker down")).Once()
		repo.On("MarkFailed", mock.Anything, mock.Anything, 3).Return(expectedErr).Once()

		assert.Equal(t, expectedErr, p.ProcessPending(context.Background()))
		repo.AssertNotCalled(t, "MarkPublished", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPollingPublisher_Start(t *testing.T) {
	txManager := &MockTxManager{}
	repo := &MockOutboxRepository{}
	publisher := &MockMessagePublisher{}
	p := newTestPollingPublisher(txManager, repo, publisher)

	txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	repo.On("GetPending", mock.Anything, 10).Return([]*domain.OutboxMessage{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	repo.AssertCalled(t, "GetPending", mock.Anything, 10)
}
