package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/whizbang/internal/inbox/domain"
	"github.com/allisson/whizbang/internal/messaging"
	"github.com/allisson/whizbang/internal/messaging/memory"
)

type testInbox struct {
	inbox     Inbox
	txManager *MockTxManager
	repo      *MockInboxRepository
	registry  *messaging.HandlerRegistry
	transport *memory.Transport
	instance  messaging.ServiceInstanceInfo
}

func newTestInbox(t *testing.T) *testInbox {
	t.Helper()
	ti := &testInbox{
		txManager: &MockTxManager{},
		repo:      &MockInboxRepository{},
		registry:  messaging.NewHandlerRegistry(),
		transport: memory.NewTransport(),
		instance:  messaging.NewServiceInstanceInfo("billing-service"),
	}
	t.Cleanup(func() { _ = ti.transport.Close() })
	ti.inbox = NewInbox(
		Config{PartitionCount: 8, MaxAttempts: 3},
		ti.txManager,
		ti.repo,
		ti.registry,
		ti.transport,
		ti.instance,
		nil,
	)
	ti.txManager.On("WithTx", mock.Anything, mock.Anything).Return(nil)
	return ti
}

func (ti *testInbox) register(t *testing.T, name string, fn func(ctx context.Context, env *messaging.Envelope) error) {
	t.Helper()
	require.NoError(t, ti.registry.Register("OrderCreated", messaging.HandlerFunc{HandlerName: name, Fn: fn}))
}

func newEnvelope() *messaging.Envelope {
	return messaging.NewEnvelope("OrderCreated", json.RawMessage(`{"order_id":"order-123"}`))
}

func TestInbox_Receive(t *testing.T) {
	t.Run("first delivery runs handler and marks processed", func(t *testing.T) {
		ti := newTestInbox(t)
		env := newEnvelope()
		calls := 0
		ti.register(t, "send-invoice", func(context.Context, *messaging.Envelope) error {
			calls++
			return nil
		})

		ti.repo.On("TryMarkProcessing", mock.Anything, mock.MatchedBy(func(msg *domain.InboxMessage) bool {
			return msg.MessageID == env.MessageID &&
				msg.HandlerName == "send-invoice" &&
				*msg.InstanceID == ti.instance.InstanceID
		})).Return(true, nil).Once()
		ti.repo.On("MarkProcessed", mock.Anything, mock.AnythingOfType("time.Time"),
			[]domain.Key{{MessageID: env.MessageID, HandlerName: "send-invoice"}}).Return(nil).Once()

		require.NoError(t, ti.inbox.Receive(context.Background(), env, "billing"))
		assert.Equal(t, 1, calls)
		require.Len(t, env.Hops, 1)
		assert.Equal(t, "billing", env.Hops[0].Destination)
		ti.repo.AssertExpectations(t)
	})

	t.Run("duplicate delivery skips handler", func(t *testing.T) {
		ti := newTestInbox(t)
		calls := 0
		ti.register(t, "send-invoice", func(context.Context, *messaging.Envelope) error {
			calls++
			return nil
		})

		ti.repo.On("TryMarkProcessing", mock.Anything, mock.Anything).Return(false, nil).Once()

		require.NoError(t, ti.inbox.Receive(context.Background(), newEnvelope(), "billing"))
		assert.Zero(t, calls)
		ti.repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("handler failure is recorded for retry", func(t *testing.T) {
		ti := newTestInbox(t)
		env := newEnvelope()
		ti.register(t, "send-invoice", func(context.Context, *messaging.Envelope) error {
			return errors.New("smtp down")
		})

		ti.repo.On("TryMarkProcessing", mock.Anything, mock.Anything).Return(true, nil).Twice()
		ti.repo.On("MarkFailed", mock.Anything, domain.Failure{
			Key:   domain.Key{MessageID: env.MessageID, HandlerName: "send-invoice"},
			Error: "smtp down",
		}, 3).Return(nil).Once()

		require.NoError(t, ti.inbox.Receive(context.Background(), env, "billing"))
		ti.repo.AssertExpectations(t)
		ti.repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("each handler is deduplicated separately", func(t *testing.T) {
		ti := newTestInbox(t)
		var ran []string
		for _, name := range []string{"send-invoice", "update-ledger"} {
			ti.register(t, name, func(context.Context, *messaging.Envelope) error {
				ran = append(ran, name)
				return nil
			})
		}

		ti.repo.On("TryMarkProcessing", mock.Anything, mock.MatchedBy(func(msg *domain.InboxMessage) bool {
			return msg.HandlerName == "send-invoice"
		})).Return(false, nil).Once()
		ti.repo.On("TryMarkProcessing", mock.Anything, mock.MatchedBy(func(msg *domain.InboxMessage) bool {
			return msg.HandlerName == "update-ledger"
		})).Return(true, nil).Once()
		ti.repo.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

		require.NoError(t, ti.inbox.Receive(context.Background(), newEnvelope(), "billing"))
		assert.Equal(t, []string{"update-ledger"}, ran)
	})

	t.Run("missing handler", func(t *testing.T) {
		ti := newTestInbox(t)

		err := ti.inbox.Receive(context.Background(), newEnvelope(), "billing")
		assert.ErrorIs(t, err, messaging.ErrHandlerNotFound)
		ti.repo.AssertNotCalled(t, "TryMarkProcessing", mock.Anything, mock.Anything)
	})

	t.Run("repository error", func(t *testing.T) {
		ti := newTestInbox(t)
		expectedErr := errors.New("database error")
		ti.register(t, "send-invoice", func(context.Context, *messaging.Envelope) error { return nil })

		ti.repo.On("TryMarkProcessing", mock.Anything, mock.Anything).Return(false, expectedErr).Once()

		assert.Equal(t, expectedErr, ti.inbox.Receive(context.Background(), newEnvelope(), "billing"))
	})
}

func TestInbox_Handle(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ti := newTestInbox(t)
		env := newEnvelope()
		var got *messaging.Envelope
		ti.register(t, "send-invoice", func(_ context.Context, e *messaging.Envelope) error {
			got = e
			return nil
		})
		msg, err := domain.NewInboxMessage(env, "send-invoice", time.Now().UTC())
		require.NoError(t, err)

		ti.repo.On("MarkProcessed", mock.Anything, mock.Anything,
			[]domain.Key{{MessageID: env.MessageID, HandlerName: "send-invoice"}}).Return(nil).Once()

		require.NoError(t, ti.inbox.Handle(context.Background(), msg))
		require.NotNil(t, got)
		assert.Equal(t, env.MessageID, got.MessageID)
		ti.repo.AssertExpectations(t)
	})

	t.Run("unknown handler is terminal", func(t *testing.T) {
		ti := newTestInbox(t)
		msg, err := domain.NewInboxMessage(newEnvelope(), "removed-handler", time.Now().UTC())
		require.NoError(t, err)

		err = ti.inbox.Handle(context.Background(), msg)
		assert.ErrorIs(t, err, messaging.ErrHandlerNotFound)
	})

	t.Run("handler error", func(t *testing.T) {
		ti := newTestInbox(t)
		expectedErr := errors.New("smtp down")
		ti.register(t, "send-invoice", func(context.Context, *messaging.Envelope) error { return expectedErr })
		msg, err := domain.NewInboxMessage(newEnvelope(), "send-invoice", time.Now().UTC())
		require.NoError(t, err)

		assert.Equal(t, expectedErr, ti.inbox.Handle(context.Background(), msg))
		ti.repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestInbox_Subscribe(t *testing.T) {
	ti := newTestInbox(t)
	delivered := make(chan string, 1)
	ti.register(t, "send-invoice", func(_ context.Context, e *messaging.Envelope) error {
		delivered <- e.EventType
		return nil
	})
	ti.repo.On("TryMarkProcessing", mock.Anything, mock.Anything).Return(true, nil)
	ti.repo.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	subs, err := ti.inbox.Subscribe(context.Background(), "billing")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, ti.transport.Publish(context.Background(), newEnvelope(), "billing"))
	assert.Equal(t, "OrderCreated", <-delivered)

	require.NoError(t, subs[0].Unsubscribe())
}

func TestInbox_Remediation(t *testing.T) {
	ti := newTestInbox(t)
	env := newEnvelope()
	key := domain.Key{MessageID: env.MessageID, HandlerName: "send-invoice"}

	ti.repo.On("ResetFailed", mock.Anything, key).Return(domain.ErrInboxMessageNotFound).Once()
	ti.repo.On("Get", mock.Anything, key).Return(nil, domain.ErrInboxMessageNotFound).Once()

	assert.ErrorIs(t, ti.inbox.ResetFailed(context.Background(), env.MessageID, "send-invoice"),
		domain.ErrInboxMessageNotFound)
	_, err := ti.inbox.Get(context.Background(), env.MessageID, "send-invoice")
	assert.ErrorIs(t, err, domain.ErrInboxMessageNotFound)
}
