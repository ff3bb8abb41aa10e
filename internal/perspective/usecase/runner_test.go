package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/eventstore/domain"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

var errProjection = apperrors.New("projection exploded")

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func orderStream(streamID string, count int) []*domain.Event {
	events := make([]*domain.Event, count)
	for i := range events {
		events[i] = &domain.Event{
			EventID:    uuid.Must(uuid.NewV7()),
			StreamID:   streamID,
			StreamType: "Order",
			EventType:  "OrderCreated",
			Data:       json.RawMessage(`{"order_id":"order-123"}`),
			Version:    int64(i + 1),
			CreatedAt:  time.Now().UTC(),
		}
	}
	return events
}

func newRunnerFixture(
	t *testing.T,
	events []*domain.Event,
	perspectives ...Perspective,
) (Runner, *MockTxManager, *MockCheckpointRepository) {
	t.Helper()
	registry := NewRegistry()
	for _, p := range perspectives {
		require.NoError(t, registry.Register(p, "Order"))
	}
	txManager := &MockTxManager{}
	repo := &MockCheckpointRepository{}
	runner := NewRunner(txManager, repo, &stubEventStore{events: events}, registry, newLogger())
	return runner, txManager, repo
}

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("applies pending events in order and flags catching up", func(t *testing.T) {
		events := orderStream("order-123", 2)
		p1 := &recordingPerspective{name: "OrderSummary"}
		runner, txManager, repo := newRunnerFixture(t, events, p1)
		key := pdomain.Key{StreamID: "order-123", PerspectiveName: "OrderSummary"}

		repo.On("Get", ctx, key).Return(&pdomain.Checkpoint{Key: key, Status: pdomain.StatusProcessing}, nil).Once()
		txManager.On("WithTx", ctx, mock.Anything).Return(nil).Twice()
		repo.On("Advance", ctx, key, events[0].EventID, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		repo.On("SetCatchingUp", ctx, key, true).Return(nil).Once()
		repo.On("Advance", ctx, key, events[1].EventID, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		repo.On("SetCatchingUp", ctx, key, false).Return(nil).Once()

		result, err := runner.Run(ctx, key)

		require.NoError(t, err)
		assert.Equal(t, 2, result.Applied)
		assert.Equal(t, events[1].EventID, result.LastEventID)
		assert.Equal(t, []uuid.UUID{events[0].EventID, events[1].EventID}, p1.applied)
		repo.AssertExpectations(t)
		txManager.AssertExpectations(t)
	})

	t.Run("single pending event does not flag catching up", func(t *testing.T) {
		events := orderStream("order-123", 2)
		p1 := &recordingPerspective{name: "OrderSummary"}
		runner, txManager, repo := newRunnerFixture(t, events, p1)
		key := pdomain.Key{StreamID: "order-123", PerspectiveName: "OrderSummary"}
		last := events[0].EventID

		repo.On("Get", ctx, key).Return(&pdomain.Checkpoint{Key: key, LastEventID: &last}, nil).Once()
		txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		repo.On("Advance", ctx, key, events[1].EventID, mock.AnythingOfType("time.Time")).Return(true, nil).Once()

		result, err := runner.Run(ctx, key)

		require.NoError(t, err)
		assert.Equal(t, 1, result.Applied)
		assert.Equal(t, []uuid.UUID{events[1].EventID}, p1.applied)
		repo.AssertNotCalled(t, "SetCatchingUp", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failure keeps earlier position and isolates the perspective", func(t *testing.T) {
		events := orderStream("order-123", 2)
		p1 := &recordingPerspective{name: "P1", failOn: events[1].EventID}
		p2 := &recordingPerspective{name: "P2"}
		runner, txManager, repo := newRunnerFixture(t, events, p1, p2)
		k1 := pdomain.Key{StreamID: "order-123", PerspectiveName: "P1"}
		k2 := pdomain.Key{StreamID: "order-123", PerspectiveName: "P2"}

		txManager.On("WithTx", ctx, mock.Anything).Return(nil)
		repo.On("Get", ctx, k1).Return(&pdomain.Checkpoint{Key: k1}, nil).Once()
		repo.On("Advance", ctx, k1, events[0].EventID, mock.AnythingOfType("time.Time")).Return(true, nil).Once()
		repo.On("SetCatchingUp", ctx, k1, true).Return(nil).Once()
		repo.On("MarkFailed", ctx, pdomain.Failure{Key: k1, Error: "projection exploded"}).Return(nil).Once()

		_, err := runner.Run(ctx, k1)

		var applyErr *pdomain.PerspectiveApplyError
		require.ErrorAs(t, err, &applyErr)
		assert.Equal(t, events[1].EventID, applyErr.EventID)
		assert.ErrorIs(t, err, errProjection)
		repo.AssertNotCalled(t, "Advance", mock.Anything, k1, events[1].EventID, mock.Anything)

		repo.On("Get", ctx, k2).Return(&pdomain.Checkpoint{Key: k2}, nil).Once()
		repo.On("Advance", ctx, k2, mock.Anything, mock.AnythingOfType("time.Time")).Return(true, nil).Twice()
		repo.On("SetCatchingUp", ctx, k2, mock.Anything).Return(nil).Twice()

		result, err := runner.Run(ctx, k2)

		require.NoError(t, err)
		assert.Equal(t, 2, result.Applied)
		repo.AssertExpectations(t)
	})

	t.Run("concurrent advance stops the run", func(t *testing.T) {
		events := orderStream("order-123", 1)
		runner, txManager, repo := newRunnerFixture(t, events, &recordingPerspective{name: "OrderSummary"})
		key := pdomain.Key{StreamID: "order-123", PerspectiveName: "OrderSummary"}

		repo.On("Get", ctx, key).Return(&pdomain.Checkpoint{Key: key}, nil).Once()
		txManager.On("WithTx", ctx, mock.Anything).Return(nil).Once()
		repo.On("Advance", ctx, key, events[0].EventID, mock.AnythingOfType("time.Time")).Return(false, nil).Once()

		result, err := runner.Run(ctx, key)

		require.NoError(t, err)
		assert.Equal(t, 0, result.Applied)
		repo.AssertExpectations(t)
	})

	t.Run("unknown perspective is terminal", func(t *testing.T) {
		runner, _, repo := newRunnerFixture(t, nil)

		_, err := runner.Run(ctx, pdomain.Key{StreamID: "order-123", PerspectiveName: "Missing"})

		assert.ErrorIs(t, err, pdomain.ErrPerspectiveNotFound)
		assert.ErrorIs(t, err, apperrors.ErrTerminal)
		repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("invalid key", func(t *testing.T) {
		runner, _, _ := newRunnerFixture(t, nil)

		_, err := runner.Run(ctx, pdomain.Key{StreamID: "order-123"})

		assert.ErrorIs(t, err, pdomain.ErrInvalidCheckpoint)
	})
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&recordingPerspective{name: "OrderSummary"}, "Order"))
	require.NoError(t, registry.Register(&recordingPerspective{name: "CustomerOrders"}, "Order", "Customer"))

	assert.Equal(t, []string{"CustomerOrders", "OrderSummary"}, registry.Names("Order"))
	assert.Equal(t, []string{"CustomerOrders"}, registry.Names("Customer"))
	assert.Empty(t, registry.Names("Invoice"))

	err := registry.Register(&recordingPerspective{name: "OrderSummary"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	p, err := registry.Get("OrderSummary")
	require.NoError(t, err)
	assert.Equal(t, "OrderSummary", p.Name())
}
