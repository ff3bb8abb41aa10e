package postgresql

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/whizbang/internal/database"
	"github.com/allisson/whizbang/internal/eventstore/domain"
	"github.com/allisson/whizbang/internal/eventstore/usecase"
	"github.com/allisson/whizbang/internal/messaging"
	sequencepg "github.com/allisson/whizbang/internal/sequence/repository/postgresql"
	"github.com/allisson/whizbang/internal/testutil"
)

func newEvent(streamID string, version int64) *domain.Event {
	return &domain.Event{
		EventID:        uuid.Must(uuid.NewV7()),
		StreamID:       streamID,
		StreamType:     "Order",
		EventType:      "OrderCreated",
		Data:           json.RawMessage(`{"order_id":"order-123"}`),
		Metadata:       map[string]string{"tenant": "acme"},
		SequenceNumber: version - 1,
		Version:        version,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestPostgreSQLEventRepository_Insert_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewPostgreSQLEventRepository(db, database.NewTables(""))
	mock.ExpectExec(`INSERT INTO wh_event_store`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err = repo.Insert(context.Background(), newEvent("order-123", 1))

	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLEventRepository_GetLastVersion_UsesPrefix(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewPostgreSQLEventRepository(db, database.NewTables("wb_"))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM wb_event_store WHERE aggregate_id = \$1`).
		WithArgs("order-123").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(4)))

	version, err := repo.GetLastVersion(context.Background(), "order-123")

	require.NoError(t, err)
	assert.Equal(t, int64(4), version)
}

func TestPostgreSQLEventRepository_Integration(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLEventRepository(db, testutil.Tables)
	ctx := context.Background()

	event := newEvent("order-123", 1)
	require.NoError(t, repo.Insert(ctx, event))

	got, err := repo.GetByID(ctx, event.EventID)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, got.EventID)
	assert.JSONEq(t, string(event.Data), string(got.Data))
	assert.Equal(t, event.Metadata, got.Metadata)
	assert.WithinDuration(t, event.CreatedAt, got.CreatedAt, time.Second)

	err = repo.Insert(ctx, newEvent("order-123", 1))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	_, err = repo.GetByID(ctx, uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	seq, err := repo.GetLastSequence(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, domain.NoSequence, seq)
}

func newIntegrationStore(t *testing.T) (usecase.EventStore, func()) {
	t.Helper()
	db := testutil.SetupPostgresDB(t)
	store := usecase.NewEventStore(
		database.NewTxManager(db),
		NewPostgreSQLEventRepository(db, testutil.Tables),
		sequencepg.NewPostgreSQLSequenceRepository(db, testutil.Tables),
		messaging.NewTypeRegistry(),
		usecase.WithPageSize(3),
	)
	return store, func() {
		testutil.CleanupPostgresDB(t, db)
		testutil.TeardownDB(t, db)
	}
}

func TestEventStore_Integration_SequentialAppends(t *testing.T) {
	store, cleanup := newIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	const n = 7
	for range n {
		_, err := store.Append(ctx, "order-123", &domain.NewEvent{
			StreamType: "Order",
			EventType:  "OrderUpdated",
			Data:       json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}

	var versions, sequences []int64
	for e, err := range store.Read(ctx, "order-123", 0) {
		require.NoError(t, err)
		versions = append(versions, e.Version)
		sequences = append(sequences, e.SequenceNumber)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, versions)
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6}, sequences)

	last, err := store.GetLastSequence(ctx, "order-123")
	require.NoError(t, err)
	assert.Equal(t, int64(n-1), last)

	lastVersion, err := store.GetLastVersion(ctx, "order-123")
	require.NoError(t, err)
	assert.Equal(t, int64(n), lastVersion)
}

func TestEventStore_Integration_ConcurrentExpectedAppend(t *testing.T) {
	store, cleanup := newIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	newEvent := func() *domain.NewEvent {
		return &domain.NewEvent{StreamType: "Order", EventType: "OrderCreated", Data: json.RawMessage(`{}`)}
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.AppendExpected(ctx, "order-123", 0, newEvent())
		}()
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, domain.ErrConcurrencyConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	// The losing append gave its sequence value back.
	event, err := store.Append(ctx, "order-123", newEvent())
	require.NoError(t, err)
	assert.Equal(t, int64(2), event.Version)
	assert.Equal(t, int64(1), event.SequenceNumber)
}
