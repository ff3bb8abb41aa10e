package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

func TestFlattenRestore(t *testing.T) {
	cause := NewEnvelope("PlaceOrder", nil)
	envelope := NewEnvelope("OrderCreated", json.RawMessage(`{"order_id":"order-123"}`))
	envelope.CausedBy(cause)
	envelope.Metadata["tenant"] = "acme"
	envelope.AddHop(NewServiceInstanceInfo("orders"), "orders.events")

	metadata, err := envelope.Flatten()
	require.NoError(t, err)
	assert.Equal(t, "acme", metadata["tenant"])

	restored, err := Restore(envelope.MessageID, envelope.EventType, envelope.Payload, metadata, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, cause.CorrelationID, restored.CorrelationID)
	assert.Equal(t, cause.MessageID, restored.CausationID)
	assert.Equal(t, map[string]string{"tenant": "acme"}, restored.Metadata)
	require.Len(t, restored.Hops, 1)
	assert.Equal(t, "orders.events", restored.Hops[0].Destination)
	assert.True(t, envelope.Timestamp.Equal(restored.Timestamp))
}

func TestRestore_DefaultsAndCorruption(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	recordedAt := time.Now().UTC()

	restored, err := Restore(id, "OrderCreated", nil, nil, recordedAt)
	require.NoError(t, err)
	assert.Equal(t, id, restored.CorrelationID)
	assert.Equal(t, uuid.Nil, restored.CausationID)
	assert.Equal(t, recordedAt, restored.Timestamp)

	_, err = Restore(id, "OrderCreated", nil, map[string]string{MetadataCausationID: "nope"}, recordedAt)
	assert.ErrorIs(t, err, ErrCorruptEnvelope)
	assert.ErrorIs(t, err, apperrors.ErrTerminal)
}
