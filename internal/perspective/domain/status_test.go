package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckpointStatus(t *testing.T) {
	s := StatusNone.With(StatusProcessing).With(StatusFailed)

	assert.True(t, s.IsProcessing())
	assert.True(t, s.IsFailed())
	assert.False(t, s.IsCatchingUp())
	assert.True(t, s.Has(StatusProcessing|StatusFailed))
	assert.False(t, s.Has(StatusProcessing|StatusCompleted))
	assert.Equal(t, "Processing|Failed", s.String())

	s = s.Without(StatusFailed).With(StatusCatchingUp)
	assert.False(t, s.IsFailed())
	assert.True(t, s.IsCatchingUp())
	assert.Equal(t, "None", StatusNone.String())
	assert.Equal(t, CheckpointStatus(16), StatusRebuildInProgress)
	assert.True(t, StatusRebuildInProgress.IsRebuilding())
	assert.True(t, StatusCompleted.IsCompleted())
}

func TestCheckpoint(t *testing.T) {
	cp := &Checkpoint{Key: Key{StreamID: "order-123", PerspectiveName: "order-summary"}}
	assert.NoError(t, cp.Validate())
	assert.Equal(t, "order-123/order-summary", cp.Key.String())
	assert.ErrorIs(t, Key{StreamID: "order-123"}.Validate(), ErrInvalidCheckpoint)
	assert.Equal(t, [16]byte{}, [16]byte(cp.AfterEventID()))
}
