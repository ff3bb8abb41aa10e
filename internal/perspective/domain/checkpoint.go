// Package domain defines perspective checkpoints: the position of each read model
// in each event stream.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/errors"
)

var (
	// ErrCheckpointNotFound indicates no checkpoint exists for the stream and perspective.
	ErrCheckpointNotFound = errors.Wrap(errors.ErrNotFound, "checkpoint not found")

	// ErrPerspectiveNotFound indicates no perspective is registered under a name.
	ErrPerspectiveNotFound = errors.Wrap(errors.ErrTerminal, "perspective not found")

	// ErrInvalidCheckpoint indicates a blank stream id or perspective name.
	ErrInvalidCheckpoint = errors.Wrap(errors.ErrInvalidInput, "invalid checkpoint key")
)

// Key identifies one checkpoint.
type Key struct {
	StreamID        string
	PerspectiveName string
}

// Validate checks both parts of the key are present.
func (k Key) Validate() error {
	if k.StreamID == "" || k.PerspectiveName == "" {
		return ErrInvalidCheckpoint
	}
	return nil
}

func (k Key) String() string { return k.StreamID + "/" + k.PerspectiveName }

// Checkpoint is the last event a perspective applied from a stream. LastEventID only
// moves forward, except through an explicit rewind.
type Checkpoint struct {
	Key
	LastEventID     *uuid.UUID
	Status          CheckpointStatus
	ProcessedAt     *time.Time
	Error           *string
	InstanceID      *uuid.UUID
	ClaimedAt       *time.Time
	PartitionNumber int
}

// AfterEventID is the event to resume after, uuid.Nil when nothing was applied yet.
func (c *Checkpoint) AfterEventID() uuid.UUID {
	if c.LastEventID == nil {
		return uuid.Nil
	}
	return *c.LastEventID
}

// Failure reports a failed perspective run.
type Failure struct {
	Key
	Error string
	// InstanceID is the reporting instance, uuid.Nil for runner and operator calls.
	InstanceID uuid.UUID
}

// PerspectiveApplyError is returned when a perspective fails to apply an event. The
// checkpoint keeps its previous position.
type PerspectiveApplyError struct {
	Key
	EventID uuid.UUID
	Err     error
}

func (e *PerspectiveApplyError) Error() string {
	return fmt.Sprintf("perspective %s failed to apply event %s: %v", e.Key, e.EventID, e.Err)
}

func (e *PerspectiveApplyError) Unwrap() error { return e.Err }
