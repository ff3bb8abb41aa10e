// Package domain defines the unit of work that batches the messages of one logical
// operation for a single transactional commit.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/messaging"
)

var (
	// ErrUnitAlreadyCommitted indicates Commit was called on a committed unit.
	ErrUnitAlreadyCommitted = errors.Wrap(errors.ErrConflict, "unit of work already committed")

	// ErrInvalidMessage indicates a message with neither a stream nor a destination.
	ErrInvalidMessage = errors.Wrap(errors.ErrInvalidInput, "invalid dispatch message")
)

// LifecycleStage is the progress of one message through a commit.
type LifecycleStage string

const (
	StageCreated    LifecycleStage = "created"
	StageAppended   LifecycleStage = "appended"
	StageOutboxed   LifecycleStage = "outboxed"
	StageCommitted  LifecycleStage = "committed"
	StageRolledBack LifecycleStage = "rolled_back"
)

// Message is one envelope of a unit. With a StreamID it is appended to the event
// store; with a Destination it is queued in the outbox. The event id and outbox
// message id are both Envelope.MessageID.
type Message struct {
	Envelope    *messaging.Envelope
	StreamID    string
	StreamType  string
	Destination string
}

// Validate checks the message has somewhere to go.
func (m *Message) Validate() error {
	if m.Envelope == nil || m.Envelope.EventType == "" {
		return ErrInvalidMessage
	}
	if m.StreamID == "" && m.Destination == "" {
		return ErrInvalidMessage
	}
	if m.StreamID != "" && m.StreamType == "" {
		return ErrInvalidMessage
	}
	return nil
}

// UnitOfWork is owned by the operation that created it and is not safe for
// concurrent use.
type UnitOfWork struct {
	ID        uuid.UUID
	Messages  []*Message
	CreatedAt time.Time
	Stages    map[uuid.UUID]LifecycleStage
	committed bool
}

// NewUnitOfWork creates an empty unit.
func NewUnitOfWork(now time.Time) *UnitOfWork {
	return &UnitOfWork{
		ID:        uuid.Must(uuid.NewV7()),
		CreatedAt: now,
		Stages:    make(map[uuid.UUID]LifecycleStage),
	}
}

// Add appends msg in the Created stage.
func (u *UnitOfWork) Add(msg *Message) error {
	if u.committed {
		return ErrUnitAlreadyCommitted
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	u.Messages = append(u.Messages, msg)
	u.Stages[msg.Envelope.MessageID] = StageCreated
	return nil
}

// Stage returns the stage of messageID.
func (u *UnitOfWork) Stage(messageID uuid.UUID) LifecycleStage {
	return u.Stages[messageID]
}

// Advance moves messageID to stage.
func (u *UnitOfWork) Advance(messageID uuid.UUID, stage LifecycleStage) {
	u.Stages[messageID] = stage
}

// Committed reports whether the unit was committed.
func (u *UnitOfWork) Committed() bool { return u.committed }

// MarkCommitted moves every message to Committed and closes the unit.
func (u *UnitOfWork) MarkCommitted() {
	for id := range u.Stages {
		u.Stages[id] = StageCommitted
	}
	u.committed = true
}

// MarkRolledBack moves every message to RolledBack. The unit may be committed again.
func (u *UnitOfWork) MarkRolledBack() {
	for id := range u.Stages {
		u.Stages[id] = StageRolledBack
	}
}
