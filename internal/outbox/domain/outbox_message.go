// Package domain defines the core outbox domain entities and types.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/messaging"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

var (
	// ErrOutboxMessageNotFound indicates the message does not exist (or is not in the expected status).
	ErrOutboxMessageNotFound = errors.Wrap(errors.ErrNotFound, "outbox message not found")

	// ErrInvalidOutboxMessage indicates a message without destination or event type.
	ErrInvalidOutboxMessage = errors.Wrap(errors.ErrInvalidInput, "invalid outbox message")

	// ErrCorruptEnvelope indicates a stored message cannot be turned back into an envelope.
	ErrCorruptEnvelope = messaging.ErrCorruptEnvelope
)

// OutboxMessage is an outgoing message recorded in the same transaction as the state
// change that produced it. Once Published, PublishedAt is set and the message is never
// claimed again.
type OutboxMessage struct {
	MessageID       uuid.UUID
	Destination     string
	StreamID        *string
	EventType       string
	EventData       json.RawMessage
	Metadata        map[string]string
	Status          OutboxStatus
	Attempts        int
	Error           *string
	InstanceID      *uuid.UUID
	ClaimedAt       *time.Time
	PartitionNumber int
	CreatedAt       time.Time
	PublishedAt     *time.Time
}

// NewOutboxMessage records envelope for destination. streamID may be empty.
func NewOutboxMessage(envelope *messaging.Envelope, destination, streamID string, now time.Time) (*OutboxMessage, error) {
	if destination == "" || envelope.EventType == "" {
		return nil, ErrInvalidOutboxMessage
	}

	metadata, err := envelope.Flatten()
	if err != nil {
		return nil, err
	}

	msg := &OutboxMessage{
		MessageID:   envelope.MessageID,
		Destination: destination,
		EventType:   envelope.EventType,
		EventData:   envelope.Payload,
		Metadata:    metadata,
		Status:      OutboxStatusPending,
		CreatedAt:   now,
	}
	if streamID != "" {
		msg.StreamID = &streamID
	}
	return msg, nil
}

// PartitionKey is the key hashed to choose the message partition: the stream when
// present so a stream's messages stay on one instance, the message id otherwise.
func (m *OutboxMessage) PartitionKey() string {
	if m.StreamID != nil {
		return *m.StreamID
	}
	return m.MessageID.String()
}

// Envelope rebuilds the envelope the message was recorded from.
func (m *OutboxMessage) Envelope() (*messaging.Envelope, error) {
	return messaging.Restore(m.MessageID, m.EventType, m.EventData, m.Metadata, m.CreatedAt)
}

// Failure reports a failed publish attempt of a claimed message.
type Failure struct {
	MessageID uuid.UUID
	Error     string
	Terminal  bool
	// InstanceID is the reporting instance. The failure is dropped when another
	// instance holds the claim.
	InstanceID uuid.UUID
}
