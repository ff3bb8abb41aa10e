// Package domain defines the inbox entities used for exactly-once message handling.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/messaging"
)

// InboxStatus represents the status of an inbox record
type InboxStatus string

const (
	InboxStatusPending   InboxStatus = "pending"
	InboxStatusProcessed InboxStatus = "processed"
	InboxStatusFailed    InboxStatus = "failed"
)

var (
	// ErrInboxMessageNotFound indicates the record does not exist (or is not in the expected status).
	ErrInboxMessageNotFound = errors.Wrap(errors.ErrNotFound, "inbox message not found")

	// ErrInvalidInboxMessage indicates a record without handler name or event type.
	ErrInvalidInboxMessage = errors.Wrap(errors.ErrInvalidInput, "invalid inbox message")
)

// InboxMessage records that a handler has taken responsibility for a message.
// (MessageID, HandlerName) is unique: a redelivered message is recognized and skipped.
type InboxMessage struct {
	MessageID       uuid.UUID
	HandlerName     string
	EventType       string
	EventData       json.RawMessage
	Metadata        map[string]string
	Status          InboxStatus
	Attempts        int
	Error           *string
	InstanceID      *uuid.UUID
	ClaimedAt       *time.Time
	PartitionNumber int
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}

// NewInboxMessage records envelope for handlerName.
func NewInboxMessage(envelope *messaging.Envelope, handlerName string, now time.Time) (*InboxMessage, error) {
	if handlerName == "" || envelope.EventType == "" {
		return nil, ErrInvalidInboxMessage
	}

	metadata, err := envelope.Flatten()
	if err != nil {
		return nil, err
	}

	return &InboxMessage{
		MessageID:   envelope.MessageID,
		HandlerName: handlerName,
		EventType:   envelope.EventType,
		EventData:   envelope.Payload,
		Metadata:    metadata,
		Status:      InboxStatusPending,
		ReceivedAt:  now,
	}, nil
}

// PartitionKey keeps every handler of one message on the same partition.
func (m *InboxMessage) PartitionKey() string {
	return m.MessageID.String()
}

// Envelope rebuilds the delivered envelope.
func (m *InboxMessage) Envelope() (*messaging.Envelope, error) {
	return messaging.Restore(m.MessageID, m.EventType, m.EventData, m.Metadata, m.ReceivedAt)
}

// Key identifies one inbox record.
type Key struct {
	MessageID   uuid.UUID
	HandlerName string
}

// Failure reports a failed handler invocation.
type Failure struct {
	Key
	Error    string
	Terminal bool
	// InstanceID is the reporting instance, uuid.Nil for inline receives.
	InstanceID uuid.UUID
}
