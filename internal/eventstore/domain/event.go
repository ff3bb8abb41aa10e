// Package domain defines the event store records and errors.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

// Event is an immutable record in a stream. Version starts at 1 and has no gaps
// for a given stream; SequenceNumber is drawn from the stream's sequence key.
type Event struct {
	EventID        uuid.UUID
	StreamID       string
	StreamType     string
	EventType      string
	Data           json.RawMessage
	Metadata       map[string]string
	SequenceNumber int64
	Version        int64
	CreatedAt      time.Time
}

// NewEvent carries what a caller supplies to append an event. A nil EventID is
// replaced with a fresh UUIDv7.
type NewEvent struct {
	EventID    uuid.UUID
	StreamType string
	EventType  string
	Data       json.RawMessage
	Metadata   map[string]string
}

// Validate checks the required fields.
func (e *NewEvent) Validate() error {
	err := validation.ValidateStruct(e,
		validation.Field(&e.StreamType, validation.Required),
		validation.Field(&e.EventType, validation.Required),
		validation.Field(&e.Data, validation.Required),
	)
	if err != nil {
		return apperrors.Wrap(ErrInvalidEvent, err.Error())
	}
	return nil
}

// ToEvent builds the persisted record for streamID at version and sequence.
func (e *NewEvent) ToEvent(streamID string, version, sequence int64, now time.Time) *Event {
	id := e.EventID
	if id == uuid.Nil {
		id = uuid.Must(uuid.NewV7())
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Event{
		EventID:        id,
		StreamID:       streamID,
		StreamType:     e.StreamType,
		EventType:      e.EventType,
		Data:           e.Data,
		Metadata:       metadata,
		SequenceNumber: sequence,
		Version:        version,
		CreatedAt:      now,
	}
}

// DecodedEvent pairs an event with its payload decoded to the registered concrete type.
type DecodedEvent struct {
	*Event
	Payload any
}

const (
	// NoSequence is the last sequence of a stream with no events.
	NoSequence int64 = -1
	// NoVersion is the last version of a stream with no events.
	NoVersion int64 = 0
)
