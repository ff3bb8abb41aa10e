package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

// Keys used when an envelope is flattened into a stored metadata map.
const (
	metadataHops      = "hops"
	metadataTimestamp = "timestamp"
)

// ErrCorruptEnvelope indicates a stored record cannot be turned back into an envelope.
var ErrCorruptEnvelope = apperrors.Wrap(apperrors.ErrTerminal, "corrupt envelope")

// Flatten returns the metadata map persisted with a stored copy of e: the envelope
// metadata plus correlation, causation, hops and timestamp.
func (e *Envelope) Flatten() (map[string]string, error) {
	metadata := make(map[string]string, len(e.Metadata)+4)
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	metadata[MetadataCorrelationID] = e.CorrelationID.String()
	if e.CausationID != uuid.Nil {
		metadata[MetadataCausationID] = e.CausationID.String()
	}
	if len(e.Hops) > 0 {
		hops, err := json.Marshal(e.Hops)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal hops")
		}
		metadata[metadataHops] = string(hops)
	}
	metadata[metadataTimestamp] = e.Timestamp.Format(time.RFC3339Nano)
	return metadata, nil
}

// Restore rebuilds an envelope from a stored record produced with Flatten. recordedAt
// is used when the metadata carries no timestamp.
func Restore(
	messageID uuid.UUID,
	eventType string,
	payload json.RawMessage,
	metadata map[string]string,
	recordedAt time.Time,
) (*Envelope, error) {
	envelope := &Envelope{
		MessageID:     messageID,
		CorrelationID: messageID,
		EventType:     eventType,
		Payload:       payload,
		Metadata:      map[string]string{},
		Timestamp:     recordedAt,
	}

	for k, v := range metadata {
		switch k {
		case MetadataCorrelationID:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, apperrors.Wrap(ErrCorruptEnvelope, err.Error())
			}
			envelope.CorrelationID = id
		case MetadataCausationID:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, apperrors.Wrap(ErrCorruptEnvelope, err.Error())
			}
			envelope.CausationID = id
		case metadataHops:
			if err := json.Unmarshal([]byte(v), &envelope.Hops); err != nil {
				return nil, apperrors.Wrap(ErrCorruptEnvelope, err.Error())
			}
		case metadataTimestamp:
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, apperrors.Wrap(ErrCorruptEnvelope, err.Error())
			}
			envelope.Timestamp = ts
		default:
			envelope.Metadata[k] = v
		}
	}
	return envelope, nil
}
