// Package messaging defines the message envelope, the transport abstraction and the
// explicit registries that map message types to handlers and decoders.
package messaging

import (
	"encoding/json"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Metadata keys propagated through envelopes and transport headers.
const (
	MetadataMessageID     = "message-id"
	MetadataEventType     = "event-type"
	MetadataCorrelationID = "correlation-id"
	MetadataCausationID   = "causation-id"
	MetadataStreamID      = "stream-id"
)

// ServiceInstanceInfo identifies one running instance of a service.
type ServiceInstanceInfo struct {
	ServiceName string    `json:"service_name"`
	InstanceID  uuid.UUID `json:"instance_id"`
	HostName    string    `json:"host_name"`
	ProcessID   int       `json:"process_id"`
}

// NewServiceInstanceInfo describes the current process as an instance of serviceName.
func NewServiceInstanceInfo(serviceName string) ServiceInstanceInfo {
	host, _ := os.Hostname()
	return ServiceInstanceInfo{
		ServiceName: serviceName,
		InstanceID:  uuid.Must(uuid.NewV7()),
		HostName:    host,
		ProcessID:   os.Getpid(),
	}
}

// Hop records one instance an envelope passed through.
type Hop struct {
	ServiceInstance ServiceInstanceInfo `json:"service_instance"`
	Destination     string              `json:"destination,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Envelope is the unit carried by a Transport.
type Envelope struct {
	MessageID     uuid.UUID         `json:"message_id"`
	CorrelationID uuid.UUID         `json:"correlation_id"`
	CausationID   uuid.UUID         `json:"causation_id"`
	EventType     string            `json:"event_type"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Hops          []Hop             `json:"hops,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// NewEnvelope creates an envelope with a fresh time-ordered id that starts its own correlation.
func NewEnvelope(eventType string, payload json.RawMessage) *Envelope {
	id := uuid.Must(uuid.NewV7())
	return &Envelope{
		MessageID:     id,
		CorrelationID: id,
		EventType:     eventType,
		Payload:       payload,
		Metadata:      map[string]string{},
		Timestamp:     time.Now().UTC(),
	}
}

// Clone returns a copy of e whose metadata and hops can be changed independently.
func (e *Envelope) Clone() *Envelope {
	clone := *e
	clone.Metadata = maps.Clone(e.Metadata)
	clone.Hops = slices.Clone(e.Hops)
	return &clone
}

// AddHop appends a hop for instance at destination.
func (e *Envelope) AddHop(instance ServiceInstanceInfo, destination string) {
	e.Hops = append(e.Hops, Hop{
		ServiceInstance: instance,
		Destination:     destination,
		Timestamp:       time.Now().UTC(),
	})
}

// CausedBy links e to the envelope that caused it, inheriting its correlation.
func (e *Envelope) CausedBy(cause *Envelope) {
	e.CorrelationID = cause.CorrelationID
	e.CausationID = cause.MessageID
}

// Headers flattens the envelope identity and metadata into string headers.
func (e *Envelope) Headers() map[string]string {
	headers := make(map[string]string, len(e.Metadata)+4)
	for k, v := range e.Metadata {
		headers[k] = v
	}
	headers[MetadataMessageID] = e.MessageID.String()
	headers[MetadataEventType] = e.EventType
	headers[MetadataCorrelationID] = e.CorrelationID.String()
	if e.CausationID != uuid.Nil {
		headers[MetadataCausationID] = e.CausationID.String()
	}
	return headers
}
