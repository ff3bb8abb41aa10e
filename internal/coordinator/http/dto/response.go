package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	coordinatorDomain "github.com/allisson/whizbang/internal/coordinator/domain"
	inboxDomain "github.com/allisson/whizbang/internal/inbox/domain"
	outboxDomain "github.com/allisson/whizbang/internal/outbox/domain"
	perspectiveDomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// OutboxMessageResponse represents a failed outbox message.
type OutboxMessageResponse struct {
	MessageID       string          `json:"message_id"`
	Destination     string          `json:"destination"`
	StreamID        *string         `json:"stream_id,omitempty"`
	EventType       string          `json:"event_type"`
	EventData       json.RawMessage `json:"event_data"`
	Status          string          `json:"status"`
	Attempts        int             `json:"attempts"`
	Error           *string         `json:"error,omitempty"`
	PartitionNumber int             `json:"partition_number"`
	CreatedAt       time.Time       `json:"created_at"`
}

// InboxMessageResponse represents a failed inbox record.
type InboxMessageResponse struct {
	MessageID       string          `json:"message_id"`
	HandlerName     string          `json:"handler_name"`
	EventType       string          `json:"event_type"`
	EventData       json.RawMessage `json:"event_data"`
	Status          string          `json:"status"`
	Attempts        int             `json:"attempts"`
	Error           *string         `json:"error,omitempty"`
	PartitionNumber int             `json:"partition_number"`
	ReceivedAt      time.Time       `json:"received_at"`
}

// CheckpointResponse represents a perspective checkpoint.
type CheckpointResponse struct {
	StreamID        string     `json:"stream_id"`
	PerspectiveName string     `json:"perspective_name"`
	LastEventID     *string    `json:"last_event_id,omitempty"`
	Status          string     `json:"status"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	Error           *string    `json:"error,omitempty"`
	PartitionNumber int        `json:"partition_number"`
}

// ServiceInstanceResponse represents a registered service instance.
type ServiceInstanceResponse struct {
	InstanceID      string    `json:"instance_id"`
	ServiceName     string    `json:"service_name"`
	HostName        string    `json:"host_name"`
	ProcessID       int       `json:"process_id"`
	StartedAt       time.Time `json:"started_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// ListResponse wraps a page of items.
type ListResponse[T any] struct {
	Data []T `json:"data"`
}

func MapOutboxMessages(messages []*outboxDomain.OutboxMessage) ListResponse[OutboxMessageResponse] {
	data := make([]OutboxMessageResponse, 0, len(messages))
	for _, m := range messages {
		data = append(data, OutboxMessageResponse{
			MessageID:       m.MessageID.String(),
			Destination:     m.Destination,
			StreamID:        m.StreamID,
			EventType:       m.EventType,
			EventData:       m.EventData,
			Status:          string(m.Status),
			Attempts:        m.Attempts,
			Error:           m.Error,
			PartitionNumber: m.PartitionNumber,
			CreatedAt:       m.CreatedAt,
		})
	}
	return ListResponse[OutboxMessageResponse]{Data: data}
}

func MapInboxMessages(messages []*inboxDomain.InboxMessage) ListResponse[InboxMessageResponse] {
	data := make([]InboxMessageResponse, 0, len(messages))
	for _, m := range messages {
		data = append(data, InboxMessageResponse{
			MessageID:       m.MessageID.String(),
			HandlerName:     m.HandlerName,
			EventType:       m.EventType,
			EventData:       m.EventData,
			Status:          string(m.Status),
			Attempts:        m.Attempts,
			Error:           m.Error,
			PartitionNumber: m.PartitionNumber,
			ReceivedAt:      m.ReceivedAt,
		})
	}
	return ListResponse[InboxMessageResponse]{Data: data}
}

// MapCheckpoint converts a checkpoint to its API response.
func MapCheckpoint(cp *perspectiveDomain.Checkpoint) CheckpointResponse {
	return CheckpointResponse{
		StreamID:        cp.StreamID,
		PerspectiveName: cp.PerspectiveName,
		LastEventID:     uuidString(cp.LastEventID),
		Status:          cp.Status.String(),
		ProcessedAt:     cp.ProcessedAt,
		Error:           cp.Error,
		PartitionNumber: cp.PartitionNumber,
	}
}

func MapCheckpoints(checkpoints []*perspectiveDomain.Checkpoint) ListResponse[CheckpointResponse] {
	data := make([]CheckpointResponse, 0, len(checkpoints))
	for _, cp := range checkpoints {
		data = append(data, MapCheckpoint(cp))
	}
	return ListResponse[CheckpointResponse]{Data: data}
}

func MapServiceInstances(instances []*coordinatorDomain.ServiceInstance) ListResponse[ServiceInstanceResponse] {
	data := make([]ServiceInstanceResponse, 0, len(instances))
	for _, i := range instances {
		data = append(data, ServiceInstanceResponse{
			InstanceID:      i.InstanceID.String(),
			ServiceName:     i.ServiceName,
			HostName:        i.HostName,
			ProcessID:       i.ProcessID,
			StartedAt:       i.StartedAt,
			LastHeartbeatAt: i.LastHeartbeatAt,
		})
	}
	return ListResponse[ServiceInstanceResponse]{Data: data}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
