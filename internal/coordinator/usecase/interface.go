// Package usecase implements the work coordinator: heartbeats, partition
// rebalancing, lease claiming and the worker loop that executes claimed work.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/coordinator/domain"
	inboxdomain "github.com/allisson/whizbang/internal/inbox/domain"
	"github.com/allisson/whizbang/internal/lease"
	outboxdomain "github.com/allisson/whizbang/internal/outbox/domain"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// InstanceRepository persists service instance heartbeats.
type InstanceRepository interface {
	// Heartbeat inserts the instance or refreshes its last heartbeat.
	Heartbeat(ctx context.Context, instance *domain.ServiceInstance) error

	// ListLive returns the ids of instances with a heartbeat at or after since.
	ListLive(ctx context.Context, since time.Time) ([]uuid.UUID, error)

	Get(ctx context.Context, instanceID uuid.UUID) (*domain.ServiceInstance, error)
	List(ctx context.Context) ([]*domain.ServiceInstance, error)
	Delete(ctx context.Context, instanceID uuid.UUID) error
}

// PartitionRepository persists partition ownership.
type PartitionRepository interface {
	// Replace makes partitions the exact set owned by instanceID.
	Replace(ctx context.Context, instanceID uuid.UUID, partitions []int, now time.Time) error

	ListByInstance(ctx context.Context, instanceID uuid.UUID) ([]int, error)
	DeleteByInstance(ctx context.Context, instanceID uuid.UUID) error
}

// OutboxWork is the outbox side of the lease protocol.
type OutboxWork interface {
	ClaimPending(ctx context.Context, claim lease.Claim) ([]*outboxdomain.OutboxMessage, error)
	MarkPublished(ctx context.Context, at time.Time, messageIDs ...uuid.UUID) error
	MarkFailed(ctx context.Context, failure outboxdomain.Failure, maxAttempts int) error
	ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error
}

// InboxWork is the inbox side of the lease protocol.
type InboxWork interface {
	ClaimPending(ctx context.Context, claim lease.Claim) ([]*inboxdomain.InboxMessage, error)
	MarkProcessed(ctx context.Context, at time.Time, keys ...inboxdomain.Key) error
	MarkFailed(ctx context.Context, failure inboxdomain.Failure, maxAttempts int) error
	ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error
}

// CheckpointWork is the perspective side of the lease protocol.
type CheckpointWork interface {
	Acquire(
		ctx context.Context,
		streamID string,
		names []string,
		eventID uuid.UUID,
		partition int,
	) ([]*pdomain.Checkpoint, error)
	ClaimProcessing(ctx context.Context, claim lease.Claim) ([]*pdomain.Checkpoint, error)
	Complete(ctx context.Context, instanceID uuid.UUID, keys ...pdomain.Key) error
	MarkFailed(ctx context.Context, failure pdomain.Failure) error
	Release(ctx context.Context, instanceID uuid.UUID, keys ...pdomain.Key) error
	ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error
}

// Coordinator leases work to service instances.
type Coordinator interface {
	// ProcessWorkBatch records the heartbeat, applies the reported outcomes,
	// rebalances partitions and claims new work, all in one transaction.
	ProcessWorkBatch(ctx context.Context, req *domain.WorkBatchRequest) (*domain.WorkBatch, error)

	// AcquirePerspectiveCheckpointWork flags the named perspectives of streamID for
	// processing up to eventID. It joins the caller's transaction.
	AcquirePerspectiveCheckpointWork(
		ctx context.Context,
		streamID string,
		perspectiveNames []string,
		eventID uuid.UUID,
	) ([]*pdomain.Checkpoint, error)

	// Deregister releases every claim and partition of instanceID and removes it.
	Deregister(ctx context.Context, instanceID uuid.UUID) error

	ListInstances(ctx context.Context) ([]*domain.ServiceInstance, error)
}
