package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/coordinator/domain"
	"github.com/allisson/whizbang/internal/metrics"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// coordinatorWithMetrics decorates Coordinator with metrics instrumentation.
type coordinatorWithMetrics struct {
	next    Coordinator
	metrics metrics.BusinessMetrics
}

// NewCoordinatorWithMetrics wraps a Coordinator with metrics recording.
func NewCoordinatorWithMetrics(coordinator Coordinator, m metrics.BusinessMetrics) Coordinator {
	return &coordinatorWithMetrics{next: coordinator, metrics: m}
}

func (c *coordinatorWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusFor(err)
	c.metrics.RecordOperation(ctx, "coordinator", operation, status)
	c.metrics.RecordDuration(ctx, "coordinator", operation, time.Since(start), status)
}

// ProcessWorkBatch records the heartbeat along with reported and claimed work items.
func (c *coordinatorWithMetrics) ProcessWorkBatch(
	ctx context.Context,
	req *domain.WorkBatchRequest,
) (*domain.WorkBatch, error) {
	start := time.Now()
	batch, err := c.next.ProcessWorkBatch(ctx, req)
	c.record(ctx, "process_work_batch", start, err)
	if err != nil {
		return nil, err
	}

	c.metrics.RecordWorkItems(ctx, "outbox", "completed", len(req.OutboxCompleted))
	c.metrics.RecordWorkItems(ctx, "outbox", "failed", len(req.OutboxFailed))
	c.metrics.RecordWorkItems(ctx, "inbox", "completed", len(req.InboxCompleted))
	c.metrics.RecordWorkItems(ctx, "inbox", "failed", len(req.InboxFailed))
	c.metrics.RecordWorkItems(ctx, "perspective", "completed", len(req.PerspectiveCompleted))
	c.metrics.RecordWorkItems(ctx, "perspective", "failed", len(req.PerspectiveFailed))
	c.metrics.RecordWorkItems(ctx, "perspective", "released", len(req.PerspectiveReleased))

	c.metrics.RecordWorkItems(ctx, "outbox", "claimed", len(batch.Outbox))
	c.metrics.RecordWorkItems(ctx, "inbox", "claimed", len(batch.Inbox))
	c.metrics.RecordWorkItems(ctx, "perspective", "claimed", len(batch.Perspectives))
	return batch, nil
}

// AcquirePerspectiveCheckpointWork records metrics for checkpoint acquisition.
func (c *coordinatorWithMetrics) AcquirePerspectiveCheckpointWork(
	ctx context.Context,
	streamID string,
	perspectiveNames []string,
	eventID uuid.UUID,
) ([]*pdomain.Checkpoint, error) {
	start := time.Now()
	checkpoints, err := c.next.AcquirePerspectiveCheckpointWork(ctx, streamID, perspectiveNames, eventID)
	c.record(ctx, "acquire_perspective_checkpoint_work", start, err)
	return checkpoints, err
}

// Deregister records metrics for instance deregistration.
func (c *coordinatorWithMetrics) Deregister(ctx context.Context, instanceID uuid.UUID) error {
	start := time.Now()
	err := c.next.Deregister(ctx, instanceID)
	c.record(ctx, "deregister", start, err)
	return err
}

func (c *coordinatorWithMetrics) ListInstances(ctx context.Context) ([]*domain.ServiceInstance, error) {
	return c.next.ListInstances(ctx)
}
