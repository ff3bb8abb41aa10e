package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/coordinator/domain"
	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/lease"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// Config holds work coordinator configuration
type Config struct {
	LeaseTimeout   time.Duration
	BatchSize      int
	MaxAttempts    int
	PartitionCount int
}

// coordinatorUseCase implements Coordinator.
type coordinatorUseCase struct {
	config      Config
	txManager   database.TxManager
	instances   InstanceRepository
	partitions  PartitionRepository
	outbox      OutboxWork
	inbox       InboxWork
	checkpoints CheckpointWork
	logger      *slog.Logger
	now         func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(
	config Config,
	txManager database.TxManager,
	instances InstanceRepository,
	partitions PartitionRepository,
	outbox OutboxWork,
	inbox InboxWork,
	checkpoints CheckpointWork,
	logger *slog.Logger,
) Coordinator {
	return &coordinatorUseCase{
		config:      config,
		txManager:   txManager,
		instances:   instances,
		partitions:  partitions,
		outbox:      outbox,
		inbox:       inbox,
		checkpoints: checkpoints,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (c *coordinatorUseCase) ProcessWorkBatch(
	ctx context.Context,
	req *domain.WorkBatchRequest,
) (*domain.WorkBatch, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := c.now()
	instanceID := req.Instance.InstanceID
	batch := &domain.WorkBatch{InstanceID: instanceID}

	err := c.txManager.WithTx(ctx, func(ctx context.Context) error {
		instance := *req.Instance
		instance.LastHeartbeatAt = now
		if err := c.instances.Heartbeat(ctx, &instance); err != nil {
			return err
		}

		if err := c.applyOutcomes(ctx, instanceID, now, req.Outcomes); err != nil {
			return err
		}

		if req.Draining {
			return nil
		}

		live, err := c.instances.ListLive(ctx, now.Add(-c.config.LeaseTimeout))
		if err != nil {
			return err
		}
		batch.Partitions = lease.Assign(live, instanceID, c.config.PartitionCount)
		if err := c.partitions.Replace(ctx, instanceID, batch.Partitions, now); err != nil {
			return err
		}

		claim := lease.NewClaim(instanceID, batch.Partitions, now, c.config.LeaseTimeout, c.config.BatchSize)
		if batch.Outbox, err = c.outbox.ClaimPending(ctx, claim); err != nil {
			return err
		}
		if batch.Inbox, err = c.inbox.ClaimPending(ctx, claim); err != nil {
			return err
		}
		if batch.Perspectives, err = c.checkpoints.ClaimProcessing(ctx, claim); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to process work batch")
	}

	if batch.Size() > 0 {
		c.logger.Debug("work batch claimed",
			slog.String("instance_id", instanceID.String()),
			slog.Int("partitions", len(batch.Partitions)),
			slog.Int("outbox", len(batch.Outbox)),
			slog.Int("inbox", len(batch.Inbox)),
			slog.Int("perspectives", len(batch.Perspectives)),
		)
	}
	return batch, nil
}

// applyOutcomes records what instanceID reports. Failures, completions and releases
// of perspective claims only apply to rows the reporter still holds or nobody holds.
func (c *coordinatorUseCase) applyOutcomes(
	ctx context.Context,
	instanceID uuid.UUID,
	now time.Time,
	outcomes domain.Outcomes,
) error {
	if len(outcomes.OutboxCompleted) > 0 {
		if err := c.outbox.MarkPublished(ctx, now, outcomes.OutboxCompleted...); err != nil {
			return err
		}
	}
	for _, failure := range outcomes.OutboxFailed {
		failure.InstanceID = instanceID
		if err := c.outbox.MarkFailed(ctx, failure, c.config.MaxAttempts); err != nil {
			return err
		}
	}

	if len(outcomes.InboxCompleted) > 0 {
		if err := c.inbox.MarkProcessed(ctx, now, outcomes.InboxCompleted...); err != nil {
			return err
		}
	}
	for _, failure := range outcomes.InboxFailed {
		failure.InstanceID = instanceID
		if err := c.inbox.MarkFailed(ctx, failure, c.config.MaxAttempts); err != nil {
			return err
		}
	}

	if len(outcomes.PerspectiveCompleted) > 0 {
		if err := c.checkpoints.Complete(ctx, instanceID, outcomes.PerspectiveCompleted...); err != nil {
			return err
		}
	}
	for _, failure := range outcomes.PerspectiveFailed {
		failure.InstanceID = instanceID
		err := c.checkpoints.MarkFailed(ctx, failure)
		if err != nil && !apperrors.Is(err, pdomain.ErrCheckpointNotFound) {
			return err
		}
	}
	if len(outcomes.PerspectiveReleased) > 0 {
		if err := c.checkpoints.Release(ctx, instanceID, outcomes.PerspectiveReleased...); err != nil {
			return err
		}
	}
	return nil
}

func (c *coordinatorUseCase) AcquirePerspectiveCheckpointWork(
	ctx context.Context,
	streamID string,
	perspectiveNames []string,
	eventID uuid.UUID,
) ([]*pdomain.Checkpoint, error) {
	if len(perspectiveNames) == 0 {
		return nil, nil
	}
	if streamID == "" {
		return nil, pdomain.ErrInvalidCheckpoint
	}

	partition := lease.PartitionOf(streamID, c.config.PartitionCount)

	var checkpoints []*pdomain.Checkpoint
	err := c.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		checkpoints, err = c.checkpoints.Acquire(ctx, streamID, perspectiveNames, eventID, partition)
		return err
	})
	return checkpoints, err
}

func (c *coordinatorUseCase) Deregister(ctx context.Context, instanceID uuid.UUID) error {
	err := c.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := c.outbox.ReleaseClaims(ctx, instanceID); err != nil {
			return err
		}
		if err := c.inbox.ReleaseClaims(ctx, instanceID); err != nil {
			return err
		}
		if err := c.checkpoints.ReleaseClaims(ctx, instanceID); err != nil {
			return err
		}
		if err := c.partitions.DeleteByInstance(ctx, instanceID); err != nil {
			return err
		}
		return c.instances.Delete(ctx, instanceID)
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to deregister instance")
	}

	c.logger.Info("service instance deregistered", slog.String("instance_id", instanceID.String()))
	return nil
}

func (c *coordinatorUseCase) ListInstances(ctx context.Context) ([]*domain.ServiceInstance, error) {
	return c.instances.List(ctx)
}
