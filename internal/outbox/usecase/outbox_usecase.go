// Package usecase implements the outbox business logic: storing messages in the
// caller's transaction and publishing them.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/lease"
	"github.com/allisson/whizbang/internal/outbox/domain"
)

// outboxUseCase implements Outbox.
type outboxUseCase struct {
	repo           OutboxRepository
	partitionCount int
	now            func() time.Time
}

// NewOutbox creates an Outbox spreading messages over partitionCount partitions.
func NewOutbox(repo OutboxRepository, partitionCount int) Outbox {
	return &outboxUseCase{
		repo:           repo,
		partitionCount: partitionCount,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (u *outboxUseCase) Store(ctx context.Context, msg *domain.OutboxMessage) error {
	if msg.Destination == "" || msg.EventType == "" {
		return domain.ErrInvalidOutboxMessage
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg.PartitionNumber = lease.PartitionOf(msg.PartitionKey(), u.partitionCount)
	if msg.Status == "" {
		msg.Status = domain.OutboxStatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = u.now()
	}
	return u.repo.Create(ctx, msg)
}

func (u *outboxUseCase) GetPending(ctx context.Context, batchSize int) ([]*domain.OutboxMessage, error) {
	return u.repo.GetPending(ctx, batchSize)
}

func (u *outboxUseCase) MarkPublished(ctx context.Context, messageID uuid.UUID) error {
	return u.repo.MarkPublished(ctx, u.now(), messageID)
}

func (u *outboxUseCase) ListFailed(ctx context.Context, offset, limit int) ([]*domain.OutboxMessage, error) {
	return u.repo.ListFailed(ctx, offset, limit)
}

func (u *outboxUseCase) ResetFailed(ctx context.Context, messageID uuid.UUID) error {
	return u.repo.ResetFailed(ctx, messageID)
}
