package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/metrics"
	"github.com/allisson/whizbang/internal/outbox/domain"
)

// outboxWithMetrics decorates Outbox with metrics instrumentation.
type outboxWithMetrics struct {
	next    Outbox
	metrics metrics.BusinessMetrics
}

// NewOutboxWithMetrics wraps an Outbox with metrics recording.
func NewOutboxWithMetrics(outbox Outbox, m metrics.BusinessMetrics) Outbox {
	return &outboxWithMetrics{next: outbox, metrics: m}
}

func (o *outboxWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusFor(err)
	o.metrics.RecordOperation(ctx, "outbox", operation, status)
	o.metrics.RecordDuration(ctx, "outbox", operation, time.Since(start), status)
}

// Store records metrics for store operations.
func (o *outboxWithMetrics) Store(ctx context.Context, msg *domain.OutboxMessage) error {
	start := time.Now()
	err := o.next.Store(ctx, msg)
	o.record(ctx, "outbox_store", start, err)
	return err
}

func (o *outboxWithMetrics) GetPending(ctx context.Context, batchSize int) ([]*domain.OutboxMessage, error) {
	return o.next.GetPending(ctx, batchSize)
}

// MarkPublished records metrics for publish completions.
func (o *outboxWithMetrics) MarkPublished(ctx context.Context, messageID uuid.UUID) error {
	start := time.Now()
	err := o.next.MarkPublished(ctx, messageID)
	o.record(ctx, "outbox_mark_published", start, err)
	return err
}

func (o *outboxWithMetrics) ListFailed(ctx context.Context, offset, limit int) ([]*domain.OutboxMessage, error) {
	return o.next.ListFailed(ctx, offset, limit)
}

// ResetFailed records metrics for operator retries.
func (o *outboxWithMetrics) ResetFailed(ctx context.Context, messageID uuid.UUID) error {
	start := time.Now()
	err := o.next.ResetFailed(ctx, messageID)
	o.record(ctx, "outbox_reset_failed", start, err)
	return err
}
