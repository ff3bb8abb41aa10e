package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/inbox/domain"
	"github.com/allisson/whizbang/internal/messaging"
	"github.com/allisson/whizbang/internal/metrics"
)

// inboxWithMetrics decorates Inbox with metrics instrumentation.
type inboxWithMetrics struct {
	next    Inbox
	metrics metrics.BusinessMetrics
}

// NewInboxWithMetrics wraps an Inbox with metrics recording.
func NewInboxWithMetrics(inbox Inbox, m metrics.BusinessMetrics) Inbox {
	return &inboxWithMetrics{next: inbox, metrics: m}
}

func (i *inboxWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusFor(err)
	i.metrics.RecordOperation(ctx, "inbox", operation, status)
	i.metrics.RecordDuration(ctx, "inbox", operation, time.Since(start), status)
}

func (i *inboxWithMetrics) TryMarkProcessing(ctx context.Context, msg *domain.InboxMessage) (bool, error) {
	return i.next.TryMarkProcessing(ctx, msg)
}

func (i *inboxWithMetrics) MarkProcessed(ctx context.Context, messageID uuid.UUID, handlerName string) error {
	return i.next.MarkProcessed(ctx, messageID, handlerName)
}

// Receive records metrics for deliveries.
func (i *inboxWithMetrics) Receive(ctx context.Context, envelope *messaging.Envelope, destination string) error {
	start := time.Now()
	err := i.next.Receive(ctx, envelope, destination)
	i.record(ctx, "inbox_receive", start, err)
	return err
}

// Handle records metrics for coordinator dispatched records.
func (i *inboxWithMetrics) Handle(ctx context.Context, msg *domain.InboxMessage) error {
	start := time.Now()
	err := i.next.Handle(ctx, msg)
	i.record(ctx, "inbox_handle", start, err)
	return err
}

func (i *inboxWithMetrics) Subscribe(ctx context.Context, destinations ...string) ([]messaging.Subscription, error) {
	return i.next.Subscribe(ctx, destinations...)
}

func (i *inboxWithMetrics) Get(ctx context.Context, messageID uuid.UUID, handlerName string) (*domain.InboxMessage, error) {
	return i.next.Get(ctx, messageID, handlerName)
}

func (i *inboxWithMetrics) ListFailed(ctx context.Context, offset, limit int) ([]*domain.InboxMessage, error) {
	return i.next.ListFailed(ctx, offset, limit)
}

// ResetFailed records metrics for operator retries.
func (i *inboxWithMetrics) ResetFailed(ctx context.Context, messageID uuid.UUID, handlerName string) error {
	start := time.Now()
	err := i.next.ResetFailed(ctx, messageID, handlerName)
	i.record(ctx, "inbox_reset_failed", start, err)
	return err
}
