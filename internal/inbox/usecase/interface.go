package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/inbox/domain"
	"github.com/allisson/whizbang/internal/lease"
	"github.com/allisson/whizbang/internal/messaging"
)

// InboxRepository defines inbox persistence. Every method joins the caller's
// transaction through database.GetTx.
type InboxRepository interface {
	// TryMarkProcessing inserts msg unless (message_id, handler_name) already exists.
	// It returns false for a duplicate delivery.
	TryMarkProcessing(ctx context.Context, msg *domain.InboxMessage) (bool, error)

	// MarkProcessed sets status processed and processed_at. Already processed
	// records are left untouched.
	MarkProcessed(ctx context.Context, at time.Time, keys ...domain.Key) error

	// MarkFailed records a failed attempt, releases the claim and moves the record to
	// failed when the failure is terminal or attempts reach maxAttempts.
	MarkFailed(ctx context.Context, failure domain.Failure, maxAttempts int) error

	// ClaimPending assigns up to claim.Limit eligible pending records to claim.InstanceID.
	ClaimPending(ctx context.Context, claim lease.Claim) ([]*domain.InboxMessage, error)

	// ReleaseClaims clears the claim of every pending record held by instanceID.
	ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error

	Get(ctx context.Context, key domain.Key) (*domain.InboxMessage, error)
	ListFailed(ctx context.Context, offset, limit int) ([]*domain.InboxMessage, error)

	// ResetFailed moves a failed record back to pending with zero attempts.
	ResetFailed(ctx context.Context, key domain.Key) error
}

// Inbox deduplicates deliveries and dispatches them to registered handlers.
type Inbox interface {
	// TryMarkProcessing records msg for its handler, assigning its partition.
	// It returns false when the message was already received by that handler.
	TryMarkProcessing(ctx context.Context, msg *domain.InboxMessage) (bool, error)

	// MarkProcessed marks the record processed. Marking twice is a no-op.
	MarkProcessed(ctx context.Context, messageID uuid.UUID, handlerName string) error

	// Receive runs every handler registered for the envelope type at most once.
	Receive(ctx context.Context, envelope *messaging.Envelope, destination string) error

	// Handle runs the handler of a claimed record and marks it processed in one transaction.
	Handle(ctx context.Context, msg *domain.InboxMessage) error

	// Subscribe routes deliveries on destinations to Receive.
	Subscribe(ctx context.Context, destinations ...string) ([]messaging.Subscription, error)

	Get(ctx context.Context, messageID uuid.UUID, handlerName string) (*domain.InboxMessage, error)
	ListFailed(ctx context.Context, offset, limit int) ([]*domain.InboxMessage, error)
	ResetFailed(ctx context.Context, messageID uuid.UUID, handlerName string) error
}
