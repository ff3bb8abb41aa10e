package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/lease"
	"github.com/allisson/whizbang/internal/outbox/domain"
)

// OutboxRepository defines outbox persistence. Every method joins the caller's
// transaction through database.GetTx.
type OutboxRepository interface {
	// Create records msg. It must run in the transaction of the state change.
	Create(ctx context.Context, msg *domain.OutboxMessage) error

	// Get returns the message or domain.ErrOutboxMessageNotFound.
	Get(ctx context.Context, messageID uuid.UUID) (*domain.OutboxMessage, error)

	// GetPending returns up to limit pending messages, oldest first, skipping rows
	// locked by other transactions.
	GetPending(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)

	// ClaimPending assigns up to claim.Limit eligible pending messages to claim.InstanceID.
	ClaimPending(ctx context.Context, claim lease.Claim) ([]*domain.OutboxMessage, error)

	// MarkPublished sets status published and published_at. Already published
	// messages are left untouched.
	MarkPublished(ctx context.Context, at time.Time, messageIDs ...uuid.UUID) error

	// MarkFailed records a failed attempt, releases the claim and moves the message to
	// failed when the failure is terminal or attempts reach maxAttempts.
	MarkFailed(ctx context.Context, failure domain.Failure, maxAttempts int) error

	// ReleaseClaims clears the claim of every pending message held by instanceID.
	ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error

	// ListFailed returns failed messages for operator inspection.
	ListFailed(ctx context.Context, offset, limit int) ([]*domain.OutboxMessage, error)

	// ResetFailed moves a failed message back to pending with zero attempts.
	ResetFailed(ctx context.Context, messageID uuid.UUID) error
}

// Outbox records outgoing messages and exposes operator remediation.
type Outbox interface {
	// Store records msg in the caller's transaction, assigning its partition.
	Store(ctx context.Context, msg *domain.OutboxMessage) error

	// GetPending returns up to batchSize pending messages, oldest first.
	GetPending(ctx context.Context, batchSize int) ([]*domain.OutboxMessage, error)

	// MarkPublished marks the message published. Marking twice is a no-op.
	MarkPublished(ctx context.Context, messageID uuid.UUID) error

	ListFailed(ctx context.Context, offset, limit int) ([]*domain.OutboxMessage, error)
	ResetFailed(ctx context.Context, messageID uuid.UUID) error
}

// UseCase defines the polling publisher loop
type UseCase interface {
	Start(ctx context.Context) error
	ProcessPending(ctx context.Context) error
}
