package messaging

import (
	"context"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

// ErrTransportUnavailable indicates the transport could not accept or deliver a message.
// Publishers retry it with backoff; attempts are bounded by the outbox row.
var ErrTransportUnavailable = apperrors.Wrap(apperrors.ErrUnavailable, "transport unavailable")

// Handler processes a delivered envelope.
type Handler func(ctx context.Context, envelope *Envelope) error

// Subscription is an active subscription on a destination.
type Subscription interface {
	Unsubscribe() error
}

// Transport publishes envelopes to destinations and subscribes handlers to them.
type Transport interface {
	Publish(ctx context.Context, envelope *Envelope, destination string) error
	Subscribe(ctx context.Context, destination string, handler Handler) (Subscription, error)
	IsReady(ctx context.Context) bool
	Close() error
}
