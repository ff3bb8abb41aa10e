package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/messaging"
	"github.com/allisson/whizbang/internal/outbox/domain"
)

// PublisherConfig holds the publish throttle and retry settings
type PublisherConfig struct {
	RateLimit  float64
	Burst      int
	MaxRetries int
}

// Publisher sends outbox messages through a transport. Publishes are throttled by a
// token bucket and transient transport failures are retried with exponential backoff.
type Publisher struct {
	transport  messaging.Transport
	limiter    *rate.Limiter
	maxRetries uint64
	instance   messaging.ServiceInstanceInfo
	logger     *slog.Logger
}

// NewPublisher creates a Publisher. A non-positive rate disables throttling.
func NewPublisher(
	transport messaging.Transport,
	config PublisherConfig,
	instance messaging.ServiceInstanceInfo,
	logger *slog.Logger,
) *Publisher {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := max(config.Burst, 1)

	var retries uint64
	if config.MaxRetries > 0 {
		retries = uint64(config.MaxRetries)
	}

	return &Publisher{
		transport:  transport,
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: retries,
		instance:   instance,
		logger:     logger,
	}
}

// Publish rebuilds the envelope of msg, records this instance as a hop and sends it to
// msg.Destination. Errors other than messaging.ErrTransportUnavailable are not retried.
func (p *Publisher) Publish(ctx context.Context, msg *domain.OutboxMessage) error {
	envelope, err := msg.Envelope()
	if err != nil {
		return err
	}
	envelope.AddHop(p.instance, msg.Destination)

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.maxRetries),
		ctx,
	)

	operation := func() error {
		err := p.transport.Publish(ctx, envelope, msg.Destination)
		if err == nil {
			return nil
		}
		if apperrors.Is(err, messaging.ErrTransportUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		if p.logger != nil {
			p.logger.Warn("retrying outbox publish",
				slog.String("message_id", msg.MessageID.String()),
				slog.String("destination", msg.Destination),
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
		}
	}

	return backoff.RetryNotify(operation, policy, notify)
}
