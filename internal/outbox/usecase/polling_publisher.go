package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/outbox/domain"
)

// Config holds polling publisher configuration
type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// MessagePublisher sends one outbox message.
type MessagePublisher interface {
	Publish(ctx context.Context, msg *domain.OutboxMessage) error
}

// PollingPublisher drains the outbox on a ticker without partition coordination.
// It serves single-instance deployments where the work coordinator is disabled.
type PollingPublisher struct {
	config    Config
	txManager database.TxManager
	repo      OutboxRepository
	publisher MessagePublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewPollingPublisher creates a new PollingPublisher
func NewPollingPublisher(
	config Config,
	txManager database.TxManager,
	repo OutboxRepository,
	publisher MessagePublisher,
	logger *slog.Logger,
) *PollingPublisher {
	return &PollingPublisher{
		config:    config,
		txManager: txManager,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the publish loop until ctx is cancelled
func (p *PollingPublisher) Start(ctx context.Context) error {
	if p.logger != nil {
		p.logger.Info("starting outbox polling publisher",
			slog.Duration("interval", p.config.Interval),
			slog.Int("batch_size", p.config.BatchSize),
		)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.logger != nil {
				p.logger.Info("stopping outbox polling publisher")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := p.ProcessPending(ctx); err != nil {
				if p.logger != nil {
					p.logger.Error("failed to process outbox messages", slog.Any("error", err))
				}
			}
		}
	}
}

// ProcessPending publishes one batch of pending messages in a transaction. Rows stay
// locked until the batch is settled so concurrent pollers skip them.
func (p *PollingPublisher) ProcessPending(ctx context.Context) error {
	return p.txManager.WithTx(ctx, func(ctx context.Context) error {
		messages, err := p.repo.GetPending(ctx, p.config.BatchSize)
		if err != nil {
			return err
		}

		if len(messages) == 0 {
			return nil
		}

		if p.logger != nil {
			p.logger.Info("publishing outbox messages", slog.Int("count", len(messages)))
		}

		published := make([]uuid.UUID, 0, len(messages))
		for _, msg := range messages {
			if err := p.publisher.Publish(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				if p.logger != nil {
					p.logger.Error("failed to publish outbox message",
						slog.String("message_id", msg.MessageID.String()),
						slog.String("event_type", msg.EventType),
						slog.String("destination", msg.Destination),
						slog.Any("error", err),
					)
				}

				failure := domain.Failure{
					MessageID: msg.MessageID,
					Error:     err.Error(),
					Terminal:  apperrors.Is(err, apperrors.ErrTerminal),
				}
				if err := p.repo.MarkFailed(ctx, failure, p.config.MaxAttempts); err != nil {
					return err
				}
				continue
			}
			published = append(published, msg.MessageID)
		}

		if len(published) == 0 {
			return nil
		}
		return p.repo.MarkPublished(ctx, p.now(), published...)
	})
}
