// Package usecase implements inbox deduplication and handler dispatch.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/inbox/domain"
	"github.com/allisson/whizbang/internal/lease"
	"github.com/allisson/whizbang/internal/messaging"
)

// Config holds inbox use case configuration
type Config struct {
	PartitionCount int
	MaxAttempts    int
}

// inboxUseCase implements Inbox.
type inboxUseCase struct {
	config    Config
	txManager database.TxManager
	repo      InboxRepository
	handlers  *messaging.HandlerRegistry
	transport messaging.Transport
	instance  messaging.ServiceInstanceInfo
	logger    *slog.Logger
	now       func() time.Time
}

// NewInbox creates an Inbox. Records written by Receive are claimed by instance.
func NewInbox(
	config Config,
	txManager database.TxManager,
	repo InboxRepository,
	handlers *messaging.HandlerRegistry,
	transport messaging.Transport,
	instance messaging.ServiceInstanceInfo,
	logger *slog.Logger,
) Inbox {
	return &inboxUseCase{
		config:    config,
		txManager: txManager,
		repo:      repo,
		handlers:  handlers,
		transport: transport,
		instance:  instance,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (u *inboxUseCase) TryMarkProcessing(ctx context.Context, msg *domain.InboxMessage) (bool, error) {
	if msg.HandlerName == "" || msg.EventType == "" {
		return false, domain.ErrInvalidInboxMessage
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	msg.PartitionNumber = lease.PartitionOf(msg.PartitionKey(), u.config.PartitionCount)
	if msg.Status == "" {
		msg.Status = domain.InboxStatusPending
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = u.now()
	}
	return u.repo.TryMarkProcessing(ctx, msg)
}

func (u *inboxUseCase) MarkProcessed(ctx context.Context, messageID uuid.UUID, handlerName string) error {
	return u.repo.MarkProcessed(ctx, u.now(), domain.Key{MessageID: messageID, HandlerName: handlerName})
}

// Receive dedups envelope per handler. Each handler runs in the transaction that
// records it, so its own writes commit together with the inbox record. A failing
// handler rolls back and the failure is recorded in a new transaction for the work
// coordinator to retry; Receive then reports success to the transport.
func (u *inboxUseCase) Receive(ctx context.Context, envelope *messaging.Envelope, destination string) error {
	handlers, err := u.handlers.Handlers(envelope.EventType)
	if err != nil {
		return err
	}

	envelope.AddHop(u.instance, destination)

	for _, handler := range handlers {
		if err := u.receive(ctx, envelope, handler); err != nil {
			return err
		}
	}
	return nil
}

func (u *inboxUseCase) receive(ctx context.Context, envelope *messaging.Envelope, handler messaging.MessageHandler) error {
	err := u.txManager.WithTx(ctx, func(ctx context.Context) error {
		msg, err := u.claimedRecord(envelope, handler.Name())
		if err != nil {
			return err
		}

		inserted, err := u.TryMarkProcessing(ctx, msg)
		if err != nil {
			return err
		}
		if !inserted {
			if u.logger != nil {
				u.logger.Debug("skipping duplicate delivery",
					slog.String("message_id", envelope.MessageID.String()),
					slog.String("handler", handler.Name()),
				)
			}
			return nil
		}

		if err := handler.Handle(ctx, envelope); err != nil {
			return &handlerError{err: err}
		}
		return u.MarkProcessed(ctx, envelope.MessageID, handler.Name())
	})

	var herr *handlerError
	if !apperrors.As(err, &herr) {
		return err
	}

	if u.logger != nil {
		u.logger.Error("handler failed",
			slog.String("message_id", envelope.MessageID.String()),
			slog.String("event_type", envelope.EventType),
			slog.String("handler", handler.Name()),
			slog.Any("error", herr.err),
		)
	}
	return u.recordFailure(ctx, envelope, handler.Name(), herr.err)
}

func (u *inboxUseCase) recordFailure(ctx context.Context, envelope *messaging.Envelope, handlerName string, cause error) error {
	return u.txManager.WithTx(ctx, func(ctx context.Context) error {
		msg, err := u.claimedRecord(envelope, handlerName)
		if err != nil {
			return err
		}

		inserted, err := u.TryMarkProcessing(ctx, msg)
		if err != nil || !inserted {
			return err
		}

		failure := domain.Failure{
			Key:      domain.Key{MessageID: msg.MessageID, HandlerName: handlerName},
			Error:    cause.Error(),
			Terminal: apperrors.Is(cause, apperrors.ErrTerminal),
		}
		return u.repo.MarkFailed(ctx, failure, u.config.MaxAttempts)
	})
}

func (u *inboxUseCase) claimedRecord(envelope *messaging.Envelope, handlerName string) (*domain.InboxMessage, error) {
	now := u.now()
	msg, err := domain.NewInboxMessage(envelope, handlerName, now)
	if err != nil {
		return nil, err
	}
	instanceID := u.instance.InstanceID
	msg.InstanceID = &instanceID
	msg.ClaimedAt = &now
	return msg, nil
}

// Handle runs the handler named by msg. Handler failures are returned to the caller,
// which reports them to the work coordinator.
func (u *inboxUseCase) Handle(ctx context.Context, msg *domain.InboxMessage) error {
	handler, err := u.handlers.Handler(msg.EventType, msg.HandlerName)
	if err != nil {
		return err
	}

	envelope, err := msg.Envelope()
	if err != nil {
		return err
	}

	return u.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := handler.Handle(ctx, envelope); err != nil {
			return err
		}
		return u.MarkProcessed(ctx, msg.MessageID, msg.HandlerName)
	})
}

// Subscribe routes every destination to Receive. Subscriptions made before a failure
// are unsubscribed.
func (u *inboxUseCase) Subscribe(ctx context.Context, destinations ...string) ([]messaging.Subscription, error) {
	subs := make([]messaging.Subscription, 0, len(destinations))
	for _, destination := range destinations {
		sub, err := u.transport.Subscribe(ctx, destination, func(ctx context.Context, envelope *messaging.Envelope) error {
			return u.Receive(ctx, envelope, destination)
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, apperrors.Wrap(err, "failed to subscribe to "+destination)
		}
		if u.logger != nil {
			u.logger.Info("subscribed", slog.String("destination", destination))
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (u *inboxUseCase) Get(ctx context.Context, messageID uuid.UUID, handlerName string) (*domain.InboxMessage, error) {
	return u.repo.Get(ctx, domain.Key{MessageID: messageID, HandlerName: handlerName})
}

func (u *inboxUseCase) ListFailed(ctx context.Context, offset, limit int) ([]*domain.InboxMessage, error) {
	return u.repo.ListFailed(ctx, offset, limit)
}

func (u *inboxUseCase) ResetFailed(ctx context.Context, messageID uuid.UUID, handlerName string) error {
	return u.repo.ResetFailed(ctx, domain.Key{MessageID: messageID, HandlerName: handlerName})
}

// handlerError marks a failure raised by handler code rather than by the inbox itself.
type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }
