// Package usecase commits units of work: event appends, perspective checkpoint
// acquisition and outbox records share one transaction.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	"github.com/allisson/whizbang/internal/dispatch/domain"
	esdomain "github.com/allisson/whizbang/internal/eventstore/domain"
	"github.com/allisson/whizbang/internal/messaging"
	outboxdomain "github.com/allisson/whizbang/internal/outbox/domain"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// EventAppender appends events to streams.
type EventAppender interface {
	Append(ctx context.Context, streamID string, event *esdomain.NewEvent) (*esdomain.Event, error)
}

// OutboxStore records outgoing messages.
type OutboxStore interface {
	Store(ctx context.Context, msg *outboxdomain.OutboxMessage) error
}

// CheckpointAcquirer flags perspectives for processing after an append.
type CheckpointAcquirer interface {
	AcquirePerspectiveCheckpointWork(
		ctx context.Context,
		streamID string,
		perspectiveNames []string,
		eventID uuid.UUID,
	) ([]*pdomain.Checkpoint, error)
}

// PerspectiveFollowers resolves the perspectives following a stream type.
type PerspectiveFollowers interface {
	Names(streamType string) []string
}

// Dispatcher commits units of work.
type Dispatcher interface {
	// Commit stores every message of unit in one transaction. A committed unit
	// returns domain.ErrUnitAlreadyCommitted.
	Commit(ctx context.Context, unit *domain.UnitOfWork) error
}

// dispatcherUseCase implements Dispatcher.
type dispatcherUseCase struct {
	txManager   database.TxManager
	events      EventAppender
	outbox      OutboxStore
	checkpoints CheckpointAcquirer
	followers   PerspectiveFollowers
	instance    messaging.ServiceInstanceInfo
	logger      *slog.Logger
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher stamping outgoing envelopes with instance.
func NewDispatcher(
	txManager database.TxManager,
	events EventAppender,
	outbox OutboxStore,
	checkpoints CheckpointAcquirer,
	followers PerspectiveFollowers,
	instance messaging.ServiceInstanceInfo,
	logger *slog.Logger,
) Dispatcher {
	return &dispatcherUseCase{
		txManager:   txManager,
		events:      events,
		outbox:      outbox,
		checkpoints: checkpoints,
		followers:   followers,
		instance:    instance,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (d *dispatcherUseCase) Commit(ctx context.Context, unit *domain.UnitOfWork) error {
	if unit.Committed() {
		return domain.ErrUnitAlreadyCommitted
	}

	err := d.txManager.WithTx(ctx, func(ctx context.Context) error {
		for _, msg := range unit.Messages {
			if err := d.dispatch(ctx, unit, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		unit.MarkRolledBack()
		d.logger.Error("unit of work rolled back",
			slog.String("unit_id", unit.ID.String()),
			slog.Int("messages", len(unit.Messages)),
			slog.Any("error", err),
		)
		return err
	}

	unit.MarkCommitted()
	d.logger.Debug("unit of work committed",
		slog.String("unit_id", unit.ID.String()),
		slog.Int("messages", len(unit.Messages)),
	)
	return nil
}

func (d *dispatcherUseCase) dispatch(ctx context.Context, unit *domain.UnitOfWork, msg *domain.Message) error {
	envelope := msg.Envelope
	id := envelope.MessageID

	if msg.StreamID != "" {
		metadata, err := envelope.Flatten()
		if err != nil {
			return err
		}

		event, err := d.events.Append(ctx, msg.StreamID, &esdomain.NewEvent{
			EventID:    id,
			StreamType: msg.StreamType,
			EventType:  envelope.EventType,
			Data:       envelope.Payload,
			Metadata:   metadata,
		})
		if err != nil {
			return err
		}
		unit.Advance(id, domain.StageAppended)

		if names := d.followers.Names(msg.StreamType); len(names) > 0 {
			if _, err := d.checkpoints.AcquirePerspectiveCheckpointWork(ctx, msg.StreamID, names, event.EventID); err != nil {
				return err
			}
		}
	}

	if msg.Destination != "" {
		// The hop belongs to the stored row; the caller's envelope is left as is so a
		// rolled back unit can be committed again.
		routed := envelope.Clone()
		routed.AddHop(d.instance, msg.Destination)
		outboxMsg, err := outboxdomain.NewOutboxMessage(routed, msg.Destination, msg.StreamID, d.now())
		if err != nil {
			return err
		}
		if err := d.outbox.Store(ctx, outboxMsg); err != nil {
			return err
		}
		unit.Advance(id, domain.StageOutboxed)
	}
	return nil
}
