package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/whizbang/internal/coordinator/domain"
	apperrors "github.com/allisson/whizbang/internal/errors"
	inboxdomain "github.com/allisson/whizbang/internal/inbox/domain"
	outboxdomain "github.com/allisson/whizbang/internal/outbox/domain"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
	perspectiveusecase "github.com/allisson/whizbang/internal/perspective/usecase"
)

// deregisterTimeout bounds the shutdown drain and deregistration.
const deregisterTimeout = 10 * time.Second

// WorkerConfig holds worker loop configuration
type WorkerConfig struct {
	HeartbeatInterval time.Duration
}

// OutboxPublisher sends one claimed outbox message.
type OutboxPublisher interface {
	Publish(ctx context.Context, msg *outboxdomain.OutboxMessage) error
}

// InboxHandler runs the handler of one claimed inbox record.
type InboxHandler interface {
	Handle(ctx context.Context, msg *inboxdomain.InboxMessage) error
}

// Worker heartbeats the coordinator and executes the work it is leased. Outcomes
// are held until the next heartbeat succeeds.
type Worker struct {
	config      WorkerConfig
	coordinator Coordinator
	instance    *domain.ServiceInstance
	publisher   OutboxPublisher
	inbox       InboxHandler
	runner      perspectiveusecase.Runner
	logger      *slog.Logger

	mu      sync.Mutex
	pending domain.Outcomes
}

// NewWorker creates a Worker acting as instance.
func NewWorker(
	config WorkerConfig,
	coordinator Coordinator,
	instance *domain.ServiceInstance,
	publisher OutboxPublisher,
	inbox InboxHandler,
	runner perspectiveusecase.Runner,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		config:      config,
		coordinator: coordinator,
		instance:    instance,
		publisher:   publisher,
		inbox:       inbox,
		runner:      runner,
		logger:      logger,
	}
}

// Start runs the heartbeat loop until ctx is cancelled, then reports the held
// outcomes and deregisters the instance.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("starting work coordinator worker",
		slog.String("instance_id", w.instance.InstanceID.String()),
		slog.String("service_name", w.instance.ServiceName),
		slog.Duration("heartbeat_interval", w.config.HeartbeatInterval),
	)

	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("work batch failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("stopping work coordinator worker")
			w.shutdown(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one heartbeat: it reports the held outcomes, claims a batch and
// executes it. On a failed heartbeat the outcomes are kept for the next one.
func (w *Worker) Tick(ctx context.Context) error {
	req := &domain.WorkBatchRequest{Instance: w.instance, Outcomes: w.takePending()}

	batch, err := w.coordinator.ProcessWorkBatch(ctx, req)
	if err != nil {
		w.hold(req.Outcomes)
		return err
	}

	w.hold(w.execute(ctx, batch))
	return nil
}

// Pending returns the outcomes not yet reported.
func (w *Worker) Pending() domain.Outcomes {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

func (w *Worker) takePending() domain.Outcomes {
	w.mu.Lock()
	defer w.mu.Unlock()
	pending := w.pending
	w.pending = domain.Outcomes{}
	return pending
}

func (w *Worker) hold(outcomes domain.Outcomes) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = w.pending.Merge(outcomes)
}

func (w *Worker) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, deregisterTimeout)
	defer cancel()

	req := &domain.WorkBatchRequest{Instance: w.instance, Outcomes: w.takePending(), Draining: true}
	if !req.Empty() {
		if _, err := w.coordinator.ProcessWorkBatch(ctx, req); err != nil {
			w.logger.Error("failed to report outcomes on shutdown", slog.Any("error", err))
		}
	}

	if err := w.coordinator.Deregister(ctx, w.instance.InstanceID); err != nil {
		w.logger.Error("failed to deregister instance", slog.Any("error", err))
	}
}

// execute runs the outbox, inbox and perspective work of batch concurrently.
func (w *Worker) execute(ctx context.Context, batch *domain.WorkBatch) domain.Outcomes {
	var outbox, inbox, perspectives domain.Outcomes

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		outbox = w.publishOutbox(gctx, batch.Outbox)
		return nil
	})
	g.Go(func() error {
		inbox = w.handleInbox(gctx, batch.Inbox)
		return nil
	})
	g.Go(func() error {
		perspectives = w.runPerspectives(gctx, batch.Perspectives)
		return nil
	})
	_ = g.Wait()

	return outbox.Merge(inbox).Merge(perspectives)
}

func (w *Worker) publishOutbox(ctx context.Context, messages []*outboxdomain.OutboxMessage) domain.Outcomes {
	var outcomes domain.Outcomes
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}

		if err := w.publisher.Publish(ctx, msg); err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error("failed to publish outbox message",
				slog.String("message_id", msg.MessageID.String()),
				slog.String("destination", msg.Destination),
				slog.Any("error", err),
			)
			outcomes.OutboxFailed = append(outcomes.OutboxFailed, outboxdomain.Failure{
				MessageID: msg.MessageID,
				Error:     err.Error(),
				Terminal:  apperrors.Is(err, apperrors.ErrTerminal),
			})
			continue
		}
		outcomes.OutboxCompleted = append(outcomes.OutboxCompleted, msg.MessageID)
	}
	return outcomes
}

func (w *Worker) handleInbox(ctx context.Context, messages []*inboxdomain.InboxMessage) domain.Outcomes {
	var outcomes domain.Outcomes
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}

		key := inboxdomain.Key{MessageID: msg.MessageID, HandlerName: msg.HandlerName}
		if err := w.inbox.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error("inbox handler failed",
				slog.String("message_id", msg.MessageID.String()),
				slog.String("handler_name", msg.HandlerName),
				slog.Any("error", err),
			)
			outcomes.InboxFailed = append(outcomes.InboxFailed, inboxdomain.Failure{
				Key:      key,
				Error:    err.Error(),
				Terminal: apperrors.Is(err, apperrors.ErrTerminal),
			})
			continue
		}
		outcomes.InboxCompleted = append(outcomes.InboxCompleted, key)
	}
	return outcomes
}

func (w *Worker) runPerspectives(ctx context.Context, checkpoints []*pdomain.Checkpoint) domain.Outcomes {
	var outcomes domain.Outcomes
	for _, cp := range checkpoints {
		if ctx.Err() != nil {
			break
		}

		_, err := w.runner.Run(ctx, cp.Key)
		var applyErr *pdomain.PerspectiveApplyError
		switch {
		case err == nil:
			outcomes.PerspectiveCompleted = append(outcomes.PerspectiveCompleted, cp.Key)
		case ctx.Err() != nil:
			return outcomes
		case apperrors.As(err, &applyErr):
			// the runner already recorded the failure on the checkpoint
		case apperrors.Is(err, apperrors.ErrTerminal):
			outcomes.PerspectiveFailed = append(outcomes.PerspectiveFailed,
				pdomain.Failure{Key: cp.Key, Error: err.Error()})
		default:
			w.logger.Error("perspective run failed",
				slog.String("checkpoint", cp.Key.String()),
				slog.Any("error", err),
			)
			outcomes.PerspectiveReleased = append(outcomes.PerspectiveReleased, cp.Key)
		}
	}
	return outcomes
}
