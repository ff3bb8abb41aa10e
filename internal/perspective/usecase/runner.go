package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
	esusecase "github.com/allisson/whizbang/internal/eventstore/usecase"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// errConcurrentAdvance rolls back an apply whose checkpoint moved underneath it.
var errConcurrentAdvance = apperrors.New("checkpoint advanced concurrently")

// runnerUseCase implements Runner.
type runnerUseCase struct {
	txManager    database.TxManager
	repo         CheckpointRepository
	events       esusecase.EventStore
	perspectives *Registry
	logger       *slog.Logger
	now          func() time.Time
}

// NewRunner creates a Runner reading events from events.
func NewRunner(
	txManager database.TxManager,
	repo CheckpointRepository,
	events esusecase.EventStore,
	perspectives *Registry,
	logger *slog.Logger,
) Runner {
	return &runnerUseCase{
		txManager:    txManager,
		repo:         repo,
		events:       events,
		perspectives: perspectives,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (u *runnerUseCase) Run(ctx context.Context, key pdomain.Key) (*RunResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	perspective, err := u.perspectives.Get(key.PerspectiveName)
	if err != nil {
		return nil, err
	}

	cp, err := u.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	result := &RunResult{LastEventID: cp.AfterEventID()}
	catchingUp := false

	for event, err := range u.events.ReadAfter(ctx, key.StreamID, cp.AfterEventID()) {
		if err != nil {
			return result, apperrors.Wrap(err, "failed to read stream")
		}

		if result.Applied == 1 && !catchingUp {
			if err := u.repo.SetCatchingUp(ctx, key, true); err != nil {
				return result, err
			}
			catchingUp = true
		}

		txErr := u.txManager.WithTx(ctx, func(ctx context.Context) error {
			if err := perspective.Apply(ctx, event); err != nil {
				return &pdomain.PerspectiveApplyError{Key: key, EventID: event.EventID, Err: err}
			}
			advanced, err := u.repo.Advance(ctx, key, event.EventID, u.now())
			if err != nil {
				return err
			}
			if !advanced {
				return errConcurrentAdvance
			}
			return nil
		})

		if apperrors.Is(txErr, errConcurrentAdvance) {
			u.logger.Debug("checkpoint advanced by another runner",
				slog.String("checkpoint", key.String()),
				slog.String("event_id", event.EventID.String()),
			)
			break
		}

		var applyErr *pdomain.PerspectiveApplyError
		if apperrors.As(txErr, &applyErr) {
			u.logger.Error("perspective apply failed",
				slog.String("checkpoint", key.String()),
				slog.String("event_id", event.EventID.String()),
				slog.Any("error", applyErr.Err),
			)
			if markErr := u.repo.MarkFailed(ctx, pdomain.Failure{Key: key, Error: applyErr.Err.Error()}); markErr != nil {
				return result, apperrors.Join(applyErr, markErr)
			}
			return result, applyErr
		}
		if txErr != nil {
			return result, txErr
		}

		result.Applied++
		result.LastEventID = event.EventID
	}

	if catchingUp {
		if err := u.repo.SetCatchingUp(ctx, key, false); err != nil {
			return result, err
		}
	}

	if result.Applied > 0 {
		u.logger.Debug("perspective caught up",
			slog.String("checkpoint", key.String()),
			slog.Int("applied", result.Applied),
			slog.String("last_event_id", result.LastEventID.String()),
		)
	}
	return result, nil
}
