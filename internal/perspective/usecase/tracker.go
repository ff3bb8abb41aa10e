package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/database"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// trackerUseCase implements Tracker.
type trackerUseCase struct {
	txManager database.TxManager
	repo      CheckpointRepository
	logger    *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(txManager database.TxManager, repo CheckpointRepository, logger *slog.Logger) Tracker {
	return &trackerUseCase{txManager: txManager, repo: repo, logger: logger}
}

func (u *trackerUseCase) Checkpoint(ctx context.Context, key pdomain.Key) (*pdomain.Checkpoint, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return u.repo.Get(ctx, key)
}

func (u *trackerUseCase) MarkFailed(ctx context.Context, key pdomain.Key, cause error) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return u.repo.MarkFailed(ctx, pdomain.Failure{Key: key, Error: cause.Error()})
}

func (u *trackerUseCase) ListFailed(ctx context.Context, offset, limit int) ([]*pdomain.Checkpoint, error) {
	return u.repo.ListFailed(ctx, offset, limit)
}

func (u *trackerUseCase) Retry(ctx context.Context, key pdomain.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}

	return u.txManager.WithTx(ctx, func(ctx context.Context) error {
		cp, err := u.repo.Get(ctx, key)
		if err != nil {
			return err
		}

		status := cp.Status.Without(pdomain.StatusFailed | pdomain.StatusCompleted).With(pdomain.StatusProcessing)
		if err := u.repo.Reset(ctx, key, cp.LastEventID, status); err != nil {
			return err
		}

		u.logger.Info("perspective checkpoint retried", slog.String("checkpoint", key.String()))
		return nil
	})
}

func (u *trackerUseCase) Rewind(ctx context.Context, key pdomain.Key, eventID *uuid.UUID) error {
	if err := key.Validate(); err != nil {
		return err
	}

	return u.txManager.WithTx(ctx, func(ctx context.Context) error {
		cp, err := u.repo.Get(ctx, key)
		if err != nil {
			return err
		}

		status := cp.Status.
			Without(pdomain.StatusFailed | pdomain.StatusCompleted).
			With(pdomain.StatusProcessing | pdomain.StatusRebuildInProgress)
		if err := u.repo.Reset(ctx, key, eventID, status); err != nil {
			return err
		}

		position := "start"
		if eventID != nil {
			position = eventID.String()
		}
		u.logger.Info("perspective checkpoint rewound",
			slog.String("checkpoint", key.String()),
			slog.String("position", position),
		)
		return nil
	})
}
