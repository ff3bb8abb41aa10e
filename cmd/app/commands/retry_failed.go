package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	perspectiveDomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// RetryTarget identifies the failed work to reset. Outbox uses ID, inbox uses ID and
// Handler, perspective uses Stream and Perspective.
type RetryTarget struct {
	ID          string
	Handler     string
	Stream      string
	Perspective string
}

// RunRetryFailed moves one failed work item back to pending so the coordinator claims
// it again on a later heartbeat.
func RunRetryFailed(
	ctx context.Context,
	outbox FailedOutbox,
	inbox FailedInbox,
	checkpoints FailedCheckpoints,
	logger *slog.Logger,
	out io.Writer,
	kind string,
	target RetryTarget,
	format string,
) error {
	if err := validateKind(kind); err != nil {
		return err
	}

	var err error
	switch kind {
	case KindOutbox:
		err = retryOutbox(ctx, outbox, target)
	case KindInbox:
		err = retryInbox(ctx, inbox, target)
	case KindPerspective:
		err = retryPerspective(ctx, checkpoints, target)
	}
	if err != nil {
		return err
	}

	logger.Info("failed work reset",
		slog.String("kind", kind),
		slog.String("id", target.ID),
		slog.String("handler", target.Handler),
		slog.String("stream", target.Stream),
		slog.String("perspective", target.Perspective),
	)

	if format == "json" {
		return writeJSON(out, map[string]any{"kind": kind, "status": "pending"})
	}
	_, err = fmt.Fprintf(out, "Failed %s work reset to pending\n", kind)
	return err
}

func retryOutbox(ctx context.Context, outbox FailedOutbox, target RetryTarget) error {
	messageID, err := parseMessageID(target.ID)
	if err != nil {
		return err
	}
	if err := outbox.ResetFailed(ctx, messageID); err != nil {
		return fmt.Errorf("failed to reset outbox message: %w", err)
	}
	return nil
}

func retryInbox(ctx context.Context, inbox FailedInbox, target RetryTarget) error {
	messageID, err := parseMessageID(target.ID)
	if err != nil {
		return err
	}
	if target.Handler == "" {
		return fmt.Errorf("handler is required for inbox retries")
	}
	if err := inbox.ResetFailed(ctx, messageID, target.Handler); err != nil {
		return fmt.Errorf("failed to reset inbox message: %w", err)
	}
	return nil
}

func retryPerspective(ctx context.Context, checkpoints FailedCheckpoints, target RetryTarget) error {
	if target.Stream == "" || target.Perspective == "" {
		return fmt.Errorf("stream and perspective are required for perspective retries")
	}
	key := perspectiveDomain.Key{StreamID: target.Stream, PerspectiveName: target.Perspective}
	if err := checkpoints.Retry(ctx, key); err != nil {
		return fmt.Errorf("failed to retry checkpoint: %w", err)
	}
	return nil
}

func parseMessageID(id string) (uuid.UUID, error) {
	messageID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	return messageID, nil
}
