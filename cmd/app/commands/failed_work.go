package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	inboxDomain "github.com/allisson/whizbang/internal/inbox/domain"
	outboxDomain "github.com/allisson/whizbang/internal/outbox/domain"
	perspectiveDomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// FailedOutbox lists and resets failed outbox messages.
type FailedOutbox interface {
	ListFailed(ctx context.Context, offset, limit int) ([]*outboxDomain.OutboxMessage, error)
	ResetFailed(ctx context.Context, messageID uuid.UUID) error
}

// FailedInbox lists and resets failed inbox records.
type FailedInbox interface {
	ListFailed(ctx context.Context, offset, limit int) ([]*inboxDomain.InboxMessage, error)
	ResetFailed(ctx context.Context, messageID uuid.UUID, handlerName string) error
}

// FailedCheckpoints lists and retries failed perspective checkpoints.
type FailedCheckpoints interface {
	ListFailed(ctx context.Context, offset, limit int) ([]*perspectiveDomain.Checkpoint, error)
	Retry(ctx context.Context, key perspectiveDomain.Key) error
}

// failedItem is the output row shared by every work kind.
type failedItem struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	Target   string `json:"target"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RunFailedWork prints the failed work of kind, up to limit rows, in text or JSON.
func RunFailedWork(
	ctx context.Context,
	outbox FailedOutbox,
	inbox FailedInbox,
	checkpoints FailedCheckpoints,
	logger *slog.Logger,
	out io.Writer,
	kind string,
	limit int,
	format string,
) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be a positive number, got: %d", limit)
	}

	logger.Info("listing failed work", slog.String("kind", kind), slog.Int("limit", limit))

	items, err := listFailed(ctx, outbox, inbox, checkpoints, kind, limit)
	if err != nil {
		return err
	}

	if format == "json" {
		return writeJSON(out, map[string]any{"kind": kind, "count": len(items), "items": items})
	}

	if len(items) == 0 {
		_, err := fmt.Fprintf(out, "No failed %s work\n", kind)
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintf(
			out,
			"%s\t%s\tattempts=%d\t%s\n",
			item.ID,
			item.Target,
			item.Attempts,
			item.Error,
		); err != nil {
			return err
		}
	}
	return nil
}

func listFailed(
	ctx context.Context,
	outbox FailedOutbox,
	inbox FailedInbox,
	checkpoints FailedCheckpoints,
	kind string,
	limit int,
) ([]failedItem, error) {
	items := make([]failedItem, 0)

	switch kind {
	case KindOutbox:
		messages, err := outbox.ListFailed(ctx, 0, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list failed outbox messages: %w", err)
		}
		for _, msg := range messages {
			items = append(items, failedItem{
				Kind:     kind,
				ID:       msg.MessageID.String(),
				Target:   msg.Destination,
				Attempts: msg.Attempts,
				Error:    deref(msg.Error),
			})
		}
	case KindInbox:
		messages, err := inbox.ListFailed(ctx, 0, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list failed inbox messages: %w", err)
		}
		for _, msg := range messages {
			items = append(items, failedItem{
				Kind:     kind,
				ID:       msg.MessageID.String(),
				Target:   msg.HandlerName,
				Attempts: msg.Attempts,
				Error:    deref(msg.Error),
			})
		}
	case KindPerspective:
		failed, err := checkpoints.ListFailed(ctx, 0, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list failed checkpoints: %w", err)
		}
		for _, checkpoint := range failed {
			items = append(items, failedItem{
				Kind:   kind,
				ID:     checkpoint.StreamID,
				Target: checkpoint.PerspectiveName,
				Error:  deref(checkpoint.Error),
			})
		}
	}

	return items, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
