package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/whizbang/internal/sequence"
)

// RunResetSequence sets key so its next issued value is value. With stream set, key
// is treated as a stream id and mapped to the stream's sequence key.
func RunResetSequence(
	ctx context.Context,
	provider sequence.Provider,
	logger *slog.Logger,
	out io.Writer,
	key string,
	stream bool,
	value int64,
	format string,
) error {
	if value < 0 {
		return fmt.Errorf("value must not be negative, got: %d", value)
	}
	if stream {
		key = sequence.StreamKey(key)
	}

	previous, err := provider.GetCurrent(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}

	if err := provider.Reset(ctx, key, value); err != nil {
		return fmt.Errorf("failed to reset sequence: %w", err)
	}

	logger.Info("sequence reset",
		slog.String("key", key),
		slog.Int64("previous", previous),
		slog.Int64("next", value),
	)

	if format == "json" {
		return writeJSON(out, map[string]any{"key": key, "previous": previous, "next": value})
	}
	_, err = fmt.Fprintf(out, "Sequence %s reset: next value is %d (last issued %d)\n", key, value, previous)
	return err
}
