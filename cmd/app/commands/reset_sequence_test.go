package commands

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allisson/whizbang/internal/sequence"
	"github.com/allisson/whizbang/internal/sequence/memory"
)

func TestRunResetSequence(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("stream-key", func(t *testing.T) {
		provider := memory.NewProvider()
		for range 3 {
			_, err := provider.GetNext(ctx, sequence.StreamKey("order-123"))
			require.NoError(t, err)
		}

		var out bytes.Buffer
		err := RunResetSequence(ctx, provider, logger, &out, "order-123", true, 10, "text")
		require.NoError(t, err)
		require.Contains(t, out.String(), "next value is 10 (last issued 2)")

		next, err := provider.GetNext(ctx, sequence.StreamKey("order-123"))
		require.NoError(t, err)
		require.Equal(t, int64(10), next)
	})

	t.Run("json-output", func(t *testing.T) {
		provider := memory.NewProvider()

		var out bytes.Buffer
		err := RunResetSequence(ctx, provider, logger, &out, "invoice", false, 0, "json")
		require.NoError(t, err)
		require.Contains(t, out.String(), `"key": "invoice"`)
		require.Contains(t, out.String(), `"previous": -1`)
	})

	t.Run("negative-value", func(t *testing.T) {
		err := RunResetSequence(ctx, memory.NewProvider(), logger, &bytes.Buffer{}, "invoice", false, -1, "text")

		require.Error(t, err)
		require.Contains(t, err.Error(), "value must not be negative")
	})

	t.Run("blank-key", func(t *testing.T) {
		err := RunResetSequence(ctx, memory.NewProvider(), logger, &bytes.Buffer{}, "", false, 1, "text")

		require.ErrorIs(t, err, sequence.ErrEmptyKey)
	})
}
