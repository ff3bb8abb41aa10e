// Package sequence issues gapless, monotonically increasing numbers per key.
//
// Every provider starts a key at 0 and hands out previous+1 on each GetNext call.
// The SQL providers run the increment as a single statement against the sequences
// table and join the caller's transaction through the context, so an increment
// made by a rolled-back append is rolled back with it.
package sequence

import (
	"context"
	"strings"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

// Unused is returned by GetCurrent for a key that never issued a value.
const Unused int64 = -1

// ErrEmptyKey indicates a blank sequence key.
var ErrEmptyKey = apperrors.Wrap(apperrors.ErrInvalidInput, "sequence key is required")

// Provider issues sequence numbers.
type Provider interface {
	// GetNext returns the next value for key, starting at 0.
	GetNext(ctx context.Context, key string) (int64, error)

	// GetCurrent returns the last value issued for key, or Unused.
	GetCurrent(ctx context.Context, key string) (int64, error)

	// Reset makes the next GetNext for key return newValue.
	Reset(ctx context.Context, key string, newValue int64) error
}

// StreamKey returns the sequence key used for an event stream.
func StreamKey(streamID string) string {
	return "stream:" + streamID
}

// ValidateKey rejects blank keys.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}
