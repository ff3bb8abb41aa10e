// Package commands contains CLI command implementations for the application.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/allisson/whizbang/internal/app"
)

// Work kinds accepted by the failed-work and retry-failed commands.
const (
	KindOutbox      = "outbox"
	KindInbox       = "inbox"
	KindPerspective = "perspective"
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// writeJSON writes v indented for machine consumption.
func writeJSON(out io.Writer, v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(jsonBytes))
	return err
}

func validateKind(kind string) error {
	switch kind {
	case KindOutbox, KindInbox, KindPerspective:
		return nil
	default:
		return fmt.Errorf("invalid kind: %s (valid options: outbox, inbox, perspective)", kind)
	}
}
