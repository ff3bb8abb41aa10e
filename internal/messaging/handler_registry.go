package messaging

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

// ErrHandlerNotFound indicates no handler is registered for a message type.
// It is a configuration error and is never retried.
var ErrHandlerNotFound = apperrors.Wrap(apperrors.ErrTerminal, "handler not found")

// MessageHandler processes envelopes of the message types it is registered for.
type MessageHandler interface {
	Name() string
	Handle(ctx context.Context, envelope *Envelope) error
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, envelope *Envelope) error
}

// Name returns the handler name used as inbox dedup key.
func (h HandlerFunc) Name() string { return h.HandlerName }

// Handle calls Fn.
func (h HandlerFunc) Handle(ctx context.Context, envelope *Envelope) error {
	return h.Fn(ctx, envelope)
}

// HandlerRegistry maps message types to handlers. Registration is explicit and usually
// done once at startup; lookups are safe for concurrent use.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]MessageHandler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string][]MessageHandler)}
}

// Register adds handler for messageType. A handler name may appear once per type.
func (r *HandlerRegistry) Register(messageType string, handler MessageHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.handlers[messageType] {
		if existing.Name() == handler.Name() {
			return apperrors.Wrap(
				apperrors.ErrConflict,
				fmt.Sprintf("handler %q already registered for %q", handler.Name(), messageType),
			)
		}
	}
	r.handlers[messageType] = append(r.handlers[messageType], handler)
	return nil
}

// Handlers returns the handlers registered for messageType.
func (r *HandlerRegistry) Handlers(messageType string) ([]MessageHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers := r.handlers[messageType]
	if len(handlers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, messageType)
	}
	return append([]MessageHandler(nil), handlers...), nil
}

// Handler returns the handler registered under name for messageType.
func (r *HandlerRegistry) Handler(messageType, name string) (MessageHandler, error) {
	handlers, err := r.Handlers(messageType)
	if err != nil {
		return nil, err
	}
	for _, h := range handlers {
		if h.Name() == name {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrHandlerNotFound, messageType, name)
}

// MessageTypes lists the registered message types in sorted order.
func (r *HandlerRegistry) MessageTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
