// Package memory provides an in-process messaging.Transport for tests and single-process setups.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	apperrors "github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/messaging"
)

// Transport delivers envelopes synchronously to the subscribers of a destination.
// Envelopes are copied through JSON so subscribers never share state with publishers.
type Transport struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

// NewTransport creates an empty in-memory transport.
func NewTransport() *Transport {
	return &Transport{subs: make(map[string]map[*subscription]struct{})}
}

type subscription struct {
	transport   *Transport
	destination string
	handler     messaging.Handler
}

func (s *subscription) Unsubscribe() error {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	delete(s.transport.subs[s.destination], s)
	return nil
}

// Publish delivers envelope to every handler subscribed to destination and returns the
// first handler error.
func (t *Transport) Publish(ctx context.Context, envelope *messaging.Envelope, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return messaging.ErrTransportUnavailable
	}
	handlers := make([]messaging.Handler, 0, len(t.subs[destination]))
	for sub := range t.subs[destination] {
		handlers = append(handlers, sub.handler)
	}
	t.mu.RUnlock()

	data, err := json.Marshal(envelope)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal envelope")
	}

	for _, h := range handlers {
		var copied messaging.Envelope
		if err := json.Unmarshal(data, &copied); err != nil {
			return apperrors.Wrap(err, "failed to unmarshal envelope")
		}
		if err := h(ctx, &copied); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers handler for destination.
func (t *Transport) Subscribe(
	_ context.Context,
	destination string,
	handler messaging.Handler,
) (messaging.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, messaging.ErrTransportUnavailable
	}
	sub := &subscription{transport: t, destination: destination, handler: handler}
	if t.subs[destination] == nil {
		t.subs[destination] = make(map[*subscription]struct{})
	}
	t.subs[destination][sub] = struct{}{}
	return sub, nil
}

// IsReady reports whether the transport is open.
func (t *Transport) IsReady(_ context.Context) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.closed
}

// Close drops all subscriptions.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.subs = make(map[string]map[*subscription]struct{})
	return nil
}
