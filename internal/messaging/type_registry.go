package messaging

import (
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/allisson/whizbang/internal/errors"
)

// ErrUnknownEventType indicates an event type with no registered decoder.
// Readers must stop on it; skipping would break ordering and counting guarantees.
var ErrUnknownEventType = apperrors.Wrap(apperrors.ErrTerminal, "unknown event type")

// DecodeFunc turns a serialized payload into its concrete type.
type DecodeFunc func(data []byte) (any, error)

// TypeRegistry maps event type names to decoders.
type TypeRegistry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{decoders: make(map[string]DecodeFunc)}
}

// RegisterDecoder binds name to decode.
func (r *TypeRegistry) RegisterDecoder(name string, decode DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[name] = decode
}

// RegisterType binds name to JSON decoding into *T.
func RegisterType[T any](r *TypeRegistry, name string) {
	r.RegisterDecoder(name, func(data []byte) (any, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return &v, nil
	})
}

// Decode decodes data registered under name.
func (r *TypeRegistry) Decode(name string, data []byte) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, name)
	}

	v, err := decode(data)
	if err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("failed to decode %s", name))
	}
	return v, nil
}

// Known reports whether name has a decoder.
func (r *TypeRegistry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[name]
	return ok
}
