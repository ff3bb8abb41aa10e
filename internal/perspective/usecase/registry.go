package usecase

import (
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/allisson/whizbang/internal/errors"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// Registry maps perspective names to perspectives and stream types to the
// perspectives following them.
type Registry struct {
	mu           sync.RWMutex
	perspectives map[string]Perspective
	followers    map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		perspectives: make(map[string]Perspective),
		followers:    make(map[string][]string),
	}
}

// Register adds p as a follower of streamTypes. Names are unique.
func (r *Registry) Register(p Perspective, streamTypes ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.perspectives[p.Name()]; ok {
		return apperrors.Wrap(apperrors.ErrConflict, fmt.Sprintf("perspective %q already registered", p.Name()))
	}
	r.perspectives[p.Name()] = p
	for _, streamType := range streamTypes {
		r.followers[streamType] = append(r.followers[streamType], p.Name())
		sort.Strings(r.followers[streamType])
	}
	return nil
}

// Get returns the perspective registered under name.
func (r *Registry) Get(name string) (Perspective, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.perspectives[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pdomain.ErrPerspectiveNotFound, name)
	}
	return p, nil
}

// Names returns the perspectives following streamType in sorted order.
func (r *Registry) Names(streamType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.followers[streamType]...)
}
