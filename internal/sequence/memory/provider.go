// Package memory provides a process-local sequence provider.
// It gives no guarantee across processes and is meant for tests and single-process setups.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/allisson/whizbang/internal/sequence"
)

// Provider keeps one atomic counter per key.
type Provider struct {
	counters sync.Map // map[string]*atomic.Int64 holding the next value to issue
}

// NewProvider creates an empty provider.
func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) counter(key string) *atomic.Int64 {
	if c, ok := p.counters.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := p.counters.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64)
}

// GetNext returns the next value for key.
func (p *Provider) GetNext(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := sequence.ValidateKey(key); err != nil {
		return 0, err
	}
	return p.counter(key).Add(1) - 1, nil
}

// GetCurrent returns the last value issued for key.
func (p *Provider) GetCurrent(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := sequence.ValidateKey(key); err != nil {
		return 0, err
	}
	c, ok := p.counters.Load(key)
	if !ok {
		return sequence.Unused, nil
	}
	return c.(*atomic.Int64).Load() - 1, nil
}

// Reset makes the next GetNext for key return newValue.
func (p *Provider) Reset(ctx context.Context, key string, newValue int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sequence.ValidateKey(key); err != nil {
		return err
	}
	p.counter(key).Store(newValue)
	return nil
}
