package usecase

import (
	"context"
	"time"

	"github.com/allisson/whizbang/internal/metrics"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// runnerWithMetrics decorates Runner with metrics instrumentation.
type runnerWithMetrics struct {
	next    Runner
	metrics metrics.BusinessMetrics
}

// NewRunnerWithMetrics wraps a Runner with metrics recording.
func NewRunnerWithMetrics(runner Runner, m metrics.BusinessMetrics) Runner {
	return &runnerWithMetrics{next: runner, metrics: m}
}

// Run records metrics for perspective runs.
func (r *runnerWithMetrics) Run(ctx context.Context, key pdomain.Key) (*RunResult, error) {
	start := time.Now()
	result, err := r.next.Run(ctx, key)

	status := metrics.StatusFor(err)
	r.metrics.RecordOperation(ctx, "perspective", "perspective_run", status)
	r.metrics.RecordDuration(ctx, "perspective", "perspective_run", time.Since(start), status)
	return result, err
}
