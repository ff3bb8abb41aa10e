// Package usecase implements perspective checkpoint tracking and the runner that
// replays stream events into perspectives.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/eventstore/domain"
	"github.com/allisson/whizbang/internal/lease"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// CheckpointRepository defines checkpoint persistence. Every method joins the
// caller's transaction through database.GetTx.
type CheckpointRepository interface {
	// Get returns the checkpoint or pdomain.ErrCheckpointNotFound.
	Get(ctx context.Context, key pdomain.Key) (*pdomain.Checkpoint, error)

	// Acquire upserts one checkpoint per name with Processing set and error cleared,
	// keeping last_event_id. A checkpoint already at or past eventID is not re-flagged.
	Acquire(
		ctx context.Context,
		streamID string,
		names []string,
		eventID uuid.UUID,
		partition int,
	) ([]*pdomain.Checkpoint, error)

	// Advance moves last_event_id to eventID when eventID has a higher version than
	// the current position, clearing Failed and the error. It reports whether it moved.
	Advance(ctx context.Context, key pdomain.Key, eventID uuid.UUID, at time.Time) (bool, error)

	// MarkFailed keeps last_event_id, records the error, sets Failed, clears
	// Processing and CatchingUp and releases the claim.
	MarkFailed(ctx context.Context, failure pdomain.Failure) error

	SetCatchingUp(ctx context.Context, key pdomain.Key, catchingUp bool) error

	// Reset sets last_event_id to eventID (nil for the start of the stream) and the
	// status to status, clearing the error and the claim.
	Reset(ctx context.Context, key pdomain.Key, eventID *uuid.UUID, status pdomain.CheckpointStatus) error

	ListFailed(ctx context.Context, offset, limit int) ([]*pdomain.Checkpoint, error)

	// ClaimProcessing assigns up to claim.Limit eligible Processing checkpoints.
	ClaimProcessing(ctx context.Context, claim lease.Claim) ([]*pdomain.Checkpoint, error)

	// Complete releases the claims instanceID holds on keys and, for checkpoints
	// positioned at the last event of their stream, clears Processing, CatchingUp and
	// RebuildInProgress and sets Completed. Keys claimed by another instance are skipped.
	Complete(ctx context.Context, instanceID uuid.UUID, keys ...pdomain.Key) error

	// Release clears the claims instanceID holds on keys.
	Release(ctx context.Context, instanceID uuid.UUID, keys ...pdomain.Key) error

	// ReleaseClaims clears every claim held by instanceID.
	ReleaseClaims(ctx context.Context, instanceID uuid.UUID) error
}

// Perspective is a read model built by applying a stream's events in order.
type Perspective interface {
	Name() string
	Apply(ctx context.Context, event *domain.Event) error
}

// RunResult summarizes one Run.
type RunResult struct {
	Applied     int
	LastEventID uuid.UUID
}

// Runner replays pending events of a stream into a perspective.
type Runner interface {
	// Run applies the events after the checkpoint in version order. Each apply commits
	// with its checkpoint advance. A failing apply marks the checkpoint Failed and
	// returns *pdomain.PerspectiveApplyError.
	Run(ctx context.Context, key pdomain.Key) (*RunResult, error)
}

// Tracker exposes checkpoint state to callers and operators.
type Tracker interface {
	Checkpoint(ctx context.Context, key pdomain.Key) (*pdomain.Checkpoint, error)
	MarkFailed(ctx context.Context, key pdomain.Key, cause error) error
	ListFailed(ctx context.Context, offset, limit int) ([]*pdomain.Checkpoint, error)

	// Retry flags a failed checkpoint for processing from its current position.
	Retry(ctx context.Context, key pdomain.Key) error

	// Rewind replays the perspective from after eventID, or from the start when nil.
	Rewind(ctx context.Context, key pdomain.Key, eventID *uuid.UUID) error
}
