package domain

import "strings"

// CheckpointStatus is a set of flags; a checkpoint may, for example, be catching up
// after a previous failure.
type CheckpointStatus int16

const (
	StatusProcessing CheckpointStatus = 1 << iota
	StatusCompleted
	StatusFailed
	StatusCatchingUp
	StatusRebuildInProgress
)

// StatusNone is the zero set.
const StatusNone CheckpointStatus = 0

var statusNames = []struct {
	flag CheckpointStatus
	name string
}{
	{StatusProcessing, "Processing"},
	{StatusCompleted, "Completed"},
	{StatusFailed, "Failed"},
	{StatusCatchingUp, "CatchingUp"},
	{StatusRebuildInProgress, "RebuildInProgress"},
}

// Has reports whether every flag of f is set.
func (s CheckpointStatus) Has(f CheckpointStatus) bool { return s&f == f }

// With returns s with f set.
func (s CheckpointStatus) With(f CheckpointStatus) CheckpointStatus { return s | f }

// Without returns s with f cleared.
func (s CheckpointStatus) Without(f CheckpointStatus) CheckpointStatus { return s &^ f }

func (s CheckpointStatus) IsProcessing() bool { return s.Has(StatusProcessing) }
func (s CheckpointStatus) IsCompleted() bool  { return s.Has(StatusCompleted) }
func (s CheckpointStatus) IsFailed() bool     { return s.Has(StatusFailed) }
func (s CheckpointStatus) IsCatchingUp() bool { return s.Has(StatusCatchingUp) }
func (s CheckpointStatus) IsRebuilding() bool { return s.Has(StatusRebuildInProgress) }

// String lists the set flags joined by "|", or "None".
func (s CheckpointStatus) String() string {
	if s == StatusNone {
		return "None"
	}
	var names []string
	for _, n := range statusNames {
		if s.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}
