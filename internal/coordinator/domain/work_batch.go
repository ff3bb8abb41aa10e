package domain

import (
	"slices"

	"github.com/google/uuid"

	inboxdomain "github.com/allisson/whizbang/internal/inbox/domain"
	outboxdomain "github.com/allisson/whizbang/internal/outbox/domain"
	pdomain "github.com/allisson/whizbang/internal/perspective/domain"
)

// Outcomes are the results of a previous batch, reported on the next heartbeat.
// PerspectiveReleased hands back checkpoints whose run hit a transient error so
// that the partition owner can claim them again.
type Outcomes struct {
	OutboxCompleted      []uuid.UUID
	OutboxFailed         []outboxdomain.Failure
	InboxCompleted       []inboxdomain.Key
	InboxFailed          []inboxdomain.Failure
	PerspectiveCompleted []pdomain.Key
	PerspectiveFailed    []pdomain.Failure
	PerspectiveReleased  []pdomain.Key
}

// Empty reports whether there is nothing to report.
func (o Outcomes) Empty() bool {
	return len(o.OutboxCompleted) == 0 && len(o.OutboxFailed) == 0 &&
		len(o.InboxCompleted) == 0 && len(o.InboxFailed) == 0 &&
		len(o.PerspectiveCompleted) == 0 && len(o.PerspectiveFailed) == 0 &&
		len(o.PerspectiveReleased) == 0
}

// Merge returns o with other appended.
func (o Outcomes) Merge(other Outcomes) Outcomes {
	return Outcomes{
		OutboxCompleted:      slices.Concat(o.OutboxCompleted, other.OutboxCompleted),
		OutboxFailed:         slices.Concat(o.OutboxFailed, other.OutboxFailed),
		InboxCompleted:       slices.Concat(o.InboxCompleted, other.InboxCompleted),
		InboxFailed:          slices.Concat(o.InboxFailed, other.InboxFailed),
		PerspectiveCompleted: slices.Concat(o.PerspectiveCompleted, other.PerspectiveCompleted),
		PerspectiveFailed:    slices.Concat(o.PerspectiveFailed, other.PerspectiveFailed),
		PerspectiveReleased:  slices.Concat(o.PerspectiveReleased, other.PerspectiveReleased),
	}
}

// WorkBatchRequest is one heartbeat of an instance. When Draining is set the
// outcomes are applied but no new work is claimed.
type WorkBatchRequest struct {
	Instance *ServiceInstance
	Outcomes
	Draining bool
}

// Validate checks the request carries an instance.
func (r *WorkBatchRequest) Validate() error {
	if r.Instance == nil || r.Instance.InstanceID == uuid.Nil {
		return ErrInvalidWorkBatchRequest
	}
	return nil
}

// WorkBatch is the work leased to an instance by one heartbeat.
type WorkBatch struct {
	InstanceID   uuid.UUID
	Partitions   []int
	Outbox       []*outboxdomain.OutboxMessage
	Inbox        []*inboxdomain.InboxMessage
	Perspectives []*pdomain.Checkpoint
}

// Size is the number of claimed work items.
func (b *WorkBatch) Size() int {
	return len(b.Outbox) + len(b.Inbox) + len(b.Perspectives)
}
