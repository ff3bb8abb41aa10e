// Package lease holds the pieces of the lease protocol shared by every work table:
// partitioning, partition ownership and the claim window.
package lease

import (
	"bytes"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Claim describes one claim pass of an instance over a work table. A row is eligible
// when it is in one of Partitions and is unclaimed, claimed by InstanceID, or claimed
// by an instance whose last heartbeat is before StaleBefore.
type Claim struct {
	InstanceID  uuid.UUID
	Partitions  []int
	Now         time.Time
	StaleBefore time.Time
	Limit       int
}

// NewClaim builds the claim window for instanceID at now.
func NewClaim(instanceID uuid.UUID, partitions []int, now time.Time, leaseTimeout time.Duration, limit int) Claim {
	return Claim{
		InstanceID:  instanceID,
		Partitions:  partitions,
		Now:         now,
		StaleBefore: now.Add(-leaseTimeout),
		Limit:       limit,
	}
}

// Empty reports whether the claim cannot match any row.
func (c Claim) Empty() bool {
	return len(c.Partitions) == 0 || c.Limit <= 0
}

// PartitionOf maps key onto one of count partitions.
func PartitionOf(key string, count int) int {
	if count <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(count))
}

// Assign returns the partitions self owns among the live instances: with live sorted
// by id, the instance at rank r owns every partition p where p % len(live) == r.
// It returns nil when self is not live.
func Assign(live []uuid.UUID, self uuid.UUID, count int) []int {
	sorted := slices.Clone(live)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	sorted = slices.Compact(sorted)

	rank := slices.Index(sorted, self)
	if rank < 0 {
		return nil
	}

	owned := make([]int, 0, count/len(sorted)+1)
	for p := rank; p < count; p += len(sorted) {
		owned = append(owned, p)
	}
	return owned
}

// Owner returns the instance an outcome update is guarded by, or nil for updates
// that are not tied to a claim (operator and inline calls). A guarded update only
// touches rows that are unclaimed or claimed by that instance, so a report that
// arrives after its lease was taken over leaves the new owner's claim intact.
func Owner(instanceID uuid.UUID) *uuid.UUID {
	if instanceID == uuid.Nil {
		return nil
	}
	return &instanceID
}
