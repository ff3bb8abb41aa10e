// Package domain defines service instances and the work batches the coordinator
// leases to them.
package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/errors"
	"github.com/allisson/whizbang/internal/messaging"
)

var (
	// ErrInstanceNotFound indicates no service instance is registered under an id.
	ErrInstanceNotFound = errors.Wrap(errors.ErrNotFound, "service instance not found")

	// ErrInvalidWorkBatchRequest indicates a request without an instance.
	ErrInvalidWorkBatchRequest = errors.Wrap(errors.ErrInvalidInput, "invalid work batch request")
)

// ServiceInstance is one running process of a service. It is live while its last
// heartbeat is within the lease timeout.
type ServiceInstance struct {
	InstanceID      uuid.UUID
	ServiceName     string
	HostName        string
	ProcessID       int
	StartedAt       time.Time
	LastHeartbeatAt time.Time
	Metadata        map[string]string
}

// NewServiceInstance registers info as an instance started at now.
func NewServiceInstance(info messaging.ServiceInstanceInfo, now time.Time) *ServiceInstance {
	return &ServiceInstance{
		InstanceID:      info.InstanceID,
		ServiceName:     info.ServiceName,
		HostName:        info.HostName,
		ProcessID:       info.ProcessID,
		StartedAt:       now,
		LastHeartbeatAt: now,
		Metadata:        map[string]string{},
	}
}

// Info returns the identity stamped on envelope hops.
func (s *ServiceInstance) Info() messaging.ServiceInstanceInfo {
	return messaging.ServiceInstanceInfo{
		ServiceName: s.ServiceName,
		InstanceID:  s.InstanceID,
		HostName:    s.HostName,
		ProcessID:   s.ProcessID,
	}
}

// IsLive reports whether the instance heartbeat is newer than now - leaseTimeout.
func (s *ServiceInstance) IsLive(now time.Time, leaseTimeout time.Duration) bool {
	return now.Sub(s.LastHeartbeatAt) < leaseTimeout
}
