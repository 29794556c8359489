// Package quota implements the admission and accounting layer the
// orchestrator consults before dispatching a job: single-tier
// project quotas (local, Kubernetes ResourceQuota, Slurm association
// limits) and the two-tier VDC quota manager.
package quota

import (
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
)

// Snapshot is a read-only projection of a project's quota: its limits
// and current usage. GetQuota returns a nil Snapshot (no error) when
// the backend has no quota configured for the project, which callers
// treat as "unconstrained".
type Snapshot struct {
	Limits         resources.Resources
	Used           resources.Resources
	MaxConcurrent  int
	UsedConcurrent int
	PerTypeCaps    types.PerTypeCaps
	PerTypeUsed    map[types.JobType]int
}

// Provider is the quota admission and accounting contract. Check is a
// read-only projection the orchestrator uses to short-circuit policy
// selection; Reserve is the single authority on whether a request is
// admitted and MUST be atomic with respect to the persistent store.
// A Check returning true does not imply a subsequent Reserve will
// succeed — callers must not skip calling Reserve.
type Provider interface {
	GetQuota(projectID string) (*Snapshot, error)
	Check(projectID string, request resources.Resources, jobType types.JobType) (bool, error)
	Reserve(projectID string, request resources.Resources, jobType types.JobType) (bool, error)
	Release(projectID string, request resources.Resources, jobType types.JobType) error

	// Sync refreshes any cached state against the backend. Providers
	// that need no sync (the common case) implement it as a no-op.
	Sync() error
}

// fits reports whether used+request stays within limits on every
// resource dimension, and whether the concurrency and per-type job
// counters have room for one more job of jobType.
func fits(limits, used resources.Resources, maxConcurrent, usedConcurrent int, perTypeCaps types.PerTypeCaps, perTypeUsed map[types.JobType]int, request resources.Resources, jobType types.JobType) bool {
	if !resources.Fits(used.Add(request), limits) {
		return false
	}
	if maxConcurrent > 0 && usedConcurrent >= maxConcurrent {
		return false
	}
	if cap, ok := perTypeCaps[jobType]; ok && cap > 0 {
		if perTypeUsed[jobType] >= cap {
			return false
		}
	}
	return true
}
