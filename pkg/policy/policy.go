// Package policy implements the scheduling policies that decide which
// queued job runs next and whether a running job should be preempted
// for an incoming one. Policies are pure: they read the jobs handed to
// them and return a choice, never touching storage themselves.
package policy

import (
	"fmt"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/types"
)

// PreemptionThreshold is how much higher an incoming job's priority
// must be than the lowest-priority running job before Priority nominates
// a preemption victim. Chosen to avoid thrashing between two jobs whose
// priorities differ by a small margin; see DESIGN.md.
const PreemptionThreshold = 10

// Policy selects the next job to dispatch from a queue's pending set,
// and optionally nominates a running job to preempt for an incoming one.
type Policy interface {
	Name() string

	// SelectNext returns the job that should be dispatched next, or nil
	// if pending is empty or none qualifies.
	SelectNext(queue *types.JobQueue, pending []*types.Job) *types.Job

	// ShouldPreempt returns a running job to cancel in favor of incoming,
	// or nil if no preemption is warranted. The default behavior (used by
	// FIFO, FairShare and Backfill-over-those) is to never preempt.
	ShouldPreempt(running []*types.Job, incoming *types.Job) *types.Job
}

// noPreempt is embedded by policies that never nominate a preemption
// victim, so they don't each repeat the empty implementation.
type noPreempt struct{}

func (noPreempt) ShouldPreempt(running []*types.Job, incoming *types.Job) *types.Job {
	return nil
}

// New resolves a policy by its configured name, wrapping FIFO as the
// fallback base policy for "backfill". Returns errs.ErrConfigInvalid for
// an unrecognized name.
func New(name string) (Policy, error) {
	switch name {
	case "fifo":
		return NewFIFO(), nil
	case "priority":
		return NewPriority(), nil
	case "fair_share":
		return NewFairShare(DefaultLookbackWindow), nil
	case "backfill":
		return NewBackfill(NewFIFO()), nil
	default:
		return nil, fmt.Errorf("policy %q: %w", name, errs.ErrConfigInvalid)
	}
}
