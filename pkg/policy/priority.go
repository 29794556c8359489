package policy

import "github.com/cuemby/jobctl/pkg/types"

// Priority selects the job of maximum priority, breaking ties by FIFO.
// ShouldPreempt nominates the minimum-priority running job when an
// incoming job's priority clears it by PreemptionThreshold.
type Priority struct{}

func NewPriority() *Priority { return &Priority{} }

func (p *Priority) Name() string { return "priority" }

func (p *Priority) SelectNext(queue *types.JobQueue, pending []*types.Job) *types.Job {
	var best *types.Job
	for _, j := range pending {
		if best == nil || betterPriority(j, best) {
			best = j
		}
	}
	return best
}

func betterPriority(candidate, current *types.Job) bool {
	if candidate.Priority != current.Priority {
		return candidate.Priority > current.Priority
	}
	return betterFIFO(candidate, current)
}

func (p *Priority) ShouldPreempt(running []*types.Job, incoming *types.Job) *types.Job {
	if len(running) == 0 {
		return nil
	}
	var victim *types.Job
	for _, j := range running {
		if victim == nil || j.Priority < victim.Priority {
			victim = j
		}
	}
	if incoming.Priority >= victim.Priority+PreemptionThreshold {
		return victim
	}
	return nil
}
