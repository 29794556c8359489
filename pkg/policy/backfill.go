package policy

import "github.com/cuemby/jobctl/pkg/types"

// Backfill wraps a base policy. It reserves the base policy's chosen
// job as the primary candidate, then looks for a smaller pending job
// (strictly less CPU and memory, and no more GPUs) to run ahead of it —
// on the premise that such a job is the one least likely to delay the
// primary. If none qualifies, the
// primary candidate is returned unchanged.
type Backfill struct {
	base Policy
}

func NewBackfill(base Policy) *Backfill {
	if base == nil {
		base = NewFIFO()
	}
	return &Backfill{base: base}
}

func (b *Backfill) Name() string { return "backfill" }

func (b *Backfill) SelectNext(queue *types.JobQueue, pending []*types.Job) *types.Job {
	primary := b.base.SelectNext(queue, pending)
	if primary == nil {
		return nil
	}

	var candidate *types.Job
	for _, j := range pending {
		if j.ID == primary.ID {
			continue
		}
		if !smallerFootprint(j, primary) {
			continue
		}
		if candidate == nil || smallerFootprint(j, candidate) {
			candidate = j
		}
	}
	if candidate != nil {
		return candidate
	}
	return primary
}

func (b *Backfill) ShouldPreempt(running []*types.Job, incoming *types.Job) *types.Job {
	return b.base.ShouldPreempt(running, incoming)
}

// smallerFootprint reports whether a requests strictly less CPU and
// memory than b and no more GPUs, so running a ahead of b cannot
// increase the resources b is waiting on.
func smallerFootprint(a, b *types.Job) bool {
	ar, br := a.Request, b.Request
	return ar.CPUFloat() < br.CPUFloat() &&
		ar.MemoryFloatGiB() < br.MemoryFloatGiB() &&
		ar.GPUCount <= br.GPUCount
}
