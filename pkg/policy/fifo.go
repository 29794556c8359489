package policy

import "github.com/cuemby/jobctl/pkg/types"

// FIFO selects the job with the lowest queue position, breaking ties by
// earliest enqueued_at.
type FIFO struct {
	noPreempt
}

func NewFIFO() *FIFO { return &FIFO{} }

func (f *FIFO) Name() string { return "fifo" }

func (f *FIFO) SelectNext(queue *types.JobQueue, pending []*types.Job) *types.Job {
	var best *types.Job
	for _, j := range pending {
		if best == nil || betterFIFO(j, best) {
			best = j
		}
	}
	return best
}

func betterFIFO(candidate, current *types.Job) bool {
	if candidate.QueuePosition != current.QueuePosition {
		return candidate.QueuePosition < current.QueuePosition
	}
	return candidate.EnqueuedAt.Before(current.EnqueuedAt)
}
