// Package linkedrun propagates a Job's lifecycle onto the external
// experiment-tracking run it was submitted on behalf of, if any. The
// Run row itself lives outside this module (spec §1); only the
// propagation contract lives here.
package linkedrun

import (
	"time"

	"github.com/cuemby/jobctl/pkg/types"
)

// Updater is implemented by whatever owns the Run row. UpdateRunState
// is called with the new state and, for terminal states, a non-nil
// finishedAt.
type Updater interface {
	UpdateRunState(runID string, state types.RunState, finishedAt *time.Time) error
}

// stateByJobStatus is the propagation map from §4.G: JobStatus values
// not present here (PENDING, QUEUED) leave the run's state unchanged.
var stateByJobStatus = map[types.JobStatus]types.RunState{
	types.JobStatusRunning:   types.RunStateRunning,
	types.JobStatusSucceeded: types.RunStateFinished,
	types.JobStatusFailed:    types.RunStateCrashed,
	types.JobStatusCancelled: types.RunStateKilled,
	types.JobStatusTimeout:   types.RunStateCrashed,
}

// MapStatus translates a JobStatus into the RunState it propagates to,
// and whether a propagation is warranted at all (false for
// PENDING/QUEUED, which leave the run's state unchanged).
func MapStatus(status types.JobStatus) (types.RunState, bool) {
	state, ok := stateByJobStatus[status]
	return state, ok
}

// Propagate updates the run linked to job, if any, to the RunState
// implied by job.Status. It is a no-op when the job has no linked run
// or when status doesn't map to a RunState change.
func Propagate(updater Updater, job *types.Job) error {
	if job.RunID == "" {
		return nil
	}
	state, ok := MapStatus(job.Status)
	if !ok {
		return nil
	}

	var finishedAt *time.Time
	if job.Status.Terminal() {
		t := job.FinishedAt
		finishedAt = &t
	}
	return updater.UpdateRunState(job.RunID, state, finishedAt)
}
