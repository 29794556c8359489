/*
Package scheduler implements the orchestrator state machine that moves
a Job from QUEUED to RUNNING (or CANCELLED): per-project queues with a
concurrency cap, a pluggable dispatch policy, quota admission, optional
VDC-aware cluster selection, and submission to a backend driver.

# Architecture

	┌──────────────────────────────────────────────────────────┐
	│                 Orchestrator.Tick()                      │
	│              (every SchedulingTickInterval)               │
	└───────────────────┬────────────────────────────────────────┘
	                    │
	                    ▼
	┌──────────────────────────────────────────────────────────┐
	│ 1. List queues, sort by descending priority               │
	│ 2. For each enabled queue under its concurrency cap:       │
	│    • Read QUEUED jobs                                      │
	│    • policy.SelectNext picks the next job                  │
	│    • TryDispatch admits it onto a backend                  │
	└──────────────────────────────────────────────────────────┘

# TryDispatch

TryDispatch is the only path that moves a job to RUNNING. It resolves
the job's resource request, reserves project (and, when VDC routing is
enabled, VDC) quota, optionally picks a cluster via pkg/selector, and
submits through the pkg/driver matching Job.Executor. Any failure
after quota has been reserved releases it before returning, so a job
never leaves TryDispatch holding quota without also holding a
submitted external_id.

# Cancellation and completion

Cancel is valid from PENDING, QUEUED, and RUNNING; it calls the
backend driver's Cancel only for RUNNING jobs. Both Cancel and the
reconciler (pkg/reconciler) funnel terminal transitions through
CompleteJob, which releases quota, updates the owning queue's advisory
counters, and propagates the new state to a linked experiment-tracking
run via pkg/linkedrun.

# Audit stream

Every state transition the orchestrator makes also publishes a
pkg/events.Event onto an optionally-configured broker (quota
reserved/released, job dispatched, cancelled, status changed). A nil
broker is a no-op; this keeps the orchestrator free of any opinion
about what, if anything, consumes the audit stream.

# See Also

  - pkg/reconciler - polls RUNNING jobs for backend status changes
  - pkg/policy - SelectNext/ShouldPreempt implementations
  - pkg/selector - cluster selection within a VDC
  - pkg/quota - project and VDC admission/accounting
  - pkg/driver - backend submission and lifecycle queries
  - pkg/events - the audit event broker
*/
package scheduler
