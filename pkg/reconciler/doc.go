/*
Package reconciler implements the periodic status-sync loop from §4.G:
for every job in RUNNING, poll its backend driver for the current
status and, when it differs from the persisted one, update the job
and — for a terminal status — run the orchestrator's completion hook.

# Architecture

	┌──────────────────────────────────────────────────────────┐
	│                  Reconciler.Tick()                       │
	│             (every ReconcileTickInterval)                 │
	└───────────────────┬────────────────────────────────────────┘
	                    │
	                    ▼
	┌──────────────────────────────────────────────────────────┐
	│ For each job in {RUNNING}:                                │
	│  1. status = driver.Status(external_id)                   │
	│  2. read error → bump per-job failure counter              │
	│     (≥5 consecutive → FAILED, quota released)              │
	│  3. status == persisted → no-op                            │
	│  4. otherwise → persist, and if terminal, CompleteJob      │
	└──────────────────────────────────────────────────────────┘

The reconciler is level-triggered and idempotent: a job already in a
terminal state simply drops out of the RUNNING scan on the next tick,
so a missed or repeated cycle never double-applies a transition.

# Orchestrator coordination

The reconciler holds a reference to a *scheduler.Orchestrator and
calls its CompleteJob for every terminal transition it detects, the
same completion hook user cancellation uses. This keeps quota release,
queue counter bookkeeping, and linked-run propagation in one place
rather than duplicated between the two packages.

# See Also

  - pkg/scheduler - the dispatch side of the job lifecycle
  - pkg/driver - backend Status() implementations
  - pkg/linkedrun - the propagation contract CompleteJob drives
*/
package reconciler
