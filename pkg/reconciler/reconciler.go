// Package reconciler polls backend drivers for the live status of
// RUNNING jobs and brings persisted state back in sync with it: a
// terminal status change releases quota, updates queue counters via
// the orchestrator's completion hook, and propagates to any linked
// experiment-tracking run.
package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/jobctl/pkg/driver"
	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/log"
	"github.com/cuemby/jobctl/pkg/metrics"
	"github.com/cuemby/jobctl/pkg/scheduler"
	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/rs/zerolog"
)

// MaxConsecutiveFailures is how many consecutive driver-read failures
// a job tolerates before the reconciler gives up on it and marks it
// FAILED with quotas released, per §4.G.
const MaxConsecutiveFailures = 5

// Reconciler is the periodic status-sync loop from §4.G.
type Reconciler struct {
	store        storage.Store
	drivers      map[types.Executor]driver.Driver
	orchestrator *scheduler.Orchestrator

	logger zerolog.Logger
	mu     sync.Mutex
	stopCh chan struct{}

	readFailures map[string]int
}

// NewReconciler builds a Reconciler. orchestrator supplies the
// completion hook (CompleteJob) that both Cancel and this reconciler
// use to release quota and propagate terminal transitions.
func NewReconciler(store storage.Store, drivers map[types.Executor]driver.Driver, orchestrator *scheduler.Orchestrator) *Reconciler {
	return &Reconciler{
		store:        store,
		drivers:      drivers,
		orchestrator: orchestrator,
		logger:       log.WithComponent("reconciler"),
		stopCh:       make(chan struct{}),
		readFailures: make(map[string]int),
	}
}

// Start begins the reconciliation loop, ticking every interval.
func (r *Reconciler) Start(interval time.Duration) {
	go r.run(interval)
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", interval).Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.Tick(); err != nil {
				// Log error but continue
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// Tick runs one reconciliation cycle over every job in RUNNING.
func (r *Reconciler) Tick() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcileTickDuration)
		metrics.ReconcileCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	jobs, err := r.store.ListJobsByStatus(types.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("list running jobs: %w", err)
	}

	for _, job := range jobs {
		if err := r.reconcileJob(job); err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to reconcile job")
		}
	}
	return nil
}

// reconcileJob is idempotent: a job already in a terminal state (e.g.
// reconciled by a concurrent tick) is simply skipped on the next read.
func (r *Reconciler) reconcileJob(job *types.Job) error {
	drv, ok := r.drivers[job.Executor]
	if !ok {
		return fmt.Errorf("job %s: executor %s: %w", job.ID, job.Executor, errs.ErrExecutorUnavailable)
	}

	status, err := drv.Status(job.ExternalID)
	if err != nil {
		return r.handleReadFailure(job, err)
	}
	delete(r.readFailures, job.ID)

	if status == job.Status {
		return nil
	}

	r.logger.Info().
		Str("job_id", job.ID).
		Str("from", string(job.Status)).
		Str("to", string(status)).
		Msg("job status changed")

	job.Status = status
	if !status.Terminal() {
		if err := r.store.UpdateJob(job); err != nil {
			return fmt.Errorf("persist job %s: %w", job.ID, err)
		}
		return nil
	}
	job.FinishedAt = time.Now()

	if err := r.orchestrator.CompleteJob(job, true); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	return nil
}

// handleReadFailure tracks consecutive driver-read failures for job
// and, past MaxConsecutiveFailures, gives up on it: marks it FAILED
// with error_message "status-sync failed" and releases its quota via
// the completion hook. A single failure below the threshold aborts
// only this job's reconciliation; the loop continues to the next one.
func (r *Reconciler) handleReadFailure(job *types.Job, readErr error) error {
	r.readFailures[job.ID]++
	count := r.readFailures[job.ID]

	r.logger.Warn().
		Err(readErr).
		Str("job_id", job.ID).
		Int("consecutive_failures", count).
		Msg("failed to read job status from driver")

	if count < MaxConsecutiveFailures {
		return nil
	}

	delete(r.readFailures, job.ID)
	job.Status = types.JobStatusFailed
	job.ErrorMessage = "status-sync failed"
	job.FinishedAt = time.Now()
	if err := r.orchestrator.CompleteJob(job, true); err != nil {
		return fmt.Errorf("complete job %s after status-sync failure: %w", job.ID, err)
	}
	metrics.JobsFailedTotal.WithLabelValues("status-sync").Inc()
	return nil
}
