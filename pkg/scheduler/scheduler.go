package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/jobctl/pkg/driver"
	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/events"
	"github.com/cuemby/jobctl/pkg/linkedrun"
	"github.com/cuemby/jobctl/pkg/log"
	"github.com/cuemby/jobctl/pkg/metrics"
	"github.com/cuemby/jobctl/pkg/policy"
	"github.com/cuemby/jobctl/pkg/quota"
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/selector"
	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultQueueName     = "default"
	defaultMaxConcurrent = 10
)

// Orchestrator is the scheduling state machine from §4.F: it admits
// submitted jobs onto a per-project queue, and on each tick walks
// queues by descending priority trying to dispatch their pending jobs
// against quota, the cluster selector, and a backend driver.
type Orchestrator struct {
	store         storage.Store
	quotaProvider quota.Provider
	vdcManager    *quota.VDCManager
	policy        policy.Policy
	drivers       map[types.Executor]driver.Driver
	selector      selector.Strategy
	jobCounter    selector.JobCounter
	linkedRun     linkedrun.Updater
	events        *events.Broker
	vdcRouting    bool

	logger zerolog.Logger
	mu     sync.Mutex
	stopCh chan struct{}
}

// Config bundles the collaborators an Orchestrator needs. VDCManager,
// LinkedRun and Events may be nil when VDC routing is disabled, the
// deployment has no experiment-tracking integration, or nothing
// subscribes to the audit stream, respectively.
type Config struct {
	Store         storage.Store
	QuotaProvider quota.Provider
	VDCManager    *quota.VDCManager
	Policy        policy.Policy
	Drivers       map[types.Executor]driver.Driver
	Selector      selector.Strategy
	JobCounter    selector.JobCounter
	LinkedRun     linkedrun.Updater
	Events        *events.Broker
	VDCRouting    bool
}

// NewOrchestrator builds an Orchestrator from cfg.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		store:         cfg.Store,
		quotaProvider: cfg.QuotaProvider,
		vdcManager:    cfg.VDCManager,
		policy:        cfg.Policy,
		drivers:       cfg.Drivers,
		selector:      cfg.Selector,
		jobCounter:    cfg.JobCounter,
		linkedRun:     cfg.LinkedRun,
		events:        cfg.Events,
		vdcRouting:    cfg.VDCRouting,
		logger:        log.WithComponent("scheduler"),
		stopCh:        make(chan struct{}),
	}
}

// publish emits msg as an audit event of kind, tagged with jobID, to
// the configured broker. A nil broker (no subscriber wired) is a no-op.
func (o *Orchestrator) publish(kind events.EventType, jobID, msg string) {
	if o.events == nil {
		return
	}
	o.events.Publish(&events.Event{
		ID:      uuid.New().String(),
		Type:    kind,
		Message: msg,
		Metadata: map[string]string{
			"job_id": jobID,
		},
	})
}

// Start begins the scheduling loop, ticking every interval.
func (o *Orchestrator) Start(interval time.Duration) {
	go o.run(interval)
}

// Stop stops the scheduling loop.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
}

func (o *Orchestrator) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info().Dur("interval", interval).Msg("scheduler started")

	for {
		select {
		case <-ticker.C:
			if err := o.Tick(); err != nil {
				// Log error but continue
				o.logger.Error().Err(err).Msg("scheduling tick failed")
			}
		case <-o.stopCh:
			o.logger.Info().Msg("scheduler stopped")
			return
		}
	}
}

// Enqueue admits job: resolves (creating on first use) the default
// queue for job.ProjectID, assigns it the next queue position, and
// persists it QUEUED in one transaction.
func (o *Orchestrator) Enqueue(job *types.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	err := o.store.WithTx(func(tx storage.Store) error {
		queue, err := resolveDefaultQueue(tx, job.ProjectID)
		if err != nil {
			return err
		}

		pending, err := tx.ListJobsByQueueAndStatus(queue.ID, types.JobStatusQueued)
		if err != nil {
			return fmt.Errorf("list queued jobs for queue %s: %w", queue.ID, err)
		}
		position := 0
		for _, j := range pending {
			if j.QueuePosition >= position {
				position = j.QueuePosition + 1
			}
		}

		now := time.Now()
		job.QueueID = queue.ID
		job.QueuePosition = position
		job.EnqueuedAt = now
		job.SubmittedAt = now
		job.Status = types.JobStatusQueued

		if err := tx.CreateJob(job); err != nil {
			return fmt.Errorf("create job %s: %w", job.ID, err)
		}

		queue.TotalJobs++
		queue.PendingJobs++
		queue.UpdatedAt = now
		if err := tx.UpdateQueue(queue); err != nil {
			return fmt.Errorf("update queue %s: %w", queue.ID, err)
		}

		metrics.JobsSubmittedTotal.WithLabelValues(job.ProjectID, string(job.JobType)).Inc()
		return nil
	})
	if err == nil {
		o.publish(events.EventJobEnqueued, job.ID, "job enqueued")
	}
	return err
}

func resolveDefaultQueue(tx storage.Store, projectID string) (*types.JobQueue, error) {
	queues, err := tx.ListQueuesByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("list queues for project %s: %w", projectID, err)
	}
	for _, q := range queues {
		if q.Name == defaultQueueName {
			return q, nil
		}
	}

	now := time.Now()
	queue := &types.JobQueue{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		Name:          defaultQueueName,
		Priority:      0,
		Enabled:       true,
		MaxConcurrent: defaultMaxConcurrent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.CreateQueue(queue); err != nil {
		return nil, fmt.Errorf("create default queue for project %s: %w", projectID, err)
	}
	return queue, nil
}

// Tick runs one scheduling cycle: queues are scanned in descending
// priority order, and each enabled queue under its concurrency cap has
// jobs dispatched from it until the policy yields no candidate or the
// cap is reached.
func (o *Orchestrator) Tick() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingTickDuration)

	o.mu.Lock()
	defer o.mu.Unlock()

	queues, err := o.store.ListQueues()
	if err != nil {
		return fmt.Errorf("list queues: %w", err)
	}

	sort.Slice(queues, func(i, j int) bool {
		if queues[i].Priority != queues[j].Priority {
			return queues[i].Priority > queues[j].Priority
		}
		return queues[i].ID < queues[j].ID
	})

	totalPending := 0
	for _, queue := range queues {
		metrics.QueueDepth.WithLabelValues(queue.ID).Set(float64(queue.PendingJobs))
		totalPending += queue.PendingJobs
		if !queue.Enabled {
			continue
		}
		if queue.MaxConcurrent > 0 && queue.RunningJobs >= queue.MaxConcurrent {
			continue
		}
		if err := o.drainQueue(queue); err != nil {
			o.logger.Error().Err(err).Str("queue_id", queue.ID).Msg("failed to drain queue")
		}
	}
	metrics.SetQueueBacklog(totalPending)
	return nil
}

func (o *Orchestrator) drainQueue(queue *types.JobQueue) error {
	pending, err := o.store.ListJobsByQueueAndStatus(queue.ID, types.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("list queued jobs for queue %s: %w", queue.ID, err)
	}

	for {
		if queue.MaxConcurrent > 0 && queue.RunningJobs >= queue.MaxConcurrent {
			candidate := o.policy.SelectNext(queue, pending)
			if candidate == nil {
				return nil
			}
			preempted, err := o.tryPreempt(queue, candidate)
			if err != nil {
				return fmt.Errorf("preempt for queue %s: %w", queue.ID, err)
			}
			if !preempted {
				return nil
			}
			queue.RunningJobs--
			continue
		}
		job := o.policy.SelectNext(queue, pending)
		if job == nil {
			return nil
		}
		pending = withoutJob(pending, job.ID)

		metrics.JobDispatchAttemptsTotal.Inc()
		job.DispatchTries++
		dispatched, err := o.TryDispatch(job)
		if err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("dispatch attempt failed")
		}
		if !dispatched {
			continue
		}

		queue.RunningJobs++
		queue.PendingJobs--
		queue.UpdatedAt = time.Now()
		if err := o.store.UpdateQueue(queue); err != nil {
			return fmt.Errorf("update queue %s: %w", queue.ID, err)
		}
	}
}

func withoutJob(jobs []*types.Job, id string) []*types.Job {
	out := make([]*types.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.ID != id {
			out = append(out, j)
		}
	}
	return out
}

// TryDispatch attempts to move job from QUEUED to RUNNING: it resolves
// the resource request, reserves quota, optionally selects a cluster
// when VDC routing is enabled, and submits to the matching backend
// driver. A false return with a nil error means the job should remain
// QUEUED for a later attempt.
func (o *Orchestrator) TryDispatch(job *types.Job) (bool, error) {
	request, err := driver.ExtractRequest(job)
	if err != nil {
		return o.failJob(job, "config", fmt.Errorf("resolve resource request: %w", err))
	}

	admitted, err := o.quotaProvider.Reserve(job.ProjectID, request, job.JobType)
	if err != nil {
		return false, fmt.Errorf("reserve quota for job %s: %w", job.ID, err)
	}
	if !admitted {
		metrics.QuotaRejectionsTotal.WithLabelValues("project").Inc()
		return false, nil
	}
	o.publish(events.EventJobQuotaReserved, job.ID, "project quota reserved")

	var cluster *types.Cluster
	if o.vdcRouting && job.VDCID != "" {
		cluster, err = o.selectCluster(job, request)
		if err != nil {
			o.releaseQuota(job, request)
			if errors.Is(err, errs.ErrNoCandidate) {
				metrics.QuotaRejectionsTotal.WithLabelValues("vdc").Inc()
				return false, nil
			}
			return false, fmt.Errorf("select cluster for job %s: %w", job.ID, err)
		}
		if cluster == nil {
			o.releaseQuota(job, request)
			return false, nil
		}
	}

	drv, err := o.driverFor(job.Executor)
	if err != nil {
		o.releaseDispatch(job, request, cluster)
		return false, err
	}

	externalID, err := drv.Submit(job)
	if err != nil {
		job.ErrorMessage = err.Error()
		if uerr := o.store.UpdateJob(job); uerr != nil {
			o.logger.Error().Err(uerr).Str("job_id", job.ID).Msg("failed to persist dispatch error")
		}
		o.releaseDispatch(job, request, cluster)
		metrics.DriverCallErrorsTotal.WithLabelValues(string(job.Executor), "submit", driverErrorKind(err)).Inc()
		if errors.Is(err, errs.ErrDriverPermanent) || errors.Is(err, errs.ErrConfigInvalid) {
			return o.failJob(job, "driver", err)
		}
		return false, nil
	}

	now := time.Now()
	job.Status = types.JobStatusRunning
	job.ExternalID = externalID
	job.StartedAt = now
	job.Request = request
	job.ErrorMessage = ""
	if cluster != nil {
		job.ClusterID = cluster.ID
		cluster.Used = cluster.Used.Add(request)
	}

	err = o.store.WithTx(func(tx storage.Store) error {
		if err := tx.UpdateJob(job); err != nil {
			return fmt.Errorf("update job %s: %w", job.ID, err)
		}
		if cluster != nil {
			if err := tx.UpdateCluster(cluster); err != nil {
				return fmt.Errorf("update cluster %s: %w", cluster.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("persist dispatch for job %s: %w", job.ID, err)
	}

	metrics.JobsDispatchedTotal.WithLabelValues(job.ClusterID, string(job.Executor)).Inc()
	o.publish(events.EventJobDispatched, job.ID, "job dispatched to "+string(job.Executor))
	return true, nil
}

// tryPreempt asks the queue's policy whether incoming should bump a
// currently RUNNING job out of queue, and cancels that victim at its
// backend if so. A true return means the caller should retry dispatch
// on this tick; Cancel's completion hook (CompleteJob) decrements the
// stored queue's RunningJobs, and the caller decrements its own
// in-memory copy of the queue to match before retrying.
func (o *Orchestrator) tryPreempt(queue *types.JobQueue, incoming *types.Job) (bool, error) {
	running, err := o.store.ListJobsByQueueAndStatus(queue.ID, types.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("list running jobs for queue %s: %w", queue.ID, err)
	}
	victim := o.policy.ShouldPreempt(running, incoming)
	if victim == nil {
		return false, nil
	}
	if err := o.Cancel(victim.ID); err != nil {
		return false, fmt.Errorf("cancel preemption victim %s: %w", victim.ID, err)
	}
	o.publish(events.EventJobPreempted, victim.ID, "preempted for job "+incoming.ID)
	return true, nil
}

func (o *Orchestrator) selectCluster(job *types.Job, request resources.Resources) (*types.Cluster, error) {
	admitted, err := o.vdcManager.Reserve(job.ProjectID, job.VDCID, request, job.JobType)
	if err != nil {
		return nil, fmt.Errorf("reserve vdc quota for job %s: %w", job.ID, err)
	}
	if !admitted {
		return nil, nil
	}

	clusters, err := o.store.ListClustersByVDC(job.VDCID)
	if err != nil {
		o.releaseVDCQuota(job, request)
		return nil, fmt.Errorf("list clusters for vdc %s: %w", job.VDCID, err)
	}

	strategy := o.selector
	if vdc, err := o.store.GetVDC(job.VDCID); err == nil && vdc.DefaultSelector != "" {
		strategy = selector.Strategy(vdc.DefaultSelector)
	}

	cluster, err := selector.Select(clusters, selector.Request{
		Executor:            job.Executor,
		ResourceRequest:     request,
		RequiredLabels:      job.RequiredLabels,
		PreferredClusterIDs: job.PreferredClusterIDs,
		UserID:              job.UserID,
	}, strategy, o.jobCounter)
	if err != nil {
		o.releaseVDCQuota(job, request)
		return nil, err
	}
	return cluster, nil
}

func (o *Orchestrator) driverFor(executor types.Executor) (driver.Driver, error) {
	d, ok := o.drivers[executor]
	if !ok {
		return nil, fmt.Errorf("executor %s: %w", executor, errs.ErrExecutorUnavailable)
	}
	return d, nil
}

func (o *Orchestrator) releaseQuota(job *types.Job, request resources.Resources) {
	if err := o.quotaProvider.Release(job.ProjectID, request, job.JobType); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to release project quota")
		return
	}
	o.publish(events.EventJobQuotaReleased, job.ID, "project quota released")
}

func (o *Orchestrator) releaseVDCQuota(job *types.Job, request resources.Resources) {
	if o.vdcManager == nil {
		return
	}
	if err := o.vdcManager.Release(job.ProjectID, job.VDCID, request, job.JobType); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to release vdc quota")
	}
}

func (o *Orchestrator) releaseDispatch(job *types.Job, request resources.Resources, cluster *types.Cluster) {
	o.releaseQuota(job, request)
	if cluster != nil {
		o.releaseVDCQuota(job, request)
	}
}

func (o *Orchestrator) failJob(job *types.Job, reasonKind string, err error) (bool, error) {
	job.Status = types.JobStatusFailed
	job.ErrorMessage = err.Error()
	job.FinishedAt = time.Now()
	if uerr := o.store.UpdateJob(job); uerr != nil {
		return false, fmt.Errorf("persist failed job %s: %w", job.ID, uerr)
	}
	metrics.JobsFailedTotal.WithLabelValues(reasonKind).Inc()
	if o.linkedRun != nil {
		if perr := linkedrun.Propagate(o.linkedRun, job); perr != nil {
			o.logger.Error().Err(perr).Str("job_id", job.ID).Msg("failed to propagate status to linked run")
		}
	}
	return false, nil
}

func driverErrorKind(err error) string {
	switch {
	case errors.Is(err, errs.ErrDriverPermanent):
		return "permanent"
	case errors.Is(err, errs.ErrDriverTransient):
		return "transient"
	case errors.Is(err, errs.ErrConfigInvalid):
		return "config"
	default:
		return "unknown"
	}
}

// Cancel cancels job, valid from PENDING, QUEUED, and RUNNING. RUNNING
// jobs are canceled at their backend first; PENDING/QUEUED jobs need
// no driver call. In all cases the completion hook releases any
// reserved quota, updates queue counters, and propagates to a linked
// run.
func (o *Orchestrator) Cancel(jobID string) error {
	job, err := o.store.GetJob(jobID)
	if err != nil {
		return fmt.Errorf("get job %s: %w", jobID, err)
	}

	switch job.Status {
	case types.JobStatusPending, types.JobStatusQueued, types.JobStatusRunning:
	default:
		return fmt.Errorf("job %s is in terminal state %s: %w", jobID, job.Status, errs.ErrConfigInvalid)
	}

	wasRunning := job.Status == types.JobStatusRunning
	if wasRunning {
		drv, err := o.driverFor(job.Executor)
		if err != nil {
			return err
		}
		if err := drv.Cancel(job.ExternalID); err != nil {
			return fmt.Errorf("cancel job %s at backend: %w", jobID, err)
		}
	}

	job.Status = types.JobStatusCancelled
	job.FinishedAt = time.Now()
	o.publish(events.EventJobCancelled, job.ID, "job cancelled")
	return o.CompleteJob(job, wasRunning)
}

// CompleteJob runs the completion hook shared by Cancel and the
// reconciler: it persists job's terminal state, releases any quota
// reservation and cluster capacity a RUNNING job held, adjusts the
// owning queue's advisory counters, and propagates the new state to a
// linked run. wasRunning tells it whether a quota reservation exists
// to release.
func (o *Orchestrator) CompleteJob(job *types.Job, wasRunning bool) error {
	if err := o.store.UpdateJob(job); err != nil {
		return fmt.Errorf("persist job %s: %w", job.ID, err)
	}
	o.publish(events.EventJobStatusChanged, job.ID, "job "+string(job.Status))

	if wasRunning {
		request, err := driver.ExtractRequest(job)
		if err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to resolve request for quota release")
		} else {
			o.releaseQuota(job, request)
			if job.ClusterID != "" {
				o.releaseVDCQuota(job, request)
				if cluster, gerr := o.store.GetCluster(job.ClusterID); gerr == nil {
					cluster.Used = cluster.Used.Sub(request)
					if uerr := o.store.UpdateCluster(cluster); uerr != nil {
						o.logger.Error().Err(uerr).Str("cluster_id", cluster.ID).Msg("failed to release cluster capacity")
					}
				}
			}
		}
	}

	if job.QueueID != "" {
		if queue, gerr := o.store.GetQueue(job.QueueID); gerr == nil {
			if wasRunning {
				if queue.RunningJobs > 0 {
					queue.RunningJobs--
				}
			} else if queue.PendingJobs > 0 {
				queue.PendingJobs--
			}
			queue.UpdatedAt = time.Now()
			if uerr := o.store.UpdateQueue(queue); uerr != nil {
				o.logger.Error().Err(uerr).Str("queue_id", queue.ID).Msg("failed to update queue counters")
			}
		}
	}

	if job.Status == types.JobStatusFailed || job.Status == types.JobStatusTimeout {
		metrics.JobsFailedTotal.WithLabelValues(string(job.Status)).Inc()
	}

	if o.linkedRun != nil {
		if err := linkedrun.Propagate(o.linkedRun, job); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to propagate status to linked run")
		}
	}
	return nil
}
