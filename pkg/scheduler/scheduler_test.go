package scheduler

import (
	"testing"

	"github.com/cuemby/jobctl/pkg/driver"
	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/policy"
	"github.com/cuemby/jobctl/pkg/quota"
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/selector"
	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver is an in-memory driver.Driver double: Submit/Cancel/Status
// are scripted per test rather than hitting a backend.
type fakeDriver struct {
	submitErr   error
	nextID      string
	cancelErr   error
	cancelCalls []string
	submitCalls int
}

func (d *fakeDriver) Submit(job *types.Job) (string, error) {
	d.submitCalls++
	if d.submitErr != nil {
		return "", d.submitErr
	}
	id := d.nextID
	if id == "" {
		id = "ext-" + job.ID
	}
	return id, nil
}

func (d *fakeDriver) Status(externalID string) (types.JobStatus, error) {
	return types.JobStatusRunning, nil
}

func (d *fakeDriver) Cancel(externalID string) error {
	d.cancelCalls = append(d.cancelCalls, externalID)
	return d.cancelErr
}

func (d *fakeDriver) Logs(externalID string) (string, error) { return "", nil }

func (d *fakeDriver) Metrics(externalID string) (map[string]any, error) { return nil, nil }

func newTestOrchestrator(t *testing.T, drv *fakeDriver) (*Orchestrator, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	o := NewOrchestrator(Config{
		Store:         store,
		QuotaProvider: quota.NewLocalProvider(store),
		Policy:        policy.NewFIFO(),
		Drivers:       map[types.Executor]driver.Driver{types.ExecutorKubernetes: drv},
		Selector:      selector.StrategyLoadBalancing,
		JobCounter:    selector.NewStoreJobCounter(store),
	})
	return o, store
}

func trainingJob(projectID string) *types.Job {
	return &types.Job{
		ProjectID: projectID,
		UserID:    "user-1",
		JobType:   types.JobTypeTraining,
		Executor:  types.ExecutorKubernetes,
		Request:   resources.New(1, 2, 0),
	}
}

func TestEnqueueAssignsQueueAndPosition(t *testing.T) {
	o, store := newTestOrchestrator(t, &fakeDriver{})
	job := trainingJob("proj-1")

	require.NoError(t, o.Enqueue(job))
	assert.NotEmpty(t, job.ID)
	assert.NotEmpty(t, job.QueueID)
	assert.Equal(t, types.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.QueuePosition)

	second := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(second))
	assert.Equal(t, job.QueueID, second.QueueID, "same project reuses its default queue")
	assert.Equal(t, 1, second.QueuePosition)

	queue, err := store.GetQueue(job.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 2, queue.PendingJobs)
	assert.Equal(t, 2, queue.TotalJobs)
}

func TestEnqueueSeparatesProjectsIntoDistinctQueues(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeDriver{})
	a := trainingJob("proj-a")
	b := trainingJob("proj-b")

	require.NoError(t, o.Enqueue(a))
	require.NoError(t, o.Enqueue(b))
	assert.NotEqual(t, a.QueueID, b.QueueID)
}

func TestTryDispatchSubmitsAndPersistsRunning(t *testing.T) {
	drv := &fakeDriver{nextID: "ext-1"}
	o, store := newTestOrchestrator(t, drv)
	job := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(job))

	dispatched, err := o.TryDispatch(job)
	require.NoError(t, err)
	assert.True(t, dispatched)
	assert.Equal(t, types.JobStatusRunning, job.Status)
	assert.Equal(t, "ext-1", job.ExternalID)
	assert.Equal(t, 1, drv.submitCalls)

	persisted, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, persisted.Status)
}

func TestTryDispatchReleasesQuotaOnDriverError(t *testing.T) {
	drv := &fakeDriver{submitErr: errs.ErrDriverTransient}
	o, store := newTestOrchestrator(t, drv)
	job := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(job))

	require.NoError(t, store.UpsertProjectQuota(&types.ProjectQuota{
		ProjectID:    "proj-1",
		Limits:       resources.New(2, 4, 0),
		EnforceQuota: true,
	}))

	dispatched, err := o.TryDispatch(job)
	require.NoError(t, err)
	assert.False(t, dispatched)
	assert.Equal(t, types.JobStatusQueued, job.Status)

	q, err := store.GetProjectQuota("proj-1")
	require.NoError(t, err)
	assert.True(t, q.Used.IsZero(), "quota must be released after a failed submit")

	// A second attempt should be able to reserve again.
	drv.submitErr = nil
	drv.nextID = "ext-2"
	dispatched, err = o.TryDispatch(job)
	require.NoError(t, err)
	assert.True(t, dispatched)
}

func TestTryDispatchFailsJobOnPermanentDriverError(t *testing.T) {
	drv := &fakeDriver{submitErr: errs.ErrDriverPermanent}
	o, _ := newTestOrchestrator(t, drv)
	job := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(job))

	dispatched, err := o.TryDispatch(job)
	require.NoError(t, err)
	assert.False(t, dispatched)
	assert.Equal(t, types.JobStatusFailed, job.Status)
}

func TestTryDispatchQueuedWhenQuotaExceeded(t *testing.T) {
	drv := &fakeDriver{}
	o, store := newTestOrchestrator(t, drv)
	job := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(job))

	require.NoError(t, store.UpsertProjectQuota(&types.ProjectQuota{
		ProjectID:    "proj-1",
		Limits:       resources.New(0, 0, 0),
		EnforceQuota: true,
	}))

	dispatched, err := o.TryDispatch(job)
	require.NoError(t, err)
	assert.False(t, dispatched)
	assert.Equal(t, types.JobStatusQueued, job.Status)
	assert.Zero(t, drv.submitCalls, "driver must not be called when quota rejects the request")
}

func TestTickDispatchesInFIFOOrder(t *testing.T) {
	drv := &fakeDriver{}
	o, store := newTestOrchestrator(t, drv)
	first := trainingJob("proj-1")
	second := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(first))
	require.NoError(t, o.Enqueue(second))

	require.NoError(t, o.Tick())

	f, err := store.GetJob(first.ID)
	require.NoError(t, err)
	s, err := store.GetJob(second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, f.Status)
	assert.Equal(t, types.JobStatusRunning, s.Status)
	assert.Equal(t, 2, drv.submitCalls)

	queue, err := store.GetQueue(first.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 2, queue.RunningJobs)
	assert.Equal(t, 0, queue.PendingJobs)
}

func TestTickSkipsQueueAtConcurrencyCap(t *testing.T) {
	drv := &fakeDriver{}
	o, store := newTestOrchestrator(t, drv)
	job := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(job))

	queue, err := store.GetQueue(job.QueueID)
	require.NoError(t, err)
	queue.MaxConcurrent = 1
	queue.RunningJobs = 1
	require.NoError(t, store.UpdateQueue(queue))

	require.NoError(t, o.Tick())

	persisted, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusQueued, persisted.Status, "queue at its cap must not dispatch more jobs")
}

func TestTickPreemptsLowerPriorityRunningJobAtConcurrencyCap(t *testing.T) {
	drv := &fakeDriver{}
	store := storage.NewMemoryStore()
	o := NewOrchestrator(Config{
		Store:         store,
		QuotaProvider: quota.NewLocalProvider(store),
		Policy:        policy.NewPriority(),
		Drivers:       map[types.Executor]driver.Driver{types.ExecutorKubernetes: drv},
		Selector:      selector.StrategyLoadBalancing,
		JobCounter:    selector.NewStoreJobCounter(store),
	})

	running := trainingJob("proj-1")
	running.Priority = 0
	require.NoError(t, o.Enqueue(running))
	dispatched, err := o.TryDispatch(running)
	require.NoError(t, err)
	require.True(t, dispatched)

	queue, err := store.GetQueue(running.QueueID)
	require.NoError(t, err)
	queue.MaxConcurrent = 1
	queue.RunningJobs = 1
	require.NoError(t, store.UpdateQueue(queue))

	incoming := trainingJob("proj-1")
	incoming.Priority = policy.PreemptionThreshold
	require.NoError(t, o.Enqueue(incoming))

	require.NoError(t, o.Tick())

	cancelledJob, err := store.GetJob(running.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCancelled, cancelledJob.Status)
	assert.Equal(t, []string{"ext-" + running.ID}, drv.cancelCalls)

	dispatchedJob, err := store.GetJob(incoming.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRunning, dispatchedJob.Status, "incoming job dispatches once its priority bumps the running job")
}

func TestTryDispatchFailsJobOnConfigInvalidDriverError(t *testing.T) {
	drv := &fakeDriver{submitErr: errs.ErrConfigInvalid}
	o, _ := newTestOrchestrator(t, drv)
	job := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(job))

	dispatched, err := o.TryDispatch(job)
	require.NoError(t, err)
	assert.False(t, dispatched)
	assert.Equal(t, types.JobStatusFailed, job.Status, "a rejected ExecutorConfig is a submission-time bug, not a transient backend hiccup")
}

func TestCancelRunningJobCallsDriverAndReleasesQuota(t *testing.T) {
	drv := &fakeDriver{nextID: "ext-1"}
	o, store := newTestOrchestrator(t, drv)
	job := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(job))
	require.NoError(t, store.UpsertProjectQuota(&types.ProjectQuota{
		ProjectID:    "proj-1",
		Limits:       resources.New(4, 8, 0),
		EnforceQuota: true,
	}))

	dispatched, err := o.TryDispatch(job)
	require.NoError(t, err)
	require.True(t, dispatched)

	require.NoError(t, o.Cancel(job.ID))
	assert.Equal(t, []string{"ext-1"}, drv.cancelCalls)

	persisted, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCancelled, persisted.Status)
	assert.False(t, persisted.FinishedAt.IsZero())

	q, err := store.GetProjectQuota("proj-1")
	require.NoError(t, err)
	assert.True(t, q.Used.IsZero(), "cancel must release reserved quota")

	queue, err := store.GetQueue(job.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.RunningJobs)
}

func TestCancelQueuedJobSkipsDriverCall(t *testing.T) {
	drv := &fakeDriver{}
	o, store := newTestOrchestrator(t, drv)
	job := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(job))

	require.NoError(t, o.Cancel(job.ID))
	assert.Empty(t, drv.cancelCalls)

	persisted, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCancelled, persisted.Status)
}

func TestWithoutJobRemovesOnlyMatchingID(t *testing.T) {
	jobs := []*types.Job{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	out := withoutJob(jobs, "b")
	var ids []string
	for _, j := range out {
		ids = append(ids, j.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestCancelRejectsTerminalJob(t *testing.T) {
	o, store := newTestOrchestrator(t, &fakeDriver{})
	job := trainingJob("proj-1")
	require.NoError(t, o.Enqueue(job))
	job.Status = types.JobStatusSucceeded
	require.NoError(t, store.UpdateJob(job))

	err := o.Cancel(job.ID)
	require.Error(t, err)
}
