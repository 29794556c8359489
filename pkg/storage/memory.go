package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/types"
)

// MemoryStore is an in-process Store used by orchestrator and
// reconciler tests in place of a temp-dir BoltStore, matching
// warren's mix of real-BoltStore integration tests and pure in-memory
// fakes for fast unit tests.
type MemoryStore struct {
	mu sync.Mutex

	jobs             map[string]*types.Job
	queues           map[string]*types.JobQueue
	projectQuotas    map[string]*types.ProjectQuota
	clusters         map[string]*types.Cluster
	vdcs             map[string]*types.VDC
	projectVDCQuotas map[string]*types.ProjectVDCQuota
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:             make(map[string]*types.Job),
		queues:           make(map[string]*types.JobQueue),
		projectQuotas:    make(map[string]*types.ProjectQuota),
		clusters:         make(map[string]*types.Cluster),
		vdcs:             make(map[string]*types.VDC),
		projectVDCQuotas: make(map[string]*types.ProjectVDCQuota),
	}
}

func (s *MemoryStore) Close() error { return nil }

// WithTx runs fn against the same store under its single mutex: the
// in-memory store has no partial-commit failure mode, so this is
// atomic by construction.
func (s *MemoryStore) WithTx(fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&lockedMemoryStore{s})
}

// lockedMemoryStore re-enters MemoryStore's unexported helpers without
// taking the mutex again, since WithTx already holds it.
type lockedMemoryStore struct{ s *MemoryStore }

func (l *lockedMemoryStore) Close() error { return nil }
func (l *lockedMemoryStore) WithTx(fn func(tx Store) error) error { return fn(l) }

func (l *lockedMemoryStore) CreateJob(job *types.Job) error { return l.s.putJobLocked(job) }
func (l *lockedMemoryStore) UpdateJob(job *types.Job) error { return l.s.putJobLocked(job) }
func (l *lockedMemoryStore) GetJob(id string) (*types.Job, error) { return l.s.getJobLocked(id) }
func (l *lockedMemoryStore) GetJobByExternalID(ex types.Executor, extID string) (*types.Job, error) {
	return l.s.getJobByExternalIDLocked(ex, extID)
}
func (l *lockedMemoryStore) ListJobs() ([]*types.Job, error) {
	return l.s.listJobsLocked(func(*types.Job) bool { return true }), nil
}
func (l *lockedMemoryStore) ListJobsByProject(projectID string) ([]*types.Job, error) {
	return l.s.listJobsLocked(func(j *types.Job) bool { return j.ProjectID == projectID }), nil
}
func (l *lockedMemoryStore) ListJobsByQueue(queueID string) ([]*types.Job, error) {
	return l.s.listJobsLocked(func(j *types.Job) bool { return j.QueueID == queueID }), nil
}
func (l *lockedMemoryStore) ListJobsByStatus(status types.JobStatus) ([]*types.Job, error) {
	return l.s.listJobsLocked(func(j *types.Job) bool { return j.Status == status }), nil
}
func (l *lockedMemoryStore) ListJobsByQueueAndStatus(queueID string, status types.JobStatus) ([]*types.Job, error) {
	return l.s.listJobsLocked(func(j *types.Job) bool { return j.QueueID == queueID && j.Status == status }), nil
}
func (l *lockedMemoryStore) DeleteJob(id string) error {
	job, err := l.s.getJobLocked(id)
	if err != nil {
		return err
	}
	job.DeletedAt = time.Now().UTC()
	return l.s.putJobLocked(job)
}

func (l *lockedMemoryStore) CreateQueue(q *types.JobQueue) error { l.s.queues[q.ID] = cloneQueue(q); return nil }
func (l *lockedMemoryStore) UpdateQueue(q *types.JobQueue) error { l.s.queues[q.ID] = cloneQueue(q); return nil }
func (l *lockedMemoryStore) GetQueue(id string) (*types.JobQueue, error) {
	q, ok := l.s.queues[id]
	if !ok {
		return nil, fmt.Errorf("queue %s: %w", id, errs.ErrNotFound)
	}
	return cloneQueue(q), nil
}
func (l *lockedMemoryStore) ListQueues() ([]*types.JobQueue, error) {
	var out []*types.JobQueue
	for _, q := range l.s.queues {
		out = append(out, cloneQueue(q))
	}
	return out, nil
}
func (l *lockedMemoryStore) ListQueuesByProject(projectID string) ([]*types.JobQueue, error) {
	var out []*types.JobQueue
	for _, q := range l.s.queues {
		if q.ProjectID == projectID {
			out = append(out, cloneQueue(q))
		}
	}
	return out, nil
}
func (l *lockedMemoryStore) DeleteQueue(id string) error { delete(l.s.queues, id); return nil }

func (l *lockedMemoryStore) GetProjectQuota(projectID string) (*types.ProjectQuota, error) {
	q, ok := l.s.projectQuotas[projectID]
	if !ok {
		return nil, fmt.Errorf("project quota %s: %w", projectID, errs.ErrNotFound)
	}
	cp := *q
	return &cp, nil
}
func (l *lockedMemoryStore) UpsertProjectQuota(q *types.ProjectQuota) error {
	cp := *q
	l.s.projectQuotas[q.ProjectID] = &cp
	return nil
}
func (l *lockedMemoryStore) ListProjectQuotas() ([]*types.ProjectQuota, error) {
	var out []*types.ProjectQuota
	for _, q := range l.s.projectQuotas {
		cp := *q
		out = append(out, &cp)
	}
	return out, nil
}
func (l *lockedMemoryStore) DeleteProjectQuota(projectID string) error {
	delete(l.s.projectQuotas, projectID)
	return nil
}

func (l *lockedMemoryStore) CreateCluster(c *types.Cluster) error { l.s.clusters[c.ID] = cloneCluster(c); return nil }
func (l *lockedMemoryStore) UpdateCluster(c *types.Cluster) error { l.s.clusters[c.ID] = cloneCluster(c); return nil }
func (l *lockedMemoryStore) GetCluster(id string) (*types.Cluster, error) {
	c, ok := l.s.clusters[id]
	if !ok {
		return nil, fmt.Errorf("cluster %s: %w", id, errs.ErrNotFound)
	}
	return cloneCluster(c), nil
}
func (l *lockedMemoryStore) ListClusters() ([]*types.Cluster, error) {
	var out []*types.Cluster
	for _, c := range l.s.clusters {
		out = append(out, cloneCluster(c))
	}
	return out, nil
}
func (l *lockedMemoryStore) ListClustersByVDC(vdcID string) ([]*types.Cluster, error) {
	var out []*types.Cluster
	for _, c := range l.s.clusters {
		if c.VDCID == vdcID {
			out = append(out, cloneCluster(c))
		}
	}
	return out, nil
}
func (l *lockedMemoryStore) DeleteCluster(id string) error { delete(l.s.clusters, id); return nil }

func (l *lockedMemoryStore) CreateVDC(v *types.VDC) error { l.s.vdcs[v.ID] = cloneVDC(v); return nil }
func (l *lockedMemoryStore) UpdateVDC(v *types.VDC) error { l.s.vdcs[v.ID] = cloneVDC(v); return nil }
func (l *lockedMemoryStore) GetVDC(id string) (*types.VDC, error) {
	v, ok := l.s.vdcs[id]
	if !ok {
		return nil, fmt.Errorf("vdc %s: %w", id, errs.ErrNotFound)
	}
	return cloneVDC(v), nil
}
func (l *lockedMemoryStore) ListVDCs() ([]*types.VDC, error) {
	var out []*types.VDC
	for _, v := range l.s.vdcs {
		out = append(out, cloneVDC(v))
	}
	return out, nil
}
func (l *lockedMemoryStore) DeleteVDC(id string) error { delete(l.s.vdcs, id); return nil }

func (l *lockedMemoryStore) GetProjectVDCQuota(projectID, vdcID string) (*types.ProjectVDCQuota, error) {
	q, ok := l.s.projectVDCQuotas[projectID+"\x00"+vdcID]
	if !ok {
		return nil, fmt.Errorf("project vdc quota %s/%s: %w", projectID, vdcID, errs.ErrNotFound)
	}
	cp := *q
	return &cp, nil
}
func (l *lockedMemoryStore) UpsertProjectVDCQuota(q *types.ProjectVDCQuota) error {
	cp := *q
	l.s.projectVDCQuotas[q.ProjectID+"\x00"+q.VDCID] = &cp
	return nil
}
func (l *lockedMemoryStore) ListProjectVDCQuotasByProject(projectID string) ([]*types.ProjectVDCQuota, error) {
	var out []*types.ProjectVDCQuota
	for _, q := range l.s.projectVDCQuotas {
		if q.ProjectID == projectID {
			cp := *q
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (l *lockedMemoryStore) DeleteProjectVDCQuota(projectID, vdcID string) error {
	delete(l.s.projectVDCQuotas, projectID+"\x00"+vdcID)
	return nil
}

func (s *MemoryStore) putJobLocked(job *types.Job) error {
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) getJobLocked(id string) (*types.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, errs.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) getJobByExternalIDLocked(executor types.Executor, externalID string) (*types.Job, error) {
	for _, j := range s.jobs {
		if j.Executor == executor && j.ExternalID == externalID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("job for external id %s/%s: %w", executor, externalID, errs.ErrNotFound)
}

func (s *MemoryStore) listJobsLocked(keep func(*types.Job) bool) []*types.Job {
	var out []*types.Job
	for _, j := range s.jobs {
		if j.DeletedAt.IsZero() && keep(j) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out
}

// Direct (non-transactional) Store methods delegate through WithTx so
// MemoryStore satisfies Store without duplicating every method twice.
func (s *MemoryStore) CreateJob(job *types.Job) error { return s.WithTx(func(tx Store) error { return tx.CreateJob(job) }) }
func (s *MemoryStore) UpdateJob(job *types.Job) error { return s.WithTx(func(tx Store) error { return tx.UpdateJob(job) }) }
func (s *MemoryStore) GetJob(id string) (*types.Job, error) {
	var out *types.Job
	err := s.WithTx(func(tx Store) error { j, err := tx.GetJob(id); out = j; return err })
	return out, err
}
func (s *MemoryStore) GetJobByExternalID(ex types.Executor, extID string) (*types.Job, error) {
	var out *types.Job
	err := s.WithTx(func(tx Store) error { j, err := tx.GetJobByExternalID(ex, extID); out = j; return err })
	return out, err
}
func (s *MemoryStore) ListJobs() ([]*types.Job, error) {
	var out []*types.Job
	err := s.WithTx(func(tx Store) error { j, err := tx.ListJobs(); out = j; return err })
	return out, err
}
func (s *MemoryStore) ListJobsByProject(projectID string) ([]*types.Job, error) {
	var out []*types.Job
	err := s.WithTx(func(tx Store) error { j, err := tx.ListJobsByProject(projectID); out = j; return err })
	return out, err
}
func (s *MemoryStore) ListJobsByQueue(queueID string) ([]*types.Job, error) {
	var out []*types.Job
	err := s.WithTx(func(tx Store) error { j, err := tx.ListJobsByQueue(queueID); out = j; return err })
	return out, err
}
func (s *MemoryStore) ListJobsByStatus(status types.JobStatus) ([]*types.Job, error) {
	var out []*types.Job
	err := s.WithTx(func(tx Store) error { j, err := tx.ListJobsByStatus(status); out = j; return err })
	return out, err
}
func (s *MemoryStore) ListJobsByQueueAndStatus(queueID string, status types.JobStatus) ([]*types.Job, error) {
	var out []*types.Job
	err := s.WithTx(func(tx Store) error { j, err := tx.ListJobsByQueueAndStatus(queueID, status); out = j; return err })
	return out, err
}
func (s *MemoryStore) DeleteJob(id string) error { return s.WithTx(func(tx Store) error { return tx.DeleteJob(id) }) }

func (s *MemoryStore) CreateQueue(q *types.JobQueue) error { return s.WithTx(func(tx Store) error { return tx.CreateQueue(q) }) }
func (s *MemoryStore) UpdateQueue(q *types.JobQueue) error { return s.WithTx(func(tx Store) error { return tx.UpdateQueue(q) }) }
func (s *MemoryStore) GetQueue(id string) (*types.JobQueue, error) {
	var out *types.JobQueue
	err := s.WithTx(func(tx Store) error { q, err := tx.GetQueue(id); out = q; return err })
	return out, err
}
func (s *MemoryStore) ListQueues() ([]*types.JobQueue, error) {
	var out []*types.JobQueue
	err := s.WithTx(func(tx Store) error { q, err := tx.ListQueues(); out = q; return err })
	return out, err
}
func (s *MemoryStore) ListQueuesByProject(projectID string) ([]*types.JobQueue, error) {
	var out []*types.JobQueue
	err := s.WithTx(func(tx Store) error { q, err := tx.ListQueuesByProject(projectID); out = q; return err })
	return out, err
}
func (s *MemoryStore) DeleteQueue(id string) error { return s.WithTx(func(tx Store) error { return tx.DeleteQueue(id) }) }

func (s *MemoryStore) GetProjectQuota(projectID string) (*types.ProjectQuota, error) {
	var out *types.ProjectQuota
	err := s.WithTx(func(tx Store) error { q, err := tx.GetProjectQuota(projectID); out = q; return err })
	return out, err
}
func (s *MemoryStore) UpsertProjectQuota(q *types.ProjectQuota) error {
	return s.WithTx(func(tx Store) error { return tx.UpsertProjectQuota(q) })
}
func (s *MemoryStore) ListProjectQuotas() ([]*types.ProjectQuota, error) {
	var out []*types.ProjectQuota
	err := s.WithTx(func(tx Store) error { q, err := tx.ListProjectQuotas(); out = q; return err })
	return out, err
}
func (s *MemoryStore) DeleteProjectQuota(projectID string) error {
	return s.WithTx(func(tx Store) error { return tx.DeleteProjectQuota(projectID) })
}

func (s *MemoryStore) CreateCluster(c *types.Cluster) error { return s.WithTx(func(tx Store) error { return tx.CreateCluster(c) }) }
func (s *MemoryStore) UpdateCluster(c *types.Cluster) error { return s.WithTx(func(tx Store) error { return tx.UpdateCluster(c) }) }
func (s *MemoryStore) GetCluster(id string) (*types.Cluster, error) {
	var out *types.Cluster
	err := s.WithTx(func(tx Store) error { c, err := tx.GetCluster(id); out = c; return err })
	return out, err
}
func (s *MemoryStore) ListClusters() ([]*types.Cluster, error) {
	var out []*types.Cluster
	err := s.WithTx(func(tx Store) error { c, err := tx.ListClusters(); out = c; return err })
	return out, err
}
func (s *MemoryStore) ListClustersByVDC(vdcID string) ([]*types.Cluster, error) {
	var out []*types.Cluster
	err := s.WithTx(func(tx Store) error { c, err := tx.ListClustersByVDC(vdcID); out = c; return err })
	return out, err
}
func (s *MemoryStore) DeleteCluster(id string) error { return s.WithTx(func(tx Store) error { return tx.DeleteCluster(id) }) }

func (s *MemoryStore) CreateVDC(v *types.VDC) error { return s.WithTx(func(tx Store) error { return tx.CreateVDC(v) }) }
func (s *MemoryStore) UpdateVDC(v *types.VDC) error { return s.WithTx(func(tx Store) error { return tx.UpdateVDC(v) }) }
func (s *MemoryStore) GetVDC(id string) (*types.VDC, error) {
	var out *types.VDC
	err := s.WithTx(func(tx Store) error { v, err := tx.GetVDC(id); out = v; return err })
	return out, err
}
func (s *MemoryStore) ListVDCs() ([]*types.VDC, error) {
	var out []*types.VDC
	err := s.WithTx(func(tx Store) error { v, err := tx.ListVDCs(); out = v; return err })
	return out, err
}
func (s *MemoryStore) DeleteVDC(id string) error { return s.WithTx(func(tx Store) error { return tx.DeleteVDC(id) }) }

func (s *MemoryStore) GetProjectVDCQuota(projectID, vdcID string) (*types.ProjectVDCQuota, error) {
	var out *types.ProjectVDCQuota
	err := s.WithTx(func(tx Store) error { q, err := tx.GetProjectVDCQuota(projectID, vdcID); out = q; return err })
	return out, err
}
func (s *MemoryStore) UpsertProjectVDCQuota(q *types.ProjectVDCQuota) error {
	return s.WithTx(func(tx Store) error { return tx.UpsertProjectVDCQuota(q) })
}
func (s *MemoryStore) ListProjectVDCQuotasByProject(projectID string) ([]*types.ProjectVDCQuota, error) {
	var out []*types.ProjectVDCQuota
	err := s.WithTx(func(tx Store) error { q, err := tx.ListProjectVDCQuotasByProject(projectID); out = q; return err })
	return out, err
}
func (s *MemoryStore) DeleteProjectVDCQuota(projectID, vdcID string) error {
	return s.WithTx(func(tx Store) error { return tx.DeleteProjectVDCQuota(projectID, vdcID) })
}

func cloneQueue(q *types.JobQueue) *types.JobQueue     { cp := *q; return &cp }
func cloneCluster(c *types.Cluster) *types.Cluster     { cp := *c; return &cp }
func cloneVDC(v *types.VDC) *types.VDC                 { cp := *v; return &cp }
