package storage

import "github.com/cuemby/jobctl/pkg/types"

// Store is the scheduler's persistence contract. All entities are
// upserted (Create and Update share an implementation, matching
// warren's BoltStore convention) and soft-deleted where the domain
// model carries a DeletedAt marker (Job); administrative entities
// (Queue, Cluster, VDC) are hard-deleted.
//
// Every Job mutation and every quota Reserve/Release must be callable
// within a single transaction so the orchestrator can make dispatch
// atomic: see WithTx.
type Store interface {
	// Jobs
	CreateJob(job *types.Job) error
	GetJob(id string) (*types.Job, error)
	GetJobByExternalID(executor types.Executor, externalID string) (*types.Job, error)
	ListJobs() ([]*types.Job, error)
	ListJobsByProject(projectID string) ([]*types.Job, error)
	ListJobsByQueue(queueID string) ([]*types.Job, error)
	ListJobsByStatus(status types.JobStatus) ([]*types.Job, error)
	ListJobsByQueueAndStatus(queueID string, status types.JobStatus) ([]*types.Job, error)
	UpdateJob(job *types.Job) error
	DeleteJob(id string) error // soft-delete: sets DeletedAt

	// Queues
	CreateQueue(queue *types.JobQueue) error
	GetQueue(id string) (*types.JobQueue, error)
	ListQueues() ([]*types.JobQueue, error)
	ListQueuesByProject(projectID string) ([]*types.JobQueue, error)
	UpdateQueue(queue *types.JobQueue) error
	DeleteQueue(id string) error

	// Project quotas
	GetProjectQuota(projectID string) (*types.ProjectQuota, error)
	UpsertProjectQuota(q *types.ProjectQuota) error
	ListProjectQuotas() ([]*types.ProjectQuota, error)
	DeleteProjectQuota(projectID string) error

	// Clusters
	CreateCluster(cluster *types.Cluster) error
	GetCluster(id string) (*types.Cluster, error)
	ListClusters() ([]*types.Cluster, error)
	ListClustersByVDC(vdcID string) ([]*types.Cluster, error)
	UpdateCluster(cluster *types.Cluster) error
	DeleteCluster(id string) error

	// VDCs
	CreateVDC(vdc *types.VDC) error
	GetVDC(id string) (*types.VDC, error)
	ListVDCs() ([]*types.VDC, error)
	UpdateVDC(vdc *types.VDC) error
	DeleteVDC(id string) error

	// Project x VDC quotas
	GetProjectVDCQuota(projectID, vdcID string) (*types.ProjectVDCQuota, error)
	UpsertProjectVDCQuota(q *types.ProjectVDCQuota) error
	ListProjectVDCQuotasByProject(projectID string) ([]*types.ProjectVDCQuota, error)
	DeleteProjectVDCQuota(projectID, vdcID string) error

	// WithTx runs fn against a store view backed by a single underlying
	// write transaction, so a caller (typically the scheduler
	// orchestrator) can make a job's dispatch and its quota
	// reservation atomic: either both land or neither does. fn must
	// only use the Store passed to it, not the outer Store.
	WithTx(fn func(tx Store) error) error

	Close() error
}
