// Package types defines the value and entity types shared across the
// scheduler: resources, jobs, queues, quotas, VDCs and clusters.
package types

import (
	"time"

	"github.com/cuemby/jobctl/pkg/resources"
)

// JobType classifies the workload shape a job asks a backend to run.
type JobType string

const (
	JobTypeTraining  JobType = "training"
	JobTypeInference JobType = "inference"
	JobTypeWorkflow  JobType = "workflow"
)

// Executor identifies which backend family a job targets.
type Executor string

const (
	ExecutorKubernetes Executor = "kubernetes"
	ExecutorSlurm      Executor = "slurm"
)

// JobStatus is the scheduler's lifecycle state for a Job.
// scheduler.Orchestrator drives the transitions between these states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusTimeout   JobStatus = "timeout"
)

// Terminal reports whether status is one from which no further
// transition is permitted.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled, JobStatusTimeout:
		return true
	default:
		return false
	}
}

// Job is the primary scheduled entity: one admitted unit of compute
// work with a resource reservation and a lifecycle.
type Job struct {
	ID         string
	ExternalID string // backend-assigned handle; empty until submitted
	ProjectID  string
	UserID     string
	RunID      string // optional link to an external experiment record

	JobType   JobType
	Executor  Executor
	VDCID     string // optional
	ClusterID string // optional, assigned at dispatch
	QueueID   string // optional

	Request resources.Resources

	// ExecutorConfig is an opaque structured document consumed only by
	// the matching backend driver (container image, command, env,
	// volumes, nodeSelector for K8s; partition, nodes, script, modules
	// for Slurm; template DAG for workflow).
	ExecutorConfig map[string]any

	Name                string
	PreferredClusterIDs []string
	RequiredLabels      map[string]string
	QueuePosition       int
	Priority            int // see DESIGN.md: Open Question resolved by adding this field
	EnqueuedAt          time.Time

	Status        JobStatus
	SubmittedAt   time.Time
	StartedAt     time.Time
	FinishedAt    time.Time
	ExitCode      int
	ErrorMessage  string
	DispatchTries int // [FULL] count of TryDispatch attempts, for operator visibility

	Metrics map[string]any
	Outputs map[string]any
	Tags    map[string]string

	DeletedAt time.Time // soft-delete marker; zero means not deleted
}

// JobQueue is a per-project ordered set of QUEUED jobs with a
// concurrency cap. Counters are advisory and recomputable from Job rows.
type JobQueue struct {
	ID            string
	ProjectID     string
	Name          string
	Priority      int
	Enabled       bool
	MaxConcurrent int
	TotalJobs     int
	RunningJobs   int
	PendingJobs   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PerTypeCaps limits concurrent jobs per JobType, keyed by type name.
type PerTypeCaps map[JobType]int

// ProjectQuota is a single-tier resource budget for a tenant.
type ProjectQuota struct {
	ProjectID      string
	Limits         resources.Resources
	Used           resources.Resources
	MaxConcurrent  int
	UsedConcurrent int
	PerTypeCaps    PerTypeCaps
	PerTypeUsed    map[JobType]int
	EnforceQuota   bool // when false, checks are bypassed but counters still update
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ClusterType is the backend family a Cluster runs.
type ClusterType string

const (
	ClusterTypeKubernetes ClusterType = "kubernetes"
	ClusterTypeSlurm      ClusterType = "slurm"
)

// ClusterStatus is the operational status of a Cluster.
type ClusterStatus string

const (
	ClusterStatusHealthy     ClusterStatus = "healthy"
	ClusterStatusDegraded    ClusterStatus = "degraded"
	ClusterStatusUnavailable ClusterStatus = "unavailable"
	ClusterStatusMaintenance ClusterStatus = "maintenance"
)

// ConnectionConfig holds opaque backend-connection parameters. Secrets
// (Slurm user:token, bearer tokens) are stored encrypted at rest via
// pkg/security; Kubeconfig is a path reference, not a secret payload.
type ConnectionConfig struct {
	Kubeconfig     string // path, for Kubernetes clusters
	RESTEndpoint   string // base URL, for Slurm clusters
	EncryptedToken []byte // AES-256-GCM ciphertext of "user:token" or bearer token
}

// Cluster is one concrete backend instance and its capacity accounting.
type Cluster struct {
	ID       string
	VDCID    string
	Name     string
	Type     ClusterType
	Endpoint string
	Conn     ConnectionConfig

	Capacity resources.Resources
	Used     resources.Resources

	Status        ClusterStatus
	LastHeartbeat time.Time
	Enabled       bool
	Priority      int
	Weight        float64
	Labels        map[string]string

	MaxJobsPerUser int // 0 means unlimited
	MaxTotalJobs   int // 0 means unlimited

	CostPerCPUHour float64 // meaningless unless CostDeclared
	CostPerGiBHour float64
	CostPerGPUHour float64
	CostDeclared   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OvercommitPolicy controls whether a VDC may admit beyond its raw
// summed cluster capacity.
type OvercommitPolicy struct {
	Enabled bool
	Factor  float64 // e.g. 1.2 allows 20% overcommit when Enabled
}

// VDC (Virtual Data Center) aggregates one or more Clusters under a
// shared tenancy model.
type VDC struct {
	ID         string
	Name       string
	ClusterIDs []string

	OverrideQuota   *resources.Resources // nil means "sum of contained cluster capacities"
	Used            resources.Resources
	Overcommit      OvercommitPolicy
	DefaultPolicy   string // scheduling policy name
	DefaultSelector string // cluster selection strategy name

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectVDCQuota is the quota a project has within a specific VDC.
type ProjectVDCQuota struct {
	ProjectID   string
	VDCID       string
	Limits      resources.Resources
	Used        resources.Resources
	Priority    int
	PerTypeCaps PerTypeCaps
	PerTypeUsed map[JobType]int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RunState is the state the scheduler propagates onto a linked
// experiment-tracking run. The run row itself lives outside this
// module's scope (spec.md §1); only the propagation contract is here.
type RunState string

const (
	RunStateRunning  RunState = "running"
	RunStateFinished RunState = "finished"
	RunStateCrashed  RunState = "crashed"
	RunStateKilled   RunState = "killed"
)
