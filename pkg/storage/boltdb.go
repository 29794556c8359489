package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketJobs              = []byte("jobs")
	bucketJobsByQueueStatus = []byte("jobs_by_queue_status") // "queueID\x00status\x00jobID" -> jobID
	bucketJobsByExternal    = []byte("jobs_by_external")     // "executor\x00externalID" -> jobID
	bucketQueues            = []byte("queues")
	bucketProjectQuotas     = []byte("project_quotas")
	bucketClusters          = []byte("clusters")
	bucketVDCs              = []byte("vdcs")
	bucketProjectVDCQuotas  = []byte("project_vdc_quotas") // "projectID\x00vdcID" -> quota
)

var allBuckets = [][]byte{
	bucketJobs,
	bucketJobsByQueueStatus,
	bucketJobsByExternal,
	bucketQueues,
	bucketProjectQuotas,
	bucketClusters,
	bucketVDCs,
	bucketProjectVDCQuotas,
}

// BoltStore implements Store on top of a BoltDB file, one bucket per
// entity plus the two secondary-index buckets described in the
// storage design.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a BoltDB-backed store under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "jobctl.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// WithTx runs fn against a txStore backed by a single bbolt write
// transaction, so callers can make a job mutation and a quota
// reservation atomic.
func (s *BoltStore) WithTx(fn func(tx Store) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

func (s *BoltStore) CreateJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putJob(tx, job) })
}
func (s *BoltStore) UpdateJob(job *types.Job) error { return s.CreateJob(job) }

func (s *BoltStore) GetJob(id string) (*types.Job, error) {
	var job *types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		job, err = getJob(tx, id)
		return err
	})
	return job, err
}

func (s *BoltStore) GetJobByExternalID(executor types.Executor, externalID string) (*types.Job, error) {
	var job *types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		job, err = getJobByExternalID(tx, executor, externalID)
		return err
	})
	return job, err
}

func (s *BoltStore) ListJobs() ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		jobs, err = listJobs(tx, func(*types.Job) bool { return true })
		return err
	})
	return jobs, err
}

func (s *BoltStore) ListJobsByProject(projectID string) ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		jobs, err = listJobs(tx, func(j *types.Job) bool { return j.ProjectID == projectID })
		return err
	})
	return jobs, err
}

func (s *BoltStore) ListJobsByQueue(queueID string) ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		jobs, err = listJobs(tx, func(j *types.Job) bool { return j.QueueID == queueID })
		return err
	})
	return jobs, err
}

func (s *BoltStore) ListJobsByStatus(status types.JobStatus) ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		jobs, err = listJobs(tx, func(j *types.Job) bool { return j.Status == status })
		return err
	})
	return jobs, err
}

func (s *BoltStore) ListJobsByQueueAndStatus(queueID string, status types.JobStatus) ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		jobs, err = listJobsByQueueStatus(tx, queueID, status)
		return err
	})
	return jobs, err
}

func (s *BoltStore) DeleteJob(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return softDeleteJob(tx, id) })
}

func (s *BoltStore) CreateQueue(q *types.JobQueue) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putEntity(tx, bucketQueues, q.ID, q) })
}
func (s *BoltStore) UpdateQueue(q *types.JobQueue) error { return s.CreateQueue(q) }

func (s *BoltStore) GetQueue(id string) (*types.JobQueue, error) {
	var q types.JobQueue
	err := s.db.View(func(tx *bolt.Tx) error { return getEntity(tx, bucketQueues, id, &q) })
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *BoltStore) ListQueues() ([]*types.JobQueue, error) {
	var out []*types.JobQueue
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueues).ForEach(func(_, v []byte) error {
			var q types.JobQueue
			if err := json.Unmarshal(v, &q); err != nil {
				return err
			}
			out = append(out, &q)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListQueuesByProject(projectID string) ([]*types.JobQueue, error) {
	all, err := s.ListQueues()
	if err != nil {
		return nil, err
	}
	var out []*types.JobQueue
	for _, q := range all {
		if q.ProjectID == projectID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *BoltStore) DeleteQueue(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketQueues).Delete([]byte(id)) })
}

func (s *BoltStore) GetProjectQuota(projectID string) (*types.ProjectQuota, error) {
	var q types.ProjectQuota
	err := s.db.View(func(tx *bolt.Tx) error { return getEntity(tx, bucketProjectQuotas, projectID, &q) })
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *BoltStore) UpsertProjectQuota(q *types.ProjectQuota) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putEntity(tx, bucketProjectQuotas, q.ProjectID, q) })
}

func (s *BoltStore) ListProjectQuotas() ([]*types.ProjectQuota, error) {
	var out []*types.ProjectQuota
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjectQuotas).ForEach(func(_, v []byte) error {
			var q types.ProjectQuota
			if err := json.Unmarshal(v, &q); err != nil {
				return err
			}
			out = append(out, &q)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteProjectQuota(projectID string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketProjectQuotas).Delete([]byte(projectID)) })
}

func (s *BoltStore) CreateCluster(c *types.Cluster) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putEntity(tx, bucketClusters, c.ID, c) })
}
func (s *BoltStore) UpdateCluster(c *types.Cluster) error { return s.CreateCluster(c) }

func (s *BoltStore) GetCluster(id string) (*types.Cluster, error) {
	var c types.Cluster
	err := s.db.View(func(tx *bolt.Tx) error { return getEntity(tx, bucketClusters, id, &c) })
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListClusters() ([]*types.Cluster, error) {
	var out []*types.Cluster
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketClusters).ForEach(func(_, v []byte) error {
			var c types.Cluster
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, &c)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListClustersByVDC(vdcID string) ([]*types.Cluster, error) {
	all, err := s.ListClusters()
	if err != nil {
		return nil, err
	}
	var out []*types.Cluster
	for _, c := range all {
		if c.VDCID == vdcID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *BoltStore) DeleteCluster(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketClusters).Delete([]byte(id)) })
}

func (s *BoltStore) CreateVDC(v *types.VDC) error {
	return s.db.Update(func(tx *bolt.Tx) error { return putEntity(tx, bucketVDCs, v.ID, v) })
}
func (s *BoltStore) UpdateVDC(v *types.VDC) error { return s.CreateVDC(v) }

func (s *BoltStore) GetVDC(id string) (*types.VDC, error) {
	var v types.VDC
	err := s.db.View(func(tx *bolt.Tx) error { return getEntity(tx, bucketVDCs, id, &v) })
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *BoltStore) ListVDCs() ([]*types.VDC, error) {
	var out []*types.VDC
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVDCs).ForEach(func(_, v []byte) error {
			var vdc types.VDC
			if err := json.Unmarshal(v, &vdc); err != nil {
				return err
			}
			out = append(out, &vdc)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteVDC(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error { return tx.Bucket(bucketVDCs).Delete([]byte(id)) })
}

func projectVDCKey(projectID, vdcID string) []byte {
	return []byte(projectID + "\x00" + vdcID)
}

func (s *BoltStore) GetProjectVDCQuota(projectID, vdcID string) (*types.ProjectVDCQuota, error) {
	var q types.ProjectVDCQuota
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProjectVDCQuotas).Get(projectVDCKey(projectID, vdcID))
		if data == nil {
			return fmt.Errorf("project vdc quota %s/%s: %w", projectID, vdcID, errs.ErrNotFound)
		}
		return json.Unmarshal(data, &q)
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *BoltStore) UpsertProjectVDCQuota(q *types.ProjectVDCQuota) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(q)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProjectVDCQuotas).Put(projectVDCKey(q.ProjectID, q.VDCID), data)
	})
}

func (s *BoltStore) ListProjectVDCQuotasByProject(projectID string) ([]*types.ProjectVDCQuota, error) {
	var out []*types.ProjectVDCQuota
	prefix := []byte(projectID + "\x00")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketProjectVDCQuotas).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var q types.ProjectVDCQuota
			if err := json.Unmarshal(v, &q); err != nil {
				return err
			}
			out = append(out, &q)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) DeleteProjectVDCQuota(projectID, vdcID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjectVDCQuotas).Delete(projectVDCKey(projectID, vdcID))
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// txStore implements Store against an in-flight bbolt write
// transaction, letting the orchestrator group a job update and a
// quota change into one atomic commit via BoltStore.WithTx.
type txStore struct {
	tx *bolt.Tx
}

func (s *txStore) Close() error { return fmt.Errorf("Close is not valid inside WithTx") }
func (s *txStore) WithTx(fn func(tx Store) error) error { return fn(s) }

func (s *txStore) CreateJob(job *types.Job) error { return putJob(s.tx, job) }
func (s *txStore) UpdateJob(job *types.Job) error { return putJob(s.tx, job) }
func (s *txStore) GetJob(id string) (*types.Job, error) { return getJob(s.tx, id) }
func (s *txStore) GetJobByExternalID(executor types.Executor, externalID string) (*types.Job, error) {
	return getJobByExternalID(s.tx, executor, externalID)
}
func (s *txStore) ListJobs() ([]*types.Job, error) {
	return listJobs(s.tx, func(*types.Job) bool { return true })
}
func (s *txStore) ListJobsByProject(projectID string) ([]*types.Job, error) {
	return listJobs(s.tx, func(j *types.Job) bool { return j.ProjectID == projectID })
}
func (s *txStore) ListJobsByQueue(queueID string) ([]*types.Job, error) {
	return listJobs(s.tx, func(j *types.Job) bool { return j.QueueID == queueID })
}
func (s *txStore) ListJobsByStatus(status types.JobStatus) ([]*types.Job, error) {
	return listJobs(s.tx, func(j *types.Job) bool { return j.Status == status })
}
func (s *txStore) ListJobsByQueueAndStatus(queueID string, status types.JobStatus) ([]*types.Job, error) {
	return listJobsByQueueStatus(s.tx, queueID, status)
}
func (s *txStore) DeleteJob(id string) error { return softDeleteJob(s.tx, id) }

func (s *txStore) CreateQueue(q *types.JobQueue) error { return putEntity(s.tx, bucketQueues, q.ID, q) }
func (s *txStore) UpdateQueue(q *types.JobQueue) error { return putEntity(s.tx, bucketQueues, q.ID, q) }
func (s *txStore) GetQueue(id string) (*types.JobQueue, error) {
	var q types.JobQueue
	if err := getEntity(s.tx, bucketQueues, id, &q); err != nil {
		return nil, err
	}
	return &q, nil
}
func (s *txStore) ListQueues() ([]*types.JobQueue, error) {
	var out []*types.JobQueue
	err := s.tx.Bucket(bucketQueues).ForEach(func(_, v []byte) error {
		var q types.JobQueue
		if err := json.Unmarshal(v, &q); err != nil {
			return err
		}
		out = append(out, &q)
		return nil
	})
	return out, err
}
func (s *txStore) ListQueuesByProject(projectID string) ([]*types.JobQueue, error) {
	all, err := s.ListQueues()
	if err != nil {
		return nil, err
	}
	var out []*types.JobQueue
	for _, q := range all {
		if q.ProjectID == projectID {
			out = append(out, q)
		}
	}
	return out, nil
}
func (s *txStore) DeleteQueue(id string) error { return s.tx.Bucket(bucketQueues).Delete([]byte(id)) }

func (s *txStore) GetProjectQuota(projectID string) (*types.ProjectQuota, error) {
	var q types.ProjectQuota
	if err := getEntity(s.tx, bucketProjectQuotas, projectID, &q); err != nil {
		return nil, err
	}
	return &q, nil
}
func (s *txStore) UpsertProjectQuota(q *types.ProjectQuota) error {
	return putEntity(s.tx, bucketProjectQuotas, q.ProjectID, q)
}
func (s *txStore) ListProjectQuotas() ([]*types.ProjectQuota, error) {
	var out []*types.ProjectQuota
	err := s.tx.Bucket(bucketProjectQuotas).ForEach(func(_, v []byte) error {
		var q types.ProjectQuota
		if err := json.Unmarshal(v, &q); err != nil {
			return err
		}
		out = append(out, &q)
		return nil
	})
	return out, err
}
func (s *txStore) DeleteProjectQuota(projectID string) error {
	return s.tx.Bucket(bucketProjectQuotas).Delete([]byte(projectID))
}

func (s *txStore) CreateCluster(c *types.Cluster) error { return putEntity(s.tx, bucketClusters, c.ID, c) }
func (s *txStore) UpdateCluster(c *types.Cluster) error { return putEntity(s.tx, bucketClusters, c.ID, c) }
func (s *txStore) GetCluster(id string) (*types.Cluster, error) {
	var c types.Cluster
	if err := getEntity(s.tx, bucketClusters, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
func (s *txStore) ListClusters() ([]*types.Cluster, error) {
	var out []*types.Cluster
	err := s.tx.Bucket(bucketClusters).ForEach(func(_, v []byte) error {
		var c types.Cluster
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		out = append(out, &c)
		return nil
	})
	return out, err
}
func (s *txStore) ListClustersByVDC(vdcID string) ([]*types.Cluster, error) {
	all, err := s.ListClusters()
	if err != nil {
		return nil, err
	}
	var out []*types.Cluster
	for _, c := range all {
		if c.VDCID == vdcID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (s *txStore) DeleteCluster(id string) error { return s.tx.Bucket(bucketClusters).Delete([]byte(id)) }

func (s *txStore) CreateVDC(v *types.VDC) error { return putEntity(s.tx, bucketVDCs, v.ID, v) }
func (s *txStore) UpdateVDC(v *types.VDC) error { return putEntity(s.tx, bucketVDCs, v.ID, v) }
func (s *txStore) GetVDC(id string) (*types.VDC, error) {
	var v types.VDC
	if err := getEntity(s.tx, bucketVDCs, id, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
func (s *txStore) ListVDCs() ([]*types.VDC, error) {
	var out []*types.VDC
	err := s.tx.Bucket(bucketVDCs).ForEach(func(_, v []byte) error {
		var vdc types.VDC
		if err := json.Unmarshal(v, &vdc); err != nil {
			return err
		}
		out = append(out, &vdc)
		return nil
	})
	return out, err
}
func (s *txStore) DeleteVDC(id string) error { return s.tx.Bucket(bucketVDCs).Delete([]byte(id)) }

func (s *txStore) GetProjectVDCQuota(projectID, vdcID string) (*types.ProjectVDCQuota, error) {
	var q types.ProjectVDCQuota
	data := s.tx.Bucket(bucketProjectVDCQuotas).Get(projectVDCKey(projectID, vdcID))
	if data == nil {
		return nil, fmt.Errorf("project vdc quota %s/%s: %w", projectID, vdcID, errs.ErrNotFound)
	}
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, err
	}
	return &q, nil
}
func (s *txStore) UpsertProjectVDCQuota(q *types.ProjectVDCQuota) error {
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return s.tx.Bucket(bucketProjectVDCQuotas).Put(projectVDCKey(q.ProjectID, q.VDCID), data)
}
func (s *txStore) ListProjectVDCQuotasByProject(projectID string) ([]*types.ProjectVDCQuota, error) {
	var out []*types.ProjectVDCQuota
	prefix := []byte(projectID + "\x00")
	c := s.tx.Bucket(bucketProjectVDCQuotas).Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		var q types.ProjectVDCQuota
		if err := json.Unmarshal(v, &q); err != nil {
			return nil, err
		}
		out = append(out, &q)
	}
	return out, nil
}
func (s *txStore) DeleteProjectVDCQuota(projectID, vdcID string) error {
	return s.tx.Bucket(bucketProjectVDCQuotas).Delete(projectVDCKey(projectID, vdcID))
}

// --- shared tx-level helpers, used by both BoltStore (wrapped in
// db.Update/View) and txStore (already inside a write tx) ---

func putEntity(tx *bolt.Tx, bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucket).Put([]byte(key), data)
}

func getEntity(tx *bolt.Tx, bucket []byte, key string, out any) error {
	data := tx.Bucket(bucket).Get([]byte(key))
	if data == nil {
		return fmt.Errorf("%s: %w", key, errs.ErrNotFound)
	}
	return json.Unmarshal(data, out)
}

func jobQueueStatusKey(queueID string, status types.JobStatus, jobID string) []byte {
	return []byte(queueID + "\x00" + string(status) + "\x00" + jobID)
}

func jobExternalKey(executor types.Executor, externalID string) []byte {
	return []byte(string(executor) + "\x00" + externalID)
}

// putJob writes the job row and refreshes its secondary-index
// entries. The previous (queue,status) index entry, if any, is
// removed first since status/queue may have changed since the last
// write.
func putJob(tx *bolt.Tx, job *types.Job) error {
	jobs := tx.Bucket(bucketJobs)

	if prevData := jobs.Get([]byte(job.ID)); prevData != nil {
		var prev types.Job
		if err := json.Unmarshal(prevData, &prev); err == nil {
			if prev.QueueID != "" {
				tx.Bucket(bucketJobsByQueueStatus).Delete(jobQueueStatusKey(prev.QueueID, prev.Status, prev.ID))
			}
			if prev.ExternalID != "" {
				tx.Bucket(bucketJobsByExternal).Delete(jobExternalKey(prev.Executor, prev.ExternalID))
			}
		}
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := jobs.Put([]byte(job.ID), data); err != nil {
		return err
	}

	if job.QueueID != "" {
		idx := tx.Bucket(bucketJobsByQueueStatus)
		if err := idx.Put(jobQueueStatusKey(job.QueueID, job.Status, job.ID), []byte(job.ID)); err != nil {
			return err
		}
	}
	if job.ExternalID != "" {
		idx := tx.Bucket(bucketJobsByExternal)
		if err := idx.Put(jobExternalKey(job.Executor, job.ExternalID), []byte(job.ID)); err != nil {
			return err
		}
	}
	return nil
}

func getJob(tx *bolt.Tx, id string) (*types.Job, error) {
	data := tx.Bucket(bucketJobs).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("job %s: %w", id, errs.ErrNotFound)
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func getJobByExternalID(tx *bolt.Tx, executor types.Executor, externalID string) (*types.Job, error) {
	jobID := tx.Bucket(bucketJobsByExternal).Get(jobExternalKey(executor, externalID))
	if jobID == nil {
		return nil, fmt.Errorf("job for external id %s/%s: %w", executor, externalID, errs.ErrNotFound)
	}
	return getJob(tx, string(jobID))
}

func listJobs(tx *bolt.Tx, keep func(*types.Job) bool) ([]*types.Job, error) {
	var out []*types.Job
	err := tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
		var job types.Job
		if err := json.Unmarshal(v, &job); err != nil {
			return err
		}
		if job.DeletedAt.IsZero() && keep(&job) {
			out = append(out, &job)
		}
		return nil
	})
	return out, err
}

func listJobsByQueueStatus(tx *bolt.Tx, queueID string, status types.JobStatus) ([]*types.Job, error) {
	var out []*types.Job
	prefix := []byte(queueID + "\x00" + string(status) + "\x00")
	c := tx.Bucket(bucketJobsByQueueStatus).Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		job, err := getJob(tx, string(v))
		if err != nil {
			continue // index entry outlived its row; ignore
		}
		if !job.DeletedAt.IsZero() {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func softDeleteJob(tx *bolt.Tx, id string) error {
	job, err := getJob(tx, id)
	if err != nil {
		return err
	}
	job.DeletedAt = time.Now().UTC()
	return putJob(tx, job)
}
