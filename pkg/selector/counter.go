package selector

import (
	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
)

// StoreJobCounter implements JobCounter against a storage.Store by
// scanning the RUNNING job set. It is cheap enough for the scheduling
// tick's cadence (seconds) but is not meant for high-frequency calls.
type StoreJobCounter struct {
	store storage.Store
}

func NewStoreJobCounter(store storage.Store) *StoreJobCounter {
	return &StoreJobCounter{store: store}
}

func (c *StoreJobCounter) RunningJobCount(clusterID string) int {
	jobs, err := c.store.ListJobsByStatus(types.JobStatusRunning)
	if err != nil {
		return 0
	}
	var n int
	for _, j := range jobs {
		if j.ClusterID == clusterID {
			n++
		}
	}
	return n
}

func (c *StoreJobCounter) RunningJobCountForUser(clusterID, userID string) int {
	jobs, err := c.store.ListJobsByStatus(types.JobStatusRunning)
	if err != nil {
		return 0
	}
	var n int
	for _, j := range jobs {
		if j.ClusterID == clusterID && j.UserID == userID {
			n++
		}
	}
	return n
}
