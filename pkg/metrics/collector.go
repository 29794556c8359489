package metrics

import (
	"time"

	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
)

// Collector periodically samples the store and publishes gauge
// metrics: job counts by status, per-queue depth, per-cluster
// capacity/usage, and cluster counts by status.
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over store.
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectJobMetrics()
	c.collectQueueMetrics()
	c.collectClusterMetrics()
}

func (c *Collector) collectJobMetrics() {
	jobs, err := c.store.ListJobs()
	if err != nil {
		return
	}

	counts := make(map[types.JobStatus]int)
	for _, job := range jobs {
		counts[job.Status]++
	}
	for status, count := range counts {
		JobsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectQueueMetrics() {
	queues, err := c.store.ListQueues()
	if err != nil {
		return
	}
	for _, q := range queues {
		jobs, err := c.store.ListJobsByQueueAndStatus(q.ID, types.JobStatusQueued)
		if err != nil {
			continue
		}
		QueueDepth.WithLabelValues(q.ID).Set(float64(len(jobs)))
	}
}

func (c *Collector) collectClusterMetrics() {
	clusters, err := c.store.ListClusters()
	if err != nil {
		return
	}

	statusCounts := make(map[types.ClusterStatus]int)
	for _, cl := range clusters {
		statusCounts[cl.Status]++
		ClusterCapacityCPU.WithLabelValues(cl.ID).Set(cl.Capacity.CPUFloat())
		ClusterUsedCPU.WithLabelValues(cl.ID).Set(cl.Used.CPUFloat())
	}
	for status, count := range statusCounts {
		ClustersByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
}
