package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobctl_jobs_total",
			Help: "Total number of jobs by status",
		},
		[]string{"status"},
	)

	JobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobctl_jobs_submitted_total",
			Help: "Total number of jobs submitted by project and job type",
		},
		[]string{"project_id", "job_type"},
	)

	JobsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobctl_jobs_dispatched_total",
			Help: "Total number of jobs dispatched by cluster and executor",
		},
		[]string{"cluster_id", "executor"},
	)

	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobctl_jobs_failed_total",
			Help: "Total number of jobs that ended in failed or timeout, by reason kind",
		},
		[]string{"kind"},
	)

	JobDispatchAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobctl_job_dispatch_attempts_total",
			Help: "Total number of TryDispatch attempts across all jobs",
		},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobctl_queue_depth",
			Help: "Number of queued jobs per queue",
		},
		[]string{"queue_id"},
	)

	// Quota metrics
	QuotaUtilizationCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobctl_quota_cpu_utilization_ratio",
			Help: "Used/Limit CPU ratio per project quota scope",
		},
		[]string{"project_id", "scope"},
	)

	QuotaUtilizationMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobctl_quota_memory_utilization_ratio",
			Help: "Used/Limit memory ratio per project quota scope",
		},
		[]string{"project_id", "scope"},
	)

	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobctl_quota_rejections_total",
			Help: "Total number of jobs rejected for exceeding quota, by scope",
		},
		[]string{"scope"},
	)

	// Cluster metrics
	ClusterCapacityCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobctl_cluster_cpu_capacity_cores",
			Help: "Declared CPU capacity per cluster",
		},
		[]string{"cluster_id"},
	)

	ClusterUsedCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobctl_cluster_cpu_used_cores",
			Help: "Used CPU per cluster",
		},
		[]string{"cluster_id"},
	)

	ClustersByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobctl_clusters_total",
			Help: "Total number of registered clusters by status",
		},
		[]string{"status"},
	)

	// Scheduler tick / reconciler tick timing
	SchedulingTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobctl_scheduling_tick_duration_seconds",
			Help:    "Time taken per scheduling tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconcileTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobctl_reconcile_tick_duration_seconds",
			Help:    "Time taken per reconcile tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobctl_reconcile_cycles_total",
			Help: "Total number of reconcile cycles completed",
		},
	)

	// Backend driver call latency
	DriverCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobctl_driver_call_duration_seconds",
			Help:    "Backend driver call duration by backend and verb",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "verb"},
	)

	DriverCallErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobctl_driver_call_errors_total",
			Help: "Backend driver call errors by backend, verb, and error kind",
		},
		[]string{"backend", "verb", "kind"},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobsSubmittedTotal)
	prometheus.MustRegister(JobsDispatchedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobDispatchAttemptsTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QuotaUtilizationCPU)
	prometheus.MustRegister(QuotaUtilizationMemory)
	prometheus.MustRegister(QuotaRejectionsTotal)
	prometheus.MustRegister(ClusterCapacityCPU)
	prometheus.MustRegister(ClusterUsedCPU)
	prometheus.MustRegister(ClustersByStatus)
	prometheus.MustRegister(SchedulingTickDuration)
	prometheus.MustRegister(ReconcileTickDuration)
	prometheus.MustRegister(ReconcileCyclesTotal)
	prometheus.MustRegister(DriverCallDuration)
	prometheus.MustRegister(DriverCallErrorsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
