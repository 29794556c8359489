/*
Package metrics exposes the scheduler's Prometheus instrumentation: job
counts by status, per-queue depth, per-project quota utilization ratios,
per-cluster capacity/usage, scheduling-tick and reconcile-tick duration
histograms, and backend driver call latency/error counters by backend
and verb.

# Usage

Metrics are package-level prometheus.*Vec values, registered in init().
Call sites update them directly:

	metrics.JobsSubmittedTotal.WithLabelValues(job.ProjectID, string(job.JobType)).Inc()

	timer := metrics.NewTimer()
	// ... dispatch the job ...
	timer.ObserveDurationVec(metrics.DriverCallDuration, string(cluster.Type), "submit")

Collector periodically samples a storage.Store to publish the gauges
that aren't naturally updated at the point of a state change (job
counts by status, queue depth, cluster capacity/usage).

Handler returns the promhttp handler for mounting at /metrics.

# Health

HealthChecker (health.go) tracks named component health independently
of Prometheus, backing three HTTP endpoints: HealthHandler (overall
status, 503 if any critical component is unhealthy), ReadyHandler (503
until store, orchestrator, and reconciler have all reported healthy),
and LivenessHandler (always 200 while the process is running).

A backend driver is registered with RegisterDriver rather than
RegisterComponent: it is non-critical, so one backend being unreachable
degrades overall health (jobs targeting other executors still dispatch)
without failing readiness or returning 503 from /health. SetQueueBacklog
records each scheduling tick's total PENDING-job count; crossing
BacklogDegradedThreshold also degrades overall health, as a signal the
scheduler is falling behind admission even though every component is up.
*/
package metrics
