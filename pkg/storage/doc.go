/*
Package storage provides BoltDB-backed persistence for the scheduler's
state: jobs, queues, project quotas, clusters, VDCs, and project/VDC
quotas.

# Architecture

BoltStore uses bbolt for embedded, transactional storage with one
bucket per entity, plus two secondary-index buckets:

	jobs                   job ID -> Job (JSON)
	jobs_by_queue_status    "queueID\x00status\x00jobID" -> jobID
	jobs_by_external        "executor\x00externalID" -> jobID
	queues                 queue ID -> JobQueue (JSON)
	project_quotas         project ID -> ProjectQuota (JSON)
	clusters               cluster ID -> Cluster (JSON)
	vdcs                   VDC ID -> VDC (JSON)
	project_vdc_quotas     "projectID\x00vdcID" -> ProjectVDCQuota (JSON)

All writes go through a single bbolt write transaction per Store call;
Create and Update share the same upsert implementation. WithTx exposes
that transaction boundary directly so the scheduler orchestrator can
make a job's dispatch and its quota reservation land atomically.

Job is the only entity with a soft-delete marker (DeletedAt); list
operations filter deleted jobs out automatically. Administrative
entities (queues, clusters, VDCs, quotas) are hard-deleted.
*/
package storage
