/*
Package types defines the scheduler's domain model: resources, jobs,
queues, quotas, VDCs and clusters, as described in the data model
specification.

These are plain value and entity types with no persistence or
networking logic attached; pkg/storage persists them, pkg/driver
translates Job into backend-native submissions, and pkg/scheduler
drives Job through its lifecycle.
*/
package types
