/*
Package events provides an in-memory, non-blocking pub/sub broker used
to publish scheduler lifecycle events (job enqueued/dispatched/status
changed, quota reserved/released, cluster registered/degraded) to
out-of-process consumers such as an audit log or the linked-run
updater (see pkg/linkedrun).

Publish never blocks the caller on a slow subscriber: each Subscriber
channel is buffered, and a full subscriber buffer drops the event
rather than stalling the broker.
*/
package events
