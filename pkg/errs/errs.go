// Package errs defines the sentinel errors the orchestrator, quota
// providers, and backend drivers wrap with fmt.Errorf("...: %w", ...),
// the same convention warren's pkg/storage and pkg/scheduler use.
// Callers use errors.Is against these sentinels rather than matching
// on message text.
package errs

import "errors"

var (
	// ErrQuotaExceeded names a request that would violate a quota
	// limit. Quota providers' Reserve reports that case as a false
	// result rather than returning this error; the orchestrator treats
	// it as "stay QUEUED, retry next tick", not a terminal failure.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrNoCandidate is returned by a cluster selector when no cluster
	// in scope satisfies the job's requirements. Same retry treatment
	// as ErrQuotaExceeded.
	ErrNoCandidate = errors.New("no candidate cluster")

	// ErrExecutorUnavailable is returned synchronously at submission
	// time when the job's executor has no connection configured.
	ErrExecutorUnavailable = errors.New("executor unavailable")

	// ErrConfigInvalid marks a malformed configuration envelope or
	// ExecutorConfig document.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrDriverTransient marks a backend call that failed in a way
	// expected to resolve itself (unreachable, 5xx, timeout). The
	// orchestrator releases any reservation and leaves the job QUEUED.
	ErrDriverTransient = errors.New("driver transient failure")

	// ErrDriverPermanent marks a backend call rejected for a reason
	// that will not change on retry (4xx other than 404/409). The job
	// transitions to FAILED.
	ErrDriverPermanent = errors.New("driver permanent failure")

	// ErrNotFound is returned by storage and provider lookups for a
	// missing entity.
	ErrNotFound = errors.New("not found")
)
