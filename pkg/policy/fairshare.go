package policy

import (
	"time"

	"github.com/cuemby/jobctl/pkg/types"
)

// DefaultLookbackWindow is the default horizon FairShare considers when
// scoring recent usage.
const DefaultLookbackWindow = 24 * time.Hour

// UsageFunc reports a user's recent resource-time usage. It is passed
// in by the caller of NewFairShareWithUsage, which decides the window
// the usage covers; policy.New builds FairShare without one. FairShare
// itself never touches storage.
type UsageFunc func(userID string) float64

// FairShare scores each pending user as recent usage / fair-share
// target and selects the job belonging to the minimum-scoring user,
// breaking ties by FIFO. With no UsageFunc configured it falls back to
// counting each user's jobs within the pending set as a usage proxy,
// mirroring the target-of-1-per-user default.
type FairShare struct {
	noPreempt
	lookback time.Duration
	target   float64
	usage    UsageFunc
}

// NewFairShare builds a FairShare policy using the equal-target default
// (every user's fair-share target is 1.0) and the in-set job-count
// usage proxy. The lookback window is stored on the policy but does not
// affect the proxy's scores. Use
// NewFairShareWithUsage to wire real usage accounting.
func NewFairShare(lookback time.Duration) *FairShare {
	return &FairShare{lookback: lookback, target: 1.0}
}

// NewFairShareWithUsage builds a FairShare policy that scores users via
// usage, normalized against target.
func NewFairShareWithUsage(lookback time.Duration, target float64, usage UsageFunc) *FairShare {
	return &FairShare{lookback: lookback, target: target, usage: usage}
}

func (f *FairShare) Name() string { return "fair_share" }

func (f *FairShare) SelectNext(queue *types.JobQueue, pending []*types.Job) *types.Job {
	if len(pending) == 0 {
		return nil
	}
	scores := f.scores(pending)

	var best *types.Job
	for _, j := range pending {
		if best == nil {
			best = j
			continue
		}
		cs, bs := scores[j.UserID], scores[best.UserID]
		if cs != bs {
			if cs < bs {
				best = j
			}
			continue
		}
		if betterFIFO(j, best) {
			best = j
		}
	}
	return best
}

func (f *FairShare) scores(pending []*types.Job) map[string]float64 {
	target := f.target
	if target <= 0 {
		target = 1.0
	}
	if f.usage != nil {
		scores := make(map[string]float64)
		seen := make(map[string]bool)
		for _, j := range pending {
			if seen[j.UserID] {
				continue
			}
			seen[j.UserID] = true
			scores[j.UserID] = f.usage(j.UserID) / target
		}
		return scores
	}

	counts := make(map[string]float64)
	for _, j := range pending {
		counts[j.UserID]++
	}
	scores := make(map[string]float64, len(counts))
	for user, count := range counts {
		scores[user] = count / target
	}
	return scores
}
