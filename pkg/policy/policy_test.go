package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(id string, queuePos int, enqueuedAt time.Time, priority int, userID string, req resources.Resources) *types.Job {
	return &types.Job{
		ID:            id,
		QueuePosition: queuePos,
		EnqueuedAt:    enqueuedAt,
		Priority:      priority,
		UserID:        userID,
		Request:       req,
	}
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	_, err := New("quantum")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfigInvalid))
}

func TestNewResolvesAllKnownPolicies(t *testing.T) {
	for _, name := range []string{"fifo", "priority", "fair_share", "backfill"} {
		p, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}
}

func TestFIFOSelectsLowestQueuePosition(t *testing.T) {
	now := time.Now()
	a := job("a", 2, now, 0, "u1", resources.Zero())
	b := job("b", 1, now, 0, "u1", resources.Zero())
	c := job("c", 3, now, 0, "u1", resources.Zero())

	got := NewFIFO().SelectNext(nil, []*types.Job{a, b, c})
	assert.Equal(t, "b", got.ID)
}

func TestFIFOTieBreaksByEnqueuedAt(t *testing.T) {
	base := time.Now()
	a := job("a", 1, base.Add(time.Minute), 0, "u1", resources.Zero())
	b := job("b", 1, base, 0, "u1", resources.Zero())

	got := NewFIFO().SelectNext(nil, []*types.Job{a, b})
	assert.Equal(t, "b", got.ID)
}

func TestPrioritySelectsMaxPriority(t *testing.T) {
	now := time.Now()
	a := job("a", 1, now, 5, "u1", resources.Zero())
	b := job("b", 2, now, 50, "u1", resources.Zero())

	got := NewPriority().SelectNext(nil, []*types.Job{a, b})
	assert.Equal(t, "b", got.ID)
}

func TestPriorityTieBreaksByFIFO(t *testing.T) {
	now := time.Now()
	a := job("a", 2, now, 10, "u1", resources.Zero())
	b := job("b", 1, now, 10, "u1", resources.Zero())

	got := NewPriority().SelectNext(nil, []*types.Job{a, b})
	assert.Equal(t, "b", got.ID)
}

func TestPriorityShouldPreemptAtThreshold(t *testing.T) {
	running := []*types.Job{
		job("low", 0, time.Now(), 5, "u1", resources.Zero()),
		job("high", 0, time.Now(), 30, "u1", resources.Zero()),
	}
	incoming := job("new", 0, time.Now(), 16, "u2", resources.Zero())

	p := NewPriority()
	victim := p.ShouldPreempt(running, incoming)
	require.NotNil(t, victim)
	assert.Equal(t, "low", victim.ID, "5+10=15 <= 16, so the minimum-priority running job is nominated")
}

func TestPriorityShouldNotPreemptBelowThreshold(t *testing.T) {
	running := []*types.Job{job("low", 0, time.Now(), 5, "u1", resources.Zero())}
	incoming := job("new", 0, time.Now(), 14, "u2", resources.Zero())

	assert.Nil(t, NewPriority().ShouldPreempt(running, incoming))
}

func TestFairShareSelectsMinimumScoringUserProxy(t *testing.T) {
	now := time.Now()
	// u1 has two pending jobs (higher count proxy, worse score), u2 has one.
	a := job("a", 1, now, 0, "u1", resources.Zero())
	b := job("b", 2, now, 0, "u1", resources.Zero())
	c := job("c", 3, now, 0, "u2", resources.Zero())

	got := NewFairShare(DefaultLookbackWindow).SelectNext(nil, []*types.Job{a, b, c})
	assert.Equal(t, "c", got.ID, "u2's lone job should win over u1's pair under the count-based usage proxy")
}

func TestFairShareWithInjectedUsage(t *testing.T) {
	now := time.Now()
	a := job("a", 1, now, 0, "u1", resources.Zero())
	b := job("b", 2, now, 0, "u2", resources.Zero())

	usage := func(userID string) float64 {
		if userID == "u1" {
			return 100
		}
		return 1
	}
	got := NewFairShareWithUsage(time.Hour, 1.0, usage).SelectNext(nil, []*types.Job{a, b})
	assert.Equal(t, "b", got.ID)
}

func TestBackfillPromotesSmallerJobAheadOfPrimary(t *testing.T) {
	now := time.Now()
	big := job("big", 1, now, 0, "u1", resources.New(8, 16, 0))
	small := job("small", 2, now, 0, "u1", resources.New(1, 2, 0))

	got := NewBackfill(NewFIFO()).SelectNext(nil, []*types.Job{big, small})
	assert.Equal(t, "small", got.ID, "small fits strictly within big's footprint and should backfill ahead of it")
}

func TestBackfillFallsBackToPrimaryWhenNoSmallerJobFits(t *testing.T) {
	now := time.Now()
	a := job("a", 1, now, 0, "u1", resources.New(4, 8, 0))
	b := job("b", 2, now, 0, "u1", resources.New(4, 8, 0))

	got := NewBackfill(NewFIFO()).SelectNext(nil, []*types.Job{a, b})
	assert.Equal(t, "a", got.ID, "identical footprints: nothing is strictly smaller, so FIFO's choice stands")
}

func TestBackfillDefaultsNilBaseToFIFO(t *testing.T) {
	now := time.Now()
	a := job("a", 1, now, 0, "u1", resources.Zero())
	got := NewBackfill(nil).SelectNext(nil, []*types.Job{a})
	assert.Equal(t, "a", got.ID)
}

func TestSelectNextEmptyPendingReturnsNil(t *testing.T) {
	assert.Nil(t, NewFIFO().SelectNext(nil, nil))
	assert.Nil(t, NewPriority().SelectNext(nil, nil))
	assert.Nil(t, NewFairShare(DefaultLookbackWindow).SelectNext(nil, nil))
	assert.Nil(t, NewBackfill(NewFIFO()).SelectNext(nil, nil))
}
