package selector

import (
	"errors"
	"testing"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cluster(id string, capacity, used resources.Resources) *types.Cluster {
	return &types.Cluster{
		ID:       id,
		Type:     types.ClusterTypeKubernetes,
		Status:   types.ClusterStatusHealthy,
		Enabled:  true,
		Capacity: capacity,
		Used:     used,
	}
}

func baseReq() Request {
	return Request{Executor: types.ExecutorKubernetes, ResourceRequest: resources.New(2, 4, 0)}
}

func TestSelectNoCandidateWhenAllDisabled(t *testing.T) {
	c := cluster("c1", resources.New(16, 32, 0), resources.Zero())
	c.Enabled = false

	_, err := Select([]*types.Cluster{c}, baseReq(), StrategyLoadBalancing, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNoCandidate))
}

func TestSelectFiltersUnhealthyAndWrongType(t *testing.T) {
	unhealthy := cluster("c1", resources.New(16, 32, 0), resources.Zero())
	unhealthy.Status = types.ClusterStatusDegraded
	wrongType := cluster("c2", resources.New(16, 32, 0), resources.Zero())
	wrongType.Type = types.ClusterTypeSlurm
	ok := cluster("c3", resources.New(16, 32, 0), resources.Zero())

	got, err := Select([]*types.Cluster{unhealthy, wrongType, ok}, baseReq(), StrategyLoadBalancing, nil)
	require.NoError(t, err)
	assert.Equal(t, "c3", got.ID)
}

func TestSelectFiltersInsufficientCapacity(t *testing.T) {
	tight := cluster("c1", resources.New(2, 4, 0), resources.New(1, 3, 0))
	roomy := cluster("c2", resources.New(16, 32, 0), resources.Zero())

	got, err := Select([]*types.Cluster{tight, roomy}, baseReq(), StrategyLoadBalancing, nil)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)
}

func TestSelectFiltersRequiredLabels(t *testing.T) {
	unlabeled := cluster("c1", resources.New(16, 32, 0), resources.Zero())
	labeled := cluster("c2", resources.New(16, 32, 0), resources.Zero())
	labeled.Labels = map[string]string{"gpu": "a100"}

	req := baseReq()
	req.RequiredLabels = map[string]string{"gpu": "a100"}

	got, err := Select([]*types.Cluster{unlabeled, labeled}, req, StrategyLoadBalancing, nil)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)
}

func TestSelectLoadBalancingPicksLeastUsed(t *testing.T) {
	busy := cluster("c1", resources.New(16, 32, 0), resources.New(14, 30, 0))
	idle := cluster("c2", resources.New(16, 32, 0), resources.New(1, 1, 0))

	got, err := Select([]*types.Cluster{busy, idle}, baseReq(), StrategyLoadBalancing, nil)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)
}

func TestSelectResourceFitPrefersTighterFit(t *testing.T) {
	tight := cluster("c1", resources.New(4, 8, 0), resources.New(0, 0, 0))
	loose := cluster("c2", resources.New(64, 128, 0), resources.Zero())

	got, err := Select([]*types.Cluster{tight, loose}, baseReq(), StrategyResourceFit, nil)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID, "resource_fit minimizes leftover slack relative to the request")
}

func TestSelectPriorityPicksHighestWeightedPriority(t *testing.T) {
	low := cluster("c1", resources.New(16, 32, 0), resources.Zero())
	low.Priority = 1
	low.Weight = 1
	high := cluster("c2", resources.New(16, 32, 0), resources.Zero())
	high.Priority = 10
	high.Weight = 1

	got, err := Select([]*types.Cluster{low, high}, baseReq(), StrategyPriority, nil)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)
}

func TestSelectAffinityPrefersIntersection(t *testing.T) {
	preferred := cluster("c1", resources.New(16, 32, 0), resources.New(14, 30, 0))
	other := cluster("c2", resources.New(16, 32, 0), resources.Zero())

	req := baseReq()
	req.PreferredClusterIDs = []string{"c1"}

	got, err := Select([]*types.Cluster{preferred, other}, req, StrategyAffinity, nil)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID, "affinity honors the preference even though c1 is more heavily used")
}

func TestSelectAffinityFallsBackWhenNoIntersection(t *testing.T) {
	busy := cluster("c1", resources.New(16, 32, 0), resources.New(14, 30, 0))
	idle := cluster("c2", resources.New(16, 32, 0), resources.Zero())

	req := baseReq()
	req.PreferredClusterIDs = []string{"c3"}

	got, err := Select([]*types.Cluster{busy, idle}, req, StrategyAffinity, nil)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID, "no preferred cluster survived filtering, so it falls back to load_balancing")
}

func TestSelectCostOptimizedPicksCheapest(t *testing.T) {
	cheap := cluster("c1", resources.New(16, 32, 0), resources.Zero())
	cheap.CostDeclared = true
	cheap.CostPerCPUHour = 0.01
	pricey := cluster("c2", resources.New(16, 32, 0), resources.Zero())
	pricey.CostDeclared = true
	pricey.CostPerCPUHour = 1.0

	got, err := Select([]*types.Cluster{cheap, pricey}, baseReq(), StrategyCostOptimized, nil)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
}

func TestSelectCostOptimizedFallsBackWhenNoneDeclareCost(t *testing.T) {
	busy := cluster("c1", resources.New(16, 32, 0), resources.New(14, 30, 0))
	idle := cluster("c2", resources.New(16, 32, 0), resources.Zero())

	got, err := Select([]*types.Cluster{busy, idle}, baseReq(), StrategyCostOptimized, nil)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)
}

func TestSelectTiesBreakByClusterID(t *testing.T) {
	b := cluster("cluster-b", resources.New(16, 32, 0), resources.Zero())
	a := cluster("cluster-a", resources.New(16, 32, 0), resources.Zero())

	got, err := Select([]*types.Cluster{b, a}, baseReq(), StrategyLoadBalancing, nil)
	require.NoError(t, err)
	assert.Equal(t, "cluster-a", got.ID)
}

func TestSelectFiltersMaxJobsPerUser(t *testing.T) {
	c := cluster("c1", resources.New(16, 32, 0), resources.Zero())
	c.MaxJobsPerUser = 1
	req := baseReq()
	req.UserID = "u1"

	_, err := Select([]*types.Cluster{c}, req, StrategyLoadBalancing, stubCounter{perUser: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNoCandidate))
}

func TestSelectFiltersMaxTotalJobs(t *testing.T) {
	c := cluster("c1", resources.New(16, 32, 0), resources.Zero())
	c.MaxTotalJobs = 3

	_, err := Select([]*types.Cluster{c}, baseReq(), StrategyLoadBalancing, stubCounter{total: 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNoCandidate))
}

type stubCounter struct {
	total   int
	perUser int
}

func (s stubCounter) RunningJobCount(clusterID string) int { return s.total }
func (s stubCounter) RunningJobCountForUser(clusterID, userID string) int {
	return s.perUser
}
