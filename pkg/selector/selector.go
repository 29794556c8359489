// Package selector chooses which cluster within a VDC should run a job.
// It only runs when a job is VDC-routed; direct executor submissions
// (no VDC) skip cluster selection entirely and dispatch straight to the
// backend named by Job.Executor.
package selector

import (
	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
)

// JobCounter reports live per-cluster job counts so Select can enforce
// Cluster.MaxJobsPerUser/MaxTotalJobs without itself touching storage.
type JobCounter interface {
	RunningJobCount(clusterID string) int
	RunningJobCountForUser(clusterID, userID string) int
}

// Strategy names a scoring strategy from §4.E.
type Strategy string

const (
	StrategyLoadBalancing Strategy = "load_balancing"
	StrategyResourceFit   Strategy = "resource_fit"
	StrategyPriority      Strategy = "priority"
	StrategyAffinity      Strategy = "affinity"
	StrategyCostOptimized Strategy = "cost_optimized"
)

// Request bundles the inputs Select needs about the job being placed.
type Request struct {
	Executor            types.Executor
	ResourceRequest     resources.Resources
	RequiredLabels      map[string]string
	PreferredClusterIDs []string
	UserID              string
}

// Select filters clusters to candidates and picks one by strategy,
// ties broken deterministically by cluster id. Returns
// errs.ErrNoCandidate if no cluster survives filtering.
func Select(clusters []*types.Cluster, req Request, strategy Strategy, counter JobCounter) (*types.Cluster, error) {
	candidates := filterCandidates(clusters, req, counter)
	if len(candidates) == 0 {
		return nil, errs.ErrNoCandidate
	}

	switch strategy {
	case StrategyResourceFit:
		return pickMinScore(candidates, resourceFitScore(req.ResourceRequest)), nil
	case StrategyPriority:
		return pickMaxScore(candidates, priorityScore), nil
	case StrategyAffinity:
		if c := pickAffinity(candidates, req.PreferredClusterIDs); c != nil {
			return c, nil
		}
		return pickMinScore(candidates, loadBalancingScore), nil
	case StrategyCostOptimized:
		if anyDeclaresCost(candidates) {
			return pickMinScore(candidates, costScore(req.ResourceRequest)), nil
		}
		return pickMinScore(candidates, loadBalancingScore), nil
	case StrategyLoadBalancing:
		fallthrough
	default:
		return pickMinScore(candidates, loadBalancingScore), nil
	}
}

func filterCandidates(clusters []*types.Cluster, req Request, counter JobCounter) []*types.Cluster {
	var out []*types.Cluster
	for _, c := range clusters {
		if !c.Enabled {
			continue
		}
		if c.Status != types.ClusterStatusHealthy {
			continue
		}
		if !clusterTypeMatchesExecutor(c.Type, req.Executor) {
			continue
		}
		available := c.Capacity.Sub(c.Used)
		if !resources.Fits(req.ResourceRequest, available) {
			continue
		}
		if !labelsSubset(req.RequiredLabels, c.Labels) {
			continue
		}
		if counter != nil {
			if c.MaxTotalJobs > 0 && counter.RunningJobCount(c.ID) >= c.MaxTotalJobs {
				continue
			}
			if c.MaxJobsPerUser > 0 && counter.RunningJobCountForUser(c.ID, req.UserID) >= c.MaxJobsPerUser {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

func clusterTypeMatchesExecutor(t types.ClusterType, e types.Executor) bool {
	switch e {
	case types.ExecutorKubernetes:
		return t == types.ClusterTypeKubernetes
	case types.ExecutorSlurm:
		return t == types.ClusterTypeSlurm
	default:
		return false
	}
}

func labelsSubset(required, have map[string]string) bool {
	for k, v := range required {
		if have[k] != v {
			return false
		}
	}
	return true
}
