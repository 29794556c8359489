package selector

import (
	"math"

	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
)

// scoreFunc scores a cluster; pickMinScore/pickMaxScore break ties by
// cluster id so Select is deterministic.
type scoreFunc func(c *types.Cluster) float64

func pickMinScore(candidates []*types.Cluster, score scoreFunc) *types.Cluster {
	best := candidates[0]
	bestScore := score(best)
	for _, c := range candidates[1:] {
		s := score(c)
		if s < bestScore || (s == bestScore && c.ID < best.ID) {
			best, bestScore = c, s
		}
	}
	return best
}

func pickMaxScore(candidates []*types.Cluster, score scoreFunc) *types.Cluster {
	best := candidates[0]
	bestScore := score(best)
	for _, c := range candidates[1:] {
		s := score(c)
		if s > bestScore || (s == bestScore && c.ID < best.ID) {
			best, bestScore = c, s
		}
	}
	return best
}

// loadBalancingScore is 0.3*cpu_usage% + 0.3*mem_usage% + 0.4*gpu_usage%;
// lower wins.
func loadBalancingScore(c *types.Cluster) float64 {
	cpuPct := usagePct(c.Used.CPUFloat(), c.Capacity.CPUFloat())
	memPct := usagePct(c.Used.MemoryFloatGiB(), c.Capacity.MemoryFloatGiB())
	gpuPct := usagePct(float64(c.Used.GPUCount), float64(c.Capacity.GPUCount))
	return 0.3*cpuPct + 0.3*memPct + 0.4*gpuPct
}

func usagePct(used, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return used / capacity
}

// resourceFitScore is sum of |available_i - request_i| / request_i over
// components the job actually requests; lower wins.
func resourceFitScore(request resources.Resources) scoreFunc {
	return func(c *types.Cluster) float64 {
		available := c.Capacity.Sub(c.Used)
		var sum float64
		if request.CPUFloat() > 0 {
			sum += math.Abs(available.CPUFloat()-request.CPUFloat()) / request.CPUFloat()
		}
		if request.MemoryFloatGiB() > 0 {
			sum += math.Abs(available.MemoryFloatGiB()-request.MemoryFloatGiB()) / request.MemoryFloatGiB()
		}
		if request.GPUCount > 0 {
			sum += math.Abs(float64(available.GPUCount-request.GPUCount)) / float64(request.GPUCount)
		}
		return sum
	}
}

// priorityScore is priority*weight; higher wins, so pickMaxScore is used.
func priorityScore(c *types.Cluster) float64 {
	weight := c.Weight
	if weight == 0 {
		weight = 1
	}
	return float64(c.Priority) * weight
}

// pickAffinity returns the highest-priority candidate among those whose
// id is in preferred, or nil if the intersection is empty.
func pickAffinity(candidates []*types.Cluster, preferred []string) *types.Cluster {
	if len(preferred) == 0 {
		return nil
	}
	want := make(map[string]bool, len(preferred))
	for _, id := range preferred {
		want[id] = true
	}

	var best *types.Cluster
	for _, c := range candidates {
		if !want[c.ID] {
			continue
		}
		if best == nil || c.Priority > best.Priority || (c.Priority == best.Priority && c.ID < best.ID) {
			best = c
		}
	}
	return best
}

func anyDeclaresCost(candidates []*types.Cluster) bool {
	for _, c := range candidates {
		if c.CostDeclared {
			return true
		}
	}
	return false
}

// costScore is sum of request_i * cost_i_per_hour over clusters that
// declare costs; lower wins. Clusters that don't declare costs score
// +Inf so they never win when at least one candidate does declare.
func costScore(request resources.Resources) scoreFunc {
	return func(c *types.Cluster) float64 {
		if !c.CostDeclared {
			return math.Inf(1)
		}
		return request.CPUFloat()*c.CostPerCPUHour +
			request.MemoryFloatGiB()*c.CostPerGiBHour +
			float64(request.GPUCount)*c.CostPerGPUHour
	}
}
