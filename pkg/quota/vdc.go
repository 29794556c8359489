package quota

import (
	"errors"
	"fmt"

	pkgerrs "github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
)

// VDCManager layers the VDC-level and ProjectVDCQuota-level checks
// spec'd for VDC-routed jobs: a job must fit within both the VDC's
// own capacity and the project's slice of that VDC before it is
// reserved. It is only consulted when VDC routing is enabled.
type VDCManager struct {
	store storage.Store
}

// NewVDCManager returns a VDCManager backed by store.
func NewVDCManager(store storage.Store) *VDCManager {
	return &VDCManager{store: store}
}

// effectiveVDCQuota returns the VDC's capacity ceiling: its
// OverrideQuota if set, otherwise the summed capacity of its member
// clusters, scaled by the overcommit factor when overcommit is
// enabled.
func effectiveVDCQuota(tx storage.Store, vdc *types.VDC) (resources.Resources, error) {
	if vdc.OverrideQuota != nil {
		return applyOvercommit(*vdc.OverrideQuota, vdc.Overcommit), nil
	}

	total := resources.Zero()
	for _, clusterID := range vdc.ClusterIDs {
		cluster, err := tx.GetCluster(clusterID)
		if errors.Is(err, pkgerrs.ErrNotFound) {
			continue
		}
		if err != nil {
			return resources.Resources{}, fmt.Errorf("quota: get cluster %s: %w", clusterID, err)
		}
		total = total.Add(cluster.Capacity)
	}
	return applyOvercommit(total, vdc.Overcommit), nil
}

func applyOvercommit(r resources.Resources, policy types.OvercommitPolicy) resources.Resources {
	if !policy.Enabled || policy.Factor <= 0 {
		return r
	}
	return r.Mul(policy.Factor)
}

// CheckVDC reports whether vdc has capacity beyond its used counters
// for request, without reserving anything.
func (m *VDCManager) CheckVDC(vdcID string, request resources.Resources) (bool, error) {
	vdc, err := m.store.GetVDC(vdcID)
	if err != nil {
		return false, fmt.Errorf("quota: get vdc %s: %w", vdcID, err)
	}
	quota, err := effectiveVDCQuota(m.store, vdc)
	if err != nil {
		return false, err
	}
	return resources.Fits(vdc.Used.Add(request), quota), nil
}

// CheckProjectVDCQuota reports whether project has room, within its
// ProjectVDCQuota row for vdc, for request and one more job of
// jobType.
func (m *VDCManager) CheckProjectVDCQuota(projectID, vdcID string, request resources.Resources, jobType types.JobType) (bool, error) {
	q, err := m.store.GetProjectVDCQuota(projectID, vdcID)
	if errors.Is(err, pkgerrs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("quota: get project vdc quota %s/%s: %w", projectID, vdcID, err)
	}
	return fits(q.Limits, q.Used, 0, 0, q.PerTypeCaps, q.PerTypeUsed, request, jobType), nil
}

// Reserve performs both checks and, if they pass, increments the VDC
// and ProjectVDCQuota counters atomically: either both land or
// neither does.
func (m *VDCManager) Reserve(projectID, vdcID string, request resources.Resources, jobType types.JobType) (bool, error) {
	admitted := false
	err := m.store.WithTx(func(tx storage.Store) error {
		vdc, err := tx.GetVDC(vdcID)
		if err != nil {
			return fmt.Errorf("quota: get vdc %s: %w", vdcID, err)
		}
		vdcQuota, err := effectiveVDCQuota(tx, vdc)
		if err != nil {
			return err
		}
		if !resources.Fits(vdc.Used.Add(request), vdcQuota) {
			return nil
		}

		pq, err := tx.GetProjectVDCQuota(projectID, vdcID)
		if errors.Is(err, pkgerrs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("quota: get project vdc quota %s/%s: %w", projectID, vdcID, err)
		}
		if !fits(pq.Limits, pq.Used, 0, 0, pq.PerTypeCaps, pq.PerTypeUsed, request, jobType) {
			return nil
		}

		vdc.Used = vdc.Used.Add(request)
		if err := tx.UpdateVDC(vdc); err != nil {
			return err
		}

		pq.Used = pq.Used.Add(request)
		if pq.PerTypeUsed == nil {
			pq.PerTypeUsed = map[types.JobType]int{}
		}
		pq.PerTypeUsed[jobType]++
		if err := tx.UpsertProjectVDCQuota(pq); err != nil {
			return err
		}

		admitted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return admitted, nil
}

// Release decrements both the VDC and ProjectVDCQuota counters,
// saturating at zero, tolerating a double-release.
func (m *VDCManager) Release(projectID, vdcID string, request resources.Resources, jobType types.JobType) error {
	return m.store.WithTx(func(tx storage.Store) error {
		vdc, err := tx.GetVDC(vdcID)
		if errors.Is(err, pkgerrs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("quota: get vdc %s: %w", vdcID, err)
		}
		vdc.Used = vdc.Used.Sub(request)
		if err := tx.UpdateVDC(vdc); err != nil {
			return err
		}

		pq, err := tx.GetProjectVDCQuota(projectID, vdcID)
		if errors.Is(err, pkgerrs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("quota: get project vdc quota %s/%s: %w", projectID, vdcID, err)
		}
		pq.Used = pq.Used.Sub(request)
		if pq.PerTypeUsed != nil && pq.PerTypeUsed[jobType] > 0 {
			pq.PerTypeUsed[jobType]--
		}
		return tx.UpsertProjectVDCQuota(pq)
	})
}
