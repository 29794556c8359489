package quota

import (
	"errors"
	"fmt"

	pkgerrs "github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
)

// LocalProvider is backed by the ProjectQuota table: warren's
// convention of one authoritative row per tenant, re-read and
// rewritten inside a single storage transaction so Reserve is
// atomic.
type LocalProvider struct {
	store storage.Store
}

// NewLocalProvider returns a Provider backed by store.
func NewLocalProvider(store storage.Store) *LocalProvider {
	return &LocalProvider{store: store}
}

func (p *LocalProvider) GetQuota(projectID string) (*Snapshot, error) {
	q, err := p.store.GetProjectQuota(projectID)
	if errors.Is(err, pkgerrs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quota: get project quota %s: %w", projectID, err)
	}
	return snapshotFromProjectQuota(q), nil
}

func (p *LocalProvider) Check(projectID string, request resources.Resources, jobType types.JobType) (bool, error) {
	q, err := p.store.GetProjectQuota(projectID)
	if errors.Is(err, pkgerrs.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("quota: check project quota %s: %w", projectID, err)
	}
	if !q.EnforceQuota {
		return true, nil
	}
	return fits(q.Limits, q.Used, q.MaxConcurrent, q.UsedConcurrent, q.PerTypeCaps, q.PerTypeUsed, request, jobType), nil
}

// Reserve re-reads the ProjectQuota row, tests the same conditions as
// Check, and on success increments Used, UsedConcurrent, and the
// per-type counter — all inside one storage transaction, so no other
// Reserve can observe a half-applied update.
func (p *LocalProvider) Reserve(projectID string, request resources.Resources, jobType types.JobType) (bool, error) {
	admitted := false
	err := p.store.WithTx(func(tx storage.Store) error {
		q, err := tx.GetProjectQuota(projectID)
		if errors.Is(err, pkgerrs.ErrNotFound) {
			// No quota row configured for this project: unconstrained.
			admitted = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("quota: get project quota %s: %w", projectID, err)
		}

		if q.EnforceQuota && !fits(q.Limits, q.Used, q.MaxConcurrent, q.UsedConcurrent, q.PerTypeCaps, q.PerTypeUsed, request, jobType) {
			admitted = false
			return nil
		}

		q.Used = q.Used.Add(request)
		q.UsedConcurrent++
		if q.PerTypeUsed == nil {
			q.PerTypeUsed = map[types.JobType]int{}
		}
		q.PerTypeUsed[jobType]++
		admitted = true
		return tx.UpsertProjectQuota(q)
	})
	if err != nil {
		return false, err
	}
	return admitted, nil
}

// Release saturates every counter at zero so a double-release (e.g.
// a reconcile retry) cannot drive usage negative.
func (p *LocalProvider) Release(projectID string, request resources.Resources, jobType types.JobType) error {
	return p.store.WithTx(func(tx storage.Store) error {
		q, err := tx.GetProjectQuota(projectID)
		if errors.Is(err, pkgerrs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("quota: get project quota %s: %w", projectID, err)
		}

		q.Used = q.Used.Sub(request)
		if q.UsedConcurrent > 0 {
			q.UsedConcurrent--
		}
		if q.PerTypeUsed != nil && q.PerTypeUsed[jobType] > 0 {
			q.PerTypeUsed[jobType]--
		}
		return tx.UpsertProjectQuota(q)
	})
}

func (p *LocalProvider) Sync() error { return nil }

func snapshotFromProjectQuota(q *types.ProjectQuota) *Snapshot {
	return &Snapshot{
		Limits:         q.Limits,
		Used:           q.Used,
		MaxConcurrent:  q.MaxConcurrent,
		UsedConcurrent: q.UsedConcurrent,
		PerTypeCaps:    q.PerTypeCaps,
		PerTypeUsed:    q.PerTypeUsed,
	}
}
