package quota

import (
	"testing"

	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProvider_NoQuotaConfiguredIsUnconstrained(t *testing.T) {
	store := storage.NewMemoryStore()
	p := NewLocalProvider(store)

	ok, err := p.Check("proj-unconfigured", resources.New(2, 4, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Reserve("proj-unconfigured", resources.New(2, 4, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalProvider_ReserveRespectsLimits(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertProjectQuota(&types.ProjectQuota{
		ProjectID:     "proj-1",
		Limits:        resources.New(4, 8, 0),
		MaxConcurrent: 2,
		EnforceQuota:  true,
	}))
	p := NewLocalProvider(store)

	ok, err := p.Reserve("proj-1", resources.New(2, 4, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Reserve("proj-1", resources.New(2, 4, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Reserve("proj-1", resources.New(1, 1, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.False(t, ok, "third reservation should fail: used equals limits already")

	q, err := store.GetProjectQuota("proj-1")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, q.Used.CPUFloat(), 1e-6)
	assert.Equal(t, 2, q.UsedConcurrent)
}

func TestLocalProvider_PerTypeCap(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertProjectQuota(&types.ProjectQuota{
		ProjectID:    "proj-1",
		Limits:       resources.New(100, 100, 0),
		PerTypeCaps:  types.PerTypeCaps{types.JobTypeInference: 1},
		EnforceQuota: true,
	}))
	p := NewLocalProvider(store)

	ok, err := p.Reserve("proj-1", resources.New(1, 1, 0), types.JobTypeInference)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Reserve("proj-1", resources.New(1, 1, 0), types.JobTypeInference)
	require.NoError(t, err)
	assert.False(t, ok, "per-type cap of 1 should reject the second inference job")

	ok, err = p.Reserve("proj-1", resources.New(1, 1, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok, "training jobs are uncapped and should still be admitted")
}

func TestLocalProvider_ReleaseSaturatesAtZero(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertProjectQuota(&types.ProjectQuota{
		ProjectID:    "proj-1",
		Limits:       resources.New(4, 8, 0),
		EnforceQuota: true,
	}))
	p := NewLocalProvider(store)

	require.NoError(t, p.Release("proj-1", resources.New(2, 4, 0), types.JobTypeTraining))

	q, err := store.GetProjectQuota("proj-1")
	require.NoError(t, err)
	assert.True(t, q.Used.IsZero(), "releasing more than reserved must saturate at zero, not go negative")
	assert.Equal(t, 0, q.UsedConcurrent)
}

func TestLocalProvider_EnforceQuotaFalseAlwaysAdmits(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertProjectQuota(&types.ProjectQuota{
		ProjectID:    "proj-1",
		Limits:       resources.New(1, 1, 0),
		EnforceQuota: false,
	}))
	p := NewLocalProvider(store)

	ok, err := p.Reserve("proj-1", resources.New(1000, 1000, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok, "disabled enforcement still updates counters but never rejects")
}
