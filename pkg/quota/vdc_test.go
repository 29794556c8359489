package quota

import (
	"testing"

	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupVDC(t *testing.T, store storage.Store) {
	t.Helper()
	require.NoError(t, store.CreateCluster(&types.Cluster{
		ID:       "cluster-1",
		VDCID:    "vdc-1",
		Capacity: resources.New(16, 32, 2),
	}))
	require.NoError(t, store.CreateVDC(&types.VDC{
		ID:         "vdc-1",
		ClusterIDs: []string{"cluster-1"},
	}))
	require.NoError(t, store.UpsertProjectVDCQuota(&types.ProjectVDCQuota{
		ProjectID: "proj-1",
		VDCID:     "vdc-1",
		Limits:    resources.New(8, 16, 1),
	}))
}

func TestVDCManager_ReserveWithinBothTiers(t *testing.T) {
	store := storage.NewMemoryStore()
	setupVDC(t, store)
	m := NewVDCManager(store)

	ok, err := m.Reserve("proj-1", "vdc-1", resources.New(4, 8, 1), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok)

	vdc, err := store.GetVDC("vdc-1")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, vdc.Used.CPUFloat(), 1e-6)

	pq, err := store.GetProjectVDCQuota("proj-1", "vdc-1")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, pq.Used.CPUFloat(), 1e-6)
}

func TestVDCManager_RejectsWhenProjectTierExceeded(t *testing.T) {
	store := storage.NewMemoryStore()
	setupVDC(t, store)
	m := NewVDCManager(store)

	// Project's VDC allocation is capped at 8 CPU; VDC itself has 16.
	ok, err := m.Reserve("proj-1", "vdc-1", resources.New(10, 8, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.False(t, ok, "request exceeds the project's ProjectVDCQuota even though the VDC has room")
}

func TestVDCManager_RejectsWhenVDCTierExceeded(t *testing.T) {
	store := storage.NewMemoryStore()
	setupVDC(t, store)
	require.NoError(t, store.UpsertProjectVDCQuota(&types.ProjectVDCQuota{
		ProjectID: "proj-1",
		VDCID:     "vdc-1",
		Limits:    resources.New(100, 100, 10),
	}))
	m := NewVDCManager(store)

	ok, err := m.Reserve("proj-1", "vdc-1", resources.New(100, 8, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.False(t, ok, "request exceeds the VDC's own summed cluster capacity")
}

func TestVDCManager_ReleaseSaturatesAtZero(t *testing.T) {
	store := storage.NewMemoryStore()
	setupVDC(t, store)
	m := NewVDCManager(store)

	require.NoError(t, m.Release("proj-1", "vdc-1", resources.New(100, 100, 100), types.JobTypeTraining))

	vdc, err := store.GetVDC("vdc-1")
	require.NoError(t, err)
	assert.True(t, vdc.Used.IsZero())

	pq, err := store.GetProjectVDCQuota("proj-1", "vdc-1")
	require.NoError(t, err)
	assert.True(t, pq.Used.IsZero())
}

func TestVDCManager_OvercommitAllowsBeyondRawCapacity(t *testing.T) {
	store := storage.NewMemoryStore()
	setupVDC(t, store)
	vdc, err := store.GetVDC("vdc-1")
	require.NoError(t, err)
	vdc.Overcommit = types.OvercommitPolicy{Enabled: true, Factor: 2}
	require.NoError(t, store.UpdateVDC(vdc))
	require.NoError(t, store.UpsertProjectVDCQuota(&types.ProjectVDCQuota{
		ProjectID: "proj-1",
		VDCID:     "vdc-1",
		Limits:    resources.New(100, 100, 10),
	}))

	ok, err := NewVDCManager(store).Reserve("proj-1", "vdc-1", resources.New(20, 8, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok, "raw capacity is 16 CPU, but a 2x overcommit factor should admit a 20 CPU request")
}
