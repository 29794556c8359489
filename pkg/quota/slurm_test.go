package quota

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlurmProvider_GetQuotaParsesGrpTRES(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/slurm/v0.0.40/accounts/project-proj-1", r.URL.Path)
		assert.Equal(t, "svc-scheduler", r.Header.Get("X-SLURM-USER-NAME"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accounts":[{"name":"project-proj-1","grp_tres":"cpu=8,mem=32G,gres/gpu=2"}]}`))
	}))
	defer srv.Close()

	p := NewSlurmProvider(srv.URL, "svc-scheduler", "tok", "project-")

	snap, err := p.GetQuota("proj-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.InDelta(t, 8.0, snap.Limits.CPUFloat(), 1e-6)
	assert.Equal(t, int64(2), snap.Limits.GPUCount)
}

func TestSlurmProvider_GetQuotaMissingAccountReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewSlurmProvider(srv.URL, "svc-scheduler", "tok", "project-")

	snap, err := p.GetQuota("proj-missing")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSlurmProvider_CheckReflectsAccountExistence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accounts":[{"name":"project-proj-1","grp_tres":"cpu=8"}]}`))
	}))
	defer srv.Close()

	p := NewSlurmProvider(srv.URL, "svc-scheduler", "tok", "project-")

	ok, err := p.Check("proj-1", resources.New(1, 1, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSlurmProvider_ReserveAndReleaseAreNoOps(t *testing.T) {
	p := NewSlurmProvider("http://unused.invalid", "svc-scheduler", "tok", "project-")

	ok, err := p.Reserve("proj-1", resources.New(1, 1, 0), types.JobTypeTraining)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.Release("proj-1", resources.New(1, 1, 0), types.JobTypeTraining))
}
