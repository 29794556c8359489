package driver

import (
	"errors"
	"testing"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRequestPrefersJobRequest(t *testing.T) {
	job := &types.Job{Request: resources.New(2, 4, 1)}
	r, err := ExtractRequest(job)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, r.CPUFloat(), 1e-6)
}

func TestExtractRequestFallsBackToExecutorConfig(t *testing.T) {
	job := &types.Job{
		ExecutorConfig: map[string]any{
			"resources": map[string]any{"cpu": "2", "memory": "4Gi", "gpu": "1"},
		},
	}
	r, err := ExtractRequest(job)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, r.CPUFloat(), 1e-6)
	assert.InDelta(t, 4.0, r.MemoryFloatGiB(), 0.01)
	assert.Equal(t, int64(1), r.GPUCount)
}

func TestExtractRequestNoConfigIsZero(t *testing.T) {
	r, err := ExtractRequest(&types.Job{})
	require.NoError(t, err)
	assert.True(t, r.IsZero())
}

func TestRequireConfigRejectsMissingKeys(t *testing.T) {
	job := &types.Job{ExecutorConfig: map[string]any{"image": "x"}}
	err := RequireConfig(job, "image", "command")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfigInvalid))
}

func TestRequireConfigRejectsNilConfig(t *testing.T) {
	err := RequireConfig(&types.Job{}, "image")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfigInvalid))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"My Training Run!!": "my-training-run",
		"already-ok":         "already-ok",
		"___":                "job",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in, 50))
	}
}

func TestSlugifyCapsLength(t *testing.T) {
	got := Slugify("a-very-long-job-name-that-exceeds-the-fifty-character-dns-label-limit", 10)
	assert.LessOrEqual(t, len(got), 10)
}

func TestExternalNameIncludesJobIDSuffix(t *testing.T) {
	job := &types.Job{ID: "abcdefgh1234", Name: "training-run"}
	name := ExternalName(job)
	assert.Contains(t, name, "abcdefgh")
	assert.LessOrEqual(t, len(name), 50)
}
