package driver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlurmDriver_SubmitTrainingJob(t *testing.T) {
	var captured slurmJobSpec
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/slurm/v0.0.40/job/submit", r.URL.Path)
		assert.Equal(t, "svc", r.Header.Get("X-SLURM-USER-NAME"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_id": 42}`))
	}))
	defer srv.Close()

	d := NewSlurmDriver(srv.URL, "svc", "tok", "compute", "ml-team", "", 5*time.Second, 5*time.Second)
	job := &types.Job{
		ID:   "job-1",
		Name: "train-run",
		ExecutorConfig: map[string]any{
			"command": []any{"python", "train.py"},
			"time":    "02:30:00",
		},
		JobType: types.JobTypeTraining,
	}

	externalID, err := d.Submit(job)
	require.NoError(t, err)
	assert.Equal(t, "42", externalID)
	assert.EqualValues(t, 150, captured.Job["time_limit"])
}

func TestSlurmDriver_SubmitRejectsMissingScriptAndCommand(t *testing.T) {
	d := NewSlurmDriver("http://unused.invalid", "svc", "tok", "compute", "", "", 5*time.Second, 5*time.Second)
	job := &types.Job{ID: "job-1", Name: "train-run", JobType: types.JobTypeTraining, ExecutorConfig: map[string]any{}}

	_, err := d.Submit(job)
	require.Error(t, err)
}

func TestSlurmDriver_StatusMapsStates(t *testing.T) {
	cases := map[string]types.JobStatus{
		"PENDING":   types.JobStatusPending,
		"RUNNING":   types.JobStatusRunning,
		"COMPLETED": types.JobStatusSucceeded,
		"FAILED":    types.JobStatusFailed,
		"CANCELLED": types.JobStatusCancelled,
		"TIMEOUT":   types.JobStatusTimeout,
	}
	for state, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(slurmJobStatusResponse{Jobs: []slurmJobInfo{{JobState: state}}})
		}))
		d := NewSlurmDriver(srv.URL, "svc", "tok", "compute", "", "", 5*time.Second, 5*time.Second)

		got, err := d.Status("42")
		require.NoError(t, err)
		assert.Equal(t, want, got, state)
		srv.Close()
	}
}

func TestSlurmDriver_StatusNotFoundMeansSucceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewSlurmDriver(srv.URL, "svc", "tok", "compute", "", "", 5*time.Second, 5*time.Second)
	got, err := d.Status("42")
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusSucceeded, got, "Slurm purges completed jobs from the live queue")
}

func TestSlurmDriver_CancelTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewSlurmDriver(srv.URL, "svc", "tok", "compute", "", "", 5*time.Second, 5*time.Second)
	require.NoError(t, d.Cancel("42"))
}

func TestSlurmDriver_SubmitClassifies4xxAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	d := NewSlurmDriver(srv.URL, "svc", "tok", "compute", "ml-team", "", 5*time.Second, 5*time.Second)
	job := &types.Job{
		ID:             "job-1",
		Name:           "train-run",
		JobType:        types.JobTypeTraining,
		ExecutorConfig: map[string]any{"command": []any{"python", "train.py"}},
	}

	_, err := d.Submit(job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrDriverPermanent))
}

func TestSlurmDriver_SubmitClassifies5xxAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewSlurmDriver(srv.URL, "svc", "tok", "compute", "ml-team", "", 5*time.Second, 5*time.Second)
	job := &types.Job{
		ID:             "job-1",
		Name:           "train-run",
		JobType:        types.JobTypeTraining,
		ExecutorConfig: map[string]any{"command": []any{"python", "train.py"}},
	}

	_, err := d.Submit(job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrDriverTransient))
}

func TestSlurmDriver_SubmitClassifiesUnreachableHostAsTransient(t *testing.T) {
	d := NewSlurmDriver("http://unused.invalid", "svc", "tok", "compute", "ml-team", "", 500*time.Millisecond, 500*time.Millisecond)
	job := &types.Job{
		ID:             "job-1",
		Name:           "train-run",
		JobType:        types.JobTypeTraining,
		ExecutorConfig: map[string]any{"command": []any{"python", "train.py"}},
	}

	_, err := d.Submit(job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrDriverTransient))
}

func TestSlurmDriver_CancelTreats409AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	d := NewSlurmDriver(srv.URL, "svc", "tok", "compute", "", "", 5*time.Second, 5*time.Second)
	require.NoError(t, d.Cancel("42"))
}

func TestSlurmDriver_LogsReturnsPathHint(t *testing.T) {
	d := NewSlurmDriver("http://unused.invalid", "svc", "tok", "compute", "", "/logs", 5*time.Second, 5*time.Second)
	got, err := d.Logs("42")
	require.NoError(t, err)
	assert.Equal(t, "/logs/42.out", got)
}

func TestParseTimeLimit(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"UNLIMITED", 0},
		{"02:30:00", 150},
		{"05:15", 5},
		{"45", 45},
	}
	for _, c := range cases {
		got, err := parseTimeLimit(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseMemoryMB(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"512MB", 512},
		{"4GB", 4096},
		{"1TB", 1024 * 1024},
		{"2048", 2048},
	}
	for _, c := range cases {
		got, err := parseMemoryMB(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}
