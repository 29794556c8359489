package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/types"
)

// SlurmDriver submits jobs to the Slurm REST API (v0.0.40) as sbatch
// scripts. Every request carries X-SLURM-USER-NAME/X-SLURM-USER-TOKEN,
// set as given from the userName and userToken passed to
// NewSlurmDriver; a combined "user:token" value is not split.
type SlurmDriver struct {
	baseURL          string
	userName         string
	userToken        string
	defaultPartition string
	defaultAccount   string
	logDir           string
	readTimeout      time.Duration
	submitTimeout    time.Duration
	httpClient       *http.Client
}

// NewSlurmDriver builds a driver against the Slurm REST API. readTimeout
// bounds Status/Cancel/Metrics calls; submitTimeout bounds Submit, which
// sbatch can take longer to answer under scheduler load. Both come from
// config.Config.DriverReadTimeout/DriverSubmitTimeout.
func NewSlurmDriver(baseURL, userName, userToken, defaultPartition, defaultAccount, logDir string, readTimeout, submitTimeout time.Duration) *SlurmDriver {
	if logDir == "" {
		logDir = "/var/log/slurm/jobs"
	}
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	if submitTimeout <= 0 {
		submitTimeout = 30 * time.Second
	}
	client := &http.Client{Timeout: submitTimeout}
	if readTimeout > submitTimeout {
		client.Timeout = readTimeout
	}
	return &SlurmDriver{
		baseURL:          baseURL,
		userName:         userName,
		userToken:        userToken,
		defaultPartition: defaultPartition,
		defaultAccount:   defaultAccount,
		logDir:           logDir,
		readTimeout:      readTimeout,
		submitTimeout:    submitTimeout,
		httpClient:       client,
	}
}

type slurmJobSpec struct {
	Job    map[string]any `json:"job"`
	Script string         `json:"script"`
}

type slurmSubmitResponse struct {
	JobID json.Number `json:"job_id"`
}

type slurmJobStatusResponse struct {
	Jobs []slurmJobInfo `json:"jobs"`
}

type slurmJobInfo struct {
	JobState string `json:"job_state"`
}

func (d *SlurmDriver) Submit(job *types.Job) (string, error) {
	var spec slurmJobSpec
	var err error
	switch job.JobType {
	case types.JobTypeTraining:
		spec, err = d.buildTrainingSpec(job)
	case types.JobTypeInference:
		spec, err = d.buildInferenceSpec(job)
	case types.JobTypeWorkflow:
		spec, err = d.buildWorkflowSpec(job)
	default:
		return "", fmt.Errorf("slurm driver: unsupported job type %q", job.JobType)
	}
	if err != nil {
		return "", err
	}

	var resp slurmSubmitResponse
	if _, err := d.requestWithStatus(http.MethodPost, "/slurm/v0.0.40/job/submit", spec, &resp, d.submitTimeout); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("slurm driver: submit response missing job_id")
	}
	return resp.JobID.String(), nil
}

func (d *SlurmDriver) buildTrainingSpec(job *types.Job) (slurmJobSpec, error) {
	if err := RequireConfig(job); err != nil {
		return slurmJobSpec{}, err
	}
	cfg := job.ExecutorConfig
	script, err := buildSbatchScript(cfg)
	if err != nil {
		return slurmJobSpec{}, fmt.Errorf("job %s: %w", job.ID, err)
	}

	timeLimit, err := parseTimeLimit(stringOr(cfg, "time", "01:00:00"))
	if err != nil {
		return slurmJobSpec{}, err
	}

	spec := map[string]any{
		"name":                       job.Name,
		"partition":                  stringOr(cfg, "partition", d.defaultPartition),
		"nodes":                      intField(cfg, "nodes", 1),
		"ntasks_per_node":            intField(cfg, "ntasks_per_node", 1),
		"cpus_per_task":              intField(cfg, "cpus_per_task", 1),
		"time_limit":                 timeLimit,
		"standard_output":            stringOr(cfg, "output", fmt.Sprintf("%s/%s-%%j.out", d.logDir, job.ID)),
		"standard_error":             stringOr(cfg, "error", fmt.Sprintf("%s/%s-%%j.err", d.logDir, job.ID)),
		"current_working_directory":  stringOr(cfg, "working_dir", "/scratch"),
		"environment":                stringMapField(cfg, "env"),
	}
	applyResources(spec, job, cfg)
	if account := stringOr(cfg, "account", d.defaultAccount); account != "" {
		spec["account"] = account
	}
	return slurmJobSpec{Job: spec, Script: script}, nil
}

func (d *SlurmDriver) buildInferenceSpec(job *types.Job) (slurmJobSpec, error) {
	cfg := job.ExecutorConfig
	script, ok := stringField(cfg, "script")
	if !ok {
		var err error
		script, err = buildInferenceScript(cfg)
		if err != nil {
			return slurmJobSpec{}, fmt.Errorf("job %s: %w", job.ID, err)
		}
	}

	timeLimit, err := parseTimeLimit(stringOr(cfg, "time", "UNLIMITED"))
	if err != nil {
		return slurmJobSpec{}, err
	}

	spec := map[string]any{
		"name":            job.Name + "-inference",
		"partition":       stringOr(cfg, "partition", d.defaultPartition),
		"nodes":           intField(cfg, "nodes", 1),
		"ntasks":          intField(cfg, "ntasks", 1),
		"cpus_per_task":   intField(cfg, "cpus_per_task", 4),
		"time_limit":      timeLimit,
		"standard_output": fmt.Sprintf("%s/inference-%s-%%j.out", d.logDir, job.ID),
		"standard_error":  fmt.Sprintf("%s/inference-%s-%%j.err", d.logDir, job.ID),
		"environment":     stringMapField(cfg, "env"),
	}
	applyResources(spec, job, cfg)
	return slurmJobSpec{Job: spec, Script: script}, nil
}

func (d *SlurmDriver) buildWorkflowSpec(job *types.Job) (slurmJobSpec, error) {
	if err := RequireConfig(job, "templates"); err != nil {
		return slurmJobSpec{}, err
	}
	cfg := job.ExecutorConfig
	timeLimit, err := parseTimeLimit(stringOr(cfg, "time", "24:00:00"))
	if err != nil {
		return slurmJobSpec{}, err
	}

	spec := map[string]any{
		"name":            job.Name + "-workflow",
		"partition":       stringOr(cfg, "partition", d.defaultPartition),
		"nodes":           1,
		"ntasks":          1,
		"cpus_per_task":   2,
		"time_limit":      timeLimit,
		"standard_output": fmt.Sprintf("%s/workflow-%s-%%j.out", d.logDir, job.ID),
		"environment":     stringMapField(cfg, "env"),
	}
	return slurmJobSpec{Job: spec, Script: buildWorkflowScript(job, cfg)}, nil
}

// buildSbatchScript generates the inline sbatch script body: module
// loads, environment exports, a working-directory cd, then either a
// literal script or a joined command — one of which is required.
func buildSbatchScript(cfg map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	for _, module := range stringSliceField(cfg, "modules") {
		fmt.Fprintf(&b, "module load %s\n", module)
	}
	for k, v := range stringMapField(cfg, "env") {
		fmt.Fprintf(&b, "export %s=%s\n", k, v)
	}
	if wd, ok := stringField(cfg, "working_dir"); ok {
		fmt.Fprintf(&b, "cd %s\n", wd)
	}
	if script, ok := stringField(cfg, "script"); ok {
		b.WriteString(script)
		return b.String(), nil
	}
	if cmd := stringSliceField(cfg, "command"); len(cmd) > 0 {
		b.WriteString(strings.Join(cmd, " "))
		return b.String(), nil
	}
	return "", fmt.Errorf("executor_config must set either 'script' or 'command'")
}

func buildInferenceScript(cfg map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	for _, module := range stringSliceField(cfg, "modules") {
		fmt.Fprintf(&b, "module load %s\n", module)
	}
	cmd, ok := stringField(cfg, "command")
	if !ok {
		cmd = "python serve.py"
	}
	b.WriteString(cmd)
	return b.String(), nil
}

// buildWorkflowScript sequences each template's container command,
// matching the simplified sequential-execution controller used for the
// Kubernetes ConfigMap-backed workflow driver.
func buildWorkflowScript(job *types.Job, cfg map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#!/bin/bash\n# workflow controller: %s\n", job.Name)
	templates, _ := cfg["templates"].([]any)
	for i, t := range templates {
		tmpl, ok := t.(map[string]any)
		if !ok {
			continue
		}
		container, _ := tmpl["container"].(map[string]any)
		name, _ := stringField(tmpl, "name")
		fmt.Fprintf(&b, "echo 'running step %d: %s'\n", i+1, name)
		if container != nil {
			if cmd := stringSliceField(container, "command"); len(cmd) > 0 {
				b.WriteString(strings.Join(cmd, " "))
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func applyResources(spec map[string]any, job *types.Job, cfg map[string]any) {
	request, err := ExtractRequest(job)
	if err == nil && !request.IsZero() {
		if request.GPUCount > 0 {
			spec["gres"] = fmt.Sprintf("gpu:%d", request.GPUCount)
		}
		if request.MemoryFloatGiB() > 0 {
			spec["memory_per_node"] = int64(request.MemoryFloatGiB() * 1024)
		}
		return
	}
	if gpus := intField(cfg, "gpus_per_node", intField(cfg, "gpus", 0)); gpus > 0 {
		spec["gres"] = fmt.Sprintf("gpu:%d", gpus)
	}
	if mem, ok := stringField(cfg, "mem"); ok {
		if mb, err := parseMemoryMB(mem); err == nil {
			spec["memory_per_node"] = mb
		}
	}
}

// parseTimeLimit parses HH:MM:SS, MM:SS, or bare minutes into integer
// minutes; "UNLIMITED" means no limit (0).
func parseTimeLimit(s string) (int, error) {
	if strings.EqualFold(s, "UNLIMITED") {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 3:
		h, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("slurm driver: invalid time limit %q: %w", s, err)
		}
		m, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, fmt.Errorf("slurm driver: invalid time limit %q: %w", s, err)
		}
		return h*60 + m, nil
	case 2:
		// MM:SS; sub-minute precision is dropped since the result is
		// an integer minute count.
		m, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("slurm driver: invalid time limit %q: %w", s, err)
		}
		return m, nil
	default:
		m, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("slurm driver: invalid time limit %q: %w", s, err)
		}
		return m, nil
	}
}

// parseMemoryMB parses a Slurm-style "4GB"/"512MB"/"1TB" string (or a
// bare number, assumed MB) into integer megabytes.
func parseMemoryMB(s string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for suffix, mult := range map[string]int64{"GB": 1024, "TB": 1024 * 1024, "MB": 1} {
		if strings.HasSuffix(upper, suffix) {
			n, err := strconv.ParseInt(strings.TrimSuffix(upper, suffix), 10, 64)
			if err != nil {
				return 0, err
			}
			return n * mult, nil
		}
	}
	return strconv.ParseInt(upper, 10, 64)
}

func stringOr(cfg map[string]any, key, fallback string) string {
	if v, ok := stringField(cfg, key); ok {
		return v
	}
	return fallback
}

func (d *SlurmDriver) Status(externalID string) (types.JobStatus, error) {
	var resp slurmJobStatusResponse
	status, err := d.requestWithStatus(http.MethodGet, "/slurm/v0.0.40/job/"+externalID, nil, &resp, d.readTimeout)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return types.JobStatusSucceeded, nil
	}
	if len(resp.Jobs) == 0 {
		return types.JobStatusSucceeded, nil
	}
	return mapSlurmState(resp.Jobs[0].JobState), nil
}

func mapSlurmState(state string) types.JobStatus {
	switch strings.ToUpper(state) {
	case "PENDING":
		return types.JobStatusPending
	case "CONFIGURING":
		return types.JobStatusQueued
	case "RUNNING":
		return types.JobStatusRunning
	case "COMPLETED":
		return types.JobStatusSucceeded
	case "FAILED", "NODE_FAIL", "OUT_OF_MEMORY":
		return types.JobStatusFailed
	case "CANCELLED", "PREEMPTED":
		return types.JobStatusCancelled
	case "TIMEOUT":
		return types.JobStatusTimeout
	default:
		return types.JobStatusPending
	}
}

func (d *SlurmDriver) Cancel(externalID string) error {
	status, err := d.requestWithStatus(http.MethodDelete, "/slurm/v0.0.40/job/"+externalID, nil, nil, d.readTimeout)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	return nil
}

// Logs returns a deterministic path hint: the Slurm REST API does not
// stream log bodies, so operators retrieve them out-of-band from the
// cluster's filesystem.
func (d *SlurmDriver) Logs(externalID string) (string, error) {
	return fmt.Sprintf("%s/%s.out", d.logDir, externalID), nil
}

func (d *SlurmDriver) Metrics(externalID string) (map[string]any, error) {
	var resp slurmJobStatusResponse
	status, err := d.requestWithStatus(http.MethodGet, "/slurm/v0.0.40/job/"+externalID, nil, &resp, d.readTimeout)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || len(resp.Jobs) == 0 {
		return map[string]any{}, nil
	}
	return map[string]any{
		"job_id": externalID,
		"state":  resp.Jobs[0].JobState,
	}, nil
}

func (d *SlurmDriver) requestWithStatus(method, path string, body any, out any, timeout time.Duration) (int, error) {
	endpoint, err := url.JoinPath(d.baseURL, path)
	if err != nil {
		return 0, fmt.Errorf("slurm driver: build url: %w", err)
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("slurm driver: encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("slurm driver: build request: %w", err)
	}
	req.Header.Set("X-SLURM-USER-NAME", d.userName)
	req.Header.Set("X-SLURM-USER-TOKEN", d.userToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		// Unreachable host, connection reset, or client-timeout: the
		// request never got a verdict from Slurm, so it is expected to
		// resolve itself on retry.
		return 0, fmt.Errorf("slurm driver: %s %s: %w: %v", method, path, errs.ErrDriverTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusConflict {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("slurm driver: %s %s: %w: status %d", method, path, errs.ErrDriverTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("slurm driver: %s %s: %w: status %d", method, path, errs.ErrDriverPermanent, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("slurm driver: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("slurm driver: decode response for %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
