// Package driver translates a Job into a submission against a backend
// (Kubernetes or Slurm) and reports back on its lifecycle. Drivers are
// the only place backend-specific wire shapes live; everything above
// this package speaks only in terms of types.Job and JobStatus.
package driver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cuemby/jobctl/pkg/errs"
	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/types"
)

// Driver is the contract every backend implements. Submit is expected
// to be idempotent against a job already submitted under the same
// external id (see each driver's 409/already-exists handling).
type Driver interface {
	Submit(job *types.Job) (externalID string, err error)
	Status(externalID string) (types.JobStatus, error)
	Cancel(externalID string) error
	Logs(externalID string) (string, error)
	Metrics(externalID string) (map[string]any, error)
}

// NoPodsFoundSentinel is the stable text the Kubernetes driver returns
// from Logs when a job's pod list is empty.
const NoPodsFoundSentinel = "no pods found"

// ExtractRequest resolves the resource request a driver should submit
// for job: Job.Request if it carries a non-zero value, otherwise a
// fallback parsed from executor_config's "resources" block
// (cpu/memory/gpu string fields), per §4.A.
func ExtractRequest(job *types.Job) (resources.Resources, error) {
	if !job.Request.IsZero() {
		return job.Request, nil
	}

	raw, _ := job.ExecutorConfig["resources"].(map[string]any)
	if raw == nil {
		return resources.Zero(), nil
	}

	r := resources.Zero()
	if v, ok := stringField(raw, "cpu"); ok {
		q, err := resources.ParseCPU(v)
		if err != nil {
			return resources.Resources{}, err
		}
		r.CPUCores = q
	}
	if v, ok := stringField(raw, "memory"); ok {
		q, err := resources.ParseMemory(v)
		if err != nil {
			return resources.Resources{}, err
		}
		r.MemoryGiB = q
	}
	if v, ok := stringField(raw, "gpu"); ok {
		n, err := resources.ParseGPU(v)
		if err != nil {
			return resources.Resources{}, err
		}
		r.GPUCount = n
	}
	return r, nil
}

// RequireConfig validates that job.ExecutorConfig is non-nil and
// contains every key in required, wrapping errs.ErrConfigInvalid
// otherwise.
func RequireConfig(job *types.Job, required ...string) error {
	if job.ExecutorConfig == nil {
		return fmt.Errorf("job %s: executor_config is required: %w", job.ID, errs.ErrConfigInvalid)
	}
	for _, key := range required {
		if _, ok := job.ExecutorConfig[key]; !ok {
			return fmt.Errorf("job %s: executor_config.%s is required: %w", job.ID, key, errs.ErrConfigInvalid)
		}
	}
	return nil
}

var dns1123Disallowed = regexp.MustCompile(`[^a-z0-9-]+`)

// Slugify renders name as a DNS-1123 label: lowercased, non-alphanumeric
// runs collapsed to a single '-', trimmed of leading/trailing '-', and
// capped at maxLen.
func Slugify(name string, maxLen int) string {
	s := strings.ToLower(name)
	s = dns1123Disallowed.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "job"
	}
	if len(s) > maxLen {
		s = strings.Trim(s[:maxLen], "-")
	}
	return s
}

// ExternalName builds the Kubernetes-facing object name: slugify(name)
// capped to leave room for a short unique suffix, then '-' plus the
// job id's first 8 characters.
func ExternalName(job *types.Job) string {
	suffix := job.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	base := Slugify(job.Name, 50-len(suffix)-1)
	return base + "-" + suffix
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func stringSliceField(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringMapField(m map[string]any, key string) map[string]string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case map[string]string:
		return vv
	case map[string]any:
		out := make(map[string]string, len(vv))
		for k, e := range vv {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

func intField(m map[string]any, key string, fallback int) int {
	v, ok := m[key]
	if !ok {
		return fallback
	}
	switch vv := v.(type) {
	case int:
		return vv
	case int64:
		return int(vv)
	case float64:
		return int(vv)
	default:
		return fallback
	}
}
