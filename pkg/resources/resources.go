// Package resources implements the scheduler's resource value type:
// a (cpu_cores, memory_gib, gpu_count) triple with componentwise
// arithmetic and parsers for the backend-native unit strings used by
// Kubernetes and Slurm.
//
// CPU and memory are kept as k8s.io/apimachinery resource.Quantity
// values so that millicore/byte precision survives arithmetic and
// round-trips through the same decimal forms Kubernetes itself emits
// (matching the convention used by karpenter's and kueue's quota
// types). GPU count is a plain non-negative integer.
package resources

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Resources is the componentwise resource triple used throughout the
// scheduler for requests, capacities, and quota limits/usage.
type Resources struct {
	CPUCores  resource.Quantity
	MemoryGiB resource.Quantity
	GPUCount  int64
}

// Zero returns the additive identity.
func Zero() Resources {
	return Resources{
		CPUCores:  resource.MustParse("0"),
		MemoryGiB: resource.MustParse("0"),
		GPUCount:  0,
	}
}

// New builds a Resources triple from float cores, float GiB, and an
// integer GPU count. It is the usual constructor for test fixtures and
// for code that already has the three numbers in hand.
func New(cpuCores, memoryGiB float64, gpuCount int64) Resources {
	return Resources{
		CPUCores:  *resource.NewMilliQuantity(int64(cpuCores*1000), resource.DecimalSI),
		MemoryGiB: *resource.NewMilliQuantity(int64(memoryGiB*1000), resource.DecimalSI),
		GPUCount:  gpuCount,
	}
}

// Add returns r + other, componentwise.
func (r Resources) Add(other Resources) Resources {
	cpu := r.CPUCores.DeepCopy()
	cpu.Add(other.CPUCores)
	mem := r.MemoryGiB.DeepCopy()
	mem.Add(other.MemoryGiB)
	return Resources{
		CPUCores:  cpu,
		MemoryGiB: mem,
		GPUCount:  r.GPUCount + other.GPUCount,
	}
}

// Sub returns r - other, componentwise, saturating every component at
// zero. This is the saturation behavior quota release requires: a
// double-release or an over-release never drives used counters negative.
func (r Resources) Sub(other Resources) Resources {
	cpu := r.CPUCores.DeepCopy()
	cpu.Sub(other.CPUCores)
	if cpu.Sign() < 0 {
		cpu = resource.MustParse("0")
	}
	mem := r.MemoryGiB.DeepCopy()
	mem.Sub(other.MemoryGiB)
	if mem.Sign() < 0 {
		mem = resource.MustParse("0")
	}
	gpu := r.GPUCount - other.GPUCount
	if gpu < 0 {
		gpu = 0
	}
	return Resources{CPUCores: cpu, MemoryGiB: mem, GPUCount: gpu}
}

// Mul returns r scaled by a non-negative factor.
func (r Resources) Mul(factor float64) Resources {
	cpu := r.CPUCores.AsApproximateFloat64() * factor
	mem := r.MemoryGiB.AsApproximateFloat64() * factor
	gpu := int64(float64(r.GPUCount) * factor)
	return New(cpu, mem, gpu)
}

// Leq reports whether r is componentwise less than or equal to other.
func (r Resources) Leq(other Resources) bool {
	return r.CPUCores.Cmp(other.CPUCores) <= 0 &&
		r.MemoryGiB.Cmp(other.MemoryGiB) <= 0 &&
		r.GPUCount <= other.GPUCount
}

// Fits reports whether request fits within limit: componentwise Leq.
func Fits(request, limit Resources) bool {
	return request.Leq(limit)
}

// IsZero reports whether every component is zero.
func (r Resources) IsZero() bool {
	return r.CPUCores.Sign() == 0 && r.MemoryGiB.Sign() == 0 && r.GPUCount == 0
}

// CPUFloat returns the CPU component as a float64 number of cores.
func (r Resources) CPUFloat() float64 {
	return r.CPUCores.AsApproximateFloat64()
}

// MemoryFloatGiB returns the memory component as a float64 number of GiB.
func (r Resources) MemoryFloatGiB() float64 {
	return r.MemoryGiB.AsApproximateFloat64()
}

// String renders a canonical human-readable form, e.g. "2 cpu, 4Gi mem, 1 gpu".
func (r Resources) String() string {
	return fmt.Sprintf("%s cpu, %sGi mem, %d gpu", r.CPUCores.String(), r.MemoryGiB.String(), r.GPUCount)
}

// ParseResourceError reports a failure to parse a backend-native
// resource unit string.
type ParseResourceError struct {
	Kind  string // "cpu", "memory", or "gpu"
	Value string
	Cause error
}

func (e *ParseResourceError) Error() string {
	return fmt.Sprintf("ParseResource: invalid %s value %q: %v", e.Kind, e.Value, e.Cause)
}

func (e *ParseResourceError) Unwrap() error { return e.Cause }

// ParseCPU parses a Kubernetes-style CPU quantity string ("2", "2000m",
// "0.5") into a number of cores.
func ParseCPU(s string) (resource.Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return resource.Quantity{}, &ParseResourceError{Kind: "cpu", Value: s, Cause: fmt.Errorf("empty value")}
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return resource.Quantity{}, &ParseResourceError{Kind: "cpu", Value: s, Cause: err}
	}
	return q, nil
}

// ParseMemory parses a backend memory string with a Ki/Mi/Gi/Ti (or
// plain K/M/G/T decimal, or Slurm-style "4GB"/"512MB") suffix into a
// resource.Quantity denominated in GiB-equivalent binary units. The
// returned Quantity's value, interpreted via AsApproximateFloat64, is
// the number of GiB.
func ParseMemory(s string) (resource.Quantity, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return resource.Quantity{}, &ParseResourceError{Kind: "memory", Value: s, Cause: fmt.Errorf("empty value")}
	}

	normalized, isBinary, err := normalizeMemoryUnit(raw)
	if err != nil {
		return resource.Quantity{}, &ParseResourceError{Kind: "memory", Value: s, Cause: err}
	}

	q, err := resource.ParseQuantity(normalized)
	if err != nil {
		return resource.Quantity{}, &ParseResourceError{Kind: "memory", Value: s, Cause: err}
	}

	gib := q.AsApproximateFloat64() / (1024 * 1024 * 1024)
	if !isBinary {
		// Already byte-denominated via resource.ParseQuantity's decimal
		// SI suffixes (k/M/G/T); the GiB conversion above covers both.
	}
	return *resource.NewMilliQuantity(int64(gib*1000), resource.DecimalSI), nil
}

// normalizeMemoryUnit rewrites Slurm-style suffixes (KB, MB, GB, TB)
// and Kubernetes binary suffixes (Ki, Mi, Gi, Ti) into a byte-valued
// quantity string resource.ParseQuantity accepts, and reports whether
// the input was already byte-denominated (Ki/Mi/Gi/Ti) as opposed to
// Slurm's decimal-letter shorthand (KB/MB/GB/TB, which Slurm documents
// as binary multiples despite the decimal-looking suffix).
func normalizeMemoryUnit(s string) (string, bool, error) {
	upper := s
	suffixes := []struct {
		suffix     string
		multiplier int64
		binary     bool
	}{
		{"Ti", 1 << 40, true},
		{"Gi", 1 << 30, true},
		{"Mi", 1 << 20, true},
		{"Ki", 1 << 10, true},
		{"TB", 1 << 40, false},
		{"GB", 1 << 30, false},
		{"MB", 1 << 20, false},
		{"KB", 1 << 10, false},
	}
	for _, suf := range suffixes {
		if strings.HasSuffix(upper, suf.suffix) {
			numPart := strings.TrimSuffix(upper, suf.suffix)
			f, err := strconv.ParseFloat(strings.TrimSpace(numPart), 64)
			if err != nil {
				return "", false, err
			}
			bytes := int64(f * float64(suf.multiplier))
			return strconv.FormatInt(bytes, 10), suf.binary, nil
		}
	}
	// No recognized suffix: treat as a bare decimal SI quantity
	// (bytes, or Kubernetes-style k/M/G/T), let resource.ParseQuantity
	// interpret it directly.
	return s, false, nil
}

// ParseGPU parses a GPU resource string ("gpu:2", "2") into a count.
func ParseGPU(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, &ParseResourceError{Kind: "gpu", Value: s, Cause: err}
	}
	if n < 0 {
		return 0, &ParseResourceError{Kind: "gpu", Value: s, Cause: fmt.Errorf("negative gpu count")}
	}
	return n, nil
}

// ParseTRES parses Slurm's TRES-style resource string
// ("cpu=4,mem=16G,gres/gpu=2") into a Resources triple. Unknown keys
// are ignored; it is used by the Slurm quota provider to read
// association limits.
func ParseTRES(s string) (Resources, error) {
	r := Zero()
	s = strings.TrimSpace(s)
	if s == "" {
		return r, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		switch key {
		case "cpu":
			q, err := ParseCPU(val)
			if err != nil {
				return Resources{}, err
			}
			r.CPUCores = q
		case "mem":
			q, err := ParseMemory(val)
			if err != nil {
				return Resources{}, err
			}
			r.MemoryGiB = q
		case "gres/gpu":
			n, err := ParseGPU(val)
			if err != nil {
				return Resources{}, err
			}
			r.GPUCount = n
		}
	}
	return r, nil
}
