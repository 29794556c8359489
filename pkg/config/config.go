// Package config loads the scheduler process's configuration envelope:
// tick intervals, driver timeouts, default policy/provider selection,
// per-executor connection parameters, and the VDC routing toggle.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ExecutorConfig holds the connection parameters for one backend
// executor. Enabled is false when the executor has not been
// configured, in which case SubmitJob against it must fail with
// ErrExecutorUnavailable rather than attempting a connection.
type ExecutorConfig struct {
	Enabled bool `yaml:"enabled"`

	// Kubernetes
	Kubeconfig string `yaml:"kubeconfig,omitempty"`
	InCluster  bool   `yaml:"in_cluster,omitempty"`
	Namespace  string `yaml:"namespace,omitempty"`

	// Slurm. UserToken is a credential and is never logged; it is read
	// from this field only at driver construction time.
	RESTEndpoint string `yaml:"rest_endpoint,omitempty"`
	Account      string `yaml:"account,omitempty"`
	Partition    string `yaml:"partition,omitempty"`
	UserName     string `yaml:"user_name,omitempty"`
	UserToken    string `yaml:"user_token,omitempty"`
	LogDir       string `yaml:"log_dir,omitempty"`
}

// Config is the process-wide configuration envelope, loaded once at
// startup and passed down into the orchestrator, reconciler, quota
// providers, and drivers.
type Config struct {
	DataDir string `yaml:"data_dir"`

	SchedulingTickInterval time.Duration `yaml:"scheduling_tick_interval"`
	ReconcileTickInterval  time.Duration `yaml:"reconcile_tick_interval"`

	DriverReadTimeout   time.Duration `yaml:"driver_read_timeout"`
	DriverSubmitTimeout time.Duration `yaml:"driver_submit_timeout"`

	DefaultPolicy       string `yaml:"default_policy"`
	DefaultQuotaKind    string `yaml:"default_quota_kind"`
	DefaultSelectorKind string `yaml:"default_selector_kind"`

	VDCRoutingEnabled bool `yaml:"vdc_routing_enabled"`

	Executors map[string]ExecutorConfig `yaml:"executors"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration envelope's documented defaults:
// a 5s scheduling tick, 15s reconcile tick, 10s read / 30s submit
// driver timeouts, FIFO policy, local quota provider, VDC routing
// disabled, and no executors configured.
func Default() Config {
	return Config{
		DataDir:                "./jobctl-data",
		SchedulingTickInterval: 5 * time.Second,
		ReconcileTickInterval:  15 * time.Second,
		DriverReadTimeout:      10 * time.Second,
		DriverSubmitTimeout:    30 * time.Second,
		DefaultPolicy:          "fifo",
		DefaultQuotaKind:       "local",
		DefaultSelectorKind:    "resource_fit",
		VDCRoutingEnabled:      false,
		Executors:              map[string]ExecutorConfig{},
		LogLevel:               "info",
		LogJSON:                false,
		MetricsAddr:            "127.0.0.1:9090",
	}
}

// Load reads a YAML configuration file at path and merges it onto
// Default(). A missing path is not an error: Default() alone is
// returned, the same way warren's CLI falls back to flag defaults
// when no config file is given.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the invariants the orchestrator and drivers rely on:
// positive tick intervals and driver timeouts, and a non-empty default
// policy and quota provider kind. Those names are not checked against
// the known kinds here, and the selector strategy is not checked.
func (c Config) Validate() error {
	if c.SchedulingTickInterval <= 0 {
		return fmt.Errorf("config: scheduling_tick_interval must be positive")
	}
	if c.ReconcileTickInterval <= 0 {
		return fmt.Errorf("config: reconcile_tick_interval must be positive")
	}
	if c.DriverReadTimeout <= 0 {
		return fmt.Errorf("config: driver_read_timeout must be positive")
	}
	if c.DriverSubmitTimeout <= 0 {
		return fmt.Errorf("config: driver_submit_timeout must be positive")
	}
	if c.DefaultPolicy == "" {
		return fmt.Errorf("config: default_policy must not be empty")
	}
	if c.DefaultQuotaKind == "" {
		return fmt.Errorf("config: default_quota_kind must not be empty")
	}
	return nil
}

// ExecutorEnabled reports whether executor (e.g. "kubernetes", "slurm")
// has connection parameters configured.
func (c Config) ExecutorEnabled(executor string) bool {
	ec, ok := c.Executors[executor]
	return ok && ec.Enabled
}
