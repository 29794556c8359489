package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/jobctl/pkg/config"
	"github.com/cuemby/jobctl/pkg/driver"
	"github.com/cuemby/jobctl/pkg/events"
	"github.com/cuemby/jobctl/pkg/linkedrun"
	"github.com/cuemby/jobctl/pkg/log"
	"github.com/cuemby/jobctl/pkg/metrics"
	"github.com/cuemby/jobctl/pkg/policy"
	"github.com/cuemby/jobctl/pkg/quota"
	"github.com/cuemby/jobctl/pkg/reconciler"
	"github.com/cuemby/jobctl/pkg/scheduler"
	"github.com/cuemby/jobctl/pkg/selector"
	"github.com/cuemby/jobctl/pkg/storage"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "schedulerd",
	Short: "jobctl - hierarchical multi-tenant job scheduler",
	Long: `schedulerd admits, dispatches and reconciles training, inference
and workflow jobs across Kubernetes and Slurm clusters, with per-project
quota and optional VDC-aware cluster routing.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"schedulerd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to schedulerd YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error), overrides config")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format, overrides config")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(vdcCmd)
	rootCmd.AddCommand(clusterCmd)
}

// loadConfig resolves the --config flag onto config.Load, then applies
// any --log-level/--log-json overrides from the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if json, _ := cmd.Flags().GetBool("log-json"); json {
		cfg.LogJSON = true
	}
	return cfg, nil
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	if level == "" {
		level = "info"
	}
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOut,
	})
}

// openStore opens the BoltDB-backed store under cfg.DataDir. Every CLI
// subcommand (besides serve) is a short-lived administrative client of
// this same on-disk store — there is no RPC surface (see SPEC_FULL.md
// Non-goals), so the CLI and the running daemon share the database file.
func openStore(cfg config.Config) (storage.Store, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.DataDir, err)
	}
	return store, nil
}

// buildKubernetesClientset resolves a client-go clientset from an
// executor's kubeconfig path, or from in-cluster credentials when
// InCluster is set.
func buildKubernetesClientset(ec config.ExecutorConfig) (kubernetes.Interface, error) {
	var restCfg *rest.Config
	var err error
	if ec.InCluster {
		restCfg, err = rest.InClusterConfig()
	} else {
		restCfg, err = clientcmd.BuildConfigFromFlags("", ec.Kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("build kubernetes client config: %w", err)
	}
	return kubernetes.NewForConfig(restCfg)
}

// buildDrivers constructs one driver.Driver per enabled executor.
func buildDrivers(cfg config.Config) (map[types.Executor]driver.Driver, error) {
	drivers := make(map[types.Executor]driver.Driver)

	if ec, ok := cfg.Executors["kubernetes"]; ok && ec.Enabled {
		clientset, err := buildKubernetesClientset(ec)
		if err != nil {
			return nil, fmt.Errorf("kubernetes driver: %w", err)
		}
		drivers[types.ExecutorKubernetes] = driver.NewKubernetesDriver(
			clientset, ec.Namespace, cfg.DriverReadTimeout, cfg.DriverSubmitTimeout,
		)
	}

	if ec, ok := cfg.Executors["slurm"]; ok && ec.Enabled {
		drivers[types.ExecutorSlurm] = driver.NewSlurmDriver(
			ec.RESTEndpoint, ec.UserName, ec.UserToken, ec.Partition, ec.Account, ec.LogDir,
			cfg.DriverReadTimeout, cfg.DriverSubmitTimeout,
		)
	}

	return drivers, nil
}

// buildQuotaProvider resolves the project-level quota provider named by
// cfg.DefaultQuotaKind.
func buildQuotaProvider(cfg config.Config, store storage.Store) (quota.Provider, error) {
	switch cfg.DefaultQuotaKind {
	case "local":
		return quota.NewLocalProvider(store), nil
	case "kubernetes":
		ec, ok := cfg.Executors["kubernetes"]
		if !ok || !ec.Enabled {
			return nil, fmt.Errorf("default_quota_kind kubernetes requires executors.kubernetes to be enabled")
		}
		clientset, err := buildKubernetesClientset(ec)
		if err != nil {
			return nil, fmt.Errorf("kubernetes quota provider: %w", err)
		}
		return quota.NewKubernetesProvider(clientset, ec.Namespace), nil
	case "slurm":
		ec, ok := cfg.Executors["slurm"]
		if !ok || !ec.Enabled {
			return nil, fmt.Errorf("default_quota_kind slurm requires executors.slurm to be enabled")
		}
		return quota.NewSlurmProvider(ec.RESTEndpoint, ec.UserName, ec.UserToken, ec.Account), nil
	default:
		return nil, fmt.Errorf("unknown default_quota_kind %q", cfg.DefaultQuotaKind)
	}
}

// buildOrchestrator wires an Orchestrator and its drivers from cfg: this
// is the composition root every subcommand shares.
func buildOrchestrator(cfg config.Config, store storage.Store, broker *events.Broker) (*scheduler.Orchestrator, map[types.Executor]driver.Driver, error) {
	quotaProvider, err := buildQuotaProvider(cfg, store)
	if err != nil {
		return nil, nil, err
	}

	pol, err := policy.New(cfg.DefaultPolicy)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve default policy: %w", err)
	}

	drivers, err := buildDrivers(cfg)
	if err != nil {
		return nil, nil, err
	}

	var vdcManager *quota.VDCManager
	if cfg.VDCRoutingEnabled {
		vdcManager = quota.NewVDCManager(store)
	}

	var linkedRun linkedrun.Updater // no experiment-tracking integration wired by default

	orch := scheduler.NewOrchestrator(scheduler.Config{
		Store:         store,
		QuotaProvider: quotaProvider,
		VDCManager:    vdcManager,
		Policy:        pol,
		Drivers:       drivers,
		Selector:      selector.Strategy(cfg.DefaultSelectorKind),
		JobCounter:    selector.NewStoreJobCounter(store),
		LinkedRun:     linkedRun,
		Events:        broker,
		VDCRouting:    cfg.VDCRoutingEnabled,
	})
	return orch, drivers, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduling and reconciliation daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
			cfg.DataDir = dataDir
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		orch, drivers, err := buildOrchestrator(cfg, store, broker)
		if err != nil {
			return err
		}

		recon := reconciler.NewReconciler(store, drivers, orch)

		metrics.SetVersion(Version)
		metrics.RegisterComponent("store", true, "")
		metrics.RegisterComponent("orchestrator", true, "")
		metrics.RegisterComponent("reconciler", true, "")
		for executor := range drivers {
			metrics.RegisterDriver(string(executor), true, "")
		}

		orch.Start(cfg.SchedulingTickInterval)
		fmt.Println("✓ Orchestrator started")
		recon.Start(cfg.ReconcileTickInterval)
		fmt.Println("✓ Reconciler started")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.MetricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")

		orch.Stop()
		recon.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("data-dir", "", "Override data_dir from config")
}

// truncate shortens s to max bytes, suffixing "..." when it had to cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
