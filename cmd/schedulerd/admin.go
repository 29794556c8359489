package main

import (
	"fmt"
	"time"

	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/security"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Queue commands

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage per-project job queues",
}

var queueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		projectID, _ := cmd.Flags().GetString("project")
		name, _ := cmd.Flags().GetString("name")
		priority, _ := cmd.Flags().GetInt("priority")
		maxConcurrent, _ := cmd.Flags().GetInt("max-concurrent")

		now := time.Now()
		queue := &types.JobQueue{
			ID:            uuid.New().String(),
			ProjectID:     projectID,
			Name:          name,
			Priority:      priority,
			Enabled:       true,
			MaxConcurrent: maxConcurrent,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := store.CreateQueue(queue); err != nil {
			return fmt.Errorf("create queue: %w", err)
		}
		fmt.Printf("✓ Queue created: %s\n", queue.ID)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List project queues",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		projectID, _ := cmd.Flags().GetString("project")
		var queues []*types.JobQueue
		if projectID != "" {
			queues, err = store.ListQueuesByProject(projectID)
		} else {
			queues, err = store.ListQueues()
		}
		if err != nil {
			return fmt.Errorf("list queues: %w", err)
		}

		fmt.Printf("%-36s %-12s %-8s %-10s %s\n", "ID", "PROJECT", "PRIORITY", "RUNNING", "MAX")
		for _, q := range queues {
			fmt.Printf("%-36s %-12s %-8d %-10d %d\n", q.ID, truncate(q.ProjectID, 12), q.Priority, q.RunningJobs, q.MaxConcurrent)
		}
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueCreateCmd, queueListCmd)

	queueCreateCmd.Flags().String("project", "", "Project ID (required)")
	queueCreateCmd.Flags().String("name", "default", "Queue name")
	queueCreateCmd.Flags().Int("priority", 0, "Queue priority, higher drains first")
	queueCreateCmd.Flags().Int("max-concurrent", 10, "Concurrent RUNNING job cap")
	queueCreateCmd.MarkFlagRequired("project")

	queueListCmd.Flags().String("project", "", "Filter by project ID")
}

// Quota commands

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "View and set project resource quotas",
}

var quotaShowCmd = &cobra.Command{
	Use:   "show PROJECT_ID",
	Short: "Show a project's quota and current usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		q, err := store.GetProjectQuota(args[0])
		if err != nil {
			return fmt.Errorf("get project quota: %w", err)
		}
		fmt.Printf("Project: %s\n", q.ProjectID)
		fmt.Printf("Limits:  %s\n", q.Limits)
		fmt.Printf("Used:    %s\n", q.Used)
		fmt.Printf("Concurrent: %d / %d\n", q.UsedConcurrent, q.MaxConcurrent)
		fmt.Printf("Enforced: %v\n", q.EnforceQuota)
		return nil
	},
}

var quotaSetCmd = &cobra.Command{
	Use:   "set PROJECT_ID",
	Short: "Create or update a project's resource quota",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		cpu, _ := cmd.Flags().GetFloat64("cpu")
		memGiB, _ := cmd.Flags().GetFloat64("memory-gib")
		gpu, _ := cmd.Flags().GetInt64("gpu")
		maxConcurrent, _ := cmd.Flags().GetInt("max-concurrent")
		enforce, _ := cmd.Flags().GetBool("enforce")

		existing, err := store.GetProjectQuota(args[0])
		now := time.Now()
		if err != nil {
			existing = &types.ProjectQuota{
				ProjectID: args[0],
				CreatedAt: now,
			}
		}
		existing.Limits = resources.New(cpu, memGiB, gpu)
		existing.MaxConcurrent = maxConcurrent
		existing.EnforceQuota = enforce
		existing.UpdatedAt = now

		if err := store.UpsertProjectQuota(existing); err != nil {
			return fmt.Errorf("set project quota: %w", err)
		}
		fmt.Printf("✓ Quota set for project %s\n", args[0])
		return nil
	},
}

func init() {
	quotaCmd.AddCommand(quotaShowCmd, quotaSetCmd)

	quotaSetCmd.Flags().Float64("cpu", 0, "CPU core limit")
	quotaSetCmd.Flags().Float64("memory-gib", 0, "Memory limit, in GiB")
	quotaSetCmd.Flags().Int64("gpu", 0, "GPU count limit")
	quotaSetCmd.Flags().Int("max-concurrent", 0, "Concurrent RUNNING job cap, 0 means unlimited")
	quotaSetCmd.Flags().Bool("enforce", true, "Reject admission over limits; when false, only counters update")
}

// VDC commands

var vdcCmd = &cobra.Command{
	Use:   "vdc",
	Short: "Manage Virtual Data Centers",
}

var vdcCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a VDC",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		name, _ := cmd.Flags().GetString("name")
		policy, _ := cmd.Flags().GetString("default-policy")
		selectorKind, _ := cmd.Flags().GetString("default-selector")
		overcommit, _ := cmd.Flags().GetFloat64("overcommit-factor")

		now := time.Now()
		vdc := &types.VDC{
			ID:              uuid.New().String(),
			Name:            name,
			DefaultPolicy:   policy,
			DefaultSelector: selectorKind,
			Overcommit: types.OvercommitPolicy{
				Enabled: overcommit > 1.0,
				Factor:  overcommit,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.CreateVDC(vdc); err != nil {
			return fmt.Errorf("create vdc: %w", err)
		}
		fmt.Printf("✓ VDC created: %s\n", vdc.ID)
		return nil
	},
}

var vdcListCmd = &cobra.Command{
	Use:   "list",
	Short: "List VDCs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		vdcs, err := store.ListVDCs()
		if err != nil {
			return fmt.Errorf("list vdcs: %w", err)
		}
		fmt.Printf("%-36s %-16s %-10s %s\n", "ID", "NAME", "CLUSTERS", "POLICY")
		for _, v := range vdcs {
			fmt.Printf("%-36s %-16s %-10d %s\n", v.ID, truncate(v.Name, 16), len(v.ClusterIDs), v.DefaultPolicy)
		}
		return nil
	},
}

func init() {
	vdcCmd.AddCommand(vdcCreateCmd, vdcListCmd)

	vdcCreateCmd.Flags().String("name", "", "VDC name (required)")
	vdcCreateCmd.Flags().String("default-policy", "fifo", "Default dispatch policy for queues routed through this VDC")
	vdcCreateCmd.Flags().String("default-selector", "resource_fit", "Default cluster selection strategy")
	vdcCreateCmd.Flags().Float64("overcommit-factor", 1.0, "Overcommit factor; >1.0 enables overcommit")
	vdcCreateCmd.MarkFlagRequired("name")
}

// Cluster commands

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Register and inspect backend clusters",
}

var clusterRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a backend cluster, encrypting its connection token at rest",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		name, _ := cmd.Flags().GetString("name")
		clusterType, _ := cmd.Flags().GetString("type")
		vdcID, _ := cmd.Flags().GetString("vdc")
		endpoint, _ := cmd.Flags().GetString("endpoint")
		kubeconfig, _ := cmd.Flags().GetString("kubeconfig")
		token, _ := cmd.Flags().GetString("token")
		cpu, _ := cmd.Flags().GetFloat64("cpu")
		memGiB, _ := cmd.Flags().GetFloat64("memory-gib")
		gpu, _ := cmd.Flags().GetInt64("gpu")
		priority, _ := cmd.Flags().GetInt("priority")
		weight, _ := cmd.Flags().GetFloat64("weight")

		now := time.Now()
		cluster := &types.Cluster{
			ID:        uuid.New().String(),
			VDCID:     vdcID,
			Name:      name,
			Type:      types.ClusterType(clusterType),
			Endpoint:  endpoint,
			Capacity:  resources.New(cpu, memGiB, gpu),
			Status:    types.ClusterStatusHealthy,
			Enabled:   true,
			Priority:  priority,
			Weight:    weight,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if kubeconfig != "" {
			cluster.Conn.Kubeconfig = kubeconfig
		}
		if endpoint != "" {
			cluster.Conn.RESTEndpoint = endpoint
		}
		if token != "" {
			sm, err := security.NewSecretsManager(security.DeriveKeyFromClusterID(cluster.ID))
			if err != nil {
				return fmt.Errorf("build secrets manager: %w", err)
			}
			encrypted, err := sm.EncryptConnectionToken(token)
			if err != nil {
				return fmt.Errorf("encrypt connection token: %w", err)
			}
			cluster.Conn.EncryptedToken = encrypted
		}

		if err := store.CreateCluster(cluster); err != nil {
			return fmt.Errorf("create cluster: %w", err)
		}
		fmt.Printf("✓ Cluster registered: %s\n", cluster.ID)
		return nil
	},
}

var clusterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		vdcID, _ := cmd.Flags().GetString("vdc")
		var clusters []*types.Cluster
		if vdcID != "" {
			clusters, err = store.ListClustersByVDC(vdcID)
		} else {
			clusters, err = store.ListClusters()
		}
		if err != nil {
			return fmt.Errorf("list clusters: %w", err)
		}

		fmt.Printf("%-36s %-16s %-10s %-10s %s\n", "ID", "NAME", "TYPE", "STATUS", "CAPACITY")
		for _, c := range clusters {
			fmt.Printf("%-36s %-16s %-10s %-10s %s\n", c.ID, truncate(c.Name, 16), c.Type, c.Status, c.Capacity)
		}
		return nil
	},
}

func init() {
	clusterCmd.AddCommand(clusterRegisterCmd, clusterListCmd)

	clusterRegisterCmd.Flags().String("name", "", "Cluster name (required)")
	clusterRegisterCmd.Flags().String("type", string(types.ClusterTypeKubernetes), "Cluster type: kubernetes, slurm")
	clusterRegisterCmd.Flags().String("vdc", "", "Owning VDC ID, optional")
	clusterRegisterCmd.Flags().String("endpoint", "", "Cluster API/REST endpoint")
	clusterRegisterCmd.Flags().String("kubeconfig", "", "Kubeconfig path, for kubernetes clusters")
	clusterRegisterCmd.Flags().String("token", "", "Connection credential, encrypted before being stored")
	clusterRegisterCmd.Flags().Float64("cpu", 0, "Total CPU core capacity")
	clusterRegisterCmd.Flags().Float64("memory-gib", 0, "Total memory capacity, in GiB")
	clusterRegisterCmd.Flags().Int64("gpu", 0, "Total GPU capacity")
	clusterRegisterCmd.Flags().Int("priority", 0, "Selection priority, for the priority selector strategy")
	clusterRegisterCmd.Flags().Float64("weight", 1.0, "Selection weight, for the priority selector strategy (score is priority × weight)")
	clusterRegisterCmd.MarkFlagRequired("name")

	clusterListCmd.Flags().String("vdc", "", "Filter by VDC ID")
}
