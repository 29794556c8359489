package main

import (
	"fmt"

	"github.com/cuemby/jobctl/pkg/resources"
	"github.com/cuemby/jobctl/pkg/scheduler"
	"github.com/cuemby/jobctl/pkg/types"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Submit, inspect and cancel jobs",
}

var jobSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new job onto its project's default queue",
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
		userID, _ := cmd.Flags().GetString("user")
		jobType, _ := cmd.Flags().GetString("job-type")
		executor, _ := cmd.Flags().GetString("executor")
		vdcID, _ := cmd.Flags().GetString("vdc")
		name, _ := cmd.Flags().GetString("name")
		runID, _ := cmd.Flags().GetString("run-id")
		cpu, _ := cmd.Flags().GetFloat64("cpu")
		memGiB, _ := cmd.Flags().GetFloat64("memory-gib")
		gpu, _ := cmd.Flags().GetInt64("gpu")
		labels, _ := cmd.Flags().GetStringToString("label")
		preferred, _ := cmd.Flags().GetStringSlice("preferred-cluster")

		job := &types.Job{
			ProjectID:           projectID,
			UserID:              userID,
			JobType:             types.JobType(jobType),
			Executor:            types.Executor(executor),
			VDCID:               vdcID,
			Name:                name,
			RunID:               runID,
			Request:             resources.New(cpu, memGiB, gpu),
			RequiredLabels:      labels,
			PreferredClusterIDs: preferred,
		}

		orch := scheduler.NewOrchestrator(scheduler.Config{Store: store})
		if err := orch.Enqueue(job); err != nil {
			return fmt.Errorf("submit job: %w", err)
		}

		fmt.Printf("✓ Job submitted: %s\n", job.ID)
		fmt.Printf("  Project: %s\n", job.ProjectID)
		fmt.Printf("  Queue: %s (position %d)\n", job.QueueID, job.QueuePosition)
		fmt.Printf("  Status: %s\n", job.Status)
		return nil
	},
}

var jobGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one job's full state",
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

		job, err := store.GetJob(args[0])
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}

		fmt.Printf("ID: %s\n", job.ID)
		fmt.Printf("Project: %s\n", job.ProjectID)
		fmt.Printf("User: %s\n", job.UserID)
		fmt.Printf("Type: %s  Executor: %s\n", job.JobType, job.Executor)
		fmt.Printf("Status: %s\n", job.Status)
		if job.ExternalID != "" {
			fmt.Printf("External ID: %s\n", job.ExternalID)
		}
		if job.ClusterID != "" {
			fmt.Printf("Cluster: %s\n", job.ClusterID)
		}
		fmt.Printf("Request: %s\n", job.Request)
		fmt.Printf("Dispatch attempts: %d\n", job.DispatchTries)
		if job.ErrorMessage != "" {
			fmt.Printf("Error: %s\n", job.ErrorMessage)
		}
		return nil
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, optionally filtered by project or status",
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
		status, _ := cmd.Flags().GetString("status")

		var jobs []*types.Job
		switch {
		case projectID != "":
			jobs, err = store.ListJobsByProject(projectID)
		case status != "":
			jobs, err = store.ListJobsByStatus(types.JobStatus(status))
		default:
			jobs, err = store.ListJobs()
		}
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs found")
			return nil
		}

		fmt.Printf("%-36s %-12s %-10s %-12s %s\n", "ID", "PROJECT", "STATUS", "EXECUTOR", "CLUSTER")
		for _, j := range jobs {
			fmt.Printf("%-36s %-12s %-10s %-12s %s\n",
				j.ID, truncate(j.ProjectID, 12), j.Status, j.Executor, j.ClusterID)
		}
		return nil
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a pending, queued or running job",
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

		orch, _, err := buildOrchestrator(cfg, store, nil)
		if err != nil {
			return err
		}

		if err := orch.Cancel(args[0]); err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}

		fmt.Printf("✓ Job cancelled: %s\n", args[0])
		return nil
	},
}

func init() {
	jobCmd.AddCommand(jobSubmitCmd, jobGetCmd, jobListCmd, jobCancelCmd)

	jobSubmitCmd.Flags().String("project", "", "Project ID (required)")
	jobSubmitCmd.Flags().String("user", "", "Submitting user ID")
	jobSubmitCmd.Flags().String("job-type", string(types.JobTypeTraining), "Job type: training, inference, workflow")
	jobSubmitCmd.Flags().String("executor", string(types.ExecutorKubernetes), "Executor: kubernetes, slurm")
	jobSubmitCmd.Flags().String("vdc", "", "VDC ID, enables VDC-aware cluster routing when set")
	jobSubmitCmd.Flags().String("name", "", "Human-readable job name")
	jobSubmitCmd.Flags().String("run-id", "", "Linked experiment-tracking run ID")
	jobSubmitCmd.Flags().Float64("cpu", 1, "CPU cores requested")
	jobSubmitCmd.Flags().Float64("memory-gib", 1, "Memory requested, in GiB")
	jobSubmitCmd.Flags().Int64("gpu", 0, "GPU count requested")
	jobSubmitCmd.Flags().StringToString("label", map[string]string{}, "Required cluster labels (KEY=VALUE)")
	jobSubmitCmd.Flags().StringSlice("preferred-cluster", []string{}, "Preferred cluster IDs, in priority order")
	jobSubmitCmd.MarkFlagRequired("project")

	jobListCmd.Flags().String("project", "", "Filter by project ID")
	jobListCmd.Flags().String("status", "", "Filter by status")
}
