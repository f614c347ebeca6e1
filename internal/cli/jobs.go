package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kbops-go/internal/kb"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect import jobs",
	Long: `List all import jobs or inspect a specific job by ID.

Examples:
  kbops jobs                 # List all jobs
  kbops jobs abc123          # Show details for job abc123
  kbops jobs commit abc123   # Commit a completed job
  kbops jobs cancel abc123   # Cancel a running job
  kbops jobs watch abc123    # Follow a job over the push channel`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

var jobsCommitCmd = &cobra.Command{
	Use:   "commit <job-id>",
	Short: "Commit a completed import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commitJob(cmd.Context(), args[0])
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel an import (best-effort)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cancelJob(cmd.Context(), args[0])
	},
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Stream job updates over the push channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchJob(cmd.Context(), args[0])
	},
}

func init() {
	jobsCmd.AddCommand(jobsCommitCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsWatchCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// If job ID provided, show that specific job
	if len(args) == 1 {
		return showJob(ctx, args[0])
	}

	// List all jobs
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := jobClient.List(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-6s %-12s %-10s %s\n", "ID", "KIND", "STATUS", "PROGRESS", "CREATED")
	fmt.Println("------------------------------------------------------------------------")

	for _, job := range jobs {
		created := job.CreatedAt.Format("15:04:05")
		fmt.Printf("%-10s %-6s %-12s %-10s %s\n",
			job.ID, job.Kind, job.Status, fmt.Sprintf("%d%%", job.ProgressPct), created)
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := jobClient.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Kind: %s\n", job.Kind)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Progress: %d%%\n", job.ProgressPct)
	fmt.Printf("  Estimated cost: %d¢\n", job.CostEstimateCents)
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if !job.UpdatedAt.IsZero() && !job.UpdatedAt.Equal(job.CreatedAt) {
		fmt.Printf("  Updated: %s\n", job.UpdatedAt.Format(time.RFC3339))
	}
	if job.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", job.ErrorMessage)
	}

	return nil
}

// commitJob fetches the job first and rejects a commit locally unless the
// job is completed, so no request is sent for an invalid intent.
func commitJob(ctx context.Context, id string) error {
	job, err := jobClient.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job.Status == kb.StatusCommitted {
		fmt.Println("Job is already committed")
		return nil
	}
	if job.Status != kb.StatusCompleted {
		return fmt.Errorf("job is %s, commit requires completed", job.Status)
	}

	if err := jobClient.Commit(ctx, id, job.IdempotencyKey); err != nil {
		return fmt.Errorf("commit job: %w", err)
	}
	fmt.Printf("Job %s committed\n", id)
	return nil
}

func cancelJob(ctx context.Context, id string) error {
	out, err := jobClient.Cancel(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if out.AlreadyFinished {
		fmt.Printf("Could not cancel: job already finished (%s)\n", out.Status)
		return nil
	}
	fmt.Printf("Job %s canceled\n", id)
	return nil
}

func watchJob(ctx context.Context, id string) error {
	fmt.Printf("Watching job %s (Ctrl+C to stop)\n", id)
	var lastLine string
	job, err := jobClient.Watch(ctx, apiClient.BaseURL(), id, func(job kb.ImportJob) {
		line := fmt.Sprintf("status=%s progress=%d%%", job.Status, job.ProgressPct)
		if line != lastLine {
			fmt.Println(line)
			lastLine = line
		}
	})
	if err != nil {
		return fmt.Errorf("watch job: %w", err)
	}
	fmt.Printf("Job finished with status %s\n", job.Status)
	return nil
}
