package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oneprompt/agentd/dispatch"
	"github.com/oneprompt/agentd/errors"
)

// JobsCmd inspects the job ledger
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the job ledger",
	Long: `Inspect jobs in the agentd database.

Status filters:
  pending   - Jobs waiting for a worker
  running   - Jobs currently being processed
  blocked   - Jobs suspended on dependencies
  completed - Successfully completed jobs
  failed    - Jobs that failed with errors

Examples:
  agentd jobs ls                    # List recent jobs
  agentd jobs ls --status blocked   # List suspended jobs
  agentd jobs show <job-id>         # Show one job in detail`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runJobsLs(statusFilter, limit)
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show job details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsShow(args[0])
	},
}

func init() {
	jobsLsCmd.Flags().String("status", "", "Filter by status (pending, running, blocked, completed, failed)")
	jobsLsCmd.Flags().Int("limit", 20, "Maximum number of jobs to display")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsShowCmd)
}

func runJobsLs(statusFilter string, limit int) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := dispatch.NewStore(database)

	var status *dispatch.JobStatus
	if statusFilter != "" {
		if !dispatch.IsValidStatus(statusFilter) {
			return errors.Newf("invalid status: %s", statusFilter)
		}
		s := dispatch.JobStatus(statusFilter)
		status = &s
	}

	jobs, err := store.ListJobs(status, limit)
	if err != nil {
		return errors.Wrap(err, "failed to list jobs")
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-36s %-10s %-20s %-8s %s\n", "JOB ID", "STATUS", "AGENT", "WAITS", "CREATED")
	fmt.Printf("%-36s %-10s %-20s %-8s %s\n", "------", "------", "-----", "-----", "-------")

	for _, job := range jobs {
		fmt.Printf("%-36s %-10s %-20s %-8d %s\n",
			job.ID,
			job.Status,
			truncate(job.Kind, 20),
			len(job.WaitingOn),
			job.CreatedAt.Format("2006-01-02 15:04"))
	}

	fmt.Printf("\nTotal: %d job(s)\n", len(jobs))
	return nil
}

func runJobsShow(jobID string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := dispatch.NewStore(database)
	job, err := store.GetJob(jobID)
	if err != nil {
		return errors.Wrapf(err, "failed to get job %s", jobID)
	}

	fmt.Printf("Job ID: %s\n", job.ID)
	fmt.Printf("  Agent:  %s\n", job.Kind)
	fmt.Printf("  Status: %s\n", job.Status)
	if job.Input != "" {
		fmt.Printf("  Input:  %s\n", truncate(job.Input, 120))
	}
	fmt.Println()

	if len(job.WaitingOn) > 0 {
		fmt.Printf("Waiting on %d dependencies:\n", len(job.WaitingOn))
		for _, depID := range job.WaitingOn {
			dep, err := store.GetJob(depID)
			if err != nil {
				fmt.Printf("  %s (unknown)\n", depID)
				continue
			}
			fmt.Printf("  %s  %s  %s\n", dep.ID, dep.Status, truncate(dep.Kind, 20))
		}
		fmt.Println()
	}

	if job.Result != "" {
		fmt.Printf("Result: %s\n", job.Result)
	}
	if job.Error != "" {
		fmt.Printf("Error: %s\n", job.Error)
	}

	fmt.Printf("Created: %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.StartedAt != nil {
		fmt.Printf("Started: %s\n", job.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if job.FinishedAt != nil {
		fmt.Printf("Finished: %s\n", job.FinishedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// truncate shortens a string to maxLen with an ellipsis
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
