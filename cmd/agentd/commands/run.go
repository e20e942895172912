package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oneprompt/agentd/config"
	"github.com/oneprompt/agentd/dispatch"
	"github.com/oneprompt/agentd/errors"
)

// RunCmd submits one agent job and waits for its result (console mode)
var RunCmd = &cobra.Command{
	Use:   "run <agent> [input]",
	Short: "Run one agent job to completion",
	Long: `Submit a job for the named agent and wait for its result.

A local scheduler is started for the duration of the run; jobs the agent
spawns or waits on execute in the same process. The result is printed to
stdout on success; a failed job exits non-zero with its error.

Examples:
  agentd run Greeter "say hello to Dot"
  agentd run Planner < task.txt`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

var runDBPath string

func init() {
	RunCmd.Flags().StringVar(&runDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	agentName := args[0]
	input := ""
	if len(args) > 1 {
		input = args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(runDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	rt, err := buildRuntime(cfg, database)
	if err != nil {
		return err
	}

	if err := rt.scheduler.Start(); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}
	defer rt.scheduler.Stop()

	job, err := rt.scheduler.Submit(agentName, input)
	if err != nil {
		return errors.Wrapf(err, "failed to submit job for agent %s", agentName)
	}
	fmt.Fprintf(os.Stderr, "Job %s submitted\n", job.ID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done, err := rt.scheduler.WaitForJob(ctx, job.ID)
	if err != nil {
		return errors.Wrapf(err, "waiting for job %s", job.ID)
	}

	if done.Status == dispatch.JobStatusFailed {
		return errors.Newf("job %s failed: %s", done.ID, done.Error)
	}

	fmt.Println(done.Result)
	return nil
}
