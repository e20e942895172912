package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oneprompt/agentd/cmd/agentd/commands"
	"github.com/oneprompt/agentd/logger"
)

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "agentd - agent job daemon with dependency-based suspension",
	Long: `agentd - run declarative agents as durable jobs.

Agents are discovered from a directory of agent.json + prompt.md pairs and
executed as jobs. A job may spawn other jobs and suspend until they finish;
it resumes with their collected results. Blocked jobs hold no worker slot.

Available commands:
  serve   - Start the scheduler daemon and HTTP/WebSocket API
  run     - Submit one agent job and wait for its result
  jobs    - Inspect the job ledger
  db      - Manage the agentd database
  version - Show version information

Examples:
  agentd serve                      # Start the daemon
  agentd run Greeter "say hello"    # Run one agent to completion
  agentd jobs ls --status blocked   # List suspended jobs
  agentd db stats                   # Show job counts by status`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
