package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oneprompt/agentd/config"
	"github.com/oneprompt/agentd/dispatch"
	"github.com/oneprompt/agentd/errors"
)

// DbCmd manages the agentd database
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the agentd database",
	Long: `Manage database operations.

Examples:
  agentd db migrate   # Apply pending schema migrations
  agentd db stats     # Show job counts by status
  agentd db cleanup   # Remove old terminal jobs`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts by status",
	RunE:  runDbStats,
}

var dbCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old completed and failed jobs",
	Long: `Remove terminal jobs older than the retention window.

The window comes from dispatch.retain_completed_hours in the config and can
be overridden with --older-than.`,
	RunE: runDbCleanup,
}

var cleanupOlderThan time.Duration

func init() {
	dbCleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "Retention window override (e.g. 72h)")

	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
	DbCmd.AddCommand(dbCleanupCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	// openDatabase migrates as a side effect
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Println("Database is up to date")
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := dispatch.NewStore(database)
	counts, err := store.CountByStatus()
	if err != nil {
		return errors.Wrap(err, "failed to count jobs")
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Database Path: %s\n\n", cfg.Database.Path)

	total := 0
	for _, status := range []dispatch.JobStatus{
		dispatch.JobStatusPending,
		dispatch.JobStatusRunning,
		dispatch.JobStatusBlocked,
		dispatch.JobStatusCompleted,
		dispatch.JobStatusFailed,
	} {
		fmt.Printf("%-12s %d\n", status, counts[status])
		total += counts[status]
	}
	fmt.Printf("\nTotal: %d job(s)\n", total)

	return nil
}

func runDbCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	window := cleanupOlderThan
	if window == 0 {
		window = time.Duration(cfg.Dispatch.RetainCompletedHours) * time.Hour
	}
	if window <= 0 {
		return errors.New("retention window not configured; pass --older-than or set dispatch.retain_completed_hours")
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := dispatch.NewStore(database)
	removed, err := store.CleanupOldJobs(window)
	if err != nil {
		return errors.Wrap(err, "failed to clean up jobs")
	}

	fmt.Printf("Removed %d terminal job(s) older than %s\n", removed, window)
	return nil
}
