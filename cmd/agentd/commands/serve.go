package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oneprompt/agentd/config"
	"github.com/oneprompt/agentd/errors"
	"github.com/oneprompt/agentd/logger"
	"github.com/oneprompt/agentd/server"
	"github.com/oneprompt/agentd/version"
)

// ServeCmd starts the scheduler daemon and the HTTP/WebSocket API
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the agentd daemon",
	Long: `Start the scheduler daemon and the HTTP/WebSocket API.

On startup the daemon recovers interrupted work: running jobs are requeued
and the dependency index is rebuilt from blocked jobs. Agents are discovered
from the configured agents directory.

Examples:
  agentd serve                 # Use the configured port and database
  agentd serve --db-path x.db  # Override the database path`,
	RunE: runServe,
}

var serveDBPath string

func init() {
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(serveDBPath)
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

	// Reload config on file changes. Dispatch settings need a restart;
	// the watcher keeps the loaded snapshot current for everything else.
	if configPath := config.ConfigFilePath(); configPath != "" {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			logger.Warnw("Config watcher unavailable", "error", err)
		} else {
			watcher.OnReload(func(updated *config.Config) error {
				logger.Infow("Configuration reloaded", "agents_dir", updated.Agents.Dir)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	printStartupBanner(cfg, rt.loadOrder)

	srv := server.New(database, rt.scheduler, rt.agents, rt.loadOrder, cfg, logger.Logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Infow("Shutting down", "signal", sig.String())
		return srv.Stop()
	}
}

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(cfg *config.Config, loadOrder []string) {
	green := "\033[32m"
	yellow := "\033[33m"
	blue := "\033[34m"
	bold := "\033[1m"
	reset := "\033[0m"

	info := version.Get()

	fmt.Printf("\n%s%s┌─ agentd ────────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:  %s (commit %s)\n", green, reset, info.Version, info.Short())
	fmt.Printf("%s│%s Port:     %d\n", green, reset, cfg.Server.Port)
	fmt.Printf("%s│%s Database: %s\n", green, reset, cfg.Database.Path)
	fmt.Printf("%s│%s Workers:  %d\n", green, reset, cfg.Dispatch.Workers)
	fmt.Printf("%s│%s Agents:   %d (%s)\n", green, reset, len(loadOrder), cfg.Agents.Dir)
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s%s✨ POST /api/agents/{name}/run to start a job%s\n", yellow, bold, reset)
	fmt.Printf("%s💡 Press Ctrl+C to stop%s\n\n", blue, reset)
}
