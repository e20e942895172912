package commands

import (
	"database/sql"
	"time"

	"github.com/oneprompt/agentd/agent"
	"github.com/oneprompt/agentd/config"
	"github.com/oneprompt/agentd/dispatch"
	"github.com/oneprompt/agentd/errors"
	"github.com/oneprompt/agentd/logger"
)

// runtime bundles the pieces serve and run both need: a scheduler with
// every discovered agent registered as a runner
type runtime struct {
	scheduler *dispatch.Scheduler
	agents    map[string]*agent.Definition
	loadOrder []string
}

func schedulerConfig(cfg *config.Config) dispatch.SchedulerConfig {
	return dispatch.SchedulerConfig{
		Workers:        cfg.Dispatch.Workers,
		PollInterval:   time.Duration(cfg.Dispatch.PollIntervalMS) * time.Millisecond,
		BlockedTimeout: time.Duration(cfg.Dispatch.BlockedTimeoutSeconds) * time.Second,
		DispatchRate:   cfg.Dispatch.DispatchRatePerSecond,
	}
}

// buildRuntime discovers agents, builds the engine, and wires everything
// into a scheduler. The scheduler is not started.
func buildRuntime(cfg *config.Config, database *sql.DB) (*runtime, error) {
	defs, err := agent.Discover(cfg.Agents.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to discover agents in %s", cfg.Agents.Dir)
	}
	if len(defs) == 0 {
		return nil, errors.Newf("no agents found in %s", cfg.Agents.Dir)
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	scheduler := dispatch.NewScheduler(database, schedulerConfig(cfg), logger.Logger)

	order, err := agent.RegisterAll(scheduler.Registry(), defs, engine, scheduler)
	if err != nil {
		return nil, err
	}

	return &runtime{
		scheduler: scheduler,
		agents:    defs,
		loadOrder: order,
	}, nil
}
