// Package config holds the agentd configuration and its loading logic.
package config

// Config represents the agentd configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DispatchConfig configures the job dispatch loop
type DispatchConfig struct {
	// Workers is the number of concurrent job workers
	Workers int `mapstructure:"workers"`

	// PollIntervalMS is how often an idle worker re-checks for runnable jobs,
	// in milliseconds. Workers are also woken immediately on admission.
	PollIntervalMS int `mapstructure:"poll_interval_ms"`

	// BlockedTimeoutSeconds is how long a job may sit in Blocked before the
	// watchdog forces it to Failed. 0 disables the watchdog.
	BlockedTimeoutSeconds int `mapstructure:"blocked_timeout_seconds"`

	// DispatchRatePerSecond caps how many jobs may be handed to workers per
	// second. 0 disables the gate.
	DispatchRatePerSecond float64 `mapstructure:"dispatch_rate_per_second"`

	// RetainCompletedHours is how long terminal jobs are kept before
	// `agentd db cleanup` removes them.
	RetainCompletedHours int `mapstructure:"retain_completed_hours"`
}

// AgentsConfig configures agent definition discovery
type AgentsConfig struct {
	// Dir is the directory scanned for agent definitions
	// (one subdirectory per agent: agent.json + prompt.md).
	Dir string `mapstructure:"dir"`
}

// ServerConfig configures the HTTP status server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is the development HTTP port
const DefaultServerPort = 9000
