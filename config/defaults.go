package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "agentd.db")

	// Dispatch defaults
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.poll_interval_ms", 250)
	v.SetDefault("dispatch.blocked_timeout_seconds", 0) // watchdog off unless configured
	v.SetDefault("dispatch.dispatch_rate_per_second", 0.0)
	v.SetDefault("dispatch.retain_completed_hours", 168) // one week

	// Agent discovery defaults
	v.SetDefault("agents.dir", "agents_config")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"http://127.0.0.1",
	})
}
