package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}

	if cfg.Dispatch.Workers != 4 {
		t.Errorf("default workers = %d, want 4", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.PollIntervalMS != 250 {
		t.Errorf("default poll interval = %d, want 250", cfg.Dispatch.PollIntervalMS)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("default port = %d, want %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.Agents.Dir != "agents_config" {
		t.Errorf("default agents dir = %q, want agents_config", cfg.Agents.Dir)
	}
}

func TestEnvOverride(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	t.Setenv("AGENTD_DISPATCH_WORKERS", "9")
	t.Setenv("AGENTD_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dispatch.Workers != 9 {
		t.Errorf("workers = %d, want env override 9", cfg.Dispatch.Workers)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("database path = %q, want env override", cfg.Database.Path)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentd.toml")

	content := `
[dispatch]
workers = 2
blocked_timeout_seconds = 30

[server]
port = 9999
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Dispatch.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.BlockedTimeoutSeconds != 30 {
		t.Errorf("blocked timeout = %d, want 30", cfg.Dispatch.BlockedTimeoutSeconds)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	// Unset keys keep defaults
	if cfg.Dispatch.PollIntervalMS != 250 {
		t.Errorf("poll interval = %d, want default 250", cfg.Dispatch.PollIntervalMS)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/agentd.toml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadCachesConfig(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first, err := Load()
	if err != nil {
		t.Fatalf("first Load failed: %v", err)
	}
	second, err := Load()
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if first != second {
		t.Error("Load must return the cached config on repeat calls")
	}
}
