package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("SessionTimeout = %v, want 30m", cfg.SessionTimeout)
	}
	if cfg.MaxSessionsPerUser != 5 {
		t.Errorf("MaxSessionsPerUser = %d, want 5", cfg.MaxSessionsPerUser)
	}
}

func TestLoadPortEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "relayhub"), 0o755); err != nil {
		t.Fatal(err)
	}
	yamlContent := "port: 4000\nmax_sessions_per_user: 9\n"
	if err := os.WriteFile(filepath.Join(dir, "relayhub", "config.yaml"), []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "5000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want 5000 (env override)", cfg.Port)
	}
	if cfg.MaxSessionsPerUser != 9 {
		t.Errorf("MaxSessionsPerUser = %d, want 9 (from file)", cfg.MaxSessionsPerUser)
	}
}
