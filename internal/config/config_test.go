package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DBPath != filepath.Join(filepath.Dir(path), "directgtd.db") {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if !cfg.Sync.Enabled {
		t.Error("sync should default to enabled")
	}
	if cfg.Sync.PeriodicInterval != 5*time.Minute {
		t.Errorf("PeriodicInterval = %v, want 5m", cfg.Sync.PeriodicInterval)
	}
	if cfg.Sync.TombstoneRetention != 30*24*time.Hour {
		t.Errorf("TombstoneRetention = %v, want 720h", cfg.Sync.TombstoneRetention)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
db_path: /data/tasks.db
sync:
  enabled: false
  periodic_interval: 90s
remote:
  base_url: https://records.example.net
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DBPath != "/data/tasks.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Sync.Enabled {
		t.Error("sync.enabled not read from file")
	}
	if cfg.Sync.PeriodicInterval != 90*time.Second {
		t.Errorf("PeriodicInterval = %v, want 90s", cfg.Sync.PeriodicInterval)
	}
	if cfg.Remote.BaseURL != "https://records.example.net" {
		t.Errorf("BaseURL = %q", cfg.Remote.BaseURL)
	}
	// Untouched keys keep their defaults.
	if cfg.Log.MaxSizeMB != 10 {
		t.Errorf("MaxSizeMB = %d, want 10", cfg.Log.MaxSizeMB)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DGTD_REMOTE_TOKEN", "secret-token")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Remote.Token != "secret-token" {
		t.Errorf("Token = %q, want the env value", cfg.Remote.Token)
	}
}

func TestWriteStarter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := WriteStarter(path); err != nil {
		t.Fatalf("WriteStarter() failed: %v", err)
	}
	if err := WriteStarter(path); err == nil {
		t.Error("WriteStarter() must refuse to overwrite an existing file")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(starter) failed: %v", err)
	}
	if !cfg.Sync.Enabled {
		t.Error("starter config should enable sync")
	}
	if cfg.DBPath == "" || cfg.BackupsDir == "" {
		t.Error("starter config missing paths")
	}
}
