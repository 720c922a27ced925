package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store.Backend != nil || cfg.Scoring.Mode != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `[store]
backend = "snapshot"
snapshot = "/tmp/s.json"

[scoring]
mode = "strikt"

[log]
level = "debug"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store.Backend == nil || *cfg.Store.Backend != "snapshot" {
		t.Fatalf("backend = %v", cfg.Store.Backend)
	}
	if cfg.Store.Path != nil {
		t.Fatalf("path should be unset, got %q", *cfg.Store.Path)
	}
	if cfg.Scoring.Mode == nil || *cfg.Scoring.Mode != "strikt" {
		t.Fatalf("mode = %v", cfg.Scoring.Mode)
	}
	if cfg.Log.Level == nil || *cfg.Log.Level != "debug" || cfg.Log.Format != nil {
		t.Fatalf("log = %+v", cfg.Log)
	}
}

func TestLoadConfigUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[store]\nbakend = \"sqlite\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "store.bakend") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "speedlesen", "config.toml") {
		t.Fatalf("DefaultConfigPath = %q", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/data", "speedlesen", "speedlesen.db") {
		t.Fatalf("DefaultDBPath = %q", got)
	}
	if got := DefaultSnapshotPath(); got != filepath.Join("/data", "speedlesen", "speedlesen.json") {
		t.Fatalf("DefaultSnapshotPath = %q", got)
	}
}
