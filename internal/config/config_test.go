package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Layers.L1.Timeout != 5 {
		t.Errorf("expected default L1 timeout 5, got %d", cfg.Layers.L1.Timeout)
	}
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Layers.L3.DBPath = "custom.db"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Layers.L3.DBPath != "custom.db" {
		t.Errorf("expected dbPath to round-trip, got %q", loaded.Layers.L3.DBPath)
	}
}

func TestEnvOverrideDebugMode(t *testing.T) {
	os.Setenv("LQ_DEBUG", "1")
	defer os.Unsetenv("LQ_DEBUG")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Logging.DebugMode {
		t.Error("expected LQ_DEBUG=1 to enable debug mode")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Performance.MaxConcurrentRequests = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero maxConcurrentRequests")
	}
}
