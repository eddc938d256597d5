package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_Defaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Data.Dir == "" {
		t.Error("Data.Dir is empty, want a default")
	}
	if cfg.SQL.MaxRows != 500 {
		t.Errorf("SQL.MaxRows = %d, want %d", cfg.SQL.MaxRows, 500)
	}
	if cfg.SQL.BusyTimeoutMS != 5000 {
		t.Errorf("SQL.BusyTimeoutMS = %d, want %d", cfg.SQL.BusyTimeoutMS, 5000)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("BRANCHLITE_LOG_LEVEL", "debug")
	t.Setenv("BRANCHLITE_SQL_MAX_ROWS", "25")

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.SQL.MaxRows != 25 {
		t.Errorf("SQL.MaxRows = %d, want %d", cfg.SQL.MaxRows, 25)
	}
}

func TestLoader_ConfigFileOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
data:
  dir: /tmp/branchlite-test
sql:
  max_rows: 100
log:
  level: warn
  format: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Data.Dir != "/tmp/branchlite-test" {
		t.Errorf("Data.Dir = %q, want %q", cfg.Data.Dir, "/tmp/branchlite-test")
	}
	if cfg.SQL.MaxRows != 100 {
		t.Errorf("SQL.MaxRows = %d, want %d", cfg.SQL.MaxRows, 100)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	// Keys the file does not set keep their defaults.
	if cfg.SQL.BusyTimeoutMS != 5000 {
		t.Errorf("SQL.BusyTimeoutMS = %d, want %d", cfg.SQL.BusyTimeoutMS, 5000)
	}
}

func TestLoader_Precedence(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
log:
  level: warn
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	// Environment overrides the config file.
	t.Setenv("BRANCHLITE_LOG_LEVEL", "debug")

	loader := NewLoader().WithConfigFile(configPath)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (env should override file)", cfg.Log.Level, "debug")
	}
}

func TestLoader_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid-config.yaml")

	invalidContent := `
log:
  level: [invalid yaml
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	_, err := loader.Load()
	if err == nil {
		t.Error("Load() with invalid config should return error")
	}
}

func TestLoader_ConfigFileUsed(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `log:
  level: info
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loader := NewLoader().WithConfigFile(configPath)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if used := loader.ConfigFile(); used != configPath {
		t.Errorf("ConfigFile() = %q, want %q", used, configPath)
	}
}

func TestLoader_WithEnvPrefix(t *testing.T) {
	t.Setenv("CUSTOM_LOG_LEVEL", "error")

	loader := NewLoader().WithEnvPrefix("CUSTOM")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "error")
	}
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if loader.v == nil {
		t.Error("NewLoader() viper instance is nil")
	}
	if loader.envPrefix != "BRANCHLITE" {
		t.Errorf("NewLoader() envPrefix = %q, want %q", loader.envPrefix, "BRANCHLITE")
	}
}
