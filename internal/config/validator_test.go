package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Data: DataConfig{Dir: "/tmp/branchlite-test"},
		SQL:  SQLConfig{MaxRows: 500, BusyTimeoutMS: 5000},
		Log:  LogConfig{Level: "info", Format: "auto"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := ValidateConfig(validConfig()); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestValidate_MissingDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.Data.Dir = ""
	if err := ValidateConfig(cfg); err == nil {
		t.Error("Validate() should reject empty data.dir")
	}
}

func TestValidate_MaxRows(t *testing.T) {
	tests := []struct {
		maxRows int
		wantErr bool
	}{
		{1, false},
		{500, false},
		{100000, false},
		{0, true},
		{-1, true},
	}
	for _, tt := range tests {
		cfg := validConfig()
		cfg.SQL.MaxRows = tt.maxRows
		err := ValidateConfig(cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("max_rows=%d: error = %v, wantErr %v", tt.maxRows, err, tt.wantErr)
		}
	}
}

func TestValidate_BusyTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.SQL.BusyTimeoutMS = -100
	if err := ValidateConfig(cfg); err == nil {
		t.Error("Validate() should reject negative busy_timeout_ms")
	}

	cfg = validConfig()
	cfg.SQL.BusyTimeoutMS = 0
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("busy_timeout_ms=0 should be allowed, got %v", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Log.Level = level
		if err := ValidateConfig(cfg); err != nil {
			t.Errorf("level %q should be valid, got %v", level, err)
		}
	}

	cfg := validConfig()
	cfg.Log.Level = "verbose"
	if err := ValidateConfig(cfg); err == nil {
		t.Error("Validate() should reject unknown log level")
	}
}

func TestValidate_LogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Format = "xml"
	if err := ValidateConfig(cfg); err == nil {
		t.Error("Validate() should reject unknown log format")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Data: DataConfig{Dir: ""},
		SQL:  SQLConfig{MaxRows: 0, BusyTimeoutMS: -1},
		Log:  LogConfig{Level: "loud", Format: "xml"},
	}

	err := ValidateConfig(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want errors")
	}
	verr, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verr) != 5 {
		t.Errorf("collected %d errors, want 5: %v", len(verr), verr)
	}
	if !strings.Contains(verr.Error(), "sql.max_rows") {
		t.Errorf("joined error missing field name: %s", verr.Error())
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "sql.max_rows", Value: 0, Message: "must be at least 1"}
	got := e.Error()
	want := "config validation: sql.max_rows: must be at least 1 (got: 0)"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
