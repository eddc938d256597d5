package config

import "gopkg.in/yaml.v3"

// Config holds all application configuration.
type Config struct {
	Data DataConfig `mapstructure:"data" yaml:"data"`
	SQL  SQLConfig  `mapstructure:"sql" yaml:"sql"`
	Log  LogConfig  `mapstructure:"log" yaml:"log"`
}

// DataConfig locates the on-disk stores.
type DataConfig struct {
	// Dir is the root directory holding the project registry and one
	// subdirectory per project store.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SQLConfig bounds statement execution.
type SQLConfig struct {
	// MaxRows caps how many rows a SELECT returns before the result is
	// marked truncated.
	MaxRows int `mapstructure:"max_rows" yaml:"max_rows"`
	// BusyTimeoutMS is how long a statement waits on a locked store.
	BusyTimeoutMS int `mapstructure:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// YAML renders the configuration as YAML, for `branchlite config show`.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
