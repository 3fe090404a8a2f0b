// Package config provides unified configuration loading for tendril.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/tendril/internal/constants"
	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/simulation"
	"github.com/nvandessel/tendril/internal/utils"
)

// TendrilConfig contains all tendril configuration settings.
type TendrilConfig struct {
	// Simulation holds the loop parameters applied on top of a program's
	// own configuration when a field is set on the command line.
	Simulation simulation.Config `json:"simulation" yaml:"simulation"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Driver controls the clocked scheduler used by serve and mcp.
	Driver DriverConfig `json:"driver" yaml:"driver"`

	// Server configures the visualization server.
	Server ServerConfig `json:"server" yaml:"server"`

	// Trace configures the SQLite tick trace.
	Trace TraceConfig `json:"trace" yaml:"trace"`
}

// LoggingConfig configures tendril's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables phase events in <dir>/events.jsonl.
	// "trace" additionally logs every tick.
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=info debug trace"`

	// Dir is where events.jsonl is written. Defaults to ~/.tendril.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// DriverConfig configures the clocked driver.
type DriverConfig struct {
	// TickInterval is the wall-clock time between ticks.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval" validate:"gt=0"`

	// Paused starts the driver without a running clock.
	Paused bool `json:"paused" yaml:"paused"`
}

// ServerConfig configures the HTTP visualization server.
type ServerConfig struct {
	// Addr is host:port to listen on.
	Addr string `json:"addr" yaml:"addr" validate:"required,hostname_port"`

	// AllowedOrigins lists CORS origins. Empty allows any localhost origin.
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// TraceConfig configures the tick trace sink.
type TraceConfig struct {
	// Enabled turns on per-tick recording.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the SQLite database file. Supports ${VAR} syntax for env vars.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Default returns a TendrilConfig with sensible defaults.
func Default() *TendrilConfig {
	return &TendrilConfig{
		Simulation: simulation.DefaultConfig(),
		Logging: LoggingConfig{
			Level: "info",
		},
		Driver: DriverConfig{
			TickInterval: constants.DefaultTickInterval,
		},
		Server: ServerConfig{
			Addr: constants.DefaultServerAddr,
		},
	}
}

// Dir returns the per-user state directory, ~/.tendril.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.tendril/config.yaml -> environment variables
func Load() (*TendrilConfig, error) {
	config := Default()

	// Try to load from default config file
	if dir, err := Dir(); err == nil {
		configPath := filepath.Join(dir, constants.ConfigFile)
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*TendrilConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Trace.Path = expandEnvVars(config.Trace.Path)
	config.Logging.Dir = expandEnvVars(config.Logging.Dir)

	return config, nil
}

// Validate checks that the configuration is valid. Violations are reported
// as a *graph.ConfigError naming every offending field.
func (c *TendrilConfig) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return graph.NewConfigError("validate config", err)
	}
	return nil
}

// TracePath returns the trace database location, defaulting to
// ~/.tendril/traces/trace.db.
func (c *TendrilConfig) TracePath() (string, error) {
	if c.Trace.Path != "" {
		return c.Trace.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.TracesDir, constants.DefaultTraceFile), nil
}

// EventsDir returns where events.jsonl goes, defaulting to ~/.tendril.
func (c *TendrilConfig) EventsDir() (string, error) {
	if c.Logging.Dir != "" {
		return c.Logging.Dir, nil
	}
	return Dir()
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *TendrilConfig) {
	if v := os.Getenv("TENDRIL_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("TENDRIL_LOG_DIR"); v != "" {
		config.Logging.Dir = v
	}

	if v := os.Getenv("TENDRIL_MODE"); v != "" {
		config.Simulation.Mode = v
	}
	if v := os.Getenv("TENDRIL_PREDICTION_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.PredictionDelay = n
		}
	}
	if v := os.Getenv("TENDRIL_TRANSFER_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.TransferRate = f
		}
	}
	if v := os.Getenv("TENDRIL_ACTIVATE"); v != "" {
		config.Simulation.Activate = v
	}
	if v := os.Getenv("TENDRIL_AMPLIFY"); v != "" {
		config.Simulation.Amplify = v
	}

	if v := os.Getenv("TENDRIL_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Driver.TickInterval = d
		}
	}

	if v := os.Getenv("TENDRIL_SERVER_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("TENDRIL_TRACE"); v != "" {
		config.Trace.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TENDRIL_TRACE_PATH"); v != "" {
		config.Trace.Path = expandEnvVars(v)
		config.Trace.Enabled = true
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
