package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/tendril/internal/config"
	"github.com/nvandessel/tendril/internal/constants"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tendril configuration",
		Long: `View and modify tendril configuration settings.

Configuration is stored in ~/.tendril/config.yaml. The simulation section is
the base every program file is parsed on top of.

Examples:
  tendril config list                                # Show all settings
  tendril config get simulation.prediction_delay     # Get a specific setting
  tendril config set driver.tick_interval 50ms       # Set a setting
  tendril config set logging.level debug`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)
	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}

			path, _ := configPath(cmd)
			fmt.Fprintf(out, "Configuration (%s):\n", path)
			for _, key := range configKeys {
				v, _ := getConfigValue(cfg, key)
				fmt.Fprintf(out, "  %-30s %v\n", key+":", v)
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			cfg, err := loadConfig(cmd)
			if errors.Is(err, fs.ErrNotExist) {
				// First write to a --config file that does not exist yet.
				cfg, err = config.Default(), nil
			}
			if err != nil {
				return err
			}
			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			if err := saveConfig(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"logging.level",
	"logging.dir",
	"simulation.mode",
	"simulation.prediction_delay",
	"simulation.transfer_rate",
	"simulation.cycle_aspect",
	"simulation.cycle_leak",
	"simulation.value_decay",
	"simulation.slope_decay",
	"simulation.amplitude",
	"simulation.activate",
	"simulation.amplify",
	"simulation.leak_rate",
	"simulation.sign_gate",
	"driver.tick_interval",
	"driver.paused",
	"server.addr",
	"trace.enabled",
	"trace.path",
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.TendrilConfig, key string) (any, bool) {
	s := &cfg.Simulation
	switch key {
	case "logging.level":
		return cfg.Logging.Level, true
	case "logging.dir":
		return cfg.Logging.Dir, true
	case "simulation.mode":
		return s.Mode, true
	case "simulation.prediction_delay":
		return s.PredictionDelay, true
	case "simulation.transfer_rate":
		return s.TransferRate, true
	case "simulation.cycle_aspect":
		return s.CycleAspect, true
	case "simulation.cycle_leak":
		return s.CycleLeak, true
	case "simulation.value_decay":
		return s.ValueDecay, true
	case "simulation.slope_decay":
		return s.SlopeDecay, true
	case "simulation.amplitude":
		return s.Amplitude, true
	case "simulation.activate":
		return s.Activate, true
	case "simulation.amplify":
		return s.Amplify, true
	case "simulation.leak_rate":
		return s.LeakRate, true
	case "simulation.sign_gate":
		return s.SignGate, true
	case "driver.tick_interval":
		return cfg.Driver.TickInterval.String(), true
	case "driver.paused":
		return cfg.Driver.Paused, true
	case "server.addr":
		return cfg.Server.Addr, true
	case "trace.enabled":
		return cfg.Trace.Enabled, true
	case "trace.path":
		return cfg.Trace.Path, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key. Range
// checks are left to TendrilConfig.Validate.
func setConfigValue(cfg *config.TendrilConfig, key, value string) error {
	s := &cfg.Simulation
	floatField := map[string]*float64{
		"simulation.transfer_rate": &s.TransferRate,
		"simulation.cycle_aspect":  &s.CycleAspect,
		"simulation.cycle_leak":    &s.CycleLeak,
		"simulation.value_decay":   &s.ValueDecay,
		"simulation.slope_decay":   &s.SlopeDecay,
		"simulation.amplitude":     &s.Amplitude,
		"simulation.leak_rate":     &s.LeakRate,
	}
	if f, ok := floatField[key]; ok {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %s", key, value)
		}
		*f = v
		return nil
	}

	switch key {
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.dir":
		cfg.Logging.Dir = value
	case "simulation.mode":
		s.Mode = value
	case "simulation.prediction_delay":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		s.PredictionDelay = n
	case "simulation.activate":
		s.Activate = value
	case "simulation.amplify":
		s.Amplify = value
	case "simulation.sign_gate":
		s.SignGate = value == "true" || value == "1"
	case "driver.tick_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Driver.TickInterval = d
	case "driver.paused":
		cfg.Driver.Paused = value == "true" || value == "1"
	case "server.addr":
		cfg.Server.Addr = value
	case "trace.enabled":
		cfg.Trace.Enabled = value == "true" || value == "1"
	case "trace.path":
		cfg.Trace.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// configPath is --config when set, otherwise ~/.tendril/config.yaml.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFile), nil
}

// saveConfig writes cfg to path, creating its directory.
func saveConfig(cfg *config.TendrilConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
