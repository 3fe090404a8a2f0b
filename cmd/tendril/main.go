package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tendril/internal/config"
	"github.com/nvandessel/tendril/internal/logging"
	"github.com/nvandessel/tendril/internal/program"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tendril",
		Short: "Tendril - flow graphs that learn without backprop",
		Long: `tendril runs graph flow simulations: value moves forward along weighted
flows, slope moves back, and weight is redistributed toward the flows that
explain the error. The learning loop never computes a gradient through the
network.

Programs are either built-ins (see 'tendril programs') or YAML files.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.tendril/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newProgramsCmd(),
		newRunCmd(),
		newJumbleCmd(),
		newGraphCmd(),
		newServeCmd(),
		newMCPCmd(),
		newConfigCmd(),
		newRunsCmd(),
	)
	return rootCmd
}

// loadConfig resolves configuration for a command: --config when given,
// otherwise the default locations, then --log-level.
func loadConfig(cmd *cobra.Command) (*config.TendrilConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.TendrilConfig
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the stderr logger for cfg.
func newLogger(cfg *config.TendrilConfig, w io.Writer) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, w)
}

// newEventLogger opens events.jsonl for the run, or returns nil at info
// level.
func newEventLogger(cfg *config.TendrilConfig, run string) *logging.EventLogger {
	dir, err := cfg.EventsDir()
	if err != nil {
		return nil
	}
	return logging.NewEventLogger(dir, cfg.Logging.Level, run)
}

// resolveProgram looks up a built-in, or loads a program file on top of the
// configured simulation defaults.
func resolveProgram(name string, cfg *config.TendrilConfig) (*program.Program, error) {
	if program.IsFile(name) {
		return program.LoadFileWithBase(name, cfg.Simulation)
	}
	return program.Lookup(name)
}

// programArg returns the first positional argument or the default program.
func programArg(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}

// signalContext returns a context canceled on the first stop signal.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, stopSignals...)
}
