package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tendril/internal/config"
	"github.com/nvandessel/tendril/internal/driver"
	"github.com/nvandessel/tendril/internal/mcp"
	"github.com/nvandessel/tendril/internal/metrics"
	"github.com/nvandessel/tendril/internal/pathutil"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp [program]",
		Short: "Serve a running program to agents over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout. Agents drive the
simulation with the tendril_step, tendril_snapshot, tendril_status and
tendril_load tools. The world only advances when a tool asks it to, unless
--clock is set.

Program files may be loaded from ~/.tendril/programs and
<root>/.tendril/programs. Every tool call is appended to
~/.tendril/audit.jsonl.

Example client configuration:
  {"command": "tendril", "args": ["mcp", "boolean"]}`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			seed, _ := cmd.Flags().GetInt64("seed")
			clock, _ := cmd.Flags().GetBool("clock")
			traceOn, _ := cmd.Flags().GetBool("trace")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := resolveProgram(programArg(args, "flip"), cfg)
			if err != nil {
				return err
			}

			// stdout carries the protocol.
			logger := newLogger(cfg, os.Stderr)
			rec, err := openRecorder(cfg, traceOn)
			if err != nil {
				return err
			}
			if rec != nil {
				defer rec.Close()
			}
			events := newEventLogger(cfg, p.Name)
			defer events.Close()

			opts := []driver.Option{
				driver.WithInterval(cfg.Driver.TickInterval),
				driver.WithPaused(!clock),
				driver.WithLogger(logger),
				driver.WithEvents(events),
				driver.WithMetrics(metrics.NewCollector()),
			}
			if rec != nil {
				opts = append(opts, driver.WithTrace(rec))
			}
			dr, err := driver.New(p, seed, opts...)
			if err != nil {
				return err
			}
			defer dr.Close(context.Background())

			allowedDirs, err := pathutil.DefaultAllowedProgramDirsWithProjectRoot(root)
			if err != nil {
				logger.Warn("program files disabled for tendril_load", "error", err)
			}
			auditDir, err := config.Dir()
			if err != nil {
				auditDir = ""
			}

			srv, err := mcp.NewServer(&mcp.Config{
				Name:        "tendril",
				Version:     version,
				Driver:      dr,
				AllowedDirs: allowedDirs,
				AuditDir:    auditDir,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			defer srv.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			if clock {
				go func() {
					if err := dr.Run(ctx); err != nil && !errors.Is(err, driver.ErrStopped) {
						logger.Error("driver stopped", "error", err)
					}
				}()
			}

			logger.Info("mcp server starting", "program", p.Name)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("root", ".", "Project root for program files")
	cmd.Flags().Int64("seed", 0, "Random seed (0 uses the program's own seed)")
	cmd.Flags().Bool("clock", false, "Also step the world on the configured tick interval")
	cmd.Flags().Bool("trace", false, "Record ticks in the trace database")
	return cmd
}
