package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tendril/internal/config"
	"github.com/nvandessel/tendril/internal/driver"
	"github.com/nvandessel/tendril/internal/metrics"
	"github.com/nvandessel/tendril/internal/pathutil"
	"github.com/nvandessel/tendril/internal/program"
	"github.com/nvandessel/tendril/internal/ratelimit"
	"github.com/nvandessel/tendril/internal/visualization"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [program]",
		Short: "Run a program on a clock behind an HTTP server",
		Long: `Step a program at a fixed interval and serve its state over HTTP.

Endpoints:
  GET  /               SVG view of the graph
  GET  /api/status     driver status
  GET  /api/snapshot   graph snapshot (?format=text|json|dot)
  POST /api/step       run ticks now (?n=)
  POST /api/pause      stop the clock
  POST /api/resume     restart the clock
  POST /api/reload     load another program ({"program": "...", "seed": 0})
  GET  /metrics        Prometheus metrics

With --watch, a program file is rebuilt whenever it changes on disk.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			seed, _ := cmd.Flags().GetInt64("seed")
			interval, _ := cmd.Flags().GetDuration("interval")
			paused, _ := cmd.Flags().GetBool("paused")
			watch, _ := cmd.Flags().GetBool("watch")
			open, _ := cmd.Flags().GetBool("open")
			refresh, _ := cmd.Flags().GetInt("refresh")
			traceOn, _ := cmd.Flags().GetBool("trace")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if interval <= 0 {
				interval = cfg.Driver.TickInterval
			}
			paused = paused || cfg.Driver.Paused

			p, err := resolveProgram(programArg(args, "flip"), cfg)
			if err != nil {
				return err
			}
			if watch && p.Source == "" {
				return errors.New("--watch needs a program file, not a built-in")
			}

			logger := newLogger(cfg, cmd.ErrOrStderr())
			collector := metrics.NewCollector()
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
				driver.WithInterval(interval),
				driver.WithPaused(paused),
				driver.WithLogger(logger),
				driver.WithEvents(events),
				driver.WithMetrics(collector),
			}
			if rec != nil {
				opts = append(opts, driver.WithTrace(rec))
			}
			dr, err := driver.New(p, seed, opts...)
			if err != nil {
				return err
			}

			allowedDirs, err := pathutil.DefaultAllowedProgramDirs()
			if err != nil {
				logger.Warn("program files disabled for remote reload", "error", err)
			}
			srv := visualization.NewServer(dr,
				visualization.WithServerLogger(logger),
				visualization.WithMetricsHandler(collector),
				visualization.WithAllowedOrigins(cfg.Server.AllowedOrigins),
				visualization.WithAllowedProgramDirs(allowedDirs),
				visualization.WithRefresh(refresh),
				visualization.WithRateLimits(ratelimit.NewLimits()),
			)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if watch {
				w, err := watchProgram(ctx, p.Source, cfg, dr, seed, logger)
				if err != nil {
					return err
				}
				defer w.Close()
			}

			go func() {
				if err := dr.Run(ctx); err != nil && !errors.Is(err, driver.ErrStopped) {
					logger.Error("driver stopped", "error", err)
				}
			}()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(ctx, addr) }()

			url, err := waitForAddr(srv, errCh)
			if err != nil {
				cancel()
				dr.Close(context.Background())
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at %s\n", p.Name, url)
			fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")
			if open {
				if err := visualization.OpenBrowser(url); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
				}
			}

			serveErr := <-errCh
			dr.Close(context.Background())
			if serveErr != nil {
				return fmt.Errorf("server error: %w", serveErr)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config)")
	cmd.Flags().Int64("seed", 0, "Random seed (0 uses the program's own seed)")
	cmd.Flags().Duration("interval", 0, "Tick interval (default from config)")
	cmd.Flags().Bool("paused", false, "Start with the clock stopped")
	cmd.Flags().Bool("watch", false, "Reload the program file when it changes")
	cmd.Flags().Bool("open", false, "Open the page in a browser")
	cmd.Flags().Int("refresh", 1, "Seconds between page refreshes (0 disables)")
	cmd.Flags().Bool("trace", false, "Record ticks in the trace database")
	return cmd
}

// watchProgram rebuilds the world from path on every valid change.
func watchProgram(ctx context.Context, path string, cfg *config.TendrilConfig, dr *driver.Driver, seed int64, logger *slog.Logger) (*program.Watcher, error) {
	return program.Watch(path, func(p *program.Program) {
		if err := dr.Reload(ctx, p, seed); err != nil {
			logger.Warn("reload rejected", "program", p.Name, "error", err)
		}
	}, program.WithBaseConfig(cfg.Simulation), program.WithWatchLogger(logger))
}

// waitForAddr blocks until srv is listening or fails to start.
func waitForAddr(srv *visualization.Server, errCh <-chan error) (string, error) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if addr := srv.Addr(); addr != "" {
			return "http://" + addr, nil
		}
		select {
		case err := <-errCh:
			if err == nil {
				err = errors.New("server exited")
			}
			return "", fmt.Errorf("server failed to start: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	return "", errors.New("server failed to start")
}
