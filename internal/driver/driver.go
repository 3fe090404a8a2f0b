// Package driver owns a running world. It steps the world on a fixed
// interval, serializes every read and write against the tick, and fans each
// tick report out to metrics, the trace database and the event log.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/tendril/internal/constants"
	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/logging"
	"github.com/nvandessel/tendril/internal/metrics"
	"github.com/nvandessel/tendril/internal/program"
	"github.com/nvandessel/tendril/internal/simulation"
	"github.com/nvandessel/tendril/internal/trace"
)

// ErrStopped is returned by Step after the driver has been closed.
var ErrStopped = errors.New("driver stopped")

// Status describes the driver and its world between ticks.
type Status struct {
	Program    string                 `json:"program"`
	Source     string                 `json:"source,omitempty"`
	Seed       int64                  `json:"seed"`
	Mode       string                 `json:"mode"`
	Tick       int                    `json:"tick"`
	NextPhase  string                 `json:"next_phase,omitempty"`
	Paused     bool                   `json:"paused"`
	Interval   string                 `json:"interval"`
	Nodes      int                    `json:"nodes"`
	Flows      int                    `json:"flows"`
	Boundaries int                    `json:"boundaries"`
	RunID      string                 `json:"run_id,omitempty"`
	Last       *simulation.TickReport `json:"last,omitempty"`
}

// Driver runs one world at a time. All methods are safe for concurrent use.
type Driver struct {
	mu       sync.Mutex
	prog     *program.Program
	seed     int64
	world    *simulation.World
	last     *simulation.TickReport
	paused   bool
	closed   bool
	interval time.Duration
	runID    string

	logger   *slog.Logger
	events   *logging.EventLogger
	metrics  *metrics.Collector
	recorder *trace.Recorder
}

// Option configures a Driver.
type Option func(*Driver)

// WithInterval sets the time between scheduled ticks.
func WithInterval(d time.Duration) Option {
	return func(dr *Driver) { dr.interval = d }
}

// WithPaused starts the driver paused; only explicit Step calls advance it.
func WithPaused(paused bool) Option {
	return func(dr *Driver) { dr.paused = paused }
}

// WithLogger sets the operational logger, which is also handed to worlds.
func WithLogger(l *slog.Logger) Option {
	return func(dr *Driver) { dr.logger = logging.OrDiscard(l) }
}

// WithEvents sets the JSONL event sink.
func WithEvents(el *logging.EventLogger) Option {
	return func(dr *Driver) { dr.events = el }
}

// WithMetrics reports every tick to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(dr *Driver) { dr.metrics = c }
}

// WithTrace records every tick to rec. The driver does not close rec.
func WithTrace(rec *trace.Recorder) Option {
	return func(dr *Driver) { dr.recorder = rec }
}

// New builds p with seed and returns a driver holding the world. A zero
// seed falls back to the program's own seed.
func New(p *program.Program, seed int64, opts ...Option) (*Driver, error) {
	dr := &Driver{
		interval: constants.DefaultTickInterval,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(dr)
	}
	if dr.interval <= 0 {
		return nil, graph.NewConfigError("driver", fmt.Errorf("tick interval must be positive, got %s", dr.interval))
	}

	w, seed, err := dr.build(p, seed)
	if err != nil {
		return nil, err
	}
	dr.install(context.Background(), p, seed, w)
	return dr, nil
}

func (dr *Driver) build(p *program.Program, seed int64) (*simulation.World, int64, error) {
	if seed == 0 {
		seed = p.Seed
	}
	w, err := p.Build(seed, simulation.WithLogger(dr.logger), simulation.WithEvents(dr.events))
	if err != nil {
		return nil, 0, err
	}
	return w, seed, nil
}

// install swaps in a new world and opens a trace run for it. Callers hold
// mu, except New.
func (dr *Driver) install(ctx context.Context, p *program.Program, seed int64, w *simulation.World) {
	dr.prog, dr.seed, dr.world, dr.last = p, seed, w, nil
	dr.runID = ""
	if dr.recorder != nil {
		id, err := dr.recorder.StartRun(ctx, trace.RunInfo{
			Program: p.Name,
			Seed:    seed,
			Config:  w.Config,
			Nodes:   len(w.Graph.Nodes),
			Flows:   len(w.Graph.Flows),
		})
		if err != nil {
			dr.logger.Warn("trace run not started", "error", err)
		} else {
			dr.runID = id
		}
	}
	dr.events.Log("run_start", map[string]any{"program": p.Name, "seed": seed, "run_id": dr.runID})
	dr.logger.Info("program loaded", "program", p.Name, "seed", seed,
		"nodes", len(w.Graph.Nodes), "flows", len(w.Graph.Flows))
}

// finish closes the current trace run. Callers hold mu.
func (dr *Driver) finish(ctx context.Context) {
	if dr.world != nil {
		dr.events.Log("run_end", map[string]any{"program": dr.prog.Name, "ticks": dr.world.Tick, "run_id": dr.runID})
	}
	if dr.recorder == nil || dr.runID == "" {
		return
	}
	if err := dr.recorder.FinishRun(ctx, dr.runID); err != nil {
		dr.logger.Warn("trace run not finished", "run_id", dr.runID, "error", err)
	}
}

// Step runs n ticks immediately, whether or not the driver is paused. n is
// capped at constants.MaxStepsPerCall. On error the reports of the ticks
// completed so far are returned and the driver pauses.
func (dr *Driver) Step(ctx context.Context, n int) ([]simulation.TickReport, error) {
	if n <= 0 {
		return nil, nil
	}
	n = min(n, constants.MaxStepsPerCall)

	dr.mu.Lock()
	defer dr.mu.Unlock()
	if dr.closed {
		return nil, ErrStopped
	}
	return dr.step(ctx, n)
}

func (dr *Driver) step(ctx context.Context, n int) ([]simulation.TickReport, error) {
	reports := make([]simulation.TickReport, 0, n)
	var stepErr error
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			stepErr = err
			break
		}
		start := time.Now()
		r, err := dr.world.Step()
		if err != nil {
			dr.paused = true
			dr.logger.Error("tick failed, pausing", "tick", dr.world.Tick, "error", err)
			stepErr = fmt.Errorf("tick %d: %w", dr.world.Tick, err)
			break
		}
		dr.metrics.ObserveTick(r, time.Since(start).Seconds())
		reports = append(reports, r)
	}
	if len(reports) > 0 {
		last := reports[len(reports)-1]
		dr.last = &last
	}
	if dr.recorder != nil && dr.runID != "" && len(reports) > 0 {
		if err := dr.recorder.RecordTicks(context.WithoutCancel(ctx), dr.runID, reports...); err != nil {
			dr.logger.Warn("trace write failed", "run_id", dr.runID, "error", err)
		}
	}
	return reports, stepErr
}

// Run steps the world every interval until ctx is done. Paused intervals
// are skipped.
func (dr *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(dr.interval)
	defer ticker.Stop()

	dr.logger.Debug("driver started", "interval", dr.interval)
	for {
		select {
		case <-ctx.Done():
			dr.logger.Debug("driver stopped")
			return nil
		case <-ticker.C:
			dr.mu.Lock()
			if dr.closed {
				dr.mu.Unlock()
				return ErrStopped
			}
			if !dr.paused {
				_, _ = dr.step(ctx, 1)
			}
			dr.mu.Unlock()
		}
	}
}

// Pause stops scheduled ticks.
func (dr *Driver) Pause() {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	dr.paused = true
}

// Resume restarts scheduled ticks.
func (dr *Driver) Resume() {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	dr.paused = false
}

// Snapshot copies the world state between ticks.
func (dr *Driver) Snapshot() *graph.Snapshot {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	return dr.world.Snapshot()
}

// SnapshotToTrace stores the current flow states in the trace database.
func (dr *Driver) SnapshotToTrace(ctx context.Context) error {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	if dr.recorder == nil || dr.runID == "" {
		return nil
	}
	return dr.recorder.RecordSnapshot(ctx, dr.runID, dr.world.Snapshot())
}

// Status reports the driver state.
func (dr *Driver) Status() Status {
	dr.mu.Lock()
	defer dr.mu.Unlock()

	w := dr.world
	s := Status{
		Program:    dr.prog.Name,
		Source:     dr.prog.Source,
		Seed:       dr.seed,
		Mode:       w.Config.Mode,
		Tick:       w.Tick,
		Paused:     dr.paused,
		Interval:   dr.interval.String(),
		Nodes:      len(w.Graph.Nodes),
		Flows:      len(w.Graph.Flows),
		Boundaries: len(w.Graph.Boundaries),
		RunID:      dr.runID,
		Last:       dr.last,
	}
	if w.Config.Mode == simulation.ModePhased {
		if phase, err := simulation.PhaseAt(w.Tick, w.Config.PredictionDelay); err == nil {
			s.NextPhase = phase.String()
		}
	}
	return s
}

// Reload replaces the world with a fresh build of p. When the build fails
// the current world keeps running and the error is returned.
func (dr *Driver) Reload(ctx context.Context, p *program.Program, seed int64) error {
	w, seed, err := dr.build(p, seed)
	dr.metrics.ObserveReload(err)
	if err != nil {
		dr.logger.Warn("reload failed, keeping current world", "program", p.Name, "error", err)
		return err
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()
	if dr.closed {
		return ErrStopped
	}
	dr.finish(ctx)
	dr.install(ctx, p, seed, w)
	return nil
}

// Close finishes the trace run. Further Step and Run calls return
// ErrStopped.
func (dr *Driver) Close(ctx context.Context) error {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	if dr.closed {
		return nil
	}
	dr.closed = true
	dr.finish(ctx)
	return nil
}
