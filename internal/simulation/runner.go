package simulation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nvandessel/tendril/internal/logging"
	"github.com/nvandessel/tendril/internal/random"
)

// Runner builds and drives worlds for scenario tests. Phase transitions are
// written to an events file inside the test's temp dir.
type Runner struct {
	t      *testing.T
	events *logging.EventLogger
}

// NewRunner creates a runner bound to t.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	el := logging.NewEventLogger(t.TempDir(), "debug", t.Name())
	t.Cleanup(el.Close)
	return &Runner{t: t, events: el}
}

// Build constructs the scenario's world without running it.
func (r *Runner) Build(scenario Scenario) *World {
	r.t.Helper()
	cfg := DefaultConfig()
	if scenario.Config != nil {
		cfg = *scenario.Config
	}
	w, err := Build(cfg, scenario.Data, random.New(scenario.Seed), scenario.Topology, WithEvents(r.events))
	if err != nil {
		r.t.Fatalf("Build(%s): %v", scenario.Name, err)
	}
	return w
}

// Run builds the scenario's world and steps it scenario.Ticks times,
// capturing the weights after every tick.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()
	w := r.Build(scenario)

	ticks := make([]TickResult, 0, scenario.Ticks)
	for i := 0; i < scenario.Ticks; i++ {
		if scenario.BeforeTick != nil {
			scenario.BeforeTick(i, w)
		}
		report, err := w.Step()
		if err != nil {
			r.t.Fatalf("Run(%s): tick %d: %v", scenario.Name, i, err)
		}
		ticks = append(ticks, TickResult{Report: report, Weights: w.weights()})
	}
	return SimulationResult{Ticks: ticks, World: w}
}

// weights copies the current weight of every flow.
func (w *World) weights() []float64 {
	out := make([]float64, len(w.Graph.Flows))
	for i := range w.Graph.Flows {
		out[i] = w.Graph.Flows[i].Get(w.attrs.Weight)
	}
	return out
}

// FormatTickDebug returns a debug string for a tick result.
func FormatTickDebug(tr TickResult) string {
	var b strings.Builder
	rep := tr.Report
	fmt.Fprintf(&b, "Tick %d (%s): sample=%d error=%.6f score=%.6f io_sent=%.6f moved=%.6f\n",
		rep.Tick, rep.Phase, rep.Sample, rep.Error, rep.Score, rep.IOSent, rep.Moved)
	for i, v := range tr.Weights {
		fmt.Fprintf(&b, "  flow %d: weight=%.6f\n", i, v)
	}
	return b.String()
}
