package simulation

import (
	"github.com/nvandessel/tendril/internal/graph"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name     string
	Topology TopologyFunc
	Data     []Sample
	Ticks    int

	// Config overrides DefaultConfig when non-nil.
	Config *Config

	// Seed feeds the random source used for default weights. Zero is a
	// valid seed.
	Seed int64

	// BeforeTick, when non-nil, is called before each tick executes. Use it
	// to perturb the graph mid-run.
	BeforeTick func(tick int, w *World)
}

// TickResult captures the outcome of one tick.
type TickResult struct {
	Report  TickReport
	Weights []float64 // weight per flow, indexed by FlowID
}

// SimulationResult captures all ticks and the final world.
type SimulationResult struct {
	Ticks []TickResult
	World *World
}

// Last returns the final tick, or the zero TickResult when nothing ran.
func (r SimulationResult) Last() TickResult {
	if len(r.Ticks) == 0 {
		return TickResult{}
	}
	return r.Ticks[len(r.Ticks)-1]
}

// Weight returns the weight of flow id after tick i.
func (r SimulationResult) Weight(i int, id graph.FlowID) float64 {
	return r.Ticks[i].Weights[id]
}
