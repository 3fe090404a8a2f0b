package simulation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nvandessel/tendril/internal/activation"
	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/logging"
	"github.com/nvandessel/tendril/internal/random"
	"github.com/nvandessel/tendril/internal/transfer"
)

// Attribute names declared on every world.
const (
	AttrWeight = "weight"
	AttrValue  = "value"
	AttrSlope  = "slope"
)

// Sample is one training pair: X is injected into the input flows, Y is the
// target for the output flows.
type Sample struct {
	X []float64 `yaml:"x" json:"x"`
	Y []float64 `yaml:"y" json:"y"`
}

// Roles names the boundaries with a job in the loop. Topology functions fill
// it while building.
type Roles struct {
	Input     []graph.BoundaryID
	Output    []graph.BoundaryID
	PlusBias  []graph.BoundaryID
	MinusBias []graph.BoundaryID
}

// TopologyFunc builds the graph inside the construction transaction and
// records boundary roles.
type TopologyFunc func(tx *graph.Tx, roles *Roles)

// Attrs holds the resolved ids of the three simulation attributes.
type Attrs struct {
	Weight, Value, Slope graph.AttrID
}

var (
	errRoleFlowCount = errors.New("input and output nodes need exactly one flow")
	errSampleShape   = errors.New("sample does not match boundary count")
)

// World is a built graph plus the loop state that advances it. A World is
// not safe for concurrent use; one Step call is atomic from the caller's
// point of view.
type World struct {
	Graph  *graph.Graph
	Config Config
	Data   []Sample
	Roles  Roles
	Tick   int

	attrs    Attrs
	engine   *transfer.Engine
	activate activation.Func
	amplify  activation.Amplifier

	inputFlows  []graph.FlowID
	outputFlows []graph.FlowID
	plusFlows   []graph.FlowID
	minusFlows  []graph.FlowID
	biasNodes   map[graph.NodeID]int8

	logger    *slog.Logger
	events    *logging.EventLogger
	lastPhase Phase
}

// Option configures a World.
type Option func(*World)

// WithLogger sets the operational logger. Phase transitions are logged at
// debug and per-tick detail at trace.
func WithLogger(l *slog.Logger) Option {
	return func(w *World) { w.logger = logging.OrDiscard(l) }
}

// WithEvents sets the JSONL event sink for phase transitions.
func WithEvents(el *logging.EventLogger) Option {
	return func(w *World) { w.events = el }
}

// Build validates cfg, declares the weight, value and slope attributes,
// runs topo inside a construction transaction, and enforces the direction
// and mean-weight invariants once before the first tick. Weights default to
// a uniform draw from [-1, 1) unless topo redeclares them.
func Build(cfg Config, data []Sample, rnd *random.Source, topo TopologyFunc, opts ...Option) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	act, err := activation.Lookup(cfg.Activate)
	if err != nil {
		return nil, graph.NewConfigError("activation", err)
	}
	amp, err := activation.LookupAmplifier(cfg.Amplify)
	if err != nil {
		return nil, graph.NewConfigError("amplifier", err)
	}

	g := graph.New()
	err = g.Transaction(func(tx *graph.Tx) {
		tx.Attribute(AttrWeight, graph.AttributeOptions{Direction: true, Default: rnd.Uniform(-1, 1)})
		tx.Attribute(AttrValue, graph.AttributeOptions{})
		tx.Attribute(AttrSlope, graph.AttributeOptions{})
	})
	if err != nil {
		return nil, err
	}

	w := &World{
		Graph:    g,
		Config:   cfg,
		Data:     data,
		engine:   transfer.NewEngine(g),
		activate: act,
		amplify:  amp,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := g.Transaction(func(tx *graph.Tx) { topo(tx, &w.Roles) }); err != nil {
		return nil, fmt.Errorf("build topology: %w", err)
	}

	w.attrs.Weight, _ = g.Attr(AttrWeight)
	w.attrs.Value, _ = g.Attr(AttrValue)
	w.attrs.Slope, _ = g.Attr(AttrSlope)

	if err := w.bindRoles(); err != nil {
		return nil, err
	}

	g.ResetBoundaries()
	if _, err := g.Sanitise(); err != nil {
		return nil, err
	}
	g.Normalise(w.attrs.Weight, 1)

	w.logger.Debug("world built",
		"nodes", len(g.Nodes), "flows", len(g.Flows), "boundaries", len(g.Boundaries),
		"mode", cfg.Mode, "samples", len(data))
	return w, nil
}

// bindRoles resolves role boundaries to their flows and checks the shape
// of the data against them.
func (w *World) bindRoles() error {
	g := w.Graph
	for _, group := range [][]graph.BoundaryID{w.Roles.Input, w.Roles.Output, w.Roles.PlusBias, w.Roles.MinusBias} {
		for _, id := range group {
			if id < 0 || int(id) >= len(g.Boundaries) {
				return graph.NewTopologyError("bind roles", fmt.Errorf("unknown boundary %d", id))
			}
		}
	}

	if w.Config.Mode == ModePhased {
		for _, group := range [][]graph.BoundaryID{w.Roles.Input, w.Roles.Output} {
			for _, id := range group {
				b := g.Boundary(id)
				if n := len(g.Node(b.Node).Flows); n != 1 {
					return graph.NewTopologyError("bind roles",
						fmt.Errorf("%w: node %d has %d", errRoleFlowCount, b.Node, n))
				}
			}
		}
	}

	w.inputFlows = g.BoundaryFlows(w.Roles.Input)
	w.outputFlows = g.BoundaryFlows(w.Roles.Output)
	w.plusFlows = g.BoundaryFlows(w.Roles.PlusBias)
	w.minusFlows = g.BoundaryFlows(w.Roles.MinusBias)

	w.biasNodes = make(map[graph.NodeID]int8)
	for _, id := range w.Roles.PlusBias {
		w.biasNodes[g.Boundary(id).Node] = 1
	}
	for _, id := range w.Roles.MinusBias {
		w.biasNodes[g.Boundary(id).Node] = -1
	}

	if w.Config.Mode != ModePhased {
		return nil
	}
	for i, s := range w.Data {
		if len(s.X) != len(w.inputFlows) || len(s.Y) != len(w.outputFlows) {
			return graph.NewConfigError("bind data", fmt.Errorf(
				"%w: sample %d has %d inputs and %d targets, graph has %d and %d",
				errSampleShape, i, len(s.X), len(s.Y), len(w.inputFlows), len(w.outputFlows)))
		}
	}
	return nil
}

// Attrs returns the resolved attribute ids.
func (w *World) Attrs() Attrs { return w.attrs }

// OutputFlows returns the flows whose values are read as outputs.
func (w *World) OutputFlows() []graph.FlowID { return w.outputFlows }

// Snapshot copies the current state for rendering.
func (w *World) Snapshot() *graph.Snapshot { return w.Graph.Snapshot(w.Tick) }

// sample returns the sample presented at the current tick. Without data it
// returns zero vectors sized to the boundaries.
func (w *World) sample() (int, Sample) {
	idx := SampleIndex(w.Tick, w.Config.PredictionDelay, len(w.Data))
	if idx < 0 {
		return -1, Sample{
			X: make([]float64, len(w.inputFlows)),
			Y: make([]float64, len(w.outputFlows)),
		}
	}
	return idx, w.Data[idx]
}
