package simulation

import (
	"github.com/nvandessel/tendril/internal/graph"
)

// Boundary styles used for role boundaries.
var (
	InputStyle  = graph.BoundaryOptions{DirectionFixed: true, Color: "blue"}
	OutputStyle = graph.BoundaryOptions{DirectionFixed: true, Color: "red"}
	BiasStyle   = graph.BoundaryOptions{DirectionFixed: true, Color: "blue", Shape: "circle"}
)

// AttachInput puts a direction-fixed input boundary on each node.
func (r *Roles) AttachInput(tx *graph.Tx, nodes ...graph.NodeID) {
	r.Input = append(r.Input, tx.Boundary(nodes, InputStyle)...)
}

// AttachOutput puts a direction-fixed output boundary on each node.
func (r *Roles) AttachOutput(tx *graph.Tx, nodes ...graph.NodeID) {
	r.Output = append(r.Output, tx.Boundary(nodes, OutputStyle)...)
}

// AttachPlusBias marks nodes as positive bias sources.
func (r *Roles) AttachPlusBias(tx *graph.Tx, nodes ...graph.NodeID) {
	r.PlusBias = append(r.PlusBias, tx.Boundary(nodes, BiasStyle)...)
}

// AttachMinusBias marks nodes as negative bias sources.
func (r *Roles) AttachMinusBias(tx *graph.Tx, nodes ...graph.NodeID) {
	r.MinusBias = append(r.MinusBias, tx.Boundary(nodes, BiasStyle)...)
}

// Count returns the number of boundaries with a role.
func (r *Roles) Count() int {
	return len(r.Input) + len(r.Output) + len(r.PlusBias) + len(r.MinusBias)
}

// WithConfig returns a pointer to a copy of DefaultConfig with fn applied,
// for use in Scenario.Config.
func WithConfig(fn func(c *Config)) *Config {
	c := DefaultConfig()
	fn(&c)
	return &c
}
