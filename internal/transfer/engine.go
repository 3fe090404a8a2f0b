// Package transfer implements the redistribution primitive: moving an
// attribute from each flow onto the flows that share its forward or backward
// endpoint, or into the boundary attached there.
package transfer

import (
	"math"

	"github.com/nvandessel/tendril/internal/graph"
)

// Direction selects the endpoint a transfer pivots on.
type Direction int

const (
	// Forward moves a flow's attribute onto the flows at its head (f.B).
	Forward Direction = iota
	// Backward moves a flow's attribute onto the flows at its tail (f.A).
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Engine computes transfers over one graph. It reuses scratch buffers between
// calls and is not safe for concurrent use.
type Engine struct {
	g *graph.Graph

	neighbors []*graph.Flow
	reversed  []bool
	shares    []float64
}

// NewEngine creates a transfer engine for g.
func NewEngine(g *graph.Graph) *Engine {
	return &Engine{g: g}
}

// All computes a transfer of attr across every flow.
func (e *Engine) All(attr graph.AttrID, dir Direction, p Policy) *Result {
	r := e.newResult(attr)
	for i := range e.g.Flows {
		e.transferOne(r, &e.g.Flows[i], dir, p)
	}
	return r
}

// Subset computes a transfer of attr for the given flows only. Neighbor
// shares may still land on flows outside the subset. A flow listed more than
// once is transferred once.
func (e *Engine) Subset(ids []graph.FlowID, attr graph.AttrID, dir Direction, p Policy) (*Result, error) {
	for _, id := range ids {
		if id < 0 || int(id) >= len(e.g.Flows) {
			return nil, graph.NewTopologyError("transfer subset", graph.ErrUnknownFlow)
		}
	}
	r := e.newResult(attr)
	done := make([]bool, len(e.g.Flows))
	for _, id := range ids {
		if done[id] {
			continue
		}
		done[id] = true
		e.transferOne(r, &e.g.Flows[id], dir, p)
	}
	return r, nil
}

func (e *Engine) newResult(attr graph.AttrID) *Result {
	return &Result{
		g:             e.g,
		attr:          attr,
		flowDelta:     make([]float64, len(e.g.Flows)),
		boundaryDelta: make([]float64, len(e.g.Boundaries)),
	}
}

func (e *Engine) transferOne(r *Result, f *graph.Flow, dir Direction, p Policy) {
	pivot := f.B
	if dir == Backward {
		pivot = f.A
	}

	e.neighbors = e.neighbors[:0]
	e.reversed = e.reversed[:0]
	for _, id := range e.g.Nodes[pivot].Flows {
		if id == f.ID {
			continue
		}
		n := &e.g.Flows[id]
		rev := f.Reverses(n)
		if rev && !p.IncludeReversed() {
			continue
		}
		e.neighbors = append(e.neighbors, n)
		e.reversed = append(e.reversed, rev)
	}

	boundary, hasBoundary := e.g.BoundaryAt(pivot)
	if !hasBoundary && len(e.neighbors) == 0 {
		r.Skipped++
		return
	}

	mag := p.Magnitude(f, f.Attrs[r.attr], e.neighbors)
	r.flowDelta[f.ID] -= mag
	r.Moved += math.Abs(mag)

	if hasBoundary {
		r.boundaryDelta[boundary.ID] += mag
		r.Absorbed += mag
		return
	}

	if cap(e.shares) < len(e.neighbors) {
		e.shares = make([]float64, len(e.neighbors))
	}
	e.shares = e.shares[:len(e.neighbors)]
	p.Split(f, e.neighbors, e.reversed, mag, e.shares)

	residual := -mag
	for i, n := range e.neighbors {
		r.flowDelta[n.ID] += e.shares[i]
		if e.reversed[i] {
			residual -= e.shares[i]
		} else {
			residual += e.shares[i]
		}
	}
	r.residual += residual
}

// Result holds the pending deltas of one transfer. Nothing is written to the
// graph until Apply.
type Result struct {
	g    *graph.Graph
	attr graph.AttrID

	flowDelta     []float64
	boundaryDelta []float64
	residual      float64
	done          bool

	// Skipped counts flows with neither neighbors nor a boundary.
	Skipped int
	// Moved is the total absolute magnitude that left source flows.
	Moved float64
	// Absorbed is the signed magnitude routed into boundaries.
	Absorbed float64
}

// Apply writes the deltas into the graph. Only the first call has any
// effect; it reports whether this call applied them.
func (r *Result) Apply() bool {
	if r.done {
		return false
	}
	r.done = true
	for i, d := range r.flowDelta {
		r.g.Flows[i].Attrs[r.attr] += d
	}
	for i, d := range r.boundaryDelta {
		r.g.Boundaries[i].Attrs[r.attr] += d
	}
	return true
}

// Done reports whether Apply has run.
func (r *Result) Done() bool { return r.done }

// Attr returns the attribute this transfer moves.
func (r *Result) Attr() graph.AttrID { return r.attr }

// FlowDelta returns the pending delta for flow id.
func (r *Result) FlowDelta(id graph.FlowID) float64 { return r.flowDelta[id] }

// BoundaryDelta returns the pending delta for boundary id.
func (r *Result) BoundaryDelta(id graph.BoundaryID) float64 { return r.boundaryDelta[id] }

// Residual returns the conservation error of the neighbor splits: the sum of
// all source and neighbor deltas, with shares to reversed neighbors counted
// in the source's orientation. Boundary-routed magnitude is excluded. It is
// zero up to rounding.
func (r *Result) Residual() float64 { return r.residual }
