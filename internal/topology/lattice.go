// Package topology builds node layouts and wiring inside a construction
// transaction: straight lines, rectangular grids, and the spatial jumble.
package topology

import (
	"math"

	"github.com/nvandessel/tendril/internal/graph"
)

// stepSlack absorbs rounding when a span is an exact multiple of spacing.
const stepSlack = 1e-9

// LineOptions places nodes from (X0, Y0) to (X1, Y1), Spacing apart.
type LineOptions struct {
	X0, Y0, X1, Y1 float64
	Spacing        float64
}

// Line creates nodes only, evenly spaced along the segment and starting at
// (X0, Y0). The end point is included when the length is a multiple of the
// spacing. A zero-length segment yields a single node.
func Line(tx *graph.Tx, opts LineOptions) []graph.NodeID {
	spacing := opts.Spacing
	if spacing <= 0 {
		spacing = 1
	}
	dx, dy := opts.X1-opts.X0, opts.Y1-opts.Y0
	length := math.Hypot(dx, dy)
	if length == 0 {
		return []graph.NodeID{tx.Node(opts.X0, opts.Y0)}
	}

	steps := int(math.Floor(length/spacing + stepSlack))
	ux, uy := dx/length*spacing, dy/length*spacing
	ids := make([]graph.NodeID, 0, steps+1)
	for i := 0; i <= steps; i++ {
		ids = append(ids, tx.Node(opts.X0+float64(i)*ux, opts.Y0+float64(i)*uy))
	}
	return ids
}

// GridOptions spans a lattice over [X0, X1]×[Y0, Y1].
type GridOptions struct {
	X0, Y0, X1, Y1 float64
	Spacing        float64

	// Weight sets each flow's direction attribute. Nil uses the declared
	// default.
	Weight WeightFunc
}

// Grid creates a lattice of nodes and wires each node to its right and lower
// neighbor. Overrides are passed to every flow. The result is indexed
// [column][row].
func Grid(tx *graph.Tx, opts GridOptions, overrides map[string]float64) [][]graph.NodeID {
	spacing := opts.Spacing
	if spacing <= 0 {
		spacing = 1
	}
	cols := int(math.Floor((opts.X1-opts.X0)/spacing+stepSlack)) + 1
	rows := int(math.Floor((opts.Y1-opts.Y0)/spacing+stepSlack)) + 1
	if cols <= 0 || rows <= 0 {
		return nil
	}

	nodes := make([][]graph.NodeID, cols)
	for c := range nodes {
		nodes[c] = make([]graph.NodeID, rows)
		for r := range nodes[c] {
			nodes[c][r] = tx.Node(opts.X0+float64(c)*spacing, opts.Y0+float64(r)*spacing)
		}
	}

	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			if c+1 < cols {
				Connect(tx, []graph.NodeID{nodes[c][r]}, []graph.NodeID{nodes[c+1][r]}, opts.Weight, overrides)
			}
			if r+1 < rows {
				Connect(tx, []graph.NodeID{nodes[c][r]}, []graph.NodeID{nodes[c][r+1]}, opts.Weight, overrides)
			}
		}
	}
	return nodes
}
