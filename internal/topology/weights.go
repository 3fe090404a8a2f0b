package topology

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/random"
)

// WeightFunc produces the initial direction-attribute value for a new flow
// a→b. Weights are plain numbers by the time they reach the graph; no
// expression is ever evaluated.
type WeightFunc func(a, b graph.Node) float64

// Const always returns v.
func Const(v float64) WeightFunc {
	return func(graph.Node, graph.Node) float64 { return v }
}

// Uniform draws each weight from [lo, hi) using rnd.
func Uniform(rnd *random.Source, lo, hi float64) WeightFunc {
	return func(graph.Node, graph.Node) float64 { return rnd.Range(lo, hi) }
}

// Noise samples 2D simplex noise at the midpoint of the edge and maps it from
// [-1, 1] onto [lo, hi]. Nearby edges get similar weights.
func Noise(seed int64, scale, lo, hi float64) WeightFunc {
	noise := opensimplex.New(seed)
	return func(a, b graph.Node) float64 {
		mx := (a.X + b.X) / 2 * scale
		my := (a.Y + b.Y) / 2 * scale
		n := noise.Eval2(mx, my)
		return lo + (n+1)/2*(hi-lo)
	}
}

// Connect creates one flow a→b per pair in as×bs. When wf is non-nil it
// sets each flow's direction attribute on top of overrides.
func Connect(tx *graph.Tx, as, bs []graph.NodeID, wf WeightFunc, overrides map[string]float64) []graph.FlowID {
	if wf == nil {
		return tx.FlowWith(as, bs, overrides)
	}
	g := tx.Graph()
	dir, err := g.DirectionAttr()
	if err != nil {
		tx.Fail(err)
		return nil
	}
	name := g.Attributes()[dir].Name
	merged := make(map[string]float64, len(overrides)+1)
	for k, v := range overrides {
		merged[k] = v
	}

	var created []graph.FlowID
	for _, a := range as {
		for _, b := range bs {
			if !g.HasNode(a) || !g.HasNode(b) {
				// Let FlowWith report the unknown endpoint.
				return append(created, tx.FlowWith([]graph.NodeID{a}, []graph.NodeID{b}, overrides)...)
			}
			merged[name] = wf(*g.Node(a), *g.Node(b))
			created = append(created, tx.FlowWith([]graph.NodeID{a}, []graph.NodeID{b}, merged)...)
		}
	}
	return created
}
