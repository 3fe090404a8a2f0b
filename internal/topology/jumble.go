package topology

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/random"
)

const (
	// initialSearchSize is the side of the first square searched around a node.
	initialSearchSize = 8.0

	// maxDoublings bounds the expanding search even for degenerate indexes.
	maxDoublings = 64
)

var errEmptyJumble = errors.New("jumble needs a positive node count and neighbor count")

// JumbleOptions configures a random spatial topology.
type JumbleOptions struct {
	// Rect is the area nodes are scattered over. Its corners may be given in
	// either order.
	Rect graph.Rect

	// Count is the number of nodes to place.
	Count int

	// Neighbors is the number of nearest neighbors (K) each node is wired to.
	Neighbors int

	// Weight sets each new flow's direction attribute. Nil uses the
	// attribute's declared default.
	Weight WeightFunc
}

// Jumble scatters opts.Count nodes uniformly over opts.Rect and wires each
// to its opts.Neighbors nearest distinct-location neighbors. A pair that is
// already joined in either direction is skipped, so no unordered node pair
// ever carries two flows. Nodes may end up with fewer than K neighbors when
// the area holds too few distinct points.
func Jumble(tx *graph.Tx, opts JumbleOptions, rnd *random.Source) ([]graph.NodeID, []graph.FlowID) {
	if opts.Count <= 0 || opts.Neighbors <= 0 {
		tx.Fail(graph.NewConfigError("jumble", errEmptyJumble))
		return nil, nil
	}
	g := tx.Graph()

	r := opts.Rect.Canon()
	ids := make([]graph.NodeID, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		x := rnd.Float64()*(r.X1-r.X0) + r.X0
		y := rnd.Float64()*(r.Y1-r.Y0) + r.Y0
		ids = append(ids, tx.Node(x, y))
	}
	if tx.Err() != nil {
		return nil, nil
	}

	idx := graph.NewSpatialIndex(r.Width(), r.Height())
	for _, id := range ids {
		idx.Insert(*g.Node(id))
	}

	var flows []graph.FlowID
	for _, id := range ids {
		for _, nb := range FindClosestN(g, idx, id, opts.Neighbors) {
			if g.Connected(id, nb) {
				continue
			}
			flows = append(flows, Connect(tx, []graph.NodeID{id}, []graph.NodeID{nb}, opts.Weight, nil)...)
		}
	}
	return ids, flows
}

// FindClosestN returns up to n indexed nodes nearest to origin by taxicab
// distance, closest first, excluding nodes at the origin's exact location.
//
// The search starts with a square of side 8 centred on the origin and doubles
// it until it holds more than n candidates or its side reaches twice the
// larger index dimension.
func FindClosestN(g *graph.Graph, idx *graph.SpatialIndex, origin graph.NodeID, n int) []graph.NodeID {
	o := *g.Node(origin)
	limit := 2 * math.Max(idx.Width, idx.Height)

	size := initialSearchSize
	var candidates []graph.NodeID
	for i := 0; i < maxDoublings; i++ {
		candidates = idx.QueryStrict(graph.Square(o.X, o.Y, size))
		if len(candidates) > n || size >= limit {
			break
		}
		size *= 2
	}

	dist := func(id graph.NodeID) float64 {
		p := g.Node(id)
		return math.Abs(p.X-o.X) + math.Abs(p.Y-o.Y)
	}
	candidates = slices.DeleteFunc(candidates, func(id graph.NodeID) bool {
		return dist(id) == 0
	})
	slices.SortStableFunc(candidates, func(a, b graph.NodeID) int {
		return cmp.Compare(dist(a), dist(b))
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
