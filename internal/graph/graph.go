// Package graph owns the node, flow and boundary tables of a simulation and
// the attributes they carry. Topology is created only inside a construction
// transaction; afterwards the simulation mutates attribute values in place.
package graph

// NodeID, FlowID and BoundaryID are dense, zero-based and stable for the
// lifetime of a graph. Nothing is ever deleted.
type (
	NodeID     int
	FlowID     int
	BoundaryID int
)

// Node is a point in the plane. Flows lists every flow with this node as an
// endpoint and is rebuilt whenever a transaction commits.
type Node struct {
	ID    NodeID
	X, Y  float64
	Flows []FlowID
}

// Flow is a directed edge A→B carrying one value per declared attribute.
type Flow struct {
	ID    FlowID
	A, B  NodeID
	Attrs []float64
}

// Get returns the flow's value for attribute a.
func (f *Flow) Get(a AttrID) float64 { return f.Attrs[a] }

// Set stores v for attribute a.
func (f *Flow) Set(a AttrID, v float64) { f.Attrs[a] = v }

// Add adds d to attribute a.
func (f *Flow) Add(a AttrID, d float64) { f.Attrs[a] += d }

// Reverses reports whether other traverses the same physical edge in the
// opposite sense relative to f: the two flows share a tail or share a head.
func (f *Flow) Reverses(other *Flow) bool {
	return other.A == f.A || other.B == f.B
}

// Boundary attaches an external terminal to a node. Its attribute slots
// receive whatever a transfer routes into the node.
type Boundary struct {
	ID             BoundaryID
	Node           NodeID
	DirectionFixed bool
	Attrs          []float64

	// Color and Shape are rendering hints only.
	Color string
	Shape string
}

// Get returns the boundary's value for attribute a.
func (b *Boundary) Get(a AttrID) float64 { return b.Attrs[a] }

// Graph holds the topology and attribute registry. It is not safe for
// concurrent use; callers serialize access between ticks.
type Graph struct {
	Nodes      []Node
	Flows      []Flow
	Boundaries []Boundary

	attrs      []Attribute
	attrIndex  map[string]AttrID
	direction  AttrID
	boundaryAt map[NodeID]BoundaryID
}

// New creates an empty graph with no attributes.
func New() *Graph {
	return &Graph{
		attrIndex:  make(map[string]AttrID),
		direction:  NoAttr,
		boundaryAt: make(map[NodeID]BoundaryID),
	}
}

// Flow returns the flow with the given id.
func (g *Graph) Flow(id FlowID) *Flow { return &g.Flows[id] }

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) *Node { return &g.Nodes[id] }

// Boundary returns the boundary with the given id.
func (g *Graph) Boundary(id BoundaryID) *Boundary { return &g.Boundaries[id] }

// BoundaryAt returns the first boundary attached to node n.
func (g *Graph) BoundaryAt(n NodeID) (*Boundary, bool) {
	id, ok := g.boundaryAt[n]
	if !ok {
		return nil, false
	}
	return &g.Boundaries[id], true
}

// HasNode reports whether id names an existing node.
func (g *Graph) HasNode(id NodeID) bool {
	return id >= 0 && int(id) < len(g.Nodes)
}

// BoundaryFlows returns the flows adjacent to each boundary's node, in
// boundary order and then adjacency order.
func (g *Graph) BoundaryFlows(ids []BoundaryID) []FlowID {
	var out []FlowID
	for _, id := range ids {
		out = append(out, g.Nodes[g.Boundaries[id].Node].Flows...)
	}
	return out
}

// Connected reports whether a flow already joins a and b in either direction.
func (g *Graph) Connected(a, b NodeID) bool {
	for _, id := range g.Nodes[a].Flows {
		f := &g.Flows[id]
		if (f.A == a && f.B == b) || (f.A == b && f.B == a) {
			return true
		}
	}
	return false
}

// ResetBoundaries zeroes every boundary attribute slot.
func (g *Graph) ResetBoundaries() {
	for i := range g.Boundaries {
		clear(g.Boundaries[i].Attrs)
	}
}

// rebuildAdjacency recomputes every node's flow list from the flow table.
func (g *Graph) rebuildAdjacency() {
	for i := range g.Nodes {
		g.Nodes[i].Flows = g.Nodes[i].Flows[:0]
	}
	for i := range g.Flows {
		f := &g.Flows[i]
		g.Nodes[f.A].Flows = appendUnique(g.Nodes[f.A].Flows, f.ID)
		g.Nodes[f.B].Flows = appendUnique(g.Nodes[f.B].Flows, f.ID)
	}

	clear(g.boundaryAt)
	for i := range g.Boundaries {
		b := &g.Boundaries[i]
		if _, ok := g.boundaryAt[b.Node]; !ok {
			g.boundaryAt[b.Node] = b.ID
		}
	}
}

func appendUnique(ids []FlowID, id FlowID) []FlowID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
