package graph

// Snapshot is a read-only copy of the per-tick state handed to renderers.
// Flow values for attributes that were never declared are reported as 0.
type Snapshot struct {
	Tick       int                `json:"tick"`
	Nodes      []NodeState        `json:"nodes"`
	Flows      []FlowState        `json:"flows"`
	Boundaries []BoundaryState    `json:"boundaries"`
	Attributes []string           `json:"attributes"`
	Extra      map[string]float64 `json:"extra,omitempty"`
}

// NodeState is a node position.
type NodeState struct {
	ID NodeID  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// FlowState carries the three simulation attributes of a flow.
type FlowState struct {
	ID     FlowID  `json:"id"`
	A      NodeID  `json:"a"`
	B      NodeID  `json:"b"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
	Slope  float64 `json:"slope"`
}

// BoundaryState is a boundary with its attribute slots keyed by name.
type BoundaryState struct {
	ID         BoundaryID         `json:"id"`
	Node       NodeID             `json:"node"`
	Color      string             `json:"color"`
	Shape      string             `json:"shape"`
	Attributes map[string]float64 `json:"attributes"`
}

// Snapshot copies the current state. tick is recorded as given.
func (g *Graph) Snapshot(tick int) *Snapshot {
	lookup := func(name string) AttrID {
		if id, ok := g.attrIndex[name]; ok {
			return id
		}
		return NoAttr
	}
	value, weight, slope := lookup("value"), lookup("weight"), lookup("slope")
	read := func(attrs []float64, id AttrID) float64 {
		if id == NoAttr {
			return 0
		}
		return attrs[id]
	}

	s := &Snapshot{
		Tick:       tick,
		Nodes:      make([]NodeState, len(g.Nodes)),
		Flows:      make([]FlowState, len(g.Flows)),
		Boundaries: make([]BoundaryState, len(g.Boundaries)),
		Attributes: make([]string, len(g.attrs)),
	}
	for i, a := range g.attrs {
		s.Attributes[i] = a.Name
	}
	for i, n := range g.Nodes {
		s.Nodes[i] = NodeState{ID: n.ID, X: n.X, Y: n.Y}
	}
	for i := range g.Flows {
		f := &g.Flows[i]
		s.Flows[i] = FlowState{
			ID:     f.ID,
			A:      f.A,
			B:      f.B,
			Value:  read(f.Attrs, value),
			Weight: read(f.Attrs, weight),
			Slope:  read(f.Attrs, slope),
		}
	}
	for i := range g.Boundaries {
		b := &g.Boundaries[i]
		attrs := make(map[string]float64, len(g.attrs))
		for _, a := range g.attrs {
			attrs[a.Name] = b.Attrs[a.ID]
		}
		s.Boundaries[i] = BoundaryState{
			ID:         b.ID,
			Node:       b.Node,
			Color:      b.Color,
			Shape:      b.Shape,
			Attributes: attrs,
		}
	}
	return s
}
