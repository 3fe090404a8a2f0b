package graph

// Tx is the exclusive write handle passed to a construction callback. The
// first error raised by any operation is kept and returned by Transaction;
// later operations become no-ops returning nil ids.
type Tx struct {
	g      *Graph
	index  *SpatialIndex
	err    error
	closed bool
}

// BoundaryOptions configures a boundary. Empty style fields fall back to the
// defaults below.
type BoundaryOptions struct {
	DirectionFixed bool
	Color          string
	Shape          string
}

const (
	DefaultBoundaryColor = "red"
	DefaultBoundaryShape = "diamond"
)

// Transaction runs build with exclusive write access to g. On return the
// spatial index is discarded and every node's adjacency list is rebuilt from
// the flow table. The first error raised inside build is returned; the graph
// keeps whatever was created before it.
func (g *Graph) Transaction(build func(tx *Tx)) error {
	tx := &Tx{g: g}
	build(tx)
	tx.closed = true
	tx.index = nil
	g.rebuildAdjacency()
	return tx.err
}

// Graph returns the graph under construction.
func (tx *Tx) Graph() *Graph { return tx.g }

// Err returns the first error raised in this transaction.
func (tx *Tx) Err() error { return tx.err }

// Fail records err as the transaction error unless one is already set.
func (tx *Tx) Fail(err error) {
	if tx.err == nil && err != nil {
		tx.err = err
	}
}

func (tx *Tx) ok() bool {
	if tx.closed {
		tx.Fail(&ConfigError{Op: "transaction", Err: ErrClosed})
	}
	return tx.err == nil
}

// Attribute declares or updates an attribute. See Graph.DeclareAttribute.
func (tx *Tx) Attribute(name string, opts AttributeOptions) AttrID {
	if !tx.ok() {
		return NoAttr
	}
	id, err := tx.g.DeclareAttribute(name, opts)
	tx.Fail(err)
	return id
}

// Node appends a node at (x, y).
func (tx *Tx) Node(x, y float64) NodeID {
	if !tx.ok() {
		return -1
	}
	id := NodeID(len(tx.g.Nodes))
	tx.g.Nodes = append(tx.g.Nodes, Node{ID: id, X: x, Y: y})
	return id
}

// Flow creates one flow a→b per pair in as×bs, initializing every attribute
// from its default.
func (tx *Tx) Flow(as, bs []NodeID) []FlowID {
	return tx.FlowWith(as, bs, nil)
}

// FlowWith is Flow with per-attribute overrides keyed by attribute name.
// Overriding an undeclared attribute is a ConfigError; an endpoint that does
// not exist is a TopologyError.
func (tx *Tx) FlowWith(as, bs []NodeID, overrides map[string]float64) []FlowID {
	if !tx.ok() {
		return nil
	}
	g := tx.g

	for name := range overrides {
		if _, err := g.Attr(name); err != nil {
			tx.Fail(err)
			return nil
		}
	}
	for _, ids := range [][]NodeID{as, bs} {
		for _, id := range ids {
			if !g.HasNode(id) {
				tx.Fail(topologyErrorf("create flow", ErrUnknownNode, "node %d", id))
				return nil
			}
		}
	}

	created := make([]FlowID, 0, len(as)*len(bs))
	for _, a := range as {
		for _, b := range bs {
			id := FlowID(len(g.Flows))
			attrs := make([]float64, len(g.attrs))
			for i, attr := range g.attrs {
				if v, ok := overrides[attr.Name]; ok {
					attrs[i] = v
				} else if attr.Default != nil {
					attrs[i] = attr.Default()
				}
			}
			g.Flows = append(g.Flows, Flow{ID: id, A: a, B: b, Attrs: attrs})

			// Keep adjacency current so callers can test Connected before
			// the transaction commits.
			g.Nodes[a].Flows = appendUnique(g.Nodes[a].Flows, id)
			g.Nodes[b].Flows = appendUnique(g.Nodes[b].Flows, id)
			created = append(created, id)
		}
	}
	return created
}

// Link is shorthand for a single a→b flow.
func (tx *Tx) Link(a, b NodeID) FlowID {
	ids := tx.Flow([]NodeID{a}, []NodeID{b})
	if len(ids) == 0 {
		return -1
	}
	return ids[0]
}

// Boundary attaches one boundary per node. All attribute slots start at 0.
func (tx *Tx) Boundary(nodes []NodeID, opts BoundaryOptions) []BoundaryID {
	if !tx.ok() {
		return nil
	}
	g := tx.g
	for _, n := range nodes {
		if !g.HasNode(n) {
			tx.Fail(topologyErrorf("create boundary", ErrUnknownNode, "node %d", n))
			return nil
		}
	}

	if opts.Color == "" {
		opts.Color = DefaultBoundaryColor
	}
	if opts.Shape == "" {
		opts.Shape = DefaultBoundaryShape
	}

	created := make([]BoundaryID, 0, len(nodes))
	for _, n := range nodes {
		id := BoundaryID(len(g.Boundaries))
		g.Boundaries = append(g.Boundaries, Boundary{
			ID:             id,
			Node:           n,
			DirectionFixed: opts.DirectionFixed,
			Attrs:          make([]float64, len(g.attrs)),
			Color:          opts.Color,
			Shape:          opts.Shape,
		})
		if _, ok := g.boundaryAt[n]; !ok {
			g.boundaryAt[n] = id
		}
		created = append(created, id)
	}
	return created
}

// SelectIndex builds a spatial index over the nodes created so far. Nodes
// added later are picked up by the next Select.
func (tx *Tx) SelectIndex(width, height float64) *SpatialIndex {
	if !tx.ok() {
		return nil
	}
	tx.index = NewSpatialIndex(width, height)
	tx.index.Sync(tx.g.Nodes)
	return tx.index
}

// Select returns the nodes inside r. Calling it before SelectIndex is a
// ConfigError.
func (tx *Tx) Select(r Rect) []NodeID {
	if !tx.ok() {
		return nil
	}
	if tx.index == nil {
		tx.Fail(configErrorf("select", ErrNoSpatialIndex, ""))
		return nil
	}
	tx.index.Sync(tx.g.Nodes)
	return tx.index.Query(r)
}

// SelectPoint returns the nodes located at (x, y).
func (tx *Tx) SelectPoint(x, y float64) []NodeID {
	return tx.Select(PointRect(x, y))
}
