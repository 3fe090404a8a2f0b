package graph

import (
	"math"
	"slices"

	"github.com/dhconnelly/rtreego"
)

// pointTolerance is the half-width of the box each node occupies in the
// index, and the width of a point selection.
const pointTolerance = 1e-7

// Rect is an axis-aligned query rectangle [X0,X1]×[Y0,Y1].
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// PointRect returns the degenerate selection rectangle for a point.
func PointRect(x, y float64) Rect {
	return Rect{X0: x, Y0: y, X1: x + pointTolerance, Y1: y + pointTolerance}
}

// Square returns the square of side size centred on (x, y).
func Square(x, y, size float64) Rect {
	h := size / 2
	return Rect{X0: x - h, Y0: y - h, X1: x + h, Y1: y + h}
}

// Canon returns r with its corners ordered so that X0 <= X1 and Y0 <= Y1.
// Callers may give any two opposite corners.
func (r Rect) Canon() Rect {
	return Rect{
		X0: math.Min(r.X0, r.X1), Y0: math.Min(r.Y0, r.Y1),
		X1: math.Max(r.X0, r.X1), Y1: math.Max(r.Y0, r.Y1),
	}
}

// Width is the horizontal span of r regardless of corner order.
func (r Rect) Width() float64 { return math.Abs(r.X1 - r.X0) }

// Height is the vertical span of r regardless of corner order.
func (r Rect) Height() float64 { return math.Abs(r.Y1 - r.Y0) }

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	r = r.Canon()
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// ContainsStrict reports whether (x, y) lies strictly inside r.
func (r Rect) ContainsStrict(x, y float64) bool {
	r = r.Canon()
	return x > r.X0 && x < r.X1 && y > r.Y0 && y < r.Y1
}

func (r Rect) bounds() (rtreego.Rect, error) {
	r = r.Canon()
	w := math.Max(r.X1-r.X0, pointTolerance)
	h := math.Max(r.Y1-r.Y0, pointTolerance)
	return rtreego.NewRect(rtreego.Point{r.X0, r.Y0}, []float64{w, h})
}

// indexedNode adapts a node position to rtreego.Spatial.
type indexedNode struct {
	id   NodeID
	x, y float64
}

func (n *indexedNode) Bounds() rtreego.Rect {
	return rtreego.Point{n.x, n.y}.ToRect(pointTolerance)
}

// SpatialIndex is an incremental R-tree over node positions. Nodes appended
// to the graph after the last sync are inserted lazily on the next query.
type SpatialIndex struct {
	Width, Height float64

	tree    *rtreego.Rtree
	pointer int
}

// NewSpatialIndex creates an empty index sized for a width×height plane.
func NewSpatialIndex(width, height float64) *SpatialIndex {
	return &SpatialIndex{
		Width:  math.Abs(width),
		Height: math.Abs(height),
		tree:   rtreego.NewTree(2, 4, 16),
	}
}

// Sync inserts nodes[pointer:] into the index.
func (s *SpatialIndex) Sync(nodes []Node) {
	for ; s.pointer < len(nodes); s.pointer++ {
		n := &nodes[s.pointer]
		s.tree.Insert(&indexedNode{id: n.ID, x: n.X, y: n.Y})
	}
}

// Insert adds nodes to the index directly, without advancing the sync
// pointer. Use it to index a chosen subset of the graph.
func (s *SpatialIndex) Insert(nodes ...Node) {
	for _, n := range nodes {
		s.tree.Insert(&indexedNode{id: n.ID, x: n.X, y: n.Y})
	}
}

// Len returns the number of indexed nodes.
func (s *SpatialIndex) Len() int { return s.tree.Size() }

// Query returns the ids of indexed nodes inside r, edges included, in
// ascending id order.
func (s *SpatialIndex) Query(r Rect) []NodeID {
	return s.query(r, r.Contains)
}

// QueryStrict returns the ids of indexed nodes strictly inside r.
func (s *SpatialIndex) QueryStrict(r Rect) []NodeID {
	return s.query(r, r.ContainsStrict)
}

func (s *SpatialIndex) query(r Rect, keep func(x, y float64) bool) []NodeID {
	bb, err := r.bounds()
	if err != nil {
		return nil
	}
	hits := s.tree.SearchIntersect(bb)
	ids := make([]NodeID, 0, len(hits))
	for _, h := range hits {
		n := h.(*indexedNode)
		if keep(n.x, n.y) {
			ids = append(ids, n.id)
		}
	}
	slices.Sort(ids)
	return ids
}
