package graph

import (
	"errors"
	"math"
	"testing"
)

// newTestGraph declares weight (direction), value and slope with constant
// defaults so tests are deterministic.
func newTestGraph(t *testing.T, weight float64) *Graph {
	t.Helper()
	g := New()
	err := g.Transaction(func(tx *Tx) {
		tx.Attribute("weight", AttributeOptions{Direction: true, Default: Constant(weight)})
		tx.Attribute("value", AttributeOptions{})
		tx.Attribute("slope", AttributeOptions{})
	})
	if err != nil {
		t.Fatalf("declare attributes: %v", err)
	}
	return g
}

func mustAttr(t *testing.T, g *Graph, name string) AttrID {
	t.Helper()
	id, err := g.Attr(name)
	if err != nil {
		t.Fatalf("Attr(%q): %v", name, err)
	}
	return id
}

func TestDeclareAttribute_SecondDirectionFails(t *testing.T) {
	g := New()
	if _, err := g.DeclareAttribute("weight", AttributeOptions{Direction: true}); err != nil {
		t.Fatalf("first direction attribute: %v", err)
	}

	_, err := g.DeclareAttribute("strength", AttributeOptions{Direction: true})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !errors.Is(err, ErrDuplicateDirection) {
		t.Errorf("expected ErrDuplicateDirection, got %v", err)
	}
}

func TestDeclareAttribute_RedeclareKeepsDirection(t *testing.T) {
	g := New()
	id1, _ := g.DeclareAttribute("weight", AttributeOptions{Direction: true, Default: Constant(2)})
	id2, err := g.DeclareAttribute("weight", AttributeOptions{Default: Constant(1)})
	if err != nil {
		t.Fatalf("redeclare: %v", err)
	}
	if id1 != id2 {
		t.Errorf("redeclare changed id: %d != %d", id1, id2)
	}
	dir, err := g.DirectionAttr()
	if err != nil || dir != id1 {
		t.Errorf("DirectionAttr() = %d, %v; want %d", dir, err, id1)
	}
	if got := g.Attributes()[id1].Default(); got != 1 {
		t.Errorf("default after redeclare = %v, want 1", got)
	}
}

func TestDeclareAttribute_AfterFlowsFails(t *testing.T) {
	g := newTestGraph(t, 1)
	err := g.Transaction(func(tx *Tx) {
		a, b := tx.Node(0, 0), tx.Node(1, 0)
		tx.Link(a, b)
		tx.Attribute("late", AttributeOptions{})
	})
	if !errors.Is(err, ErrLateAttribute) {
		t.Errorf("expected ErrLateAttribute, got %v", err)
	}
}

func TestAttr_Unknown(t *testing.T) {
	g := New()
	_, err := g.Attr("missing")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("expected ConfigError wrapping ErrUnknownAttribute, got %v", err)
	}
}

func TestFlow_CrossProduct(t *testing.T) {
	g := newTestGraph(t, 0.5)
	var ids []FlowID
	err := g.Transaction(func(tx *Tx) {
		a0, a1 := tx.Node(0, 0), tx.Node(0, 1)
		b0, b1, b2 := tx.Node(1, 0), tx.Node(1, 1), tx.Node(1, 2)
		ids = tx.Flow([]NodeID{a0, a1}, []NodeID{b0, b1, b2})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if len(ids) != 6 {
		t.Fatalf("expected 6 flows, got %d", len(ids))
	}
	for i, id := range ids {
		if int(id) != i {
			t.Errorf("flow ids not dense: ids[%d] = %d", i, id)
		}
	}
	weight := mustAttr(t, g, "weight")
	for _, f := range g.Flows {
		if f.Get(weight) != 0.5 {
			t.Errorf("flow %d weight = %v, want default 0.5", f.ID, f.Get(weight))
		}
	}
}

func TestFlowWith_Overrides(t *testing.T) {
	g := newTestGraph(t, 1)
	err := g.Transaction(func(tx *Tx) {
		a, b := tx.Node(0, 0), tx.Node(1, 0)
		tx.FlowWith([]NodeID{a}, []NodeID{b}, map[string]float64{"weight": 3, "value": -1})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	f := g.Flow(0)
	if f.Get(mustAttr(t, g, "weight")) != 3 || f.Get(mustAttr(t, g, "value")) != -1 {
		t.Errorf("overrides not applied: %v", f.Attrs)
	}
}

func TestFlowWith_UnknownOverride(t *testing.T) {
	g := newTestGraph(t, 1)
	err := g.Transaction(func(tx *Tx) {
		a, b := tx.Node(0, 0), tx.Node(1, 0)
		tx.FlowWith([]NodeID{a}, []NodeID{b}, map[string]float64{"nope": 1})
	})
	if !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("expected ErrUnknownAttribute, got %v", err)
	}
}

func TestFlow_UnknownEndpoint(t *testing.T) {
	g := newTestGraph(t, 1)
	err := g.Transaction(func(tx *Tx) {
		a := tx.Node(0, 0)
		tx.Link(a, 42)
	})
	var topoErr *TopologyError
	if !errors.As(err, &topoErr) {
		t.Fatalf("expected TopologyError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownNode) {
		t.Errorf("expected ErrUnknownNode, got %v", err)
	}
	if len(g.Flows) != 0 {
		t.Errorf("no flow should be created, got %d", len(g.Flows))
	}
}

func TestTransaction_StickyError(t *testing.T) {
	g := newTestGraph(t, 1)
	var late NodeID
	err := g.Transaction(func(tx *Tx) {
		tx.Select(Rect{X1: 1, Y1: 1})
		late = tx.Node(5, 5)
	})
	if !errors.Is(err, ErrNoSpatialIndex) {
		t.Fatalf("expected ErrNoSpatialIndex, got %v", err)
	}
	if late != -1 || len(g.Nodes) != 0 {
		t.Errorf("operations after the first error must be no-ops")
	}
}

func TestTransaction_RebuildsAdjacency(t *testing.T) {
	g := newTestGraph(t, 1)
	err := g.Transaction(func(tx *Tx) {
		a, b, c := tx.Node(0, 0), tx.Node(1, 0), tx.Node(2, 0)
		tx.Link(a, b)
		tx.Link(b, c)
		tx.Link(c, a)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	for _, n := range g.Nodes {
		if len(n.Flows) != 2 {
			t.Errorf("node %d adjacency = %v, want 2 flows", n.ID, n.Flows)
		}
		for _, id := range n.Flows {
			f := g.Flow(id)
			if f.A != n.ID && f.B != n.ID {
				t.Errorf("node %d lists flow %d which does not touch it", n.ID, id)
			}
		}
	}
}

func TestConnected_DuringTransaction(t *testing.T) {
	g := newTestGraph(t, 1)
	err := g.Transaction(func(tx *Tx) {
		a, b, c := tx.Node(0, 0), tx.Node(1, 0), tx.Node(2, 0)
		tx.Link(a, b)
		if !g.Connected(a, b) || !g.Connected(b, a) {
			t.Error("a and b should be connected in both directions")
		}
		if g.Connected(a, c) {
			t.Error("a and c should not be connected")
		}
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestBoundary_DefaultsAndSlots(t *testing.T) {
	g := newTestGraph(t, 1)
	var ids []BoundaryID
	err := g.Transaction(func(tx *Tx) {
		a, b := tx.Node(0, 0), tx.Node(1, 0)
		ids = tx.Boundary([]NodeID{a, b}, BoundaryOptions{DirectionFixed: true, Color: "blue"})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 boundaries, got %d", len(ids))
	}
	for _, id := range ids {
		b := g.Boundary(id)
		if b.Color != "blue" || b.Shape != DefaultBoundaryShape {
			t.Errorf("boundary %d style = %s/%s", id, b.Color, b.Shape)
		}
		if len(b.Attrs) != 3 {
			t.Errorf("boundary %d has %d slots, want 3", id, len(b.Attrs))
		}
	}
	if _, ok := g.BoundaryAt(1); !ok {
		t.Error("BoundaryAt(1) should find the boundary")
	}
}

func TestRect_CornerOrder(t *testing.T) {
	tests := []struct {
		name string
		r    Rect
	}{
		{"ordered", Rect{X0: 0, Y0: 0, X1: 2, Y1: 1}},
		{"inverted", Rect{X0: 2, Y0: 1, X1: 0, Y1: 0}},
		{"mixed", Rect{X0: 2, Y0: 0, X1: 0, Y1: 1}},
	}
	want := Rect{X0: 0, Y0: 0, X1: 2, Y1: 1}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Canon(); got != want {
				t.Errorf("Canon() = %+v, want %+v", got, want)
			}
			if tt.r.Width() != 2 || tt.r.Height() != 1 {
				t.Errorf("Width/Height = %v/%v, want 2/1", tt.r.Width(), tt.r.Height())
			}
			if !tt.r.Contains(1, 0.5) || !tt.r.ContainsStrict(1, 0.5) {
				t.Error("rect should contain its centre")
			}
		})
	}
}

func TestSelect_InvertedRect(t *testing.T) {
	g := newTestGraph(t, 1)
	var rect []NodeID
	err := g.Transaction(func(tx *Tx) {
		for x := 0; x < 4; x++ {
			for y := 0; y < 4; y++ {
				tx.Node(float64(x), float64(y))
			}
		}
		tx.SelectIndex(4, 4)
		rect = tx.Select(Rect{X0: 1, Y0: 1, X1: 0, Y1: 0})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if len(rect) != 4 {
		t.Errorf("Select(1..0) = %v, want 4 nodes", rect)
	}
}

func TestSelect_PointAndRect(t *testing.T) {
	g := newTestGraph(t, 1)
	var point, rect, late []NodeID
	err := g.Transaction(func(tx *Tx) {
		for x := 0; x < 4; x++ {
			for y := 0; y < 4; y++ {
				tx.Node(float64(x), float64(y))
			}
		}
		tx.SelectIndex(4, 4)
		point = tx.SelectPoint(2, 3)
		rect = tx.Select(Rect{X0: 0, Y0: 0, X1: 1, Y1: 1})

		// Nodes created after the index are picked up on the next query.
		tx.Node(10, 10)
		late = tx.SelectPoint(10, 10)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if len(point) != 1 || g.Node(point[0]).X != 2 || g.Node(point[0]).Y != 3 {
		t.Errorf("SelectPoint(2,3) = %v", point)
	}
	if len(rect) != 4 {
		t.Errorf("Select(0..1) = %v, want 4 nodes", rect)
	}
	if len(late) != 1 || late[0] != 16 {
		t.Errorf("late SelectPoint = %v, want [16]", late)
	}
}

func TestSanitise(t *testing.T) {
	g := newTestGraph(t, 1)
	weight := mustAttr(t, g, "weight")
	weights := []float64{-2, 1, -0.5, 3}
	err := g.Transaction(func(tx *Tx) {
		n := []NodeID{tx.Node(0, 0), tx.Node(1, 0), tx.Node(2, 0), tx.Node(3, 0)}
		for i, w := range weights {
			tx.FlowWith([]NodeID{n[i]}, []NodeID{n[(i+1)%4]}, map[string]float64{"weight": w})
		}
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	before := make([][2]NodeID, len(g.Flows))
	for i, f := range g.Flows {
		before[i] = [2]NodeID{min(f.A, f.B), max(f.A, f.B)}
	}

	flipped, err := g.Sanitise()
	if err != nil {
		t.Fatalf("Sanitise: %v", err)
	}
	if flipped != 2 {
		t.Errorf("flipped = %d, want 2", flipped)
	}
	for i, f := range g.Flows {
		if f.Get(weight) < 0 {
			t.Errorf("flow %d weight %v is negative after sanitise", i, f.Get(weight))
		}
		if pair := [2]NodeID{min(f.A, f.B), max(f.A, f.B)}; pair != before[i] {
			t.Errorf("flow %d changed endpoints %v -> %v", i, before[i], pair)
		}
		if f.Get(weight) != math.Abs(weights[i]) {
			t.Errorf("flow %d weight = %v, want %v", i, f.Get(weight), math.Abs(weights[i]))
		}
	}
	if g.Flow(0).A != 1 || g.Flow(0).B != 0 {
		t.Errorf("flow 0 endpoints not swapped: %d->%d", g.Flow(0).A, g.Flow(0).B)
	}
}

func TestSanitise_DirectionFixedClamp(t *testing.T) {
	g := newTestGraph(t, 1)
	weight := mustAttr(t, g, "weight")
	err := g.Transaction(func(tx *Tx) {
		in, mid := tx.Node(0, 0), tx.Node(1, 0)
		tx.FlowWith([]NodeID{in}, []NodeID{mid}, map[string]float64{"weight": -4})
		tx.Boundary([]NodeID{in}, BoundaryOptions{DirectionFixed: true})
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if _, err := g.Sanitise(); err != nil {
		t.Fatalf("Sanitise: %v", err)
	}
	f := g.Flow(0)
	if f.A != 0 || f.B != 1 {
		t.Errorf("direction-fixed flow flipped: %d->%d", f.A, f.B)
	}
	if f.Get(weight) != MachineEpsilon {
		t.Errorf("weight = %v, want MachineEpsilon", f.Get(weight))
	}
}

func TestSanitise_NoDirection(t *testing.T) {
	g := New()
	_, err := g.Sanitise()
	if !errors.Is(err, ErrNoDirection) {
		t.Errorf("expected ErrNoDirection, got %v", err)
	}
}

func TestNormalise(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		want    float64
	}{
		{"scales to mean 1", []float64{1, 2, 3, 6}, 1},
		{"zero mean unchanged", []float64{1, -1}, 0},
		{"no flows", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGraph(t, 1)
			weight := mustAttr(t, g, "weight")
			err := g.Transaction(func(tx *Tx) {
				for i, w := range tt.weights {
					a, b := tx.Node(float64(i), 0), tx.Node(float64(i), 1)
					tx.FlowWith([]NodeID{a}, []NodeID{b}, map[string]float64{"weight": w})
				}
			})
			if err != nil {
				t.Fatalf("transaction: %v", err)
			}
			g.Normalise(weight, 1)
			if got := g.Mean(weight); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("mean = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOctagon_SanitiseNormalise(t *testing.T) {
	g := New()
	seeds := []float64{-0.9, 0.3, -0.1, 0.8, -0.6, 0.2, 0.7, -0.4}
	next := 0
	err := g.Transaction(func(tx *Tx) {
		tx.Attribute("weight", AttributeOptions{Direction: true, Default: func() float64 {
			v := seeds[next]
			next++
			return v
		}})
		n := make([]NodeID, 8)
		for i := range n {
			angle := float64(i) * math.Pi / 4
			n[i] = tx.Node(math.Cos(angle), math.Sin(angle))
		}
		for i := range n {
			tx.Link(n[i], n[(i+1)%8])
		}
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	weight := mustAttr(t, g, "weight")

	if _, err := g.Sanitise(); err != nil {
		t.Fatalf("Sanitise: %v", err)
	}
	g.Normalise(weight, 1)

	for _, f := range g.Flows {
		if f.Get(weight) < 0 {
			t.Errorf("flow %d weight %v is negative", f.ID, f.Get(weight))
		}
	}
	if mean := g.Mean(weight); math.Abs(mean-1) > 1e-12 {
		t.Errorf("mean weight = %v, want 1", mean)
	}
}

func TestHasNonFinite(t *testing.T) {
	g := newTestGraph(t, 1)
	_ = g.Transaction(func(tx *Tx) {
		tx.Link(tx.Node(0, 0), tx.Node(1, 0))
	})
	if g.HasNonFinite() {
		t.Fatal("fresh graph reported non-finite values")
	}
	g.Flow(0).Set(mustAttr(t, g, "value"), math.Inf(1))
	if !g.HasNonFinite() {
		t.Error("expected HasNonFinite after storing +Inf")
	}
}

func TestSnapshot(t *testing.T) {
	g := newTestGraph(t, 2)
	_ = g.Transaction(func(tx *Tx) {
		a, b := tx.Node(0, 0), tx.Node(1, 2)
		tx.Link(a, b)
		tx.Boundary([]NodeID{b}, BoundaryOptions{Shape: "circle"})
	})
	g.Boundary(0).Attrs[mustAttr(t, g, "value")] = 0.25

	s := g.Snapshot(7)
	if s.Tick != 7 || len(s.Nodes) != 2 || len(s.Flows) != 1 || len(s.Boundaries) != 1 {
		t.Fatalf("unexpected snapshot shape: %+v", s)
	}
	if s.Flows[0].Weight != 2 || s.Flows[0].A != 0 || s.Flows[0].B != 1 {
		t.Errorf("flow state = %+v", s.Flows[0])
	}
	if s.Boundaries[0].Attributes["value"] != 0.25 || s.Boundaries[0].Color != DefaultBoundaryColor {
		t.Errorf("boundary state = %+v", s.Boundaries[0])
	}

	// The snapshot must not alias graph storage.
	g.Flow(0).Set(mustAttr(t, g, "weight"), 9)
	if s.Flows[0].Weight != 2 {
		t.Error("snapshot changed after graph mutation")
	}
}
