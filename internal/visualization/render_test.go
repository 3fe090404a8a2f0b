package visualization

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nvandessel/tendril/internal/constants"
	"github.com/nvandessel/tendril/internal/graph"
)

// testSnapshot is a three-node chain with an input boundary at node 0.
func testSnapshot() *graph.Snapshot {
	return &graph.Snapshot{
		Tick: 7,
		Nodes: []graph.NodeState{
			{ID: 0, X: 0, Y: 0},
			{ID: 1, X: 1, Y: 0},
			{ID: 2, X: 2, Y: 1},
		},
		Flows: []graph.FlowState{
			{ID: 0, A: 0, B: 1, Weight: 1.5, Value: 0.25},
			{ID: 1, A: 1, B: 2, Weight: 0.5, Slope: -0.1},
		},
		Boundaries: []graph.BoundaryState{
			{ID: 0, Node: 0, Color: "blue", Shape: "circle", Attributes: map[string]float64{"weight": 0}},
		},
		Attributes: []string{"weight", "value", "slope"},
	}
}

func TestRenderDOT(t *testing.T) {
	dot := RenderDOT(testSnapshot(), []float64{0.2, 0.5, 1})

	for _, want := range []string{
		"digraph tendril {",
		`label="tick 7"`,
		`n0 [pos="0,0!"`,
		"shape=circle",
		`fillcolor="blue"`,
		`n2 [pos="2,-1!", width=0.600]`,
		"n0 -> n1 [penwidth=2.00",
		"n1 -> n2 [penwidth=1.00",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q\n%s", want, dot)
		}
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("DOT output not closed")
	}
}

func TestRenderDOT_DefaultBoundaryShape(t *testing.T) {
	snap := testSnapshot()
	snap.Boundaries[0].Shape = ""
	snap.Boundaries[0].Color = ""
	dot := RenderDOT(snap, nil)
	if !strings.Contains(dot, "shape=diamond") {
		t.Errorf("expected default diamond shape:\n%s", dot)
	}
	if !strings.Contains(dot, `fillcolor="black"`) {
		t.Errorf("expected default black fill:\n%s", dot)
	}
}

func TestRenderJSON(t *testing.T) {
	g := RenderJSON(testSnapshot(), []float64{0.2, 0.5, 1})
	if g.NodeCount != 3 || g.FlowCount != 2 {
		t.Errorf("counts = %d nodes %d flows, want 3 and 2", g.NodeCount, g.FlowCount)
	}
	if g.Nodes[2].PageRank != 1 {
		t.Errorf("node 2 pagerank = %v, want 1", g.Nodes[2].PageRank)
	}
	if g.MeanWeight != 1 {
		t.Errorf("MeanWeight = %v, want 1", g.MeanWeight)
	}
}

func TestRenderText(t *testing.T) {
	text := RenderText(testSnapshot())
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), text)
	}
	if !strings.HasPrefix(lines[0], "tick 7: 3 nodes, 2 flows, 1 boundaries") {
		t.Errorf("header = %q", lines[0])
	}
}

func TestRenderText_NoFlows(t *testing.T) {
	text := RenderText(&graph.Snapshot{})
	if strings.Count(text, "\n") != 1 {
		t.Errorf("expected header only, got %q", text)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		format  constants.Format
		want    string
		wantErr bool
	}{
		{constants.FormatText, "tick 7:", false},
		{constants.FormatDOT, "digraph tendril", false},
		{constants.FormatJSON, `"node_count": 3`, false},
		{constants.Format("svg"), "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out, err := Render(context.Background(), testSnapshot(), tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Render() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(string(out), tt.want) {
				t.Errorf("Render() output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestRender_JSONRoundTrip(t *testing.T) {
	out, err := Render(context.Background(), testSnapshot(), constants.FormatJSON)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	var g GraphJSON
	if err := json.Unmarshal(out, &g); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Node 2 is the sink of the chain and ranks highest.
	if g.Nodes[2].PageRank != 1 {
		t.Errorf("sink pagerank = %v, want 1", g.Nodes[2].PageRank)
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(context.Background(), "chain", testSnapshot(), 2)
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	s := string(html)
	for _, want := range []string{
		"<title>tendril · chain · tick 7</title>",
		`<meta http-equiv="refresh" content="2">`,
		`viewBox="-40 -40 160 120"`,
		`fill="blue"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Count(s, "<line ") != 2 || strings.Count(s, "<circle ") != 3 {
		t.Errorf("expected 2 lines and 3 circles")
	}
}

func TestRenderHTML_NoRefresh(t *testing.T) {
	html, err := RenderHTML(context.Background(), "chain", testSnapshot(), 0)
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	if strings.Contains(string(html), "http-equiv") {
		t.Error("refresh meta present with refresh 0")
	}
}
