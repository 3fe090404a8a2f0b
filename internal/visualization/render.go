// Package visualization renders simulation snapshots and serves them over
// HTTP.
package visualization

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/tendril/internal/constants"
	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/ranking"
)

// Node sizes in DOT inches.
const (
	minNodeWidth = 0.15
	maxNodeWidth = 0.6
)

// GraphJSON is the JSON form of a snapshot.
type GraphJSON struct {
	Tick       int                   `json:"tick"`
	Attributes []string              `json:"attributes"`
	Nodes      []NodeJSON            `json:"nodes"`
	Flows      []graph.FlowState     `json:"flows"`
	Boundaries []graph.BoundaryState `json:"boundaries"`
	NodeCount  int                   `json:"node_count"`
	FlowCount  int                   `json:"flow_count"`
	MeanWeight float64               `json:"mean_weight"`
}

// NodeJSON is a node with its PageRank score.
type NodeJSON struct {
	graph.NodeState
	PageRank float64 `json:"pagerank"`
}

// Render renders snap in the given format. DOT and JSON output include
// PageRank scores over the flow graph.
func Render(ctx context.Context, snap *graph.Snapshot, format constants.Format) ([]byte, error) {
	switch format {
	case constants.FormatText:
		return []byte(RenderText(snap)), nil
	case constants.FormatDOT, constants.FormatJSON:
		pr, err := ranking.ComputePageRank(ctx, snap, ranking.DefaultPageRankConfig())
		if err != nil {
			return nil, fmt.Errorf("rank nodes: %w", err)
		}
		if format == constants.FormatDOT {
			return []byte(RenderDOT(snap, pr)), nil
		}
		data, err := json.MarshalIndent(RenderJSON(snap, pr), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal graph: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// RenderJSON builds the JSON view of snap. pagerank may be nil.
func RenderJSON(snap *graph.Snapshot, pagerank []float64) GraphJSON {
	nodes := make([]NodeJSON, len(snap.Nodes))
	for i, n := range snap.Nodes {
		nodes[i] = NodeJSON{NodeState: n}
		if i < len(pagerank) {
			nodes[i].PageRank = pagerank[i]
		}
	}
	return GraphJSON{
		Tick:       snap.Tick,
		Attributes: snap.Attributes,
		Nodes:      nodes,
		Flows:      snap.Flows,
		Boundaries: snap.Boundaries,
		NodeCount:  len(snap.Nodes),
		FlowCount:  len(snap.Flows),
		MeanWeight: meanWeight(snap),
	}
}

// RenderDOT produces a Graphviz DOT representation of snap. Nodes are pinned
// at their positions (render with neato -n), sized by PageRank, and
// boundaries take their color and shape. Pen width follows flow weight.
func RenderDOT(snap *graph.Snapshot, pagerank []float64) string {
	boundaries := make(map[graph.NodeID]graph.BoundaryState, len(snap.Boundaries))
	for _, b := range snap.Boundaries {
		boundaries[b.Node] = b
	}

	var b strings.Builder
	b.WriteString("digraph tendril {\n")
	fmt.Fprintf(&b, "  label=\"tick %d\";\n", snap.Tick)
	b.WriteString("  node [shape=point, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [arrowsize=0.5, fontname=\"Helvetica\", fontsize=8];\n\n")

	for _, n := range snap.Nodes {
		width := minNodeWidth
		if int(n.ID) < len(pagerank) {
			width += (maxNodeWidth - minNodeWidth) * pagerank[n.ID]
		}
		// Graphviz y grows upward.
		attrs := fmt.Sprintf("pos=\"%g,%g!\", width=%.3f", n.X, 0-n.Y, width)
		if bd, ok := boundaries[n.ID]; ok {
			shape := bd.Shape
			if shape == "" {
				shape = graph.DefaultBoundaryShape
			}
			color := bd.Color
			if color == "" {
				color = "black"
			}
			attrs += fmt.Sprintf(", shape=%s, style=filled, fillcolor=%q, label=\"\"", dotShape(shape), color)
		}
		fmt.Fprintf(&b, "  n%d [%s];\n", n.ID, attrs)
	}
	b.WriteString("\n")

	for _, f := range snap.Flows {
		pen := 0.5 + math.Min(f.Weight, 8)
		fmt.Fprintf(&b, "  n%d -> n%d [penwidth=%.2f, tooltip=\"w=%.4f v=%.4f s=%.4f\"];\n",
			f.A, f.B, pen, f.Weight, f.Value, f.Slope)
	}
	b.WriteString("}\n")
	return b.String()
}

// RenderText produces a plain table of flows for terminals.
func RenderText(snap *graph.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick %d: %d nodes, %d flows, %d boundaries, mean weight %.6f\n",
		snap.Tick, len(snap.Nodes), len(snap.Flows), len(snap.Boundaries), meanWeight(snap))
	if len(snap.Flows) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "%6s %6s %6s %12s %12s %12s\n", "flow", "a", "b", "weight", "value", "slope")
	for _, f := range snap.Flows {
		fmt.Fprintf(&b, "%6d %6d %6d %12.6f %12.6f %12.6f\n", f.ID, f.A, f.B, f.Weight, f.Value, f.Slope)
	}
	return b.String()
}

func meanWeight(snap *graph.Snapshot) float64 {
	if len(snap.Flows) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range snap.Flows {
		sum += f.Weight
	}
	return sum / float64(len(snap.Flows))
}

// dotShape maps boundary shape names onto Graphviz shapes.
func dotShape(shape string) string {
	switch shape {
	case "circle":
		return "circle"
	case "triangle":
		return "triangle"
	case "diamond":
		return "diamond"
	default:
		return "square"
	}
}
