package visualization

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"math"

	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/ranking"
)

// pixels per layout unit
const svgScale = 40.0

type svgFlow struct {
	X1, Y1, X2, Y2 float64
	Width          float64
	Title          string
}

type svgNode struct {
	X, Y, R float64
	Fill    string
	Title   string
}

type htmlTemplateData struct {
	Program    string
	Tick       int
	Refresh    int
	ViewBox    string
	NodeCount  int
	FlowCount  int
	MeanWeight float64
	Flows      []svgFlow
	Nodes      []svgNode
}

// RenderHTML draws snap as a static SVG page. A positive refresh makes the
// page reload itself every refresh seconds.
func RenderHTML(ctx context.Context, name string, snap *graph.Snapshot, refresh int) ([]byte, error) {
	pr, err := ranking.ComputePageRank(ctx, snap, ranking.DefaultPageRankConfig())
	if err != nil {
		return nil, fmt.Errorf("rank nodes: %w", err)
	}

	tmpl, err := template.ParseFS(templates, "templates/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	data := htmlTemplateData{
		Program:    name,
		Tick:       snap.Tick,
		Refresh:    refresh,
		NodeCount:  len(snap.Nodes),
		FlowCount:  len(snap.Flows),
		MeanWeight: meanWeight(snap),
		ViewBox:    viewBox(snap),
	}

	fill := make(map[graph.NodeID]string, len(snap.Boundaries))
	for _, b := range snap.Boundaries {
		fill[b.Node] = b.Color
	}
	for _, n := range snap.Nodes {
		r := 3 + 6*pr[n.ID]
		c, ok := fill[n.ID]
		if !ok || c == "" {
			c = "#999"
		}
		data.Nodes = append(data.Nodes, svgNode{
			X: n.X * svgScale, Y: n.Y * svgScale, R: r, Fill: c,
			Title: fmt.Sprintf("node %d (%g, %g) pagerank %.3f", n.ID, n.X, n.Y, pr[n.ID]),
		})
	}
	for _, f := range snap.Flows {
		a, b := snap.Nodes[f.A], snap.Nodes[f.B]
		data.Flows = append(data.Flows, svgFlow{
			X1: a.X * svgScale, Y1: a.Y * svgScale,
			X2: b.X * svgScale, Y2: b.Y * svgScale,
			Width: 0.5 + math.Min(f.Weight, 8),
			Title: fmt.Sprintf("flow %d: weight %.4f value %.4f slope %.4f", f.ID, f.Weight, f.Value, f.Slope),
		})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// viewBox frames every node with one unit of padding.
func viewBox(snap *graph.Snapshot) string {
	if len(snap.Nodes) == 0 {
		return "0 0 100 100"
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range snap.Nodes {
		minX, maxX = math.Min(minX, n.X), math.Max(maxX, n.X)
		minY, maxY = math.Min(minY, n.Y), math.Max(maxY, n.Y)
	}
	return fmt.Sprintf("%g %g %g %g",
		(minX-1)*svgScale, (minY-1)*svgScale, (maxX-minX+2)*svgScale, (maxY-minY+2)*svgScale)
}
