package program

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/simulation"
)

func runProgram(t *testing.T, p *Program, seed int64, ticks int) *simulation.World {
	t.Helper()
	w, err := p.Build(seed)
	if err != nil {
		t.Fatalf("Build(%s): %v", p.Name, err)
	}
	if _, err := w.Run(context.Background(), ticks); err != nil {
		t.Fatalf("Run(%s): %v", p.Name, err)
	}
	return w
}

func checkInvariants(t *testing.T, w *simulation.World) {
	t.Helper()
	g := w.Graph
	if g.HasNonFinite() {
		t.Error("graph has non-finite attributes")
	}
	weight := w.Attrs().Weight
	if mean := g.Mean(weight); math.Abs(mean-1) > 1e-9 {
		t.Errorf("mean weight = %.12f, want 1", mean)
	}
	for i := range g.Flows {
		if v := g.Flows[i].Get(weight); v < 0 {
			t.Errorf("flow %d weight %v < 0", i, v)
		}
	}
}

func TestBuiltins(t *testing.T) {
	for _, name := range Builtins() {
		t.Run(name, func(t *testing.T) {
			p, err := Lookup(name)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			w := runProgram(t, p, 1, simulation.Period(p.Config.PredictionDelay))
			checkInvariants(t, w)
		})
	}
}

func TestBuiltins_Shapes(t *testing.T) {
	tests := []struct {
		name                    string
		nodes, flows, bounds    int
		inputs, outputs, biases int
	}{
		{"octagon", 8, 8, 0, 0, 0, 0},
		{"grid", 64, 112, 0, 0, 0, 0},
		{"feedback", 28, 43, 3, 1, 2, 0},
		{"flip", 12, 14, 4, 2, 2, 0},
		{"boolean", 12, 25, 5, 2, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Lookup(tt.name)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			w, err := p.Build(3)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			g := w.Graph
			if len(g.Nodes) != tt.nodes || len(g.Flows) != tt.flows || len(g.Boundaries) != tt.bounds {
				t.Errorf("got %d nodes, %d flows, %d boundaries; want %d, %d, %d",
					len(g.Nodes), len(g.Flows), len(g.Boundaries), tt.nodes, tt.flows, tt.bounds)
			}
			r := w.Roles
			if len(r.Input) != tt.inputs || len(r.Output) != tt.outputs || len(r.PlusBias)+len(r.MinusBias) != tt.biases {
				t.Errorf("roles = %+v", r)
			}
		})
	}
}

func TestFlip_OnePeriod(t *testing.T) {
	p, err := Lookup("flip")
	if err != nil {
		t.Fatal(err)
	}
	w := runProgram(t, p, 7, 41)
	checkInvariants(t, w)
	if w.Tick != 41 {
		t.Errorf("Tick = %d, want 41", w.Tick)
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("pentagon")
	if !errors.Is(err, ErrUnknownProgram) {
		t.Errorf("got %v, want ErrUnknownProgram", err)
	}
}

func TestLookup_CopiesBuiltin(t *testing.T) {
	a, _ := Lookup("flip")
	a.Config.PredictionDelay = 3
	b, _ := Lookup("flip")
	if b.Config.PredictionDelay != 10 {
		t.Errorf("mutating a looked-up program changed the built-in")
	}
}

func TestLoadFile(t *testing.T) {
	p, err := LoadFile(filepath.Join("testdata", "flip.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if p.Name != "flip-yaml" || p.Seed != 42 {
		t.Errorf("name/seed = %q/%d", p.Name, p.Seed)
	}
	// Fields the file leaves out keep their defaults.
	if p.Config.ValueDecay != 0.2 || p.Config.Mode != simulation.ModePhased {
		t.Errorf("config defaults lost: %+v", p.Config)
	}

	w := runProgram(t, p, p.Seed, 41)
	checkInvariants(t, w)
	if got := len(w.Graph.Flows); got != 14 {
		t.Errorf("got %d flows, want 14", got)
	}
	if len(w.Roles.Input) != 2 || len(w.Roles.Output) != 2 {
		t.Errorf("roles = %+v", w.Roles)
	}
}

func TestLoadFileWithBase(t *testing.T) {
	base := simulation.DefaultConfig()
	base.ValueDecay = 0.05
	base.Activate = "sigmoid"
	p, err := LoadFileWithBase(filepath.Join("testdata", "flip.yaml"), base)
	if err != nil {
		t.Fatalf("LoadFileWithBase: %v", err)
	}
	if p.Config.ValueDecay != 0.05 || p.Config.Activate != "sigmoid" {
		t.Errorf("base not applied: %+v", p.Config)
	}
	// The file still wins where it sets a field.
	if p.Config.PredictionDelay != 10 || p.Config.TransferRate != 0.5 {
		t.Errorf("file fields lost: %+v", p.Config)
	}
}

func TestLookup_File(t *testing.T) {
	p, err := Lookup(filepath.Join("testdata", "flip.yaml"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p.Source == "" {
		t.Error("Source not recorded")
	}
}

func TestParse_Weights(t *testing.T) {
	src := `
config: {mode: weight}
weight: {noise: {scale: 0.5, lo: 0.25, hi: 0.75}}
grids:
  - {label: lattice, from: "0,0", to: "3,3"}
  - {from: "10,0", to: "11,1", weight: 2}
flows:
  - {from: lattice, to: "@10,0", weight: {const: 0.5}}
`
	p, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	w, err := p.Build(1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// 24 lattice flows, 4 flows in the 2x2 grid, 16 from the lattice to (10,0).
	if got := len(w.Graph.Flows); got != 44 {
		t.Fatalf("got %d flows, want 44", got)
	}
	checkInvariants(t, w)
}

func TestParse_SanitizesText(t *testing.T) {
	src := `
name: "../ring"
description: "a ring\n<b>of</b>  flows"
config: {mode: weight}
grids:
  - {from: "0,0", to: "1,1"}
boundaries:
  - {nodes: ["@0,0"], color: "red\", penwidth=9", shape: box}
`
	p, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "ring" {
		t.Errorf("name = %q", p.Name)
	}
	if p.Description != "a ring of flows" {
		t.Errorf("description = %q", p.Description)
	}
	w, err := p.Build(1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b := w.Graph.Boundary(0)
	if b.Color != graph.DefaultBoundaryColor || b.Shape != "box" {
		t.Errorf("boundary style = %q/%q", b.Color, b.Shape)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"bad yaml", "nodes: [unterminated"},
		{"bad point", `nodes: [{label: a, at: "1;2"}]`},
		{"two weight kinds", `weight: {const: 1, uniform: [0, 1]}`},
		{"uniform arity", `weight: {uniform: [0]}`},
		{"unknown role", `boundaries: [{nodes: [a], role: sideways}]`},
		{"duplicate label", `nodes: [{label: a, at: "0,0"}, {label: a, at: "1,0"}]`},
		{"missing label", `nodes: [{at: "0,0"}]`},
		{"bad config", `config: {prediction_delay: 0}`},
		{"jumble count", `jumbles: [{from: "0,0", to: "5,5", count: 0, neighbors: 2}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			var cfgErr *graph.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("got %v, want ConfigError", err)
			}
		})
	}
}

func TestParse_UnresolvedReference(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"label", "nodes: [{label: a, at: \"0,0\"}]\nflows: [{from: a, to: b}]"},
		{"position", "nodes: [{label: a, at: \"0,0\"}]\nflows: [{from: a, to: \"@5,5\"}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.src))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = p.Build(1)
			var topoErr *graph.TopologyError
			if !errors.As(err, &topoErr) || !errors.Is(err, graph.ErrUnknownNode) {
				t.Errorf("got %v, want TopologyError wrapping ErrUnknownNode", err)
			}
		})
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ring.yaml")
	write := func(delay int) {
		t.Helper()
		src := fmt.Sprintf("config: {mode: weight, prediction_delay: %d}\n", delay) +
			"nodes: [{label: a, at: \"0,0\"}, {label: b, at: \"1,0\"}]\n" +
			"flows: [{from: a, to: b}, {from: b, to: a}]\n"
		if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(1)

	got := make(chan *Program, 4)
	w, err := Watch(path, func(p *Program) { got <- p }, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	write(5)
	select {
	case p := <-got:
		if p.Config.PredictionDelay != 5 {
			t.Errorf("reloaded delay = %d, want 5", p.Config.PredictionDelay)
		}
		if p.Name != "ring" {
			t.Errorf("name = %q, want ring", p.Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload within 5s")
	}
}

func TestWatch_SkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("nodes: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got := make(chan *Program, 1)
	w, err := Watch(path, func(p *Program) { got <- p }, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("nodes: [{label: a, at: nowhere}]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case p := <-got:
		t.Errorf("callback ran for invalid program %q", p.Name)
	case <-time.After(300 * time.Millisecond):
	}
}
