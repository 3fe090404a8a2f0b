package program

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/random"
	"github.com/nvandessel/tendril/internal/sanitize"
	"github.com/nvandessel/tendril/internal/simulation"
	"github.com/nvandessel/tendril/internal/topology"
	"github.com/nvandessel/tendril/internal/utils"
)

// Boundary roles accepted in program files.
const (
	RoleInput     = "input"
	RoleOutput    = "output"
	RolePlusBias  = "plus_bias"
	RoleMinusBias = "minus_bias"
)

var (
	errBadPoint  = errors.New("point must be \"x,y\"")
	errBadWeight = errors.New("weight needs exactly one of const, uniform or noise")
	errDupLabel  = errors.New("duplicate label")
)

// File is the YAML form of a program.
//
//	name: flip
//	seed: 42
//	config: {prediction_delay: 10}
//	weight: 1
//	nodes:
//	  - {label: in0, at: "0,1"}
//	lines:
//	  - {label: hidden, from: "1,1", to: "1,2"}
//	flows:
//	  - {from: in0, to: "@1,1", weight: {uniform: [0, 1]}}
//	boundaries:
//	  - {nodes: [in0], role: input}
//	data:
//	  - {x: [1], y: [-1]}
//
// Flow endpoints name a node label, a line/grid/jumble label (expanding to
// all of its nodes) or "@x,y" for the nodes at that position.
type File struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Seed        int64             `yaml:"seed"`
	Config      simulation.Config `yaml:"config"`

	// Weight is the default weight of flows that do not set one. Absent
	// means a uniform draw from [-1, 1).
	Weight *WeightSpec `yaml:"weight"`

	Nodes      []NodeSpec          `yaml:"nodes" validate:"dive"`
	Lines      []LineSpec          `yaml:"lines" validate:"dive"`
	Grids      []GridSpec          `yaml:"grids" validate:"dive"`
	Jumbles    []JumbleSpec        `yaml:"jumbles" validate:"dive"`
	Flows      []FlowSpec          `yaml:"flows" validate:"dive"`
	Boundaries []BoundarySpec      `yaml:"boundaries" validate:"dive"`
	Data       []simulation.Sample `yaml:"data"`
}

// NodeSpec places one labeled node.
type NodeSpec struct {
	Label string `yaml:"label" validate:"required"`
	At    string `yaml:"at" validate:"required"`
}

// LineSpec places evenly spaced nodes along a segment.
type LineSpec struct {
	Label   string  `yaml:"label" validate:"required"`
	From    string  `yaml:"from" validate:"required"`
	To      string  `yaml:"to" validate:"required"`
	Spacing float64 `yaml:"spacing" validate:"gte=0"`
}

// GridSpec places a wired lattice.
type GridSpec struct {
	Label   string      `yaml:"label"`
	From    string      `yaml:"from" validate:"required"`
	To      string      `yaml:"to" validate:"required"`
	Spacing float64     `yaml:"spacing" validate:"gte=0"`
	Weight  *WeightSpec `yaml:"weight"`
}

// JumbleSpec scatters nodes and wires each to its nearest neighbors.
type JumbleSpec struct {
	Label     string      `yaml:"label"`
	From      string      `yaml:"from" validate:"required"`
	To        string      `yaml:"to" validate:"required"`
	Count     int         `yaml:"count" validate:"gt=0"`
	Neighbors int         `yaml:"neighbors" validate:"gt=0"`
	Weight    *WeightSpec `yaml:"weight"`
}

// FlowSpec wires every node of From to every node of To.
type FlowSpec struct {
	From   string      `yaml:"from" validate:"required"`
	To     string      `yaml:"to" validate:"required"`
	Weight *WeightSpec `yaml:"weight"`
}

// BoundarySpec attaches boundaries to nodes. Role boundaries are always
// direction-fixed.
type BoundarySpec struct {
	Nodes          []string `yaml:"nodes" validate:"required,min=1"`
	Role           string   `yaml:"role" validate:"omitempty,oneof=input output plus_bias minus_bias"`
	DirectionFixed bool     `yaml:"direction_fixed"`
	Color          string   `yaml:"color"`
	Shape          string   `yaml:"shape"`
}

// WeightSpec is either a number or a named generator:
//
//	weight: 0.5
//	weight: {uniform: [0, 1]}
//	weight: {noise: {scale: 0.2, lo: -1, hi: 1}}
type WeightSpec struct {
	Const   *float64   `yaml:"const"`
	Uniform []float64  `yaml:"uniform"`
	Noise   *NoiseSpec `yaml:"noise"`
}

// NoiseSpec parameterizes simplex-noise weights.
type NoiseSpec struct {
	Scale float64 `yaml:"scale"`
	Lo    float64 `yaml:"lo"`
	Hi    float64 `yaml:"hi"`
}

// UnmarshalYAML accepts a bare number as a constant weight.
func (w *WeightSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		var v float64
		if err := n.Decode(&v); err != nil {
			return err
		}
		w.Const = &v
		return nil
	}
	type plain WeightSpec
	return n.Decode((*plain)(w))
}

func (w *WeightSpec) validate() error {
	set := 0
	if w.Const != nil {
		set++
	}
	if w.Uniform != nil {
		if len(w.Uniform) != 2 {
			return fmt.Errorf("uniform needs [lo, hi], got %v", w.Uniform)
		}
		set++
	}
	if w.Noise != nil {
		set++
	}
	if set != 1 {
		return errBadWeight
	}
	return nil
}

// Func turns the spec into a weight generator. A nil spec yields nil, which
// leaves the attribute default in charge.
func (w *WeightSpec) Func(rnd *random.Source) topology.WeightFunc {
	switch {
	case w == nil:
		return nil
	case w.Const != nil:
		return topology.Const(*w.Const)
	case w.Uniform != nil:
		return topology.Uniform(rnd, w.Uniform[0], w.Uniform[1])
	default:
		scale := w.Noise.Scale
		if scale == 0 {
			scale = 1
		}
		return topology.Noise(rnd.Int63(), scale, w.Noise.Lo, w.Noise.Hi)
	}
}

// LoadFile reads and parses a program file. The program name defaults to
// the file name without extension.
func LoadFile(path string) (*Program, error) {
	return LoadFileWithBase(path, simulation.DefaultConfig())
}

// LoadFileWithBase is LoadFile with base supplying every config field the
// file leaves out.
func LoadFileWithBase(path string, base simulation.Config) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}
	p, err := ParseWithBase(data, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if p.Name == "" {
		p.Name = sanitize.Name(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	p.Source = path
	return p, nil
}

// Parse decodes and checks a YAML program. Structural problems are
// ConfigErrors; unresolved references surface when the program is built.
func Parse(data []byte) (*Program, error) {
	return ParseWithBase(data, simulation.DefaultConfig())
}

// ParseWithBase decodes a program on top of base.
func ParseWithBase(data []byte, base simulation.Config) (*Program, error) {
	f := File{Config: base}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, graph.NewConfigError("parse program", err)
	}
	if err := f.check(); err != nil {
		return nil, graph.NewConfigError("check program", err)
	}
	return &Program{
		Name:        sanitize.Name(f.Name),
		Description: sanitize.Description(f.Description),
		Config:      f.Config,
		Data:        f.Data,
		Seed:        f.Seed,
		Topology:    f.build,
	}, nil
}

func (f *File) check() error {
	if err := utils.ValidateStruct(f); err != nil {
		return err
	}

	weights := []*WeightSpec{f.Weight}
	for _, g := range f.Grids {
		weights = append(weights, g.Weight)
	}
	for _, j := range f.Jumbles {
		weights = append(weights, j.Weight)
	}
	for _, fl := range f.Flows {
		weights = append(weights, fl.Weight)
	}
	for _, w := range weights {
		if w == nil {
			continue
		}
		if err := w.validate(); err != nil {
			return err
		}
	}

	points := make([]string, 0, len(f.Nodes)+2*(len(f.Lines)+len(f.Grids)+len(f.Jumbles)))
	for _, n := range f.Nodes {
		points = append(points, n.At)
	}
	for _, l := range f.Lines {
		points = append(points, l.From, l.To)
	}
	for _, g := range f.Grids {
		points = append(points, g.From, g.To)
	}
	for _, j := range f.Jumbles {
		points = append(points, j.From, j.To)
	}
	for _, p := range points {
		if _, _, err := parsePoint(p); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	labels := make([]string, 0, len(f.Nodes)+len(f.Lines))
	for _, n := range f.Nodes {
		labels = append(labels, n.Label)
	}
	for _, l := range f.Lines {
		labels = append(labels, l.Label)
	}
	for _, g := range f.Grids {
		labels = append(labels, g.Label)
	}
	for _, j := range f.Jumbles {
		labels = append(labels, j.Label)
	}
	for _, l := range labels {
		if l == "" {
			continue
		}
		if seen[l] {
			return fmt.Errorf("%w: %q", errDupLabel, l)
		}
		seen[l] = true
	}
	return nil
}

// build lays out the file in declaration order: nodes, lines,
// grids, jumbles, flows, then boundaries.
func (f *File) build(rnd *random.Source) simulation.TopologyFunc {
	return func(tx *graph.Tx, roles *simulation.Roles) {
		var def topology.WeightFunc
		if f.Weight != nil {
			wf := f.Weight.Func(rnd)
			if f.Weight.Noise == nil {
				// Constant and uniform defaults ignore the endpoints, so they
				// can live on the attribute itself.
				tx.Attribute(simulation.AttrWeight, graph.AttributeOptions{
					Default: func() float64 { return wf(graph.Node{}, graph.Node{}) },
				})
			} else {
				def = wf
			}
		}
		pick := func(w *WeightSpec) topology.WeightFunc {
			if w != nil {
				return w.Func(rnd)
			}
			return def
		}

		labels := make(map[string][]graph.NodeID)
		for _, n := range f.Nodes {
			x, y, _ := parsePoint(n.At)
			labels[n.Label] = []graph.NodeID{tx.Node(x, y)}
		}
		for _, l := range f.Lines {
			x0, y0, _ := parsePoint(l.From)
			x1, y1, _ := parsePoint(l.To)
			labels[l.Label] = topology.Line(tx, topology.LineOptions{X0: x0, Y0: y0, X1: x1, Y1: y1, Spacing: l.Spacing})
		}
		for _, g := range f.Grids {
			x0, y0, _ := parsePoint(g.From)
			x1, y1, _ := parsePoint(g.To)
			cols := topology.Grid(tx, topology.GridOptions{
				X0: x0, Y0: y0, X1: x1, Y1: y1, Spacing: g.Spacing, Weight: pick(g.Weight),
			}, nil)
			if g.Label != "" {
				labels[g.Label] = flatten(cols)
			}
		}
		for _, j := range f.Jumbles {
			x0, y0, _ := parsePoint(j.From)
			x1, y1, _ := parsePoint(j.To)
			ids, _ := topology.Jumble(tx, topology.JumbleOptions{
				Rect:      graph.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1},
				Count:     j.Count,
				Neighbors: j.Neighbors,
				Weight:    pick(j.Weight),
			}, rnd)
			if j.Label != "" {
				labels[j.Label] = ids
			}
		}

		r := &resolver{tx: tx, labels: labels}
		for _, fl := range f.Flows {
			as, bs := r.resolve(fl.From), r.resolve(fl.To)
			if tx.Err() != nil {
				return
			}
			topology.Connect(tx, as, bs, pick(fl.Weight), nil)
		}

		for _, b := range f.Boundaries {
			var nodes []graph.NodeID
			for _, ref := range b.Nodes {
				nodes = append(nodes, r.resolve(ref)...)
			}
			if tx.Err() != nil {
				return
			}
			switch b.Role {
			case RoleInput:
				roles.Input = append(roles.Input, tx.Boundary(nodes, styled(simulation.InputStyle, b))...)
			case RoleOutput:
				roles.Output = append(roles.Output, tx.Boundary(nodes, styled(simulation.OutputStyle, b))...)
			case RolePlusBias:
				roles.PlusBias = append(roles.PlusBias, tx.Boundary(nodes, styled(simulation.BiasStyle, b))...)
			case RoleMinusBias:
				roles.MinusBias = append(roles.MinusBias, tx.Boundary(nodes, styled(simulation.BiasStyle, b))...)
			default:
				tx.Boundary(nodes, graph.BoundaryOptions{DirectionFixed: b.DirectionFixed, Color: sanitize.Style(b.Color), Shape: sanitize.Style(b.Shape)})
			}
		}
	}
}

// styled overrides a role style with the colors given in the file.
func styled(base graph.BoundaryOptions, b BoundarySpec) graph.BoundaryOptions {
	if c := sanitize.Style(b.Color); c != "" {
		base.Color = c
	}
	if sh := sanitize.Style(b.Shape); sh != "" {
		base.Shape = sh
	}
	return base
}

// resolver maps flow and boundary references to nodes. The spatial index
// is built on the first positional reference.
type resolver struct {
	tx      *graph.Tx
	labels  map[string][]graph.NodeID
	indexed bool
}

func (r *resolver) resolve(ref string) []graph.NodeID {
	if pos, ok := strings.CutPrefix(ref, "@"); ok {
		x, y, err := parsePoint(pos)
		if err != nil {
			r.tx.Fail(graph.NewConfigError("resolve", err))
			return nil
		}
		if !r.indexed {
			w, h := extent(r.tx.Graph().Nodes)
			r.tx.SelectIndex(w, h)
			r.indexed = true
		}
		ids := r.tx.SelectPoint(x, y)
		if len(ids) == 0 && r.tx.Err() == nil {
			r.tx.Fail(graph.NewTopologyError("resolve", fmt.Errorf("%w: no node at %s", graph.ErrUnknownNode, ref)))
		}
		return ids
	}
	ids, ok := r.labels[ref]
	if !ok {
		r.tx.Fail(graph.NewTopologyError("resolve", fmt.Errorf("%w: label %q", graph.ErrUnknownNode, ref)))
		return nil
	}
	return ids
}

func parsePoint(s string) (x, y float64, err error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", errBadPoint, s)
	}
	if x, err = strconv.ParseFloat(strings.TrimSpace(xs), 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errBadPoint, s)
	}
	if y, err = strconv.ParseFloat(strings.TrimSpace(ys), 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errBadPoint, s)
	}
	return x, y, nil
}

func extent(nodes []graph.Node) (w, h float64) {
	for _, n := range nodes {
		w = max(w, n.X)
		h = max(h, n.Y)
	}
	return w, h
}

func flatten(cols [][]graph.NodeID) []graph.NodeID {
	var out []graph.NodeID
	for _, c := range cols {
		out = append(out, c...)
	}
	return out
}
