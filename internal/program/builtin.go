package program

import (
	"math"

	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/random"
	"github.com/nvandessel/tendril/internal/simulation"
	"github.com/nvandessel/tendril/internal/topology"
)

var builtins = map[string]*Program{
	"octagon": {
		Name:        "octagon",
		Description: "eight flows in a closed ring, weight mode",
		Config:      weightConfig(0.5, 0.1),
		Topology:    octagon,
	},
	"grid": {
		Name:        "grid",
		Description: "8x8 lattice wired right and down, weight mode",
		Config:      weightConfig(0.5, 0.001),
		Topology:    grid,
	},
	"jumble": {
		Name:        "jumble",
		Description: "random spatial graph wired to nearest neighbors, noise weights, weight mode",
		Config:      weightConfig(0.5, 0.01),
		Topology:    jumble,
	},
	"feedback": {
		Name:        "feedback",
		Description: "one input feeding two outputs through a 5x5 lattice",
		Config:      simulation.DefaultConfig(),
		Data:        []simulation.Sample{{X: []float64{1}, Y: []float64{1, 1}}},
		Topology:    feedback,
	},
	"flip": {
		Name:        "flip",
		Description: "two inputs crossed over to two outputs, learns to swap signs",
		Config:      simulation.DefaultConfig(),
		Data:        []simulation.Sample{{X: []float64{1, -1}, Y: []float64{-1, 1}}},
		Topology:    flip,
	},
	"boolean": {
		Name:        "boolean",
		Description: "three hidden layers with opposing bias sources, learns XOR",
		Config:      simulation.DefaultConfig(),
		Data: []simulation.Sample{
			{X: []float64{-1, -1}, Y: []float64{-1}},
			{X: []float64{1, -1}, Y: []float64{1}},
			{X: []float64{-1, 1}, Y: []float64{1}},
			{X: []float64{1, 1}, Y: []float64{-1}},
		},
		Topology: boolean,
	},
}

func weightConfig(rate, leak float64) simulation.Config {
	c := simulation.DefaultConfig()
	c.Mode = simulation.ModeWeight
	c.TransferRate = rate
	c.LeakRate = leak
	return c
}

func octagon(*random.Source) simulation.TopologyFunc {
	return func(tx *graph.Tx, _ *simulation.Roles) {
		h := math.Sqrt(0.5) // leg of a right isosceles triangle with unit hypotenuse
		pts := [][2]float64{
			{h, 0}, {h + 1, 0}, {2*h + 1, h}, {2*h + 1, h + 1},
			{h + 1, 2*h + 1}, {h, 2*h + 1}, {0, h + 1}, {0, h},
		}
		ids := make([]graph.NodeID, len(pts))
		for i, p := range pts {
			ids[i] = tx.Node(p[0], p[1])
		}
		for i := range ids {
			tx.Link(ids[i], ids[(i+1)%len(ids)])
		}
	}
}

func grid(*random.Source) simulation.TopologyFunc {
	return func(tx *graph.Tx, _ *simulation.Roles) {
		topology.Grid(tx, topology.GridOptions{X1: 7, Y1: 7}, nil)
	}
}

func jumble(rnd *random.Source) simulation.TopologyFunc {
	return func(tx *graph.Tx, _ *simulation.Roles) {
		topology.Jumble(tx, topology.JumbleOptions{
			Rect:      graph.Rect{X1: 20, Y1: 12},
			Count:     80,
			Neighbors: 3,
			Weight:    topology.Noise(rnd.Int63(), 0.25, -1, 1),
		}, rnd)
	}
}

func feedback(rnd *random.Source) simulation.TopologyFunc {
	return func(tx *graph.Tx, roles *simulation.Roles) {
		i0 := tx.Node(0, 2)
		o0 := tx.Node(6, 1)
		o1 := tx.Node(6, 3)

		topology.Grid(tx, topology.GridOptions{X0: 1, X1: 5, Y1: 4}, nil)

		tx.SelectIndex(6, 4)
		w := topology.Uniform(rnd, 0, 1)
		topology.Connect(tx, []graph.NodeID{i0}, tx.SelectPoint(1, 2), w, nil)
		topology.Connect(tx, tx.SelectPoint(5, 1), []graph.NodeID{o0}, w, nil)
		topology.Connect(tx, tx.SelectPoint(5, 3), []graph.NodeID{o1}, w, nil)

		roles.AttachInput(tx, i0)
		roles.AttachOutput(tx, o0, o1)
	}
}

func flip(*random.Source) simulation.TopologyFunc {
	return func(tx *graph.Tx, roles *simulation.Roles) {
		tx.Attribute(simulation.AttrWeight, graph.AttributeOptions{Default: graph.Constant(1)})

		in0, in1 := tx.Node(0, 1), tx.Node(0, 2)
		split0, split1 := tx.Node(1, 1), tx.Node(1, 2)
		outside0, outside1 := tx.Node(2, 0), tx.Node(2, 3)
		uncross0, uncross1 := tx.Node(2, 1), tx.Node(2, 2)
		join0, join1 := tx.Node(3, 1), tx.Node(3, 2)
		out0, out1 := tx.Node(4, 1), tx.Node(4, 2)

		tx.Link(in0, split0)
		tx.Link(split0, outside0)
		tx.Link(split0, uncross0)
		tx.Link(split0, uncross1)
		tx.Link(uncross0, join0)
		tx.Link(outside0, join0)
		tx.Link(join0, out0)
		tx.Link(in1, split1)
		tx.Link(split1, outside1)
		tx.Link(split1, uncross1)
		tx.Link(split1, uncross0)
		tx.Link(uncross1, join1)
		tx.Link(outside1, join1)
		tx.Link(join1, out1)

		roles.AttachInput(tx, in0, in1)
		roles.AttachOutput(tx, out0, out1)
	}
}

// boolean feeds each input into its own first-layer node, mixes through two
// fully connected layers, and gathers the last layer into a single join
// before the output so every role node keeps exactly one flow.
func boolean(rnd *random.Source) simulation.TopologyFunc {
	return func(tx *graph.Tx, roles *simulation.Roles) {
		tx.Attribute(simulation.AttrWeight, graph.AttributeOptions{Default: rnd.Uniform(0, 1)})

		input := topology.Line(tx, topology.LineOptions{X0: 0, Y0: 1, X1: 0, Y1: 2})
		hidden0 := topology.Line(tx, topology.LineOptions{X0: 1, Y0: 1, X1: 1, Y1: 2})
		hidden1 := topology.Line(tx, topology.LineOptions{X0: 2, Y0: 1, X1: 2, Y1: 2})
		hidden2 := topology.Line(tx, topology.LineOptions{X0: 3, Y0: 1, X1: 3, Y1: 2})
		join := tx.Node(4, 1.5)
		output := tx.Node(5, 1.5)

		for i := range input {
			tx.Link(input[i], hidden0[i])
		}
		tx.Flow(hidden0, hidden1)
		tx.Flow(hidden1, hidden2)
		tx.Flow(hidden2, []graph.NodeID{join})
		tx.Link(join, output)

		roles.AttachInput(tx, input...)
		roles.AttachOutput(tx, output)

		plus := tx.Node(1.5, 0)
		minus := tx.Node(2.5, 0)
		hidden := append(append(append([]graph.NodeID{}, hidden0...), hidden1...), hidden2...)
		tx.Flow([]graph.NodeID{plus}, hidden)
		tx.Flow([]graph.NodeID{minus}, hidden)

		roles.AttachPlusBias(tx, plus)
		roles.AttachMinusBias(tx, minus)
	}
}
