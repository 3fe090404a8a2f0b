// Package simulation runs learning loops over a flow graph.
//
// A World owns a graph with three attributes declared on every flow: weight
// (the direction attribute), value and slope. Step advances it one tick. In
// phased mode each tick belongs to one of PREDICT, SLOPE, LEARN, PREDICT
// again and RESET; in weight mode every tick only redistributes weight.
// After every tick the world restores two invariants: no flow carries
// negative weight, and the mean weight over all flows is 1.
//
// The package also carries a small scenario harness used by its tests and by
// the program tests:
//
//	func TestFlipSettles(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:     "flip",
//	        Topology: flip,
//	        Data:     []simulation.Sample{{X: []float64{1, -1}, Y: []float64{-1, 1}}},
//	        Ticks:    41,
//	    })
//	    simulation.AssertMeanWeight(t, result, 1, 1e-9)
//	    simulation.AssertFinite(t, result)
//	}
package simulation
