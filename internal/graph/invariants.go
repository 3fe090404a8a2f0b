package graph

import "math"

// MachineEpsilon is the gap between 1 and the next float64. Flows touching a
// direction-fixed boundary are clamped to at least this value before
// sanitisation so they never flip.
const MachineEpsilon = 0x1p-52

// Sanitise restores the direction invariant. Flows adjacent to a
// direction-fixed boundary are first clamped to MachineEpsilon; then every flow
// whose direction attribute is negative has its endpoints swapped and the
// attribute negated. It returns the number of flows flipped.
func (g *Graph) Sanitise() (int, error) {
	dir, err := g.DirectionAttr()
	if err != nil {
		return 0, err
	}

	for i := range g.Boundaries {
		b := &g.Boundaries[i]
		if !b.DirectionFixed {
			continue
		}
		for _, id := range g.Nodes[b.Node].Flows {
			f := &g.Flows[id]
			f.Attrs[dir] = math.Max(f.Attrs[dir], MachineEpsilon)
		}
	}

	flipped := 0
	for i := range g.Flows {
		f := &g.Flows[i]
		if f.Attrs[dir] < 0 {
			f.A, f.B = f.B, f.A
			f.Attrs[dir] = -f.Attrs[dir]
			flipped++
		}
	}
	return flipped, nil
}

// Normalise rescales attr on every flow so its mean equals mean. A graph with
// no flows, or whose current mean is zero or not finite, is left unchanged.
func (g *Graph) Normalise(attr AttrID, mean float64) {
	current := g.Mean(attr)
	if current == 0 || math.IsNaN(current) || math.IsInf(current, 0) {
		return
	}
	mult := mean / current
	for i := range g.Flows {
		g.Flows[i].Attrs[attr] *= mult
	}
}

// Mean returns the mean of attr over all flows, or 0 when there are none.
func (g *Graph) Mean(attr AttrID) float64 {
	if len(g.Flows) == 0 {
		return 0
	}
	total := 0.0
	for i := range g.Flows {
		total += g.Flows[i].Attrs[attr]
	}
	return total / float64(len(g.Flows))
}

// HasNonFinite reports whether any flow or boundary attribute is NaN or ±Inf.
func (g *Graph) HasNonFinite() bool {
	finite := func(vs []float64) bool {
		for _, v := range vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
		return true
	}
	for i := range g.Flows {
		if !finite(g.Flows[i].Attrs) {
			return true
		}
	}
	for i := range g.Boundaries {
		if !finite(g.Boundaries[i].Attrs) {
			return true
		}
	}
	return false
}
