package simulation

import (
	"math"
	"testing"

	"github.com/nvandessel/tendril/internal/graph"
)

// AssertMeanWeight asserts that the mean flow weight after every tick is
// within tol of want.
func AssertMeanWeight(t *testing.T, result SimulationResult, want, tol float64) {
	t.Helper()
	for _, tr := range result.Ticks {
		if got := tr.Report.MeanWeight; math.Abs(got-want) > tol {
			t.Errorf("AssertMeanWeight: tick %d: mean weight %.12f, want %.12f ± %g", tr.Report.Tick, got, want, tol)
		}
	}
}

// AssertFinite asserts that no tick left a NaN or infinite weight and that
// the final graph carries no non-finite attribute anywhere.
func AssertFinite(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, tr := range result.Ticks {
		for id, w := range tr.Weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				t.Errorf("AssertFinite: tick %d: flow %d weight %v", tr.Report.Tick, id, w)
			}
		}
	}
	if result.World != nil && result.World.Graph.HasNonFinite() {
		t.Error("AssertFinite: final graph has non-finite attributes")
	}
}

// AssertNonNegative asserts that every weight after every tick is >= 0.
func AssertNonNegative(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, tr := range result.Ticks {
		for id, w := range tr.Weights {
			if w < 0 {
				t.Errorf("AssertNonNegative: tick %d: flow %d weight %.12f", tr.Report.Tick, id, w)
			}
		}
	}
}

// AssertDirectionFixed asserts that flows touching a direction-fixed
// boundary keep a strictly positive weight after every tick.
func AssertDirectionFixed(t *testing.T, result SimulationResult) {
	t.Helper()
	g := result.World.Graph
	var fixed []graph.FlowID
	for i := range g.Boundaries {
		b := &g.Boundaries[i]
		if b.DirectionFixed {
			fixed = append(fixed, g.Node(b.Node).Flows...)
		}
	}
	for _, tr := range result.Ticks {
		for _, id := range fixed {
			if w := tr.Weights[id]; w <= 0 {
				t.Errorf("AssertDirectionFixed: tick %d: flow %d weight %g not positive", tr.Report.Tick, id, w)
			}
		}
	}
}

// AssertPhaseSchedule asserts that each tick reported the phase its index
// maps to under the world's prediction delay.
func AssertPhaseSchedule(t *testing.T, result SimulationResult) {
	t.Helper()
	delay := result.World.Config.PredictionDelay
	for _, tr := range result.Ticks {
		want, err := PhaseAt(tr.Report.Tick, delay)
		if err != nil {
			t.Fatalf("AssertPhaseSchedule: %v", err)
		}
		if tr.Report.Phase != want {
			t.Errorf("AssertPhaseSchedule: tick %d: phase %s, want %s", tr.Report.Tick, tr.Report.Phase, want)
		}
	}
}

// AssertWeightIncreased asserts that flow id weighs more after tick to than
// after tick from.
func AssertWeightIncreased(t *testing.T, result SimulationResult, id graph.FlowID, from, to int) {
	t.Helper()
	wFrom, wTo := result.Weight(from, id), result.Weight(to, id)
	if wTo <= wFrom {
		t.Errorf("AssertWeightIncreased: flow %d weight did not increase: tick %d=%.6f, tick %d=%.6f", id, from, wFrom, to, wTo)
	}
}

// AssertWeightStable asserts that the variance of flow id's weight over the
// last n ticks is below maxVariance.
func AssertWeightStable(t *testing.T, result SimulationResult, id graph.FlowID, maxVariance float64, lastN int) {
	t.Helper()
	start := max(len(result.Ticks)-lastN, 0)
	var weights []float64
	for i := start; i < len(result.Ticks); i++ {
		weights = append(weights, result.Weight(i, id))
	}
	if len(weights) < 2 {
		t.Errorf("AssertWeightStable: only %d ticks to compare", len(weights))
		return
	}
	if v := variance(weights); v > maxVariance {
		t.Errorf("AssertWeightStable: flow %d variance %.6f > max %.6f over last %d ticks", id, v, maxVariance, lastN)
	}
}

// variance computes the population variance of a float64 slice.
func variance(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	sum := 0.0
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(vals))
}
