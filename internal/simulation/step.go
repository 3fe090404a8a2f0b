package simulation

import (
	"context"
	"math"

	"github.com/nvandessel/tendril/internal/activation"
	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/logging"
	"github.com/nvandessel/tendril/internal/transfer"
	"github.com/nvandessel/tendril/internal/vecmath"
)

// biasFloor is what cancelBias leaves on the weaker of two opposing bias
// flows.
const biasFloor = 1e-7

// TickReport summarizes one completed tick.
type TickReport struct {
	Tick   int   `json:"tick"`
	Phase  Phase `json:"phase"`
	Sample int   `json:"sample"`

	// Outputs are the output flow values read this tick and Targets the
	// sample's Y. Both are empty in weight mode.
	Outputs []float64 `json:"outputs,omitempty"`
	Targets []float64 `json:"targets,omitempty"`

	// Error is the mean squared error between Outputs and Targets. Score
	// is the amplifier value and IOSent the weight redistributed to the
	// outputs by the correction.
	Error  float64 `json:"error"`
	Score  float64 `json:"score"`
	IOSent float64 `json:"io_sent"`

	// Moved is the absolute magnitude moved by all transfers.
	Moved      float64 `json:"moved"`
	Flipped    int     `json:"flipped"`
	MeanWeight float64 `json:"mean_weight"`
}

// Step advances the world by one tick. The phase is derived from the tick
// count before it is incremented, and the tick counter increments last.
func (w *World) Step() (TickReport, error) {
	if w.Config.Mode == ModeWeight {
		return w.stepWeight()
	}
	return w.stepPhased()
}

// Run steps the world n times, stopping early when ctx is done. It returns
// the reports of the completed ticks.
func (w *World) Run(ctx context.Context, n int) ([]TickReport, error) {
	reports := make([]TickReport, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		r, err := w.Step()
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (w *World) stepPhased() (TickReport, error) {
	phase, err := PhaseAt(w.Tick, w.Config.PredictionDelay)
	if err != nil {
		return TickReport{}, err
	}
	if phase != w.lastPhase || w.Tick == 0 {
		w.logger.Debug("phase", "tick", w.Tick, "from", w.lastPhase, "to", phase)
		w.events.Phase(w.Tick, w.lastPhase.String(), phase.String())
		w.lastPhase = phase
	}

	idx, sample := w.sample()
	report := TickReport{Tick: w.Tick, Phase: phase, Sample: idx}

	switch phase {
	case PhasePredict, PhaseRepredict:
		report.Moved += w.predict()
		w.inject(sample)
	case PhaseSlope:
		report.Moved += w.propagateSlope()
	case PhaseLearn:
		report.Moved += w.learn()
	case PhaseReset:
		for i := range w.Graph.Flows {
			w.Graph.Flows[i].Set(w.attrs.Slope, 0)
		}
	}

	w.correctOutputs(sample, &report)
	w.Graph.ResetBoundaries()

	w.cancelBias()
	if err := w.settle(&report); err != nil {
		return report, err
	}

	w.logger.Log(context.Background(), logging.LevelTrace, "tick",
		"tick", report.Tick, "phase", phase, "error", report.Error,
		"score", report.Score, "io_sent", report.IOSent, "moved", report.Moved)
	w.Tick++
	return report, nil
}

// predict moves value forward weighted by weight, squashes and decays it.
func (w *World) predict() float64 {
	a := w.attrs
	r := w.engine.All(a.Value, transfer.Forward, transfer.Weighted(transfer.ByAttribute(a.Weight)))
	r.Apply()

	keep := 1 - w.Config.ValueDecay
	for i := range w.Graph.Flows {
		f := &w.Graph.Flows[i]
		f.Set(a.Value, w.activate(f.Get(a.Value))*keep)
	}
	return r.Moved
}

// inject writes the sample inputs into the input flows and the bias weights
// into the bias flows.
func (w *World) inject(s Sample) {
	a := w.attrs
	g := w.Graph
	for i, id := range w.inputFlows {
		if i < len(s.X) {
			g.Flow(id).Set(a.Value, s.X[i])
		}
	}
	for _, id := range w.plusFlows {
		f := g.Flow(id)
		f.Set(a.Value, f.Get(a.Weight))
	}
	for _, id := range w.minusFlows {
		f := g.Flow(id)
		f.Set(a.Value, -f.Get(a.Weight))
	}
}

// propagateSlope moves slope backward weighted by weight and decays it.
func (w *World) propagateSlope() float64 {
	a := w.attrs
	r := w.engine.All(a.Slope, transfer.Backward, transfer.Weighted(transfer.ByAttribute(a.Weight)))
	r.Apply()

	keep := 1 - w.Config.SlopeDecay
	for i := range w.Graph.Flows {
		f := &w.Graph.Flows[i]
		f.Set(a.Slope, f.Get(a.Slope)*keep)
	}
	return r.Moved
}

// learn computes three backward weight transfers against the same state and
// then applies them in order: slope-directed, weight-directed and leak.
func (w *World) learn() float64 {
	a := w.attrs
	c := w.Config
	slopeSize := c.TransferRate * (1 - c.CycleAspect)
	weightSize := c.TransferRate * c.CycleAspect * (1 - c.CycleLeak)
	evenSize := c.TransferRate * c.CycleAspect * c.CycleLeak

	results := []*transfer.Result{
		w.engine.All(a.Weight, transfer.Backward,
			transfer.Weighted(w.slopeWeights, transfer.Scale(slopeSize))),
		w.engine.All(a.Weight, transfer.Backward,
			transfer.Weighted(transfer.ByAttribute(a.Weight), transfer.Scale(weightSize), transfer.IncludeReversed())),
		w.engine.All(a.Weight, transfer.Backward,
			transfer.Even(transfer.Scale(evenSize), transfer.IncludeReversed())),
	}
	moved := 0.0
	for _, r := range results {
		r.Apply()
		moved += r.Moved
	}
	return moved
}

// slopeWeights favors neighbors whose value explains f's slope: neighbor
// values are shifted to be non-negative, and inverted when f's slope is
// negative.
func (w *World) slopeWeights(f *graph.Flow, neighbors []*graph.Flow, dst []float64) {
	lo := math.Inf(1)
	for _, n := range neighbors {
		lo = math.Min(lo, n.Get(w.attrs.Value))
	}
	hi := math.Inf(-1)
	for i, n := range neighbors {
		dst[i] = n.Get(w.attrs.Value) - lo
		hi = math.Max(hi, dst[i])
	}
	if f.Get(w.attrs.Slope) < 0 {
		for i := range dst {
			dst[i] = hi - dst[i]
		}
	}
}

// correctOutputs redistributes the weight that left through the input and
// bias boundaries this tick onto the output flows, in proportion to how much
// each output's derivative of the amplified score exceeds the smallest one.
// Every output flow's slope also accumulates its raw derivative. It runs on
// every phased tick, so the derivatives seeded during a reset tick are what
// the next SLOPE phase carries backward.
func (w *World) correctOutputs(s Sample, report *TickReport) {
	if len(w.outputFlows) == 0 {
		return
	}
	a := w.attrs
	g := w.Graph
	amp := w.Config.Amplitude

	outputs := make([]float64, len(w.outputFlows))
	for i, id := range w.outputFlows {
		outputs[i] = g.Flow(id).Get(a.Value)
	}
	target := make([]float64, len(outputs))
	copy(target, s.Y)

	score := w.amplify(outputs, target, amp)
	ioSent := 0.0
	for _, group := range [][]graph.BoundaryID{w.Roles.Input, w.Roles.PlusBias, w.Roles.MinusBias} {
		for _, id := range group {
			ioSent += g.Boundary(id).Get(a.Weight) * score
		}
	}

	slopes := activation.PartialDerivatives(outputs, target, func(o, t []float64) float64 {
		return w.amplify(o, t, amp)
	})
	basis := slopes
	if w.Config.SignGate {
		basis = signGate(outputs, slopes)
	}
	shares := vecmath.ShiftMin(basis)
	sum := vecmath.Sum(shares)

	for i, id := range w.outputFlows {
		share := 1 / float64(len(shares))
		if sum != 0 {
			share = shares[i] / sum
		}
		f := g.Flow(id)
		f.Add(a.Weight, ioSent*share)
		f.Add(a.Slope, slopes[i])
	}

	report.Outputs = outputs
	report.Targets = target
	report.Error = vecmath.MSE(outputs, target)
	report.Score = score
	report.IOSent = ioSent
}

// signGate maps each derivative to +|s| when the output value agrees with it
// in sign, −|s| when it disagrees, and 0 when either is zero.
func signGate(outputs, slopes []float64) []float64 {
	out := make([]float64, len(slopes))
	for i, s := range slopes {
		v := outputs[i]
		switch {
		case v == 0 || s == 0:
			out[i] = 0
		case (v > 0) == (s > 0):
			out[i] = math.Abs(s)
		default:
			out[i] = -math.Abs(s)
		}
	}
	return out
}

// cancelBias keeps opposing bias flows from growing together: for every node
// fed by both a plus-bias and a minus-bias flow, the smaller weight minus a
// small floor is subtracted from both.
func (w *World) cancelBias() {
	if len(w.Roles.PlusBias) == 0 || len(w.Roles.MinusBias) == 0 {
		return
	}
	g := w.Graph
	weight := w.attrs.Weight
	for i := range g.Nodes {
		plus, minus := -1, -1
		for _, id := range g.Nodes[i].Flows {
			f := g.Flow(id)
			if f.B != g.Nodes[i].ID {
				continue
			}
			switch w.biasNodes[f.A] {
			case 1:
				if plus < 0 {
					plus = int(id)
				}
			case -1:
				if minus < 0 {
					minus = int(id)
				}
			}
		}
		if plus < 0 || minus < 0 {
			continue
		}
		p, m := g.Flow(graph.FlowID(plus)), g.Flow(graph.FlowID(minus))
		d := math.Min(p.Get(weight), m.Get(weight)) - biasFloor
		p.Add(weight, -d)
		m.Add(weight, -d)
	}
}

// settle restores the direction and mean-weight invariants.
func (w *World) settle(report *TickReport) error {
	flipped, err := w.Graph.Sanitise()
	if err != nil {
		return err
	}
	w.Graph.Normalise(w.attrs.Weight, 1)
	report.Flipped = flipped
	report.MeanWeight = w.Graph.Mean(w.attrs.Weight)
	return nil
}

// stepWeight runs one tick of the weight-only loop: a forward weighted
// transfer of the direction attribute plus an even leak.
func (w *World) stepWeight() (TickReport, error) {
	a := w.attrs
	c := w.Config
	report := TickReport{Tick: w.Tick, Sample: -1}

	weighted := w.engine.All(a.Weight, transfer.Forward,
		transfer.Weighted(transfer.ByAttribute(a.Weight), transfer.Scale(c.TransferRate*(1-c.LeakRate)), transfer.IncludeReversed()))
	weighted.Apply()
	leak := w.engine.All(a.Weight, transfer.Forward,
		transfer.Even(transfer.Scale(c.TransferRate*c.LeakRate), transfer.IncludeReversed()))
	leak.Apply()
	report.Moved = weighted.Moved + leak.Moved

	w.Graph.ResetBoundaries()
	if err := w.settle(&report); err != nil {
		return report, err
	}
	w.logger.Log(context.Background(), logging.LevelTrace, "tick",
		"tick", report.Tick, "moved", report.Moved, "flipped", report.Flipped)
	w.Tick++
	return report, nil
}
