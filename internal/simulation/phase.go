package simulation

import (
	"errors"
	"fmt"

	"github.com/nvandessel/tendril/internal/graph"
)

// Phase is one stage of the periodic learning schedule.
type Phase int

const (
	PhasePredict Phase = iota
	PhaseSlope
	PhaseLearn
	PhaseRepredict
	PhaseReset
)

var phaseNames = [...]string{"predict", "slope", "learn", "repredict", "reset"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

var errZeroDelay = errors.New("prediction delay must be positive")

// Period returns the schedule length in ticks for the given delay.
func Period(delay int) int { return 4*delay + 1 }

// PhaseAt returns the phase active at tick. The schedule is delay ticks each
// of PREDICT, SLOPE, LEARN and PREDICT again, then one RESET tick. A
// non-positive delay is a ConfigError.
func PhaseAt(tick, delay int) (Phase, error) {
	if delay <= 0 {
		return 0, graph.NewConfigError("phase", errZeroDelay)
	}
	t := tick % Period(delay)
	if t == 4*delay {
		return PhaseReset, nil
	}
	return Phase(t / delay), nil
}

// SampleIndex returns which data sample is presented at tick. It advances
// once per period and wraps around n samples. n == 0 yields -1.
func SampleIndex(tick, delay, n int) int {
	if n == 0 || delay <= 0 {
		return -1
	}
	return (tick / Period(delay)) % n
}
