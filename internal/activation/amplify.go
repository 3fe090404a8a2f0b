package activation

import (
	"fmt"
	"sort"

	"github.com/nvandessel/tendril/internal/vecmath"
)

// DerivativeStep is the central-difference step used by PartialDerivatives.
const DerivativeStep = 1e-7

// Amplifier maps the error between output and target into a multiplier in
// (1, 1+amplitude]. A perfect output yields the maximum.
type Amplifier func(output, target []float64, amplitude float64) float64

// ErrorToAmplify maps a non-negative error onto (lo, hi]: zero error gives
// hi, and the result falls toward lo as the error grows.
func ErrorToAmplify(err, lo, hi float64) float64 {
	err += 1 / (hi - lo)
	return 1/err + lo
}

// MSE amplifies by mean squared error.
func MSE(output, target []float64, amplitude float64) float64 {
	return ErrorToAmplify(vecmath.MSE(output, target), 1, 1+amplitude)
}

// Cosine amplifies by cosine distance, 1 minus cosine similarity, which lies
// in [0, 2].
func Cosine(output, target []float64, amplitude float64) float64 {
	distance := 1 - vecmath.CosineSimilarity(output, target)
	return ErrorToAmplify(distance, 1, 1+amplitude)
}

var amplifiers = map[string]Amplifier{
	"mse":    MSE,
	"cosine": Cosine,
}

// LookupAmplifier returns the amplifier registered under name.
func LookupAmplifier(name string) (Amplifier, error) {
	fn, ok := amplifiers[name]
	if !ok {
		return nil, fmt.Errorf("unknown amplifier %q (valid: %v)", name, AmplifierNames())
	}
	return fn, nil
}

// AmplifierNames lists the registered amplifiers.
func AmplifierNames() []string {
	names := make([]string, 0, len(amplifiers))
	for name := range amplifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PartialDerivatives estimates ∂score/∂output[i] for each output by central
// difference: (score(o+h·eᵢ) − score(o−h·eᵢ)) / 2h with h = DerivativeStep.
func PartialDerivatives(output, target []float64, score func(output, target []float64) float64) []float64 {
	slopes := make([]float64, len(output))
	lo := make([]float64, len(output))
	hi := make([]float64, len(output))
	for i := range output {
		copy(lo, output)
		copy(hi, output)
		lo[i] -= DerivativeStep
		hi[i] += DerivativeStep
		slopes[i] = (score(hi, target) - score(lo, target)) / (2 * DerivativeStep)
	}
	return slopes
}
