// Package activation holds the squashing functions applied to flow values
// after each forward pass, and the amplifiers that turn an output error into
// a bounded multiplier.
package activation

import (
	"fmt"
	"math"
	"sort"
)

// Func squashes one flow value.
type Func func(v float64) float64

// Normalization constants. Each is the fixed point of its curve scaled by
// itself, so iterating the function from any non-zero start converges to ±1.
const (
	TanhNorm    = 1.199678640257733
	SigmoidNorm = 1.543404638418
)

// Tanh is a hyperbolic tangent scaled so that Tanh(1) == 1.
func Tanh(v float64) float64 {
	return math.Tanh(v*TanhNorm) * TanhNorm
}

// Sigmoid is a bipolar logistic curve scaled so that Sigmoid(±1) == ±1.
func Sigmoid(v float64) float64 {
	v *= SigmoidNorm
	v = 2/(1+math.Exp(-v)) - 1
	return v * SigmoidNorm
}

var funcs = map[string]Func{
	"tanh":    Tanh,
	"sigmoid": Sigmoid,
}

// Lookup returns the activation function registered under name.
func Lookup(name string) (Func, error) {
	fn, ok := funcs[name]
	if !ok {
		return nil, fmt.Errorf("unknown activation %q (valid: %v)", name, Names())
	}
	return fn, nil
}

// Names lists the registered activation functions.
func Names() []string {
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
