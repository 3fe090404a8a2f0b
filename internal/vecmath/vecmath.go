// Package vecmath provides small vector helpers over []float64 used by the
// error metrics and output correction.
package vecmath

import "math"

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths, empty input, or a zero-magnitude vector yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MSE returns the mean squared difference between a and b, over the length
// of a. Missing entries of b count as 0. Empty a yields 0.
func MSE(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	total := 0.0
	for i, v := range a {
		d := v
		if i < len(b) {
			d -= b[i]
		}
		total += d * d
	}
	return total / float64(len(a))
}

// Sum returns the sum of v.
func Sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}

// Mean returns the arithmetic mean of v, or 0 for empty input.
func Mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return Sum(v) / float64(len(v))
}

// MinMax returns the smallest and largest element of v. Empty input yields
// (0, 0).
func MinMax(v []float64) (lo, hi float64) {
	if len(v) == 0 {
		return 0, 0
	}
	lo, hi = v[0], v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// ShiftMin returns v with its minimum subtracted from every element, so the
// smallest entry becomes 0.
func ShiftMin(v []float64) []float64 {
	lo, _ := MinMax(v)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x - lo
	}
	return out
}

// LinearRescale maps v onto [0, 1]. Empty input yields an empty slice, a
// single element yields [1], and a constant vector shares 1 equally.
func LinearRescale(v []float64) []float64 {
	if len(v) == 0 {
		return []float64{}
	}
	if len(v) == 1 {
		return []float64{1}
	}
	lo, hi := MinMax(v)
	out := make([]float64, len(v))
	for i, x := range v {
		if hi == lo {
			out[i] = 1 / float64(len(v))
			continue
		}
		out[i] = (x - lo) / (hi - lo)
	}
	return out
}
