// Package random provides the seeded generator shared by topology builders
// and attribute defaults. The same seed always yields the same sequence.
package random

import (
	"math/rand"

	"github.com/seehuhn/mt19937"
)

// Source is a Mersenne Twister backed generator. It is not safe for
// concurrent use.
type Source struct {
	seed int64
	r    *rand.Rand
}

// New returns a generator seeded with seed.
func New(seed int64) *Source {
	mt := mt19937.New()
	mt.Seed(seed)
	return &Source{seed: seed, r: rand.New(mt)}
}

// Seed returns the seed the generator was created with.
func (s *Source) Seed() int64 { return s.seed }

// Float64 returns a uniform value in [0, 1).
func (s *Source) Float64() float64 { return s.r.Float64() }

// Range returns a uniform value in [lo, hi).
func (s *Source) Range(lo, hi float64) float64 {
	return s.r.Float64()*(hi-lo) + lo
}

// Uniform returns an initializer drawing from [lo, hi) on every call.
func (s *Source) Uniform(lo, hi float64) func() float64 {
	return func() float64 { return s.Range(lo, hi) }
}

// Int63 returns a non-negative pseudo-random 63-bit integer, for deriving
// seeds of other generators.
func (s *Source) Int63() int64 { return s.r.Int63() }
