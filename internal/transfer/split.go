package transfer

import "github.com/nvandessel/tendril/internal/graph"

// ScaleFunc returns the fraction of a flow's attribute moved by one transfer.
type ScaleFunc func(f *graph.Flow, neighbors []*graph.Flow) float64

// WeightFunc fills dst with one non-normalized weight per neighbor.
// len(dst) == len(neighbors).
type WeightFunc func(f *graph.Flow, neighbors []*graph.Flow, dst []float64)

// Policy decides how much of a flow's attribute leaves it and how that
// magnitude is shared among its neighbors.
type Policy interface {
	// Magnitude returns the amount that leaves f, given f's attribute value.
	Magnitude(f *graph.Flow, value float64, neighbors []*graph.Flow) float64

	// Split writes each neighbor's share of mag into dst. reversed[i] reports
	// whether neighbors[i] traverses the same edge in the opposite sense.
	Split(f *graph.Flow, neighbors []*graph.Flow, reversed []bool, mag float64, dst []float64)

	// IncludeReversed reports whether reversed neighbors take part.
	IncludeReversed() bool
}

// Option configures a split policy.
type Option func(*options)

type options struct {
	scale           ScaleFunc
	includeReversed bool
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Scale moves a constant fraction s of the attribute.
func Scale(s float64) Option {
	return func(o *options) {
		o.scale = func(*graph.Flow, []*graph.Flow) float64 { return s }
	}
}

// ScaleBy computes the moved fraction per flow.
func ScaleBy(fn ScaleFunc) Option {
	return func(o *options) { o.scale = fn }
}

// IncludeReversed lets reversed neighbors take part in the split.
func IncludeReversed() Option {
	return func(o *options) { o.includeReversed = true }
}

func (o options) Magnitude(f *graph.Flow, value float64, neighbors []*graph.Flow) float64 {
	if o.scale == nil {
		return value
	}
	return value * o.scale(f, neighbors)
}

func (o options) IncludeReversed() bool { return o.includeReversed }

// ByAttribute weighs each neighbor by its own value of attr.
func ByAttribute(attr graph.AttrID) WeightFunc {
	return func(_ *graph.Flow, neighbors []*graph.Flow, dst []float64) {
		for i, n := range neighbors {
			dst[i] = n.Attrs[attr]
		}
	}
}

type weighted struct {
	options
	weight WeightFunc
}

// Weighted shares magnitude in proportion to the weights produced by w. A zero
// weight sum falls back to an even split. With IncludeReversed, reversed
// neighbors are removed from the weighted pool; if every neighbor is reversed
// each of them receives an equal negative share instead.
func Weighted(w WeightFunc, opts ...Option) Policy {
	return &weighted{options: newOptions(opts), weight: w}
}

func (p *weighted) Split(f *graph.Flow, neighbors []*graph.Flow, reversed []bool, mag float64, dst []float64) {
	p.weight(f, neighbors, dst)

	forward := len(neighbors)
	if p.includeReversed {
		for i := range neighbors {
			if reversed[i] {
				dst[i] = 0
				forward--
			}
		}
	}

	sum := 0.0
	for _, w := range dst {
		sum += w
	}
	for i, w := range dst {
		if sum != 0 {
			dst[i] = mag * (w / sum)
		} else {
			dst[i] = mag / float64(forward)
		}
	}

	if p.includeReversed {
		backward := len(neighbors) - forward
		for i := range neighbors {
			if !reversed[i] {
				continue
			}
			if forward > 0 {
				dst[i] = 0
			} else {
				dst[i] = -mag / float64(backward)
			}
		}
	}
}

type even struct {
	options
}

// Even gives every neighbor an equal share, negated for reversed neighbors.
func Even(opts ...Option) Policy {
	return &even{options: newOptions(opts)}
}

func (p *even) Split(_ *graph.Flow, neighbors []*graph.Flow, reversed []bool, mag float64, dst []float64) {
	share := mag / float64(len(neighbors))
	for i := range neighbors {
		if reversed[i] {
			dst[i] = -share
		} else {
			dst[i] = share
		}
	}
}
