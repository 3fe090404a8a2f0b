// Package ratelimit meters how fast remote callers may drive a simulation.
// Each operation has a token bucket; stepping is charged by how many ticks
// a call asks for, so one huge request costs more than one small one.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/nvandessel/tendril/internal/constants"
)

// Operations metered by Limits. MCP tools and HTTP routes share them, so a
// caller cannot dodge a budget by switching transport.
const (
	OpStep     = "step"
	OpSnapshot = "snapshot"
	OpLoad     = "load"
)

// Never is the wait reported by a bucket that does not refill.
const Never = time.Duration(math.MaxInt64)

// ErrRateLimited is wrapped by every *LimitError.
var ErrRateLimited = errors.New("rate limit exceeded")

// LimitError reports an exhausted budget and how long until it covers the
// rejected request.
type LimitError struct {
	Op         string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	if e.RetryAfter == Never {
		return fmt.Sprintf("%v for %s", ErrRateLimited, e.Op)
	}
	return fmt.Sprintf("%v for %s, retry in %ds", ErrRateLimited, e.Op, e.RetrySeconds())
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }

// RetrySeconds rounds RetryAfter up to whole seconds, at least 1, for a
// Retry-After header.
func (e *LimitError) RetrySeconds() int {
	if e.RetryAfter == Never {
		return int(time.Hour / time.Second)
	}
	return max(1, int(math.Ceil(e.RetryAfter.Seconds())))
}

// Limiter is a token bucket per key. Buckets start full. It is safe for
// concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64
	nowFunc func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter creates a limiter refilling rate tokens per second up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   float64(burst),
		nowFunc: time.Now,
	}
}

// perMinute builds a limiter refilling n tokens per minute.
func perMinute(n, burst int) *Limiter {
	return NewLimiter(float64(n)/60.0, burst)
}

// Take spends cost tokens from key's bucket. A cost above the burst is
// charged as the whole burst, so every request can eventually be paid. When
// the bucket is short nothing is spent and the wait until it holds enough is
// returned.
func (l *Limiter) Take(key string, cost float64) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(l.burst, b.tokens+l.rate*elapsed)
		b.last = now
	}

	cost = math.Min(cost, l.burst)
	if b.tokens >= cost {
		b.tokens -= cost
		return 0, true
	}
	if l.rate <= 0 {
		return Never, false
	}
	return time.Duration((cost - b.tokens) / l.rate * float64(time.Second)), false
}

// Allow spends one token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	_, ok := l.Take(key, 1)
	return ok
}

// Limits holds one limiter per operation. Operations without a limiter are
// unmetered; tendril_status and /api/status stay that way.
type Limits map[string]*Limiter

// NewLimits returns the default per-operation budgets.
func NewLimits() Limits {
	return Limits{
		OpStep:     perMinute(constants.StepRateLimit, 20),
		OpSnapshot: perMinute(constants.SnapshotRateLimit, 10),
		OpLoad:     perMinute(constants.LoadRateLimit, 2),
	}
}

// Check charges cost against op. It returns nil or a *LimitError. A nil
// Limits allows everything.
func (ls Limits) Check(op string, cost float64) error {
	l, ok := ls[op]
	if !ok {
		return nil
	}
	if wait, ok := l.Take(op, cost); !ok {
		return &LimitError{Op: op, RetryAfter: wait}
	}
	return nil
}

// StepCost is the charge for stepping n ticks: one token per call plus one
// per constants.TicksPerStepToken ticks requested.
func StepCost(n int) float64 {
	return 1 + float64(max(n, 0)/constants.TicksPerStepToken)
}
