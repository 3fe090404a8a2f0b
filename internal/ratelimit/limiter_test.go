package ratelimit

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/tendril/internal/constants"
)

// fixedClock returns a limiter whose clock only moves when advance is called.
func fixedClock(l *Limiter) (advance func(time.Duration)) {
	now := time.Unix(1_700_000_000, 0)
	l.nowFunc = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestTake_BurstThenReject(t *testing.T) {
	l := NewLimiter(1, 3)
	fixedClock(l)

	for i := 0; i < 3; i++ {
		if _, ok := l.Take("step", 1); !ok {
			t.Fatalf("take %d rejected within burst", i+1)
		}
	}
	wait, ok := l.Take("step", 1)
	if ok {
		t.Fatal("take after burst should be rejected")
	}
	if wait != time.Second {
		t.Errorf("wait = %v, want 1s", wait)
	}
}

func TestTake_Cost(t *testing.T) {
	tests := []struct {
		name     string
		burst    int
		spent    float64
		cost     float64
		wantOK   bool
		wantWait time.Duration
	}{
		{"fits", 10, 0, 4, true, 0},
		{"exactly empties", 10, 6, 4, true, 0},
		{"short by two", 10, 8, 4, false, 2 * time.Second},
		{"above burst charged as burst", 10, 0, 50, true, 0},
		{"above burst waits for full bucket", 10, 5, 50, false, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(1, tt.burst)
			fixedClock(l)
			if tt.spent > 0 {
				if _, ok := l.Take("k", tt.spent); !ok {
					t.Fatalf("setup take %v rejected", tt.spent)
				}
			}
			wait, ok := l.Take("k", tt.cost)
			if ok != tt.wantOK || wait != tt.wantWait {
				t.Errorf("Take(%v) = %v, %v; want %v, %v", tt.cost, wait, ok, tt.wantWait, tt.wantOK)
			}
		})
	}
}

func TestTake_RejectedSpendsNothing(t *testing.T) {
	l := NewLimiter(1, 5)
	fixedClock(l)
	l.Take("k", 4)

	if _, ok := l.Take("k", 3); ok {
		t.Fatal("cost 3 with 1 token left should be rejected")
	}
	if _, ok := l.Take("k", 1); !ok {
		t.Error("the remaining token should still be available")
	}
}

func TestTake_Refill(t *testing.T) {
	l := NewLimiter(10, 2)
	advance := fixedClock(l)
	l.Take("k", 2)

	if l.Allow("k") {
		t.Fatal("expected rejection after burst")
	}
	advance(150 * time.Millisecond)
	if !l.Allow("k") {
		t.Error("1.5 tokens refilled, one call should pass")
	}
	if l.Allow("k") {
		t.Error("0.5 tokens left, the next call should be rejected")
	}

	advance(time.Hour)
	l.Take("k", 2)
	if l.Allow("k") {
		t.Error("refill should cap at the burst")
	}
}

func TestTake_IndependentKeys(t *testing.T) {
	l := NewLimiter(1, 1)
	fixedClock(l)
	if !l.Allow("a") || !l.Allow("b") {
		t.Fatal("first call per key should pass")
	}
	if l.Allow("a") {
		t.Error("key a should be exhausted")
	}
}

func TestTake_ZeroRate(t *testing.T) {
	l := NewLimiter(0, 1)
	fixedClock(l)
	l.Allow("k")
	wait, ok := l.Take("k", 1)
	if ok || wait != Never {
		t.Errorf("Take() = %v, %v; want Never, false", wait, ok)
	}
}

func TestTake_ConcurrentAccess(t *testing.T) {
	l := NewLimiter(0, 100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	passed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				if l.Allow("k") {
					mu.Lock()
					passed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if passed != 100 {
		t.Errorf("%d calls passed, want exactly the burst of 100", passed)
	}
}

func TestStepCost(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 1},
		{1, 1},
		{constants.TicksPerStepToken - 1, 1},
		{constants.TicksPerStepToken, 2},
		{constants.MaxStepsPerCall, 1 + float64(constants.MaxStepsPerCall/constants.TicksPerStepToken)},
		{-5, 1},
	}
	for _, tt := range tests {
		if got := StepCost(tt.n); got != tt.want {
			t.Errorf("StepCost(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestLimits_Check(t *testing.T) {
	l := NewLimiter(0.5, 2)
	advance := fixedClock(l)
	limits := Limits{OpLoad: l}

	for i := 0; i < 2; i++ {
		if err := limits.Check(OpLoad, 1); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	err := limits.Check(OpLoad, 1)
	var le *LimitError
	if !errors.As(err, &le) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Check() = %v, want *LimitError wrapping ErrRateLimited", err)
	}
	if le.Op != OpLoad || le.RetryAfter != 2*time.Second || le.RetrySeconds() != 2 {
		t.Errorf("LimitError = %+v, retry %ds; want load after 2s", le, le.RetrySeconds())
	}
	if !strings.Contains(le.Error(), "retry in 2s") {
		t.Errorf("Error() = %q", le.Error())
	}

	advance(2 * time.Second)
	if err := limits.Check(OpLoad, 1); err != nil {
		t.Errorf("after refill: %v", err)
	}

	if err := limits.Check(OpSnapshot, 100); err != nil {
		t.Errorf("unmetered op: %v", err)
	}
	var none Limits
	if err := none.Check(OpStep, 1); err != nil {
		t.Errorf("nil Limits: %v", err)
	}
}

func TestLimitError_RetrySeconds(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want int
	}{
		{10 * time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
		{3 * time.Second, 3},
		{Never, 3600},
	}
	for _, tt := range tests {
		e := &LimitError{Op: OpStep, RetryAfter: tt.wait}
		if got := e.RetrySeconds(); got != tt.want {
			t.Errorf("RetrySeconds(%v) = %d, want %d", tt.wait, got, tt.want)
		}
	}
}

func TestNewLimits(t *testing.T) {
	limits := NewLimits()
	for _, op := range []string{OpStep, OpSnapshot, OpLoad} {
		if limits[op] == nil {
			t.Errorf("no limiter for %s", op)
		}
	}
	if len(limits) != 3 {
		t.Errorf("got %d limiters, want 3", len(limits))
	}
	if got := limits[OpStep].rate * 60; got != constants.StepRateLimit {
		t.Errorf("step refill = %v/min, want %d", got, constants.StepRateLimit)
	}
}
