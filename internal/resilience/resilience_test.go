package resilience

import (
	"testing"
	"time"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second
	if got := Backoff(base, 1, max); got != base*2 {
		t.Fatalf("expected %v, got %v", base*2, got)
	}
	if got := Backoff(base, 10, max); got != max {
		t.Fatalf("expected capped at %v, got %v", max, got)
	}
}

func TestRateLimiterWindowCap(t *testing.T) {
	rl := NewRateLimiter(100, 0, time.Minute, 2)
	if !rl.Allow() || !rl.Allow() {
		t.Fatalf("expected first two requests to be allowed")
	}
	if rl.Allow() {
		t.Fatalf("expected third request in window to be denied")
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(time.Minute, 6, 4, 0.5, time.Hour, 1)
	for i := 0; i < 4; i++ {
		cb.RecordResult(false)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected breaker to open after sustained failures, state=%v", cb.State())
	}
	if cb.Allow() {
		t.Fatalf("expected Allow to deny while open with long half-open delay")
	}
}
