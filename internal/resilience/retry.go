// Package resilience adapts libs/go/core/resilience's rate-limit/
// circuit-breaker primitives into the task queue's own module.
package resilience

import (
	"time"
)

// Backoff computes the spec.md §4.3 completion-ack backoff: baseDelay *
// 2^attempts, capped at maxDelay. Used by internal/retrypolicy; a pure
// function rather than a blocking retry loop, since the scheduler's
// single-writer tick can't block on a sleep — it schedules the re-queue
// for a future tick instead.
func Backoff(base time.Duration, attempts int, maxDelay time.Duration) time.Duration {
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}
