// Package retrypolicy decides, on task failure, whether to retry (and
// after how long) or dead-letter (spec.md §3 "max retries", §4.3
// completion-ack failure handling, I6).
//
// It never adjusts PriorityScorer's score itself — the resolved Open
// Question (see DESIGN.md) is that the `−10·attempts` term in
// internal/scorer is the only retry penalty; this package only answers
// "retry or dead-letter, and after how long."
package retrypolicy

import (
	"time"

	"github.com/swarmguard/taskqueue/internal/model"
	"github.com/swarmguard/taskqueue/internal/resilience"
)

// Decision is the outcome of evaluating a failed task.
type Decision struct {
	DeadLetter bool
	RetryAfter time.Duration // valid only when DeadLetter is false
}

// Policy holds the backoff parameters (spec.md §6: retryBackoff base,
// configurable cap).
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Default matches dag_engine.go's RetryPolicy defaults (100ms initial,
// 5s cap, ×2 multiplier), generalized to the spec's per-task maxRetries
// rather than a single engine-wide constant.
var Default = Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}

// Evaluate applies I6: attempts <= maxRetries+1, and a transition to
// DeadLettered requires attempts > maxRetries. attempts is the task's
// Attempts count after the failed run that just completed.
func (p Policy) Evaluate(attempts, maxRetries int) Decision {
	if attempts > maxRetries {
		return Decision{DeadLetter: true}
	}
	base := p.BaseDelay
	if base <= 0 {
		base = Default.BaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = Default.MaxDelay
	}
	return Decision{DeadLetter: false, RetryAfter: resilience.Backoff(base, attempts, maxDelay)}
}

// MissingExecutor reports a malformed/unresolvable executor handle, which
// spec.md §4.3 routes to immediate DeadLettered with no retry regardless
// of attempts remaining.
func MissingExecutor() Decision {
	return Decision{DeadLetter: true}
}
