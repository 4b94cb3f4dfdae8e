package retrypolicy

import (
	"testing"
	"time"
)

func TestEvaluateRetriesWithinBudget(t *testing.T) {
	d := Default.Evaluate(1, 3)
	if d.DeadLetter {
		t.Fatalf("expected retry, got dead-letter")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive backoff, got %v", d.RetryAfter)
	}
}

func TestEvaluateDeadLettersBeyondMaxRetries(t *testing.T) {
	d := Default.Evaluate(4, 3)
	if !d.DeadLetter {
		t.Fatalf("expected dead-letter once attempts exceeds maxRetries")
	}
}

func TestEvaluateBackoffCapped(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
	d := p.Evaluate(10, 20)
	if d.RetryAfter != 500*time.Millisecond {
		t.Fatalf("expected capped backoff, got %v", d.RetryAfter)
	}
}

func TestMissingExecutorAlwaysDeadLetters(t *testing.T) {
	if !MissingExecutor().DeadLetter {
		t.Fatalf("expected missing executor to dead-letter immediately")
	}
}
