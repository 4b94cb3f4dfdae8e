package scorer

import (
	"testing"
	"time"

	"github.com/swarmguard/taskqueue/internal/model"
)

func TestScoreBasePriorityOrdering(t *testing.T) {
	now := time.Now()
	critical := Score(Input{Priority: model.PriorityCritical, Now: now})
	low := Score(Input{Priority: model.PriorityLow, Now: now})
	if critical <= low {
		t.Fatalf("expected critical score > low score, got %f <= %f", critical, low)
	}
}

func TestAgeBonusCapsAt50(t *testing.T) {
	now := time.Now()
	old := now.Add(-1000 * time.Minute)
	got := ageBonus(old, now)
	if got != 50 {
		t.Fatalf("expected age bonus capped at 50, got %f", got)
	}
}

func TestDeadlineUrgencyOverdue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	if got := deadlineUrgency(past, now); got != 200 {
		t.Fatalf("expected overdue bonus of 200, got %f", got)
	}
}

func TestDeadlineUrgencyApproaching(t *testing.T) {
	now := time.Now()
	soon := now.Add(30 * time.Minute)
	got := deadlineUrgency(soon, now)
	want := (60.0 - 30.0) * 2
	if got != want {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestResourcePenaltyCaps(t *testing.T) {
	r := model.ResourceDemand{CPU: 100, Memory: 100000, Disk: 1e9}
	got := resourcePenalty(r)
	want := -(20.0 + 20.0 + 10.0)
	if got != want {
		t.Fatalf("expected capped penalty %f, got %f", want, got)
	}
}

func TestRetryPenaltyIsOnlyAdjustment(t *testing.T) {
	if got := retryPenalty(3); got != -30 {
		t.Fatalf("expected -30, got %f", got)
	}
}
