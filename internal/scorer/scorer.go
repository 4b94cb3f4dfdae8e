// Package scorer implements PriorityScorer: a pure function from a task's
// situation to a real-valued scheduling score, higher meaning sooner.
//
// Grounded on dag_engine.go's RetryPolicy/backoff shape for the retry term
// and on spec.md §4.2's formula table for the rest; the teacher has no
// direct analogue (its scheduling is plain topological order with no
// priority scoring), so this package is new code written in the teacher's
// small-pure-function style (see e.g. generateCacheKey, evaluateCondition).
package scorer

import (
	"time"

	"github.com/swarmguard/taskqueue/internal/model"
)

// Input bundles everything the score formula needs. Graph/agent state is
// passed in by value (counts, not references) so this package stays free
// of any dependency on internal/graph or internal/agent and the function
// stays trivially pure and testable.
type Input struct {
	Priority          model.Priority
	CreatedAt         time.Time
	Deadline          time.Time // zero if none
	SuccessorCount    int
	Resources         model.ResourceDemand
	Attempts          int
	Now               time.Time
}

// Score computes PriorityScorer's value for in, per spec.md §4.2. The
// result carries no randomness and is a deterministic function of in.
func Score(in Input) float64 {
	score := in.Priority.Weight()
	score += ageBonus(in.CreatedAt, in.Now)
	score += deadlineUrgency(in.Deadline, in.Now)
	score += 5 * float64(in.SuccessorCount)
	score += resourcePenalty(in.Resources)
	score += retryPenalty(in.Attempts)
	return score
}

func ageBonus(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	ageMinutes := now.Sub(createdAt).Minutes()
	if ageMinutes < 0 {
		ageMinutes = 0
	}
	bonus := ageMinutes * 0.1
	if bonus > 50 {
		return 50
	}
	return bonus
}

func deadlineUrgency(deadline, now time.Time) float64 {
	if deadline.IsZero() {
		return 0
	}
	minutesToDeadline := deadline.Sub(now).Minutes()
	if minutesToDeadline < 0 {
		return 200 // overdue
	}
	urgency := (60 - minutesToDeadline) * 2
	if urgency < 0 {
		return 0
	}
	return urgency
}

func resourcePenalty(r model.ResourceDemand) float64 {
	mem := r.Memory / 1000
	if mem > 20 {
		mem = 20
	}
	cpu := r.CPU * 10
	if cpu > 20 {
		cpu = 20
	}
	disk := r.Disk / 1e6
	if disk > 10 {
		disk = 10
	}
	return -(mem + cpu + disk)
}

// retryPenalty is the ONLY retry-related adjustment PriorityScorer makes.
// internal/retrypolicy never applies a second, separate score subtraction
// on re-queue (resolved Open Question, see DESIGN.md).
func retryPenalty(attempts int) float64 {
	return -10 * float64(attempts)
}
