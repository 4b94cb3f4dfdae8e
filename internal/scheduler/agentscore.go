package scheduler

import (
	"github.com/swarmguard/taskqueue/internal/agent"
)

// pickAgent scores every candidate per spec.md §4.3 step 3c:
// successRate + loadFactor·50 + speedBonus + resourceAvailability·20 +
// capabilityMatchBonus; highest wins, ties broken by agent id for
// determinism. The spec names these terms without a closed formula for
// speedBonus/resourceAvailability/capabilityMatchBonus, so their exact
// shape is a resolved design decision (see DESIGN.md), not inherited from
// any source.
func pickAgent(candidates []agent.Candidate, requiredCaps []string) agent.Candidate {
	best := candidates[0]
	bestScore := agentScore(best, requiredCaps)
	for _, c := range candidates[1:] {
		score := agentScore(c, requiredCaps)
		if score > bestScore || (score == bestScore && c.Agent.ID < best.Agent.ID) {
			best = c
			bestScore = score
		}
	}
	return best
}

func agentScore(c agent.Candidate, requiredCaps []string) float64 {
	a := c.Agent
	successRate := a.SuccessEWMA
	loadFactor := 1 - a.Load()
	speedBonus := 10.0 / (1.0 + a.PerformanceEWMA)
	resourceAvailability := minFloat(a.Capacity.CPU/4, 1.0)
	capabilityMatchBonus := 0.0
	if len(a.Capabilities) > 0 {
		capabilityMatchBonus = 5.0 * float64(len(requiredCaps)) / float64(len(a.Capabilities))
	}
	return successRate + loadFactor*50 + speedBonus + resourceAvailability*20 + capabilityMatchBonus
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
