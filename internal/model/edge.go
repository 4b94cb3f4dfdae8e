package model

// EdgeKind classifies a dependency edge. Only EdgeHard gates readiness; the
// rest influence PriorityScorer's ordering but never block execution
// (spec.md §3, resolved as the soft-dependency-gating Open Question in
// DESIGN.md).
type EdgeKind string

const (
	EdgeHard        EdgeKind = "hard"
	EdgeSoft        EdgeKind = "soft"
	EdgeResource    EdgeKind = "resource"
	EdgeData        EdgeKind = "data"
	EdgeConditional EdgeKind = "conditional"
)

// Gates reports whether this edge kind blocks its successor's readiness.
func (k EdgeKind) Gates() bool { return k == EdgeHard }

// DependencyEdge is a directed edge From -> To: To depends on From.
// DependencyGraph owns edges; it never owns Task values themselves, only
// the ids that index into TaskRegistry (spec.md §3).
type DependencyEdge struct {
	ID     string
	From   string
	To     string
	Kind   EdgeKind
	Weight float64 // in [0,1]; not read by PriorityScorer, whose fan-out term counts edges
}
