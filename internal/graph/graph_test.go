package graph

import (
	"testing"

	"github.com/swarmguard/taskqueue/internal/model"
)

func completedStatus(completed map[string]bool) func(string) (model.Status, bool) {
	return func(id string) (model.Status, bool) {
		if completed[id] {
			return model.StatusCompleted, true
		}
		return model.StatusPending, true
	}
}

func TestAddTaskDuplicate(t *testing.T) {
	g := New(nil)
	if err := g.AddTask("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddTask("a"); err != ErrDuplicateID {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestAddEdgeSelfLoop(t *testing.T) {
	g := New(nil)
	g.AddTask("a")
	if _, err := g.AddEdge("e1", "a", "a", model.EdgeHard, 1); err != ErrSelfLoop {
		t.Fatalf("expected ErrSelfLoop, got %v", err)
	}
}

func TestAddEdgeUnknownID(t *testing.T) {
	g := New(nil)
	g.AddTask("a")
	if _, err := g.AddEdge("e1", "a", "missing", model.EdgeHard, 1); err != ErrUnknownID {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}

func TestAddEdgeRejectsCycleAndLeavesGraphUnchanged(t *testing.T) {
	g := New(nil)
	g.AddTask("t1")
	g.AddTask("t2")
	if _, err := g.AddEdge("e1", "t1", "t2", model.EdgeHard, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := g.AddEdge("e2", "t2", "t1", model.EdgeHard, 1); err != ErrWouldCycle {
		t.Fatalf("expected ErrWouldCycle, got %v", err)
	}
	// graph unchanged: t1 still has no predecessors, t2 still depends only on t1
	if !g.IsReady("t1") {
		t.Fatalf("t1 should still be ready")
	}
	preds := g.Predecessors("t2")
	if len(preds) != 1 || preds[0].From != "t1" {
		t.Fatalf("expected t2 to depend only on t1, got %+v", preds)
	}
}

func TestIsReadyRespectsHardPredecessorsOnly(t *testing.T) {
	completed := map[string]bool{}
	g := New(completedStatus(completed))
	g.AddTask("a")
	g.AddTask("b")
	g.AddTask("c")
	g.AddEdge("e1", "a", "c", model.EdgeHard, 1)
	g.AddEdge("e2", "b", "c", model.EdgeSoft, 1)

	if g.IsReady("c") {
		t.Fatalf("c should not be ready before hard predecessor a completes")
	}
	completed["a"] = true
	if !g.IsReady("c") {
		t.Fatalf("c should be ready once its only hard predecessor is completed, regardless of soft predecessor b")
	}
}

func TestRemoveEdgeIsIdempotent(t *testing.T) {
	g := New(nil)
	g.AddTask("a")
	g.AddTask("b")
	edge, _ := g.AddEdge("e1", "a", "b", model.EdgeHard, 1)
	g.RemoveEdge(edge.ID)
	g.RemoveEdge(edge.ID) // should not panic or error
	if preds := g.Predecessors("b"); len(preds) != 0 {
		t.Fatalf("expected no predecessors after removal, got %+v", preds)
	}
}

func TestLevelsGrouping(t *testing.T) {
	g := New(nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		g.AddTask(id)
	}
	g.AddEdge("e1", "a", "b", model.EdgeHard, 1)
	g.AddEdge("e2", "a", "c", model.EdgeHard, 1)
	g.AddEdge("e3", "b", "d", model.EdgeHard, 1)
	g.AddEdge("e4", "c", "d", model.EdgeHard, 1)

	levels := g.Levels()
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %+v", len(levels), levels)
	}
	if len(levels[0]) != 1 || levels[0][0] != "a" {
		t.Fatalf("expected level 0 = [a], got %+v", levels[0])
	}
	if len(levels[2]) != 1 || levels[2][0] != "d" {
		t.Fatalf("expected level 2 = [d], got %+v", levels[2])
	}
}

func TestCriticalPathLongestDuration(t *testing.T) {
	g := New(nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		g.AddTask(id)
	}
	g.AddEdge("e1", "a", "b", model.EdgeHard, 1)
	g.AddEdge("e2", "b", "d", model.EdgeHard, 1)
	g.AddEdge("e3", "a", "c", model.EdgeHard, 1)
	g.AddEdge("e4", "c", "d", model.EdgeHard, 1)

	durations := map[string]int64{"a": 10, "b": 100, "c": 1, "d": 10}
	priorities := map[string]model.Priority{}
	path, total := g.CriticalPath(
		func(id string) int64 { return durations[id] },
		func(id string) model.Priority { return priorities[id] },
	)
	want := int64(10 + 100 + 10) // a -> b -> d beats a -> c -> d (1)
	if total != want {
		t.Fatalf("expected total %d, got %d (path %v)", want, total, path)
	}
	if len(path) != 3 || path[0] != "a" || path[1] != "b" || path[2] != "d" {
		t.Fatalf("expected path [a b d], got %v", path)
	}
}

func TestCyclesEmptyOnHealthyGraph(t *testing.T) {
	g := New(nil)
	g.AddTask("a")
	g.AddTask("b")
	g.AddEdge("e1", "a", "b", model.EdgeHard, 1)
	if cycles := g.Cycles(); len(cycles) != 0 {
		t.Fatalf("expected no cycles, got %+v", cycles)
	}
}

func TestRemoveTaskRemovesIncidentEdges(t *testing.T) {
	g := New(nil)
	g.AddTask("a")
	g.AddTask("b")
	g.AddEdge("e1", "a", "b", model.EdgeHard, 1)
	if err := g.RemoveTask("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preds := g.Predecessors("b"); len(preds) != 0 {
		t.Fatalf("expected no predecessors after removing a, got %+v", preds)
	}
	if err := g.RemoveTask("missing"); err != ErrUnknownID {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}
