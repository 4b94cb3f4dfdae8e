package agent

import (
	"testing"
	"time"

	"github.com/swarmguard/taskqueue/internal/clock"
	"github.com/swarmguard/taskqueue/internal/model"
)

func newTestRegistry() (*Registry, *clock.Manual) {
	c := clock.NewManual(time.Unix(0, 0))
	return New(c, nil, time.Minute), c
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r, _ := newTestRegistry()
	a := model.Agent{ID: "a1", MaxConcurrency: 2}
	if _, err := r.Register(a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Register(a); err != ErrDuplicateID {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestCandidatesFiltersOnCapabilityAndCapacity(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register(model.Agent{ID: "a1", MaxConcurrency: 1, Capabilities: []string{"gpu"}, Capacity: model.ResourceDemand{CPU: 4, Memory: 4096}})
	r.Register(model.Agent{ID: "a2", MaxConcurrency: 1, Capabilities: []string{}, Capacity: model.ResourceDemand{CPU: 4, Memory: 4096}})

	cands := r.Candidates("", []string{"gpu"}, model.ResourceDemand{CPU: 1, Memory: 100})
	if len(cands) != 1 || cands[0].Agent.ID != "a1" {
		t.Fatalf("expected only a1, got %+v", cands)
	}
}

func TestReserveFillsSlotAndMarksBusy(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register(model.Agent{ID: "a1", MaxConcurrency: 1})
	if err := r.Reserve("a1", "assign-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := r.Get("a1")
	if got.Status != model.AgentBusy {
		t.Fatalf("expected Busy once full, got %s", got.Status)
	}
	cands := r.Candidates("", nil, model.ResourceDemand{})
	if len(cands) != 0 {
		t.Fatalf("expected no free candidates, got %+v", cands)
	}
}

func TestReleaseFreesSlotAndUpdatesEWMA(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register(model.Agent{ID: "a1", MaxConcurrency: 1})
	r.Reserve("a1", "assign-1")
	if err := r.Release("a1", "assign-1", true, 2.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := r.Get("a1")
	if got.Status != model.AgentAvailable {
		t.Fatalf("expected Available after release, got %s", got.Status)
	}
	if got.PerformanceEWMA != 2.5 {
		t.Fatalf("expected initial EWMA seeded to 2.5, got %f", got.PerformanceEWMA)
	}
}

func TestMarkLostReturnsRunningAssignmentsAndGoesOffline(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register(model.Agent{ID: "a1", MaxConcurrency: 2})
	r.Reserve("a1", "assign-1")
	r.Reserve("a1", "assign-2")

	lost, err := r.MarkLost("a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lost) != 2 {
		t.Fatalf("expected 2 lost assignments, got %+v", lost)
	}
	got, _ := r.Get("a1")
	if got.Status != model.AgentOffline {
		t.Fatalf("expected Offline, got %s", got.Status)
	}
}

func TestSweepTimeoutsFindsStaleHeartbeats(t *testing.T) {
	r, c := newTestRegistry()
	r.Register(model.Agent{ID: "a1", MaxConcurrency: 1})
	c.Advance(2 * time.Minute)
	stale := r.SweepTimeouts()
	if len(stale) != 1 || stale[0] != "a1" {
		t.Fatalf("expected a1 to be stale, got %+v", stale)
	}
}

func TestHeartbeatRevivesOfflineAgent(t *testing.T) {
	r, _ := newTestRegistry()
	r.Register(model.Agent{ID: "a1", MaxConcurrency: 1})
	r.MarkLost("a1")
	if err := r.Heartbeat("a1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := r.Get("a1")
	if got.Status != model.AgentAvailable {
		t.Fatalf("expected Available after heartbeat, got %s", got.Status)
	}
}
