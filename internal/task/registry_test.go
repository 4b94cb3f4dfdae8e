package task

import (
	"errors"
	"testing"
	"time"

	"github.com/swarmguard/taskqueue/internal/clock"
	"github.com/swarmguard/taskqueue/internal/model"
)

func newTestRegistry() *Registry {
	return New(clock.NewManual(time.Unix(0, 0)), nil)
}

func TestAddRejectsDuplicate(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.Add(model.Task{ID: "t1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Add(model.Task{ID: "t1"}); err != ErrDuplicateID {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestAddDefaultsToPending(t *testing.T) {
	r := newTestRegistry()
	stored, _ := r.Add(model.Task{ID: "t1"})
	if stored.Status != model.StatusPending {
		t.Fatalf("expected Pending, got %s", stored.Status)
	}
	if stored.Attempts != 0 {
		t.Fatalf("expected 0 attempts, got %d", stored.Attempts)
	}
}

func TestTransitionValidPath(t *testing.T) {
	r := newTestRegistry()
	r.Add(model.Task{ID: "t1"})

	steps := []model.Status{model.StatusQueued, model.StatusAssigned, model.StatusRunning, model.StatusCompleted}
	for _, to := range steps {
		if _, err := r.Transition("t1", to, model.EventTaskQueued, ""); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	got, _ := r.Get("t1")
	if got.Status != model.StatusCompleted {
		t.Fatalf("expected Completed, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected 1 attempt after one run, got %d", got.Attempts)
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	r := newTestRegistry()
	r.Add(model.Task{ID: "t1"})
	if _, err := r.Transition("t1", model.StatusRunning, model.EventTaskStarted, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionUnknownID(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.Transition("missing", model.StatusQueued, model.EventTaskQueued, ""); err != ErrUnknownID {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}

func TestListByStatusOrderedByCreatedAt(t *testing.T) {
	c := clock.NewManual(time.Unix(0, 0))
	r := New(c, nil)
	r.Add(model.Task{ID: "a"})
	c.Advance(time.Second)
	r.Add(model.Task{ID: "b"})

	list := r.ListByStatus(model.StatusPending)
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("expected [a b] in creation order, got %+v", list)
	}
}

func TestFailedCanRetryOrDeadLetter(t *testing.T) {
	r := newTestRegistry()
	r.Add(model.Task{ID: "t1"})
	r.Transition("t1", model.StatusQueued, model.EventTaskQueued, "")
	r.Transition("t1", model.StatusAssigned, model.EventTaskAssigned, "")
	r.Transition("t1", model.StatusRunning, model.EventTaskStarted, "")
	r.Transition("t1", model.StatusFailed, model.EventTaskFailed, "boom")

	if _, err := r.Transition("t1", model.StatusDeadLettered, model.EventTaskDeadLettered, ""); err != nil {
		t.Fatalf("Failed -> DeadLettered should be legal: %v", err)
	}

	r.Add(model.Task{ID: "t2"})
	r.Transition("t2", model.StatusQueued, model.EventTaskQueued, "")
	r.Transition("t2", model.StatusAssigned, model.EventTaskAssigned, "")
	r.Transition("t2", model.StatusRunning, model.EventTaskStarted, "")
	r.Transition("t2", model.StatusFailed, model.EventTaskFailed, "boom")

	if _, err := r.Transition("t2", model.StatusQueued, model.EventTaskQueued, ""); err != nil {
		t.Fatalf("Failed -> Queued should be legal: %v", err)
	}
}
