// Package task implements TaskRegistry: the authoritative map of task
// records and their lifecycle transitions (spec.md §3, §4.3's state
// machine). TaskRegistry is the only component that ever mutates a Task.
package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/swarmguard/taskqueue/internal/clock"
	"github.com/swarmguard/taskqueue/internal/eventbus"
	"github.com/swarmguard/taskqueue/internal/model"
)

var (
	ErrDuplicateID     = errors.New("task: duplicate id")
	ErrUnknownID       = errors.New("task: unknown id")
	ErrInvalidTransition = errors.New("task: invalid state transition")
)

// transitions enumerates every legal (from, to) pair of spec.md §4.3's
// state diagram. Transitions not listed here are rejected.
var transitions = map[model.Status]map[model.Status]bool{
	model.StatusPending: {
		model.StatusQueued:    true,
		model.StatusCancelled: true,
	},
	model.StatusQueued: {
		model.StatusAssigned:  true,
		model.StatusCancelled: true,
		model.StatusFailed:    true, // a Hard predecessor reached a terminal failure state
	},
	model.StatusAssigned: {
		model.StatusRunning:   true,
		model.StatusQueued:    true, // agentLost
		model.StatusCancelled: true,
	},
	model.StatusRunning: {
		model.StatusCompleted: true,
		model.StatusFailed:    true,
		model.StatusCancelled: true,
		model.StatusQueued:    true, // agentLost; the scheduler advances Assigned->Running inline, so agent loss is observed from Running (attempts unchanged, see Transition)
	},
	model.StatusFailed: {
		model.StatusQueued:       true, // attempts <= max, after backoff
		model.StatusDeadLettered: true, // attempts > max
	},
}

// Registry is TaskRegistry.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	clock clock.Clock
	bus   *eventbus.Bus
}

// New creates an empty Registry. bus may be nil in tests that don't care
// about emitted events.
func New(c clock.Clock, bus *eventbus.Bus) *Registry {
	return &Registry{tasks: make(map[string]*model.Task), clock: c, bus: bus}
}

// Add inserts t as Pending, stamping CreatedAt/LastTransitionAt/Status/
// Attempts. Returns ErrDuplicateID if t.ID already exists.
func (r *Registry) Add(t model.Task) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.ID]; exists {
		return nil, ErrDuplicateID
	}
	now := r.clock.Now()
	t.Status = model.StatusPending
	t.Attempts = 0
	t.CreatedAt = now
	t.LastTransitionAt = now
	stored := t
	r.tasks[t.ID] = &stored
	r.publish(model.Event{Type: model.EventTaskSubmitted, At: now, TaskID: t.ID})
	return &stored, nil
}

// Get returns a copy of the task with id.
func (r *Registry) Get(id string) (model.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return *t, true
}

// StatusOf is the back-reference lookup DependencyGraph.IsReady calls
// against TaskRegistry (spec.md §3 ownership rule).
func (r *Registry) StatusOf(id string) (model.Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return "", false
	}
	return t.Status, true
}

// Remove deletes a task entirely; callers are responsible for first
// detaching it from the graph. No component in this module calls it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return ErrUnknownID
	}
	delete(r.tasks, id)
	return nil
}

// Transition moves the task with id from its current status to to,
// validating the move against the spec's state diagram. On success it
// stamps LastTransitionAt and emits the matching event.
func (r *Registry) Transition(id string, to model.Status, eventType model.EventType, detail string) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrUnknownID
	}
	if !transitions[t.Status][to] {
		return model.Task{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
	}
	from := t.Status
	t.Status = to
	t.LastTransitionAt = r.clock.Now()
	if to == model.StatusRunning && from == model.StatusAssigned {
		// attempts increments when a run actually starts, not on queue re-entry
		t.Attempts++
	}
	r.publish(model.Event{
		Type: eventType, At: t.LastTransitionAt, TaskID: id,
		FromState: string(from), ToState: string(to), Detail: detail,
	})
	return *t, nil
}

// ListByStatus returns copies of every task currently in status, ordered
// by CreatedAt ascending (stable FIFO tie-break per spec.md §4.3's
// ordering guarantees).
func (r *Registry) ListByStatus(status model.Status) []model.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Task
	for _, t := range r.tasks {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// All returns copies of every tracked task, ordered by CreatedAt
// ascending, for PersistenceEngine's snapshot writer.
func (r *Registry) All() []model.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// LoadAll replaces the registry's contents wholesale with tasks, trusting
// each task's Status/Attempts/timestamps as-is. Used only by Restore,
// which bypasses Transition's legality checks because it is reinstating a
// previously-valid, already-persisted state rather than advancing it.
func (r *Registry) LoadAll(tasks []model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = make(map[string]*model.Task, len(tasks))
	for i := range tasks {
		t := tasks[i]
		r.tasks[t.ID] = &t
	}
}

// Len returns the number of tracked tasks, regardless of status.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func (r *Registry) publish(ev model.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}
