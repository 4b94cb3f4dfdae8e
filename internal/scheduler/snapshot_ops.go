package scheduler

import (
	"errors"
	"sort"
	"time"

	"github.com/swarmguard/taskqueue/internal/graph"
	"github.com/swarmguard/taskqueue/internal/model"
	"github.com/swarmguard/taskqueue/internal/persistence"
)

func snapshotWrittenEvent(now time.Time) model.Event {
	return model.Event{Type: model.EventSnapshotWritten, At: now}
}

func (s *Scheduler) handleSnapshot(c *snapshotCmd) snapshotResult {
	if s.persist == nil {
		return snapshotResult{err: ErrIO}
	}
	if deadlinePassed(s.clock.Now(), c.deadline) {
		return snapshotResult{err: ErrTimeout}
	}
	snap := persistence.Snapshot{
		SessionID:   s.cfg.SessionID,
		Tasks:       s.tasks.All(),
		Edges:       s.graph.AllEdges(),
		Agents:      s.agents.All(),
		Assignments: s.assignmentList(),
	}
	if err := s.persist.Save(snap); err != nil {
		if errors.Is(err, persistence.ErrLockHeld) {
			return snapshotResult{err: ErrLocked}
		}
		return snapshotResult{err: ErrIO}
	}
	s.publish(snapshotWrittenEvent(s.clock.Now()))
	return snapshotResult{path: s.persist.PrimaryPath()}
}

func (s *Scheduler) handleRestore(c *restoreCmd) restoreResult {
	if s.persist == nil {
		return restoreResult{err: ErrIO}
	}
	if deadlinePassed(s.clock.Now(), c.deadline) {
		return restoreResult{err: ErrTimeout}
	}

	var snap persistence.Snapshot
	if c.path == "" {
		res, err := s.persist.Recover()
		if err != nil {
			return restoreResult{err: ErrIO}
		}
		if res.Empty {
			return restoreResult{counts: RestoreCounts{}}
		}
		snap = res.Snapshot
	} else {
		loaded, err := s.persist.LoadFile(c.path)
		if err != nil {
			return restoreResult{err: ErrCorrupt}
		}
		snap = loaded
	}
	if snap.SchemaVersion != persistence.SchemaVersion {
		return restoreResult{err: ErrIncompatible}
	}

	s.tasks.LoadAll(snap.Tasks)
	s.agents.LoadAll(snap.Agents)

	newGraph := graph.New(s.tasks.StatusOf)
	for _, t := range snap.Tasks {
		newGraph.AddTask(t.ID)
	}
	for _, e := range snap.Edges {
		if _, err := newGraph.AddEdge(e.ID, e.From, e.To, e.Kind, e.Weight); err != nil {
			return restoreResult{err: ErrCorrupt}
		}
	}
	s.graph = newGraph

	s.assignments = make(map[string]*model.Assignment, len(snap.Assignments))
	s.taskAssignment = make(map[string]string, len(snap.Assignments))
	for i := range snap.Assignments {
		a := snap.Assignments[i]
		s.assignments[a.ID] = &a
		s.taskAssignment[a.TaskID] = a.ID
	}
	s.cancelRequested = make(map[string]time.Time)
	s.pendingRequeue = make(map[string]time.Time)

	return restoreResult{counts: RestoreCounts{
		Tasks:       len(snap.Tasks),
		Edges:       len(snap.Edges),
		Agents:      len(snap.Agents),
		Assignments: len(snap.Assignments),
	}}
}

func (s *Scheduler) assignmentList() []model.Assignment {
	out := make([]model.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
