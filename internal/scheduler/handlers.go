package scheduler

import (
	"sort"
	"time"

	"github.com/swarmguard/taskqueue/internal/graph"
	"github.com/swarmguard/taskqueue/internal/idgen"
	"github.com/swarmguard/taskqueue/internal/model"
	"github.com/swarmguard/taskqueue/internal/scorer"
)

func (s *Scheduler) handleSubmit(c *submitCmd) submitResult {
	now := s.clock.Now()
	if deadlinePassed(now, c.deadline) {
		return submitResult{err: ErrTimeout}
	}

	t := c.task
	if t.ID == "" {
		t.ID = s.ids.Next(idgen.KindTask)
	}
	if _, exists := s.tasks.Get(t.ID); exists {
		return submitResult{err: ErrDuplicateID}
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return submitResult{err: ErrWouldCycle}
		}
		if _, ok := s.tasks.Get(dep); !ok {
			return submitResult{err: ErrUnknownDependency}
		}
	}
	if t.Constraints.Parallelism == "" {
		t.Constraints.Parallelism = model.ParallelismParallel
	}

	if err := s.graph.AddTask(t.ID); err != nil {
		return submitResult{err: ErrDuplicateID}
	}

	addedEdges := make([]string, 0, len(t.Dependencies))
	rollback := func() {
		for _, edgeID := range addedEdges {
			s.graph.RemoveEdge(edgeID)
		}
		s.graph.RemoveTask(t.ID)
	}
	for _, dep := range t.Dependencies {
		edgeID := s.ids.Next(idgen.KindEdge)
		if _, err := s.graph.AddEdge(edgeID, dep, t.ID, model.EdgeHard, 1.0); err != nil {
			rollback()
			if err == graph.ErrWouldCycle || err == graph.ErrSelfLoop {
				return submitResult{err: ErrWouldCycle}
			}
			return submitResult{err: ErrInvalidConstraint}
		}
		addedEdges = append(addedEdges, edgeID)
	}

	if _, err := s.tasks.Add(t); err != nil {
		rollback()
		return submitResult{err: ErrDuplicateID}
	}
	if _, err := s.tasks.Transition(t.ID, model.StatusQueued, model.EventTaskQueued, string(t.Priority)); err != nil {
		s.log.Error("scheduler: submit->queued transition rejected", "task", t.ID, "err", err)
	}
	return submitResult{id: t.ID}
}

func (s *Scheduler) handleCancel(c *cancelCmd) error {
	now := s.clock.Now()
	if deadlinePassed(now, c.deadline) {
		return ErrTimeout
	}
	t, ok := s.tasks.Get(c.id)
	if !ok {
		return ErrUnknownID
	}
	if t.Status.Terminal() {
		return nil // idempotent no-op: already Cancelled/Completed/DeadLettered
	}
	switch t.Status {
	case model.StatusPending, model.StatusQueued:
		if _, err := s.tasks.Transition(c.id, model.StatusCancelled, model.EventTaskCancelled, c.reason); err != nil {
			return err
		}
	case model.StatusAssigned, model.StatusRunning:
		if _, already := s.cancelRequested[c.id]; !already {
			s.cancelRequested[c.id] = now.Add(s.cfg.AbortGrace)
		}
	default:
		return ErrUnknownID
	}
	return nil
}

func (s *Scheduler) handleRegisterAgent(c *registerAgentCmd) error {
	if deadlinePassed(s.clock.Now(), c.deadline) {
		return ErrTimeout
	}
	if _, err := s.agents.Register(c.agent); err != nil {
		return ErrDuplicateID
	}
	return nil
}

func (s *Scheduler) handleUpdateAgent(c *updateAgentCmd) error {
	if deadlinePassed(s.clock.Now(), c.deadline) {
		return ErrTimeout
	}
	if _, err := s.agents.Update(c.id, c.patch); err != nil {
		return ErrUnknownID
	}
	return nil
}

func (s *Scheduler) handleHeartbeat(c *heartbeatCmd) error {
	if deadlinePassed(s.clock.Now(), c.deadline) {
		return ErrTimeout
	}
	if err := s.agents.Heartbeat(c.agentID); err != nil {
		return ErrUnknownID
	}
	return nil
}

func (s *Scheduler) handleAckCompletion(c *ackCompletionCmd) error {
	if deadlinePassed(s.clock.Now(), c.deadline) {
		return ErrTimeout
	}
	t, ok := s.tasks.Get(c.taskID)
	if !ok {
		return ErrUnknownID
	}
	if t.Status != model.StatusRunning {
		return ErrWrongState
	}

	assignmentID, hasAssignment := s.taskAssignment[c.taskID]
	var agentID string
	if hasAssignment {
		if a, ok := s.assignments[assignmentID]; ok {
			agentID = a.AgentID
		}
	}

	if _, cancelling := s.cancelRequested[c.taskID]; cancelling {
		s.finishCancellation(c.taskID, "worker acknowledged abort")
		return nil
	}

	if agentID != "" {
		s.agents.Release(agentID, assignmentID, c.outcome.Success, c.outcome.DurationSecs)
	}
	delete(s.assignments, assignmentID)
	delete(s.taskAssignment, c.taskID)

	if s.onTaskDuration != nil {
		s.onTaskDuration(t.Kind, c.outcome.DurationSecs*1000)
	}

	if c.outcome.Success {
		_, err := s.tasks.Transition(c.taskID, model.StatusCompleted, model.EventTaskCompleted, "")
		return err
	}

	if _, err := s.tasks.Transition(c.taskID, model.StatusFailed, model.EventTaskFailed, c.outcome.Error); err != nil {
		return err
	}
	decision := s.retry.Evaluate(t.Attempts, t.MaxRetries())
	if decision.DeadLetter {
		_, err := s.tasks.Transition(c.taskID, model.StatusDeadLettered, model.EventTaskDeadLettered, c.outcome.Error)
		return err
	}
	s.pendingRequeue[c.taskID] = s.clock.Now().Add(decision.RetryAfter)
	return nil
}

func (s *Scheduler) handleQueueStatus() QueueStatus {
	counts := map[model.Status]int{
		model.StatusPending:      len(s.tasks.ListByStatus(model.StatusPending)),
		model.StatusQueued:       len(s.tasks.ListByStatus(model.StatusQueued)),
		model.StatusAssigned:     len(s.tasks.ListByStatus(model.StatusAssigned)),
		model.StatusRunning:      len(s.tasks.ListByStatus(model.StatusRunning)),
		model.StatusCompleted:    len(s.tasks.ListByStatus(model.StatusCompleted)),
		model.StatusFailed:       len(s.tasks.ListByStatus(model.StatusFailed)),
		model.StatusCancelled:    len(s.tasks.ListByStatus(model.StatusCancelled)),
		model.StatusDeadLettered: len(s.tasks.ListByStatus(model.StatusDeadLettered)),
	}
	var next string
	if ready := s.readySortedQueue(s.clock.Now()); len(ready) > 0 {
		next = ready[0].ID
	}
	return QueueStatus{Counts: counts, NextTaskID: next, PerfSnapshot: map[string]float64{}}
}

func (s *Scheduler) handleTaskInfo(c *taskInfoCmd) taskInfoResult {
	t, ok := s.tasks.Get(c.id)
	if !ok {
		return taskInfoResult{err: ErrUnknownID}
	}
	info := TaskInfo{Task: t, QueuePosition: -1, Dependencies: t.Dependencies}
	if assignmentID, ok := s.taskAssignment[c.id]; ok {
		if a, ok := s.assignments[assignmentID]; ok {
			cp := *a
			info.Assignment = &cp
		}
	}
	if t.Status == model.StatusQueued {
		for i, qt := range s.sortedQueuedList(s.clock.Now()) {
			if qt.ID == c.id {
				info.QueuePosition = i
				break
			}
		}
	}
	return taskInfoResult{info: info}
}

// sortedQueuedList orders every Queued task (ready or still blocked) by
// the same comparator readySortedQueue uses, for TaskInfo's queue
// position (spec.md scenario S1: a blocked dependent still has a
// well-defined position while its prerequisite runs).
func (s *Scheduler) sortedQueuedList(now time.Time) []model.Task {
	queued := s.tasks.ListByStatus(model.StatusQueued)
	scores := make(map[string]float64, len(queued))
	for _, t := range queued {
		scores[t.ID] = scorer.Score(scorer.Input{
			Priority:       t.Priority,
			CreatedAt:      t.CreatedAt,
			Deadline:       t.Scheduling.Deadline,
			SuccessorCount: len(s.graph.Successors(t.ID)),
			Resources:      t.Constraints.Resources,
			Attempts:       t.Attempts,
			Now:            now,
		})
	}
	sort.SliceStable(queued, func(i, j int) bool {
		if queued[i].Priority.Weight() != queued[j].Priority.Weight() {
			return queued[i].Priority.Weight() > queued[j].Priority.Weight()
		}
		if scores[queued[i].ID] != scores[queued[j].ID] {
			return scores[queued[i].ID] > scores[queued[j].ID]
		}
		return queued[i].CreatedAt.Before(queued[j].CreatedAt)
	})
	return queued
}
