// Package scheduler implements the Execution Controller: the single-writer
// loop that owns DependencyGraph, TaskRegistry, and AgentRegistry, and the
// synchronous Control API (spec.md §5, §6) external callers use to mutate
// them. Every mutation happens on one goroutine; external callers post
// commands on a bounded channel and block on a private reply channel,
// which is what makes the core structures lock-free with respect to each
// other (spec.md §5: "single-writer and lock-free on the core structures").
//
// Grounded on services/orchestrator/dag_engine.go's executeDAG (Kahn's-
// algorithm-driven dispatch loop) and cancellation.go's CancellableExecution
// bookkeeping (register/cancel/grace-period/cleanup shape), generalized
// from a one-shot workflow run into a long-lived, continuously-ticking
// scheduler over a mutable task population.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/swarmguard/taskqueue/internal/agent"
	"github.com/swarmguard/taskqueue/internal/clock"
	"github.com/swarmguard/taskqueue/internal/eventbus"
	"github.com/swarmguard/taskqueue/internal/graph"
	"github.com/swarmguard/taskqueue/internal/idgen"
	"github.com/swarmguard/taskqueue/internal/model"
	"github.com/swarmguard/taskqueue/internal/persistence"
	"github.com/swarmguard/taskqueue/internal/retrypolicy"
	"github.com/swarmguard/taskqueue/internal/scorer"
	"github.com/swarmguard/taskqueue/internal/task"
)

// Config holds the scheduler's timing knobs (spec.md §6).
type Config struct {
	TickInterval          time.Duration // default 100ms
	RebalanceInterval     time.Duration // default 30s
	AgentHeartbeatTimeout time.Duration
	AbortGrace            time.Duration
	CommandBuffer         int // bounded MPSC channel capacity, spec.md §5
	SessionID             string
}

// DefaultConfig matches spec.md §4.3/§6's stated defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:          100 * time.Millisecond,
		RebalanceInterval:     30 * time.Second,
		AgentHeartbeatTimeout: 30 * time.Second,
		AbortGrace:            10 * time.Second,
		CommandBuffer:         256,
	}
}

// Scheduler is the Execution Controller.
type Scheduler struct {
	cfg   Config
	clock clock.Clock
	log   *slog.Logger

	graph  *graph.Graph
	tasks  *task.Registry
	agents *agent.Registry
	bus    *eventbus.Bus
	persist *persistence.Engine // nil disables Snapshot/Restore
	retry  retrypolicy.Policy
	ids    *idgen.Generator

	cmds chan any

	assignments    map[string]*model.Assignment // assignment id -> assignment
	taskAssignment map[string]string             // task id -> active assignment id
	cancelRequested map[string]time.Time         // task id -> force-cancel deadline
	pendingRequeue  map[string]time.Time         // task id -> Failed->Queued readiness time

	halted bool // set on an invariant violation; ticking stops, state is preserved for a final snapshot

	// onTaskDuration, if set, is called on every completion/failure ack so
	// an external MetricsCollector can record per-kind execution time
	// (the Event envelope itself carries no duration field; see
	// internal/metrics.Collector.ObserveTaskDuration).
	onTaskDuration func(kind string, durationMs float64)
}

// New constructs a Scheduler. persist may be nil, disabling Snapshot/
// Restore (an error is returned for those ops instead).
func New(cfg Config, c clock.Clock, log *slog.Logger, g *graph.Graph, tasks *task.Registry, agents *agent.Registry, bus *eventbus.Bus, persist *persistence.Engine, retry retrypolicy.Policy, ids *idgen.Generator) *Scheduler {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 256
	}
	return &Scheduler{
		cfg:             cfg,
		clock:           c,
		log:             log,
		graph:           g,
		tasks:           tasks,
		agents:          agents,
		bus:             bus,
		persist:         persist,
		retry:           retry,
		ids:             ids,
		cmds:            make(chan any, cfg.CommandBuffer),
		assignments:     make(map[string]*model.Assignment),
		taskAssignment:  make(map[string]string),
		cancelRequested: make(map[string]time.Time),
		pendingRequeue:  make(map[string]time.Time),
	}
}

// OnTaskDuration wires an observer called with (kind, durationMs) on every
// completion ack, for MetricsCollector's per-kind average (spec.md §4.5).
func (s *Scheduler) OnTaskDuration(fn func(kind string, durationMs float64)) {
	s.onTaskDuration = fn
}

// Run is the scheduler loop. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	tickTicker := s.clock.NewTicker(s.cfg.TickInterval)
	defer tickTicker.Stop()
	rebalanceTicker := s.clock.NewTicker(s.cfg.RebalanceInterval)
	defer rebalanceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tickTicker.C():
			s.sweepAgentTimeouts()
			s.tick()
		case <-rebalanceTicker.C():
			s.rebalance()
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
		}
	}
}

func (s *Scheduler) send(ctx context.Context, cmd any) error {
	select {
	case s.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case *submitCmd:
		c.reply <- s.handleSubmit(c)
	case *cancelCmd:
		c.reply <- s.handleCancel(c)
	case *registerAgentCmd:
		c.reply <- s.handleRegisterAgent(c)
	case *updateAgentCmd:
		c.reply <- s.handleUpdateAgent(c)
	case *heartbeatCmd:
		c.reply <- s.handleHeartbeat(c)
	case *ackCompletionCmd:
		c.reply <- s.handleAckCompletion(c)
	case *queueStatusCmd:
		c.reply <- s.handleQueueStatus()
	case *taskInfoCmd:
		c.reply <- s.handleTaskInfo(c)
	case *rebalanceCmd:
		s.rebalance()
		c.reply <- struct{}{}
	case *snapshotCmd:
		c.reply <- s.handleSnapshot(c)
	case *restoreCmd:
		c.reply <- s.handleRestore(c)
	default:
		s.log.Error("scheduler: unknown command type", "type", fmt.Sprintf("%T", cmd))
	}

	// Submit, agent updates, and completion all re-trigger a tick
	// immediately rather than waiting for the next tickInterval
	// (spec.md §4.3's tick trigger list).
	switch cmd.(type) {
	case *submitCmd, *registerAgentCmd, *updateAgentCmd, *heartbeatCmd, *ackCompletionCmd, *cancelCmd:
		s.tick()
	}
}

// tick is the scheduler's assignment pass (spec.md §4.3).
func (s *Scheduler) tick() {
	if s.halted {
		return
	}
	defer s.recoverInvariantViolation()

	now := s.clock.Now()
	s.processPendingRequeues(now)
	s.propagateBlockedDependents()

	ready := s.readySortedQueue(now)
	assigned := 0
	for _, t := range ready {
		if t.Executor.Name == "" {
			s.deadLetterImmediately(t.ID, "missing executor")
			continue
		}
		candidates := s.agents.Candidates(t.Constraints.RequiredAgentID, t.Constraints.RequiredCapability, t.Constraints.Resources)
		if len(candidates) == 0 {
			continue
		}
		best := pickAgent(candidates, t.Constraints.RequiredCapability)
		if !s.assign(t, best.Agent.ID, now) {
			continue
		}
		assigned++
	}

	if len(ready) == 0 {
		if queued := s.tasks.ListByStatus(model.StatusQueued); len(queued) > 0 {
			s.publish(model.Event{Type: model.EventStarvation, At: now})
		}
	}
}

func (s *Scheduler) recoverInvariantViolation() {
	if r := recover(); r != nil {
		s.halted = true
		s.log.Error("scheduler: invariant violation, halting ticking", "panic", r)
	}
}

// deadLetterImmediately routes a Queued task straight to DeadLettered via
// Failed, with no retry, for the missing-executor/malformed-params case
// (spec.md §4.3 failure semantics, §7 "Permanent executor failure").
func (s *Scheduler) deadLetterImmediately(taskID, reason string) {
	if _, err := s.tasks.Transition(taskID, model.StatusFailed, model.EventTaskFailed, reason); err != nil {
		s.log.Error("scheduler: dead-letter transition to Failed rejected", "task", taskID, "err", err)
		return
	}
	if _, err := s.tasks.Transition(taskID, model.StatusDeadLettered, model.EventTaskDeadLettered, reason); err != nil {
		s.log.Error("scheduler: dead-letter transition to DeadLettered rejected", "task", taskID, "err", err)
	}
}

// assign creates an Assignment for t on agentID, reserves the agent slot,
// and advances the task Assigned -> Running. The Control API (spec.md §6)
// exposes no distinct "worker acknowledges start" op, so the scheduler
// advances both transitions inline within one tick rather than waiting
// for a command that doesn't exist in the surface — see DESIGN.md.
func (s *Scheduler) assign(t model.Task, agentID string, now time.Time) bool {
	assignmentID := s.ids.Next(idgen.KindAssignment)
	if err := s.agents.Reserve(agentID, assignmentID); err != nil {
		s.log.Error("scheduler: reserve failed for a candidate agent", "agent", agentID, "err", err)
		return false
	}
	if _, err := s.tasks.Transition(t.ID, model.StatusAssigned, model.EventTaskAssigned, string(t.Priority)); err != nil {
		s.agents.Release(agentID, assignmentID, false, 0)
		s.log.Error("scheduler: assign transition rejected", "task", t.ID, "err", err)
		return false
	}
	if _, err := s.tasks.Transition(t.ID, model.StatusRunning, model.EventTaskStarted, ""); err != nil {
		s.agents.Release(agentID, assignmentID, false, 0)
		s.log.Error("scheduler: running transition rejected", "task", t.ID, "err", err)
		return false
	}
	s.assignments[assignmentID] = &model.Assignment{
		ID: assignmentID, TaskID: t.ID, AgentID: agentID,
		AssignedAt: now, StartedAt: now, Attempt: t.Attempts + 1,
	}
	s.taskAssignment[t.ID] = assignmentID
	return true
}

// processPendingRequeues moves tasks whose retry backoff has elapsed from
// Failed back to Queued (spec.md §4.3 completion-ack failure handling).
func (s *Scheduler) processPendingRequeues(now time.Time) {
	for taskID, readyAt := range s.pendingRequeue {
		if now.Before(readyAt) {
			continue
		}
		if _, err := s.tasks.Transition(taskID, model.StatusQueued, model.EventTaskRetrying, ""); err != nil {
			s.log.Error("scheduler: retry requeue rejected", "task", taskID, "err", err)
		}
		delete(s.pendingRequeue, taskID)
	}
	s.processForcedCancellations(now)
}

// processForcedCancellations transitions any Running task whose abort
// grace period has elapsed straight to Cancelled (spec.md §4.3
// "on ack or after abortGrace, transition to Cancelled").
func (s *Scheduler) processForcedCancellations(now time.Time) {
	for taskID, deadline := range s.cancelRequested {
		if now.Before(deadline) {
			continue
		}
		s.finishCancellation(taskID, "abort grace elapsed")
	}
}

func (s *Scheduler) finishCancellation(taskID, reason string) {
	if assignmentID, ok := s.taskAssignment[taskID]; ok {
		if a, ok := s.assignments[assignmentID]; ok {
			s.agents.Release(a.AgentID, assignmentID, false, 0)
		}
		delete(s.assignments, assignmentID)
		delete(s.taskAssignment, taskID)
	}
	if _, err := s.tasks.Transition(taskID, model.StatusCancelled, model.EventTaskCancelled, reason); err != nil {
		s.log.Error("scheduler: cancellation transition rejected", "task", taskID, "err", err)
	}
	delete(s.cancelRequested, taskID)
}

// propagateBlockedDependents moves Queued tasks whose Hard predecessor
// reached a terminal failure state to Failed(dependency) (spec.md §4.3).
func (s *Scheduler) propagateBlockedDependents() {
	for _, t := range s.tasks.ListByStatus(model.StatusQueued) {
		if s.graph.Blocked(t.ID) {
			if _, err := s.tasks.Transition(t.ID, model.StatusFailed, model.EventTaskFailed, "dependency"); err != nil {
				s.log.Error("scheduler: dependency-failure propagation rejected", "task", t.ID, "err", err)
			}
		}
	}
}

// readySortedQueue returns Queued, ready tasks ordered per spec.md §4.3
// step 2: priority class descending, PriorityScorer descending, createdAt
// ascending.
func (s *Scheduler) readySortedQueue(now time.Time) []model.Task {
	queued := s.tasks.ListByStatus(model.StatusQueued)
	ready := make([]model.Task, 0, len(queued))
	for _, t := range queued {
		if s.graph.IsReady(t.ID) {
			ready = append(ready, t)
		}
	}
	scores := make(map[string]float64, len(ready))
	for _, t := range ready {
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
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority.Weight() != ready[j].Priority.Weight() {
			return ready[i].Priority.Weight() > ready[j].Priority.Weight()
		}
		if scores[ready[i].ID] != scores[ready[j].ID] {
			return scores[ready[i].ID] > scores[ready[j].ID]
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	return ready
}

// rebalance recomputes queue order. Unlike a cached priority queue, this
// scheduler always derives order fresh from TaskRegistry+DependencyGraph
// state (readySortedQueue), so there is no stale cached order to refresh;
// rebalance's effect is to run an assignment pass immediately rather than
// wait for the next tickInterval (see DESIGN.md).
func (s *Scheduler) rebalance() {
	s.tick()
}

func (s *Scheduler) sweepAgentTimeouts() {
	for _, agentID := range s.agents.SweepTimeouts() {
		lost, err := s.agents.MarkLost(agentID)
		if err != nil {
			s.log.Error("scheduler: mark-lost failed", "agent", agentID, "err", err)
			continue
		}
		for _, assignmentID := range lost {
			a, ok := s.assignments[assignmentID]
			if !ok {
				continue
			}
			if _, err := s.tasks.Transition(a.TaskID, model.StatusQueued, model.EventTaskQueued, "agent_lost"); err != nil {
				s.log.Error("scheduler: agent-lost requeue rejected", "task", a.TaskID, "err", err)
			}
			delete(s.assignments, assignmentID)
			delete(s.taskAssignment, a.TaskID)
		}
	}
}

func (s *Scheduler) publish(ev model.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
