// Package model holds the shared domain types for the task queue: Task,
// DependencyEdge, Agent, Assignment, and the small value types they're built
// from. It exists so internal/graph, internal/task, internal/agent,
// internal/scorer, internal/retrypolicy, and internal/scheduler can all
// refer to the same vocabulary without importing each other.
package model

import "time"

// Priority is one of the four scheduling classes from spec.md §3.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Weight returns the base priority term W[priority] from spec.md §4.2.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityCritical:
		return 1000
	case PriorityHigh:
		return 100
	case PriorityNormal:
		return 10
	case PriorityLow:
		return 1
	default:
		return 10
	}
}

// Status is a task's lifecycle state (spec.md §3, §4.3).
type Status string

const (
	StatusPending      Status = "pending"
	StatusQueued       Status = "queued"
	StatusAssigned     Status = "assigned"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
	StatusDeadLettered Status = "dead_lettered"
)

// Terminal reports whether a task in this status will never transition again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusDeadLettered:
		return true
	default:
		return false
	}
}

// ParallelismMode constrains how a task may share agent capacity.
type ParallelismMode string

const (
	ParallelismSequential ParallelismMode = "sequential"
	ParallelismParallel   ParallelismMode = "parallel"
	ParallelismExclusive  ParallelismMode = "exclusive"
)

// ResourceDemand is the cpu/memory/disk a task asks for (spec.md §3).
type ResourceDemand struct {
	CPU    float64 // fractional cores
	Memory float64 // MB
	Disk   float64 // MB
}

// Constraints is the optional placement/resource section of a Task.
type Constraints struct {
	RequiredAgentID    string
	RequiredCapability []string
	Resources          ResourceDemand
	Parallelism        ParallelismMode
}

// Scheduling is the optional timing section of a Task.
type Scheduling struct {
	EarliestStart time.Time
	Deadline      time.Time // zero means no deadline
	MaxRetries    int       // default 3 when zero, see Task.MaxRetries
	RetryBackoff  time.Duration
	Timeout       time.Duration
}

// Executor is an opaque handle passed to workers; the scheduler never
// interprets it (spec.md §1: "task executor implementations... are external
// collaborators").
type Executor struct {
	Name   string
	Params map[string]any
}

// Task is the authoritative record TaskRegistry owns (spec.md §3, I1).
type Task struct {
	ID                string
	Title             string
	Description       string
	Kind              string
	Priority          Priority
	Executor          Executor
	Dependencies      []string // task ids this task depends on
	Constraints       Constraints
	Scheduling        Scheduling
	EstimatedDuration time.Duration
	Status            Status
	Attempts          int
	CreatedAt         time.Time
	LastTransitionAt  time.Time
	Tags              []string
}

// DefaultMaxRetries matches spec.md §3 "max retries (default 3)".
const DefaultMaxRetries = 3

// MaxRetries returns the task's configured retry budget, defaulting to
// DefaultMaxRetries when unset (zero value).
func (t *Task) MaxRetries() int {
	if t.Scheduling.MaxRetries > 0 {
		return t.Scheduling.MaxRetries
	}
	return DefaultMaxRetries
}

// Overdue reports whether t has a deadline that has already passed as of now.
func (t *Task) Overdue(now time.Time) bool {
	return !t.Scheduling.Deadline.IsZero() && now.After(t.Scheduling.Deadline)
}
