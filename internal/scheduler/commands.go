package scheduler

import (
	"time"

	"github.com/swarmguard/taskqueue/internal/model"
)

// Every command carries its own reply channel; all but queueStatusCmd,
// taskInfoCmd and rebalanceCmd also carry an optional deadline
// (spec.md §5 "every command carries a deadline"). The loop checks the
// deadline immediately before executing and returns ErrTimeout without
// mutating state if it has already passed.

type submitCmd struct {
	task     model.Task
	deadline time.Time
	reply    chan submitResult
}

type submitResult struct {
	id  string
	err error
}

type cancelCmd struct {
	id       string
	reason   string
	deadline time.Time
	reply    chan error
}

type registerAgentCmd struct {
	agent    model.Agent
	deadline time.Time
	reply    chan error
}

type updateAgentCmd struct {
	id       string
	patch    func(*model.Agent)
	deadline time.Time
	reply    chan error
}

type heartbeatCmd struct {
	agentID  string
	deadline time.Time
	reply    chan error
}

// CompletionOutcome is what a worker reports back through AckCompletion.
type CompletionOutcome struct {
	Success      bool
	Error        string
	DurationSecs float64
}

type ackCompletionCmd struct {
	taskID   string
	outcome  CompletionOutcome
	deadline time.Time
	reply    chan error
}

// QueueStatus is the QueueStatus op's output (spec.md §6).
type QueueStatus struct {
	Counts  map[model.Status]int
	NextTaskID string
	PerfSnapshot map[string]float64
}

type queueStatusCmd struct {
	reply chan QueueStatus
}

// TaskInfo is the TaskInfo op's output: the task plus its current
// assignment (if any), queue position, and dependency ids.
type TaskInfo struct {
	Task          model.Task
	Assignment    *model.Assignment
	QueuePosition int // -1 if not currently Queued
	Dependencies  []string
}

type taskInfoCmd struct {
	id    string
	reply chan taskInfoResult
}

type taskInfoResult struct {
	info TaskInfo
	err  error
}

type rebalanceCmd struct {
	reply chan struct{}
}

type snapshotCmd struct {
	label    string
	deadline time.Time
	reply    chan snapshotResult
}

type snapshotResult struct {
	path string
	err  error
}

type restoreCmd struct {
	path     string
	deadline time.Time
	reply    chan restoreResult
}

// RestoreCounts reports how many records of each kind a Restore loaded.
type RestoreCounts struct {
	Tasks       int
	Edges       int
	Agents      int
	Assignments int
}

type restoreResult struct {
	counts RestoreCounts
	err    error
}

func deadlinePassed(clockNow time.Time, deadline time.Time) bool {
	return !deadline.IsZero() && clockNow.After(deadline)
}
