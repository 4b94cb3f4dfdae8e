package scheduler

import (
	"context"
	"time"

	"github.com/swarmguard/taskqueue/internal/model"
)

// SubmitTask is the Control API's SubmitTask op (spec.md §6).
func (s *Scheduler) SubmitTask(ctx context.Context, t model.Task, deadline time.Time) (string, error) {
	cmd := &submitCmd{task: t, deadline: deadline, reply: make(chan submitResult, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return "", err
	}
	select {
	case res := <-cmd.reply:
		return res.id, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CancelTask is the Control API's CancelTask op.
func (s *Scheduler) CancelTask(ctx context.Context, id, reason string, deadline time.Time) error {
	cmd := &cancelCmd{id: id, reason: reason, deadline: deadline, reply: make(chan error, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterAgent is the Control API's RegisterAgent op.
func (s *Scheduler) RegisterAgent(ctx context.Context, a model.Agent, deadline time.Time) error {
	cmd := &registerAgentCmd{agent: a, deadline: deadline, reply: make(chan error, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateAgent is the Control API's UpdateAgent op. patch mutates the
// agent's mutable fields (capabilities/capacity/status) in place.
func (s *Scheduler) UpdateAgent(ctx context.Context, id string, patch func(*model.Agent), deadline time.Time) error {
	cmd := &updateAgentCmd{id: id, patch: patch, deadline: deadline, reply: make(chan error, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Heartbeat is the Control API's Heartbeat op.
func (s *Scheduler) Heartbeat(ctx context.Context, agentID string, deadline time.Time) error {
	cmd := &heartbeatCmd{agentID: agentID, deadline: deadline, reply: make(chan error, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AckCompletion is the Control API's AckCompletion op.
func (s *Scheduler) AckCompletion(ctx context.Context, taskID string, outcome CompletionOutcome, deadline time.Time) error {
	cmd := &ackCompletionCmd{taskID: taskID, outcome: outcome, deadline: deadline, reply: make(chan error, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueStatusOp is the Control API's QueueStatus op (named with an Op
// suffix since QueueStatus is also the result type's name).
func (s *Scheduler) QueueStatusOp(ctx context.Context) (QueueStatus, error) {
	cmd := &queueStatusCmd{reply: make(chan QueueStatus, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return QueueStatus{}, err
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return QueueStatus{}, ctx.Err()
	}
}

// TaskInfoOp is the Control API's TaskInfo op.
func (s *Scheduler) TaskInfoOp(ctx context.Context, id string) (TaskInfo, error) {
	cmd := &taskInfoCmd{id: id, reply: make(chan taskInfoResult, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return TaskInfo{}, err
	}
	select {
	case res := <-cmd.reply:
		return res.info, res.err
	case <-ctx.Done():
		return TaskInfo{}, ctx.Err()
	}
}

// Rebalance is the Control API's Rebalance op.
func (s *Scheduler) Rebalance(ctx context.Context) error {
	cmd := &rebalanceCmd{reply: make(chan struct{}, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return err
	}
	select {
	case <-cmd.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SnapshotOp is the Control API's Snapshot op.
func (s *Scheduler) SnapshotOp(ctx context.Context, label string, deadline time.Time) (string, error) {
	cmd := &snapshotCmd{label: label, deadline: deadline, reply: make(chan snapshotResult, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return "", err
	}
	select {
	case res := <-cmd.reply:
		return res.path, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RestoreOp is the Control API's Restore op. An empty path runs the
// ordered recovery fallback chain; a non-empty path loads that file
// directly.
func (s *Scheduler) RestoreOp(ctx context.Context, path string, deadline time.Time) (RestoreCounts, error) {
	cmd := &restoreCmd{path: path, deadline: deadline, reply: make(chan restoreResult, 1)}
	if err := s.send(ctx, cmd); err != nil {
		return RestoreCounts{}, err
	}
	select {
	case res := <-cmd.reply:
		return res.counts, res.err
	case <-ctx.Done():
		return RestoreCounts{}, ctx.Err()
	}
}
