package model

import "time"

// Assignment binds a Task to the Agent executing it (spec.md §3, §4.3).
type Assignment struct {
	ID          string
	TaskID      string
	AgentID     string
	AssignedAt  time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Attempt     int
}
