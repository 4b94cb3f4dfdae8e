package model

import "time"

// EventType names a lifecycle occurrence published on the event bus.
type EventType string

const (
	EventTaskSubmitted   EventType = "task:submitted"
	EventTaskQueued      EventType = "task:queued"
	EventTaskAssigned    EventType = "task:assigned"
	EventTaskStarted     EventType = "task:started"
	EventTaskCompleted   EventType = "task:completed"
	EventTaskFailed      EventType = "task:failed"
	EventTaskRetrying    EventType = "task:retrying"
	EventTaskDeadLettered EventType = "task:dead_lettered"
	EventTaskCancelled   EventType = "task:cancelled"
	EventAgentRegistered EventType = "agent:registered"
	EventAgentLost       EventType = "agent:lost"
	EventAgentHeartbeat  EventType = "agent:heartbeat"
	EventStarvation      EventType = "queue:starvation"
	EventSnapshotWritten EventType = "persistence:snapshot_written"
	EventRecovery        EventType = "persistence:recovery"
)

// Event is the envelope TaskRegistry, AgentRegistry, and Scheduler publish
// on every state transition (spec.md §3 "emits change events").
type Event struct {
	Type      EventType
	At        time.Time
	TaskID    string
	AgentID   string
	FromState string
	ToState   string
	Detail    string
}
