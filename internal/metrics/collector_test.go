package metrics

import (
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/swarmguard/taskqueue/internal/clock"
	"github.com/swarmguard/taskqueue/internal/model"
)

func newTestCollector() (*Collector, *clock.Manual) {
	c := clock.NewManual(time.Unix(0, 0))
	return New(c, nil, noop.NewMeterProvider().Meter("test")), c
}

func TestObserveTracksQueueDepthByPriority(t *testing.T) {
	col, _ := newTestCollector()
	col.Observe(model.Event{Type: model.EventTaskQueued, Detail: string(model.PriorityHigh)})
	col.Observe(model.Event{Type: model.EventTaskQueued, Detail: string(model.PriorityHigh)})

	snap := col.Snapshot(WindowMinute)
	if snap.QueueDepth[model.PriorityHigh] != 2 {
		t.Fatalf("expected depth 2, got %d", snap.QueueDepth[model.PriorityHigh])
	}
}

func TestObserveAssignLatency(t *testing.T) {
	col, c := newTestCollector()
	col.Observe(model.Event{Type: model.EventTaskSubmitted, TaskID: "t1", At: c.Now()})
	c.Advance(50 * time.Millisecond)
	col.Observe(model.Event{Type: model.EventTaskAssigned, TaskID: "t1", At: c.Now()})

	snap := col.Snapshot(WindowMinute)
	if snap.AssignLatencyP50 < 40 || snap.AssignLatencyP50 > 60 {
		t.Fatalf("expected ~50ms p50 latency, got %f", snap.AssignLatencyP50)
	}
}

func TestSuccessRateComputation(t *testing.T) {
	col, _ := newTestCollector()
	col.Observe(model.Event{Type: model.EventTaskCompleted})
	col.Observe(model.Event{Type: model.EventTaskCompleted})
	col.Observe(model.Event{Type: model.EventTaskFailed})

	snap := col.Snapshot(WindowMinute)
	want := 2.0 / 3.0
	if snap.SuccessRate < want-0.001 || snap.SuccessRate > want+0.001 {
		t.Fatalf("expected success rate %f, got %f", want, snap.SuccessRate)
	}
}

func TestObserveTaskDurationPerKind(t *testing.T) {
	col, _ := newTestCollector()
	col.ObserveTaskDuration("build", 100)
	col.ObserveTaskDuration("build", 200)

	snap := col.Snapshot(WindowMinute)
	if snap.KindAvgDurationMs["build"] != 150 {
		t.Fatalf("expected avg 150, got %f", snap.KindAvgDurationMs["build"])
	}
}

func TestAgentUtilizationTracksAssignedAndLost(t *testing.T) {
	col, _ := newTestCollector()
	col.Observe(model.Event{Type: model.EventTaskAssigned, AgentID: "a1"})
	if snap := col.Snapshot(WindowMinute); snap.AgentUtilization != 1 {
		t.Fatalf("expected utilization 1, got %d", snap.AgentUtilization)
	}
	col.Observe(model.Event{Type: model.EventAgentLost, AgentID: "a1"})
	if snap := col.Snapshot(WindowMinute); snap.AgentUtilization != 0 {
		t.Fatalf("expected utilization 0 after agent lost, got %d", snap.AgentUtilization)
	}
}
