// Package metrics implements MetricsCollector: rolling-window observation
// of EventBus, exposing queue depth, throughput, latency percentiles,
// success rate, agent utilization, and per-kind execution time (spec.md
// §4.5). It is strictly read-only with respect to the scheduler — it only
// subscribes to events, never calls back into any other component.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/taskqueue/internal/clock"
	"github.com/swarmguard/taskqueue/internal/eventbus"
	"github.com/swarmguard/taskqueue/internal/model"
)

// window is one of the three rolling granularities spec.md §4.5 names.
type windowKind int

const (
	WindowMinute windowKind = iota
	WindowHour
	WindowDay
)

var windowDurations = map[windowKind]time.Duration{
	WindowMinute: time.Minute,
	WindowHour:   time.Hour,
	WindowDay:    24 * time.Hour,
}

type windowState struct {
	start          time.Time
	queueDepth     map[model.Priority]int
	completed      int
	failed         int
	assignLatency  *ringBuffer
	kindDurationMs map[string]*runningAvg
}

type runningAvg struct {
	count int64
	sum   float64
}

func (r *runningAvg) Add(v float64) {
	r.count++
	r.sum += v
}

func (r *runningAvg) Mean() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

func newWindowState(now time.Time) *windowState {
	return &windowState{
		start:          now,
		queueDepth:     make(map[model.Priority]int),
		assignLatency:  newRingBuffer(1024),
		kindDurationMs: make(map[string]*runningAvg),
	}
}

// Collector is MetricsCollector.
type Collector struct {
	mu      sync.RWMutex
	clock   clock.Clock
	windows map[windowKind]*windowState

	submittedAt map[string]time.Time // taskID -> submit time, for submit->assign latency
	utilization map[string]bool      // agentID -> currently has running work

	// Optional OpenTelemetry mirrors of the same counters, so the same
	// numbers also flow to an external collector (spec.md's Non-goals
	// exclude a dashboard, not ambient instrumentation).
	tasksCompleted metric.Int64Counter
	tasksFailed    metric.Int64Counter
	starvation     metric.Int64Counter
}

// New creates a Collector subscribed to bus. meter may be the global
// otel.Meter or a noop meter in tests.
func New(c clock.Clock, bus *eventbus.Bus, meter metric.Meter) *Collector {
	now := c.Now()
	col := &Collector{
		clock: c,
		windows: map[windowKind]*windowState{
			WindowMinute: newWindowState(now),
			WindowHour:   newWindowState(now),
			WindowDay:    newWindowState(now),
		},
		submittedAt: make(map[string]time.Time),
		utilization: make(map[string]bool),
	}
	col.tasksCompleted, _ = meter.Int64Counter("taskqueue_tasks_completed_total")
	col.tasksFailed, _ = meter.Int64Counter("taskqueue_tasks_failed_total")
	col.starvation, _ = meter.Int64Counter("taskqueue_queue_starvation_total")

	if bus != nil {
		sub := bus.Subscribe(nil)
		go col.consume(sub)
	}
	return col
}

func (c *Collector) consume(sub *eventbus.Subscription) {
	for ev := range sub.C {
		c.Observe(ev)
	}
}

// Observe applies a single event to every rolling window, rotating windows
// whose duration has elapsed since their start.
func (c *Collector) Observe(ev model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for kind, w := range c.windows {
		c.rotateIfExpired(kind, w, now)
		applyEvent(w, ev)
	}

	switch ev.Type {
	case model.EventTaskSubmitted:
		c.submittedAt[ev.TaskID] = ev.At
	case model.EventTaskAssigned:
		if submitTime, ok := c.submittedAt[ev.TaskID]; ok {
			latencyMs := float64(ev.At.Sub(submitTime).Milliseconds())
			for _, w := range c.windows {
				w.assignLatency.Add(latencyMs)
			}
			delete(c.submittedAt, ev.TaskID)
		}
		if ev.AgentID != "" {
			c.utilization[ev.AgentID] = true
		}
	case model.EventTaskCompleted:
		c.tasksCompleted.Add(context.Background(), 1)
	case model.EventTaskFailed:
		c.tasksFailed.Add(context.Background(), 1)
	case model.EventStarvation:
		c.starvation.Add(context.Background(), 1)
	case model.EventAgentLost:
		delete(c.utilization, ev.AgentID)
	}
}

func (c *Collector) rotateIfExpired(kind windowKind, w *windowState, now time.Time) {
	if now.Sub(w.start) < windowDurations[kind] {
		return
	}
	*w = *newWindowState(now)
}

func applyEvent(w *windowState, ev model.Event) {
	switch ev.Type {
	case model.EventTaskQueued:
		// queueDepth is incremented on queue, decremented on assign/cancel/
		// dead-letter below; Detail carries the priority class for queued
		// events (set by the scheduler when it publishes).
		if ev.Detail != "" {
			w.queueDepth[model.Priority(ev.Detail)]++
		}
	case model.EventTaskAssigned, model.EventTaskCancelled, model.EventTaskDeadLettered:
		if ev.Detail != "" {
			if w.queueDepth[model.Priority(ev.Detail)] > 0 {
				w.queueDepth[model.Priority(ev.Detail)]--
			}
		}
	case model.EventTaskCompleted:
		w.completed++
	case model.EventTaskFailed:
		w.failed++
	}
}

// ObserveTaskDuration records a completed task's execution time against
// its kind, for the per-kind average execution time spec.md §4.5 asks
// for. The scheduler calls this directly on completion, since the event
// envelope itself doesn't carry a duration field.
func (c *Collector) ObserveTaskDuration(kind string, durationMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.windows {
		avg, ok := w.kindDurationMs[kind]
		if !ok {
			avg = &runningAvg{}
			w.kindDurationMs[kind] = avg
		}
		avg.Add(durationMs)
	}
}

// Snapshot is a point-in-time read of one window's aggregates.
type Snapshot struct {
	QueueDepth        map[model.Priority]int
	ThroughputPerMin  float64
	AssignLatencyP50  float64
	AssignLatencyP95  float64
	AssignLatencyP99  float64
	SuccessRate       float64
	AgentUtilization  int
	KindAvgDurationMs map[string]float64
}

// Snapshot returns the current aggregates for the given window, an O(1)
// read over the window's already-maintained counters (percentiles are the
// one O(n log n) exception, bounded by the constant 1024-sample buffer).
func (c *Collector) Snapshot(kind windowKind) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w := c.windows[kind]

	depth := make(map[model.Priority]int, len(w.queueDepth))
	for k, v := range w.queueDepth {
		depth[k] = v
	}
	kindAvg := make(map[string]float64, len(w.kindDurationMs))
	for k, v := range w.kindDurationMs {
		kindAvg[k] = v.Mean()
	}

	total := w.completed + w.failed
	successRate := 1.0
	if total > 0 {
		successRate = float64(w.completed) / float64(total)
	}

	elapsedMin := c.clock.Now().Sub(w.start).Minutes()
	if elapsedMin <= 0 {
		elapsedMin = 1.0 / 60
	}
	throughput := float64(w.completed) / elapsedMin

	return Snapshot{
		QueueDepth:        depth,
		ThroughputPerMin:  throughput,
		AssignLatencyP50:  w.assignLatency.Percentile(50),
		AssignLatencyP95:  w.assignLatency.Percentile(95),
		AssignLatencyP99:  w.assignLatency.Percentile(99),
		SuccessRate:       successRate,
		AgentUtilization:  len(c.utilization),
		KindAvgDurationMs: kindAvg,
	}
}
