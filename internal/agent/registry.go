// Package agent implements AgentRegistry: the pool of worker agents, their
// capabilities, capacity, current load, and heartbeats (spec.md §3).
package agent

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/swarmguard/taskqueue/internal/clock"
	"github.com/swarmguard/taskqueue/internal/eventbus"
	"github.com/swarmguard/taskqueue/internal/model"
	"github.com/swarmguard/taskqueue/internal/resilience"
)

var (
	ErrDuplicateID = errors.New("agent: duplicate id")
	ErrUnknownID   = errors.New("agent: unknown id")
)

// entry bundles an Agent with the scheduling-adjacent state that isn't
// part of the spec's Agent data model but drives routing decisions: a
// circuit breaker tracking recent task outcomes, and a rate limiter
// capping how fast new assignments land on it.
type entry struct {
	agent   model.Agent
	breaker *resilience.CircuitBreaker
	limiter *resilience.RateLimiter
}

// Registry is AgentRegistry.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*entry
	clock   clock.Clock
	bus     *eventbus.Bus
	timeout time.Duration // agentHeartbeatTimeout, spec.md §6
}

// New creates an empty Registry. timeout is the agentHeartbeatTimeout
// config value (spec.md §6) used by SweepTimeouts.
func New(c clock.Clock, bus *eventbus.Bus, heartbeatTimeout time.Duration) *Registry {
	return &Registry{agents: make(map[string]*entry), clock: c, bus: bus, timeout: heartbeatTimeout}
}

// Register adds a new agent as Available. Returns ErrDuplicateID if
// a.ID is already registered.
func (r *Registry) Register(a model.Agent) (model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; ok {
		return model.Agent{}, ErrDuplicateID
	}
	a.Status = model.AgentAvailable
	a.LastHeartbeat = r.clock.Now()
	if a.RunningTasks == nil {
		a.RunningTasks = make(map[string]struct{})
	}
	r.agents[a.ID] = &entry{
		agent:   a,
		breaker: resilience.NewCircuitBreakerAdaptive(5*time.Minute, 10, 5, 0.5, 30*time.Second, 2),
		limiter: resilience.NewRateLimiter(int64(a.MaxConcurrency*4), float64(a.MaxConcurrency), time.Second, int64(a.MaxConcurrency*4)),
	}
	r.publish(model.Event{Type: model.EventAgentRegistered, At: a.LastHeartbeat, AgentID: a.ID})
	return a, nil
}

// Get returns a copy of the agent with id.
func (r *Registry) Get(id string) (model.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[id]
	if !ok {
		return model.Agent{}, false
	}
	return e.agent, true
}

// Update replaces mutable fields (capabilities/capacity/status) of an
// existing agent; id and RunningTasks are preserved.
func (r *Registry) Update(id string, fn func(*model.Agent)) (model.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[id]
	if !ok {
		return model.Agent{}, ErrUnknownID
	}
	agentID, running := e.agent.ID, e.agent.RunningTasks
	fn(&e.agent)
	e.agent.ID, e.agent.RunningTasks = agentID, running
	return e.agent, nil
}

// Heartbeat records a liveness ping, bringing an Offline agent back to
// Available.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[id]
	if !ok {
		return ErrUnknownID
	}
	e.agent.LastHeartbeat = r.clock.Now()
	if e.agent.Status == model.AgentOffline {
		e.agent.Status = model.AgentAvailable
	}
	r.publish(model.Event{Type: model.EventAgentHeartbeat, At: e.agent.LastHeartbeat, AgentID: id})
	return nil
}

// Candidate is a routing-eligible agent together with the score terms
// Scheduler's assignment step (spec.md §4.3 step 3c) needs to rank it.
type Candidate struct {
	Agent model.Agent
}

// Candidates returns every agent eligible to receive work matching
// requiredCaps and resources: Available status, a free concurrency slot,
// an untripped circuit breaker, capability superset, and (if
// requiredAgentID is set) restricted to that one agent.
func (r *Registry) Candidates(requiredAgentID string, requiredCaps []string, resources model.ResourceDemand) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Candidate
	for id, e := range r.agents {
		if requiredAgentID != "" && id != requiredAgentID {
			continue
		}
		if e.agent.Status != model.AgentAvailable {
			continue
		}
		if !e.agent.HasFreeSlot() {
			continue
		}
		if e.breaker != nil && !e.breaker.Allow() {
			continue
		}
		if e.limiter != nil && !e.limiter.Allow() {
			continue
		}
		if !hasAllCapabilities(&e.agent, requiredCaps) {
			continue
		}
		if !hasHeadroom(&e.agent, resources) {
			continue
		}
		out = append(out, Candidate{Agent: e.agent})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent.ID < out[j].Agent.ID })
	return out
}

func hasAllCapabilities(a *model.Agent, required []string) bool {
	for _, c := range required {
		if !a.HasCapability(c) {
			return false
		}
	}
	return true
}

func hasHeadroom(a *model.Agent, demand model.ResourceDemand) bool {
	used := float64(len(a.RunningTasks))
	if a.MaxConcurrency > 0 && used >= float64(a.MaxConcurrency) {
		return false
	}
	return demand.CPU <= a.Capacity.CPU && demand.Memory <= a.Capacity.Memory && demand.Disk <= a.Capacity.Disk
}

// Reserve occupies one concurrency slot for assignmentID on agentID (I4:
// currentConcurrent equals the count of active Assignments).
func (r *Registry) Reserve(agentID, assignmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return ErrUnknownID
	}
	if e.agent.RunningTasks == nil {
		e.agent.RunningTasks = make(map[string]struct{})
	}
	e.agent.RunningTasks[assignmentID] = struct{}{}
	if !e.agent.HasFreeSlot() {
		e.agent.Status = model.AgentBusy
	}
	return nil
}

// Release frees the concurrency slot held by assignmentID and records the
// task outcome against the agent's EWMAs and circuit breaker.
func (r *Registry) Release(agentID, assignmentID string, success bool, durationSeconds float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return ErrUnknownID
	}
	delete(e.agent.RunningTasks, assignmentID)
	if e.agent.Status == model.AgentBusy {
		e.agent.Status = model.AgentAvailable
	}
	if e.breaker != nil {
		e.breaker.RecordResult(success)
	}
	updateEWMA(&e.agent, success, durationSeconds)
	return nil
}

// ewmaAlpha weights the most recent sample; matches the teacher's
// retry-multiplier magnitude order rather than a formally derived
// constant — a smoothing factor, not a tunable the spec pins down.
const ewmaAlpha = 0.2

func updateEWMA(a *model.Agent, success bool, durationSeconds float64) {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	if a.PerformanceEWMA == 0 {
		a.PerformanceEWMA = durationSeconds
	} else {
		a.PerformanceEWMA = ewmaAlpha*durationSeconds + (1-ewmaAlpha)*a.PerformanceEWMA
	}
	if a.SuccessEWMA == 0 && a.PerformanceEWMA == durationSeconds {
		a.SuccessEWMA = outcome
	} else {
		a.SuccessEWMA = ewmaAlpha*outcome + (1-ewmaAlpha)*a.SuccessEWMA
	}
}

// MarkLost transitions an agent to Offline and returns the set of
// assignment ids that were running on it, for the scheduler to release
// back to Queued (spec.md §4.3 agent-timeout handling). Attempts are left
// unchanged by the caller.
func (r *Registry) MarkLost(agentID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[agentID]
	if !ok {
		return nil, ErrUnknownID
	}
	var lost []string
	for assignmentID := range e.agent.RunningTasks {
		lost = append(lost, assignmentID)
	}
	e.agent.RunningTasks = make(map[string]struct{})
	e.agent.Status = model.AgentOffline
	r.publish(model.Event{Type: model.EventAgentLost, At: r.clock.Now(), AgentID: agentID})
	sort.Strings(lost)
	return lost, nil
}

// All returns copies of every registered agent, for PersistenceEngine's
// snapshot writer.
func (r *Registry) All() []model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Agent, 0, len(r.agents))
	for _, e := range r.agents {
		out = append(out, e.agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadAll replaces the registry's contents wholesale with agents, rebuilding
// a fresh circuit breaker and rate limiter for each (Restore reinstates
// declared state, not recent-failure history, which is transient by
// design).
func (r *Registry) LoadAll(agents []model.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*entry, len(agents))
	for i := range agents {
		a := agents[i]
		if a.RunningTasks == nil {
			a.RunningTasks = make(map[string]struct{})
		}
		r.agents[a.ID] = &entry{
			agent:   a,
			breaker: resilience.NewCircuitBreakerAdaptive(5*time.Minute, 10, 5, 0.5, 30*time.Second, 2),
			limiter: resilience.NewRateLimiter(int64(a.MaxConcurrency*4), float64(a.MaxConcurrency), time.Second, int64(a.MaxConcurrency*4)),
		}
	}
}

// SweepTimeouts returns the ids of every agent whose LastHeartbeat is
// older than the configured agentHeartbeatTimeout and is not already
// Offline. It does not mutate state; callers invoke MarkLost per id.
func (r *Registry) SweepTimeouts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.clock.Now()
	var stale []string
	for id, e := range r.agents {
		if e.agent.Status == model.AgentOffline {
			continue
		}
		if now.Sub(e.agent.LastHeartbeat) > r.timeout {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}

func (r *Registry) publish(ev model.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}
