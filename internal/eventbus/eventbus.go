// Package eventbus is the in-process publish/subscribe hub for lifecycle
// events (spec.md's EventBus: "MetricsCollector observes EventBus
// continuously"). Every subscriber gets its own buffered channel so a slow
// consumer never blocks Publish, which the scheduler's single-writer loop
// calls inline on every state transition.
package eventbus

import (
	"sync"

	"github.com/swarmguard/taskqueue/internal/model"
)

// DefaultSubscriberBuffer bounds how many events a subscriber can lag
// behind before Publish starts dropping its oldest unread events rather
// than block the scheduler loop.
const DefaultSubscriberBuffer = 256

// Bus fans out Event values to any number of subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int

	journal Journal // optional durable journal, nil if none attached
	bridge  Bridge  // optional external bridge (e.g. NATS), nil if none attached
}

// Journal persists every published event for crash recovery / audit.
// BoltJournal in this package is the bolt-backed implementation.
type Journal interface {
	Append(model.Event) error
}

// Bridge republishes events to an external system (e.g. NATS) for
// cross-process observers. Errors are never fatal: Bus.Publish discards
// them without logging.
type Bridge interface {
	Publish(model.Event) error
}

type subscription struct {
	ch     chan model.Event
	filter func(model.Event) bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// AttachJournal wires a durable journal that receives every published
// event before fan-out to subscribers.
func (b *Bus) AttachJournal(j Journal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal = j
}

// AttachBridge wires an external bridge that mirrors every published
// event outside the process.
func (b *Bus) AttachBridge(br Bridge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridge = br
}

// Subscription is a handle returned by Subscribe; call Close to stop
// receiving events and release the underlying channel.
type Subscription struct {
	bus *Bus
	id  int
	C   <-chan model.Event
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subs, s.id)
	}
}

// Subscribe registers a new subscriber. filter may be nil to receive every
// event; otherwise only events for which filter returns true are delivered.
func (b *Bus) Subscribe(filter func(model.Event) bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := &subscription{ch: make(chan model.Event, DefaultSubscriberBuffer), filter: filter}
	b.subs[id] = sub
	return &Subscription{bus: b, id: id, C: sub.ch}
}

// Publish fans out ev to every matching subscriber, appends to the journal
// if attached, and mirrors to the bridge if attached. Publish never blocks:
// a subscriber whose buffer is full has its oldest event dropped to make
// room (lossy-but-live beats blocking the scheduler's single writer).
func (b *Bus) Publish(ev model.Event) {
	b.mu.RLock()
	journal := b.journal
	bridge := b.bridge
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	if journal != nil {
		_ = journal.Append(ev) // append errors are discarded; neither the bus nor BoltJournal logs them
	}
	if bridge != nil {
		_ = bridge.Publish(ev)
	}

	for _, s := range subs {
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			// drop oldest, then retry once
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- ev:
			default:
			}
		}
	}
}
