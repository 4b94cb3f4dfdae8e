package clock

import (
	"sync"
	"time"
)

// Manual is a Clock a test advances explicitly with Advance, rather than
// waiting on real time. All tickers/timers registered against it fire
// synchronously (in Advance's goroutine) once the advanced time crosses
// their deadline.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*manualWaiter
}

type manualWaiter struct {
	deadline time.Time
	ch       chan time.Time
	period   time.Duration // zero for a one-shot After
	stopped  bool
}

// NewManual creates a Manual clock starting at now.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &manualWaiter{deadline: m.now.Add(d), ch: make(chan time.Time, 1)}
	m.waiters = append(m.waiters, w)
	return w.ch
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &manualWaiter{deadline: m.now.Add(d), ch: make(chan time.Time, 1), period: d}
	m.waiters = append(m.waiters, w)
	return &manualTicker{clock: m, waiter: w}
}

// Advance moves the clock forward by d, firing any waiter whose deadline
// falls at or before the new time. Periodic waiters are rescheduled.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	live := m.waiters[:0]
	for _, w := range m.waiters {
		if w.stopped {
			continue
		}
		if !m.now.Before(w.deadline) {
			select {
			case w.ch <- m.now:
			default:
			}
			if w.period > 0 {
				w.deadline = m.now.Add(w.period)
				live = append(live, w)
			}
			continue
		}
		live = append(live, w)
	}
	m.waiters = live
}

type manualTicker struct {
	clock  *Manual
	waiter *manualWaiter
}

func (t *manualTicker) C() <-chan time.Time { return t.waiter.ch }
func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.waiter.stopped = true
}
