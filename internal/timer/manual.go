package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Manual is a Service driven by explicit Advance calls. Due callbacks run
// synchronously on the caller's goroutine, in deadline order.
type Manual struct {
	mu  sync.Mutex
	now time.Time
	q   queue
	seq uint64
}

// NewManual creates a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) ArmAt(at time.Time, fn func()) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	h := &Handle{at: at, seq: m.seq, fn: fn}
	heap.Push(&m.q, h)
	return h
}

func (m *Manual) ArmAfter(d time.Duration, fn func()) *Handle {
	return m.ArmAt(m.Now().Add(d), fn)
}

func (m *Manual) Cancel(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.q.remove(h)
	m.mu.Unlock()
}

func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Len()
}

// Advance moves the clock forward by d, firing every timer that falls due.
// Advance(0) fires timers armed for the current instant or earlier.
func (m *Manual) Advance(d time.Duration) {
	m.Set(m.Now().Add(d))
}

// Set moves the clock to t (never backwards) and fires due timers. While a
// callback runs, Now reports that timer's deadline.
func (m *Manual) Set(t time.Time) {
	for {
		m.mu.Lock()
		h := m.q.popDue(t)
		if h == nil {
			if t.After(m.now) {
				m.now = t
			}
			m.mu.Unlock()
			return
		}
		if h.at.After(m.now) {
			m.now = h.at
		}
		m.mu.Unlock()

		h.fn()
	}
}
