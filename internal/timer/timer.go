// Package timer provides one-shot timers that fire on a single execution
// context, ordered by deadline and then by arm order.
package timer

import (
	"container/heap"
	"time"
)

// Service arms and cancels one-shot timers.
type Service interface {
	// Now returns the service's current time.
	Now() time.Time
	// ArmAt schedules fn to run once at or after at. A time in the past
	// fires as soon as possible.
	ArmAt(at time.Time, fn func()) *Handle
	// ArmAfter schedules fn to run once after d.
	ArmAfter(d time.Duration, fn func()) *Handle
	// Cancel prevents h from firing. Cancelling a nil, fired or already
	// cancelled handle is a no-op.
	Cancel(h *Handle)
	// Pending reports how many timers are armed and have not fired.
	Pending() int
}

// Handle identifies an armed timer.
type Handle struct {
	at    time.Time
	seq   uint64
	fn    func()
	index int // position in the queue, -1 once fired or cancelled
}

// At returns the deadline the handle was armed for.
func (h *Handle) At() time.Time {
	if h == nil {
		return time.Time{}
	}
	return h.at
}

// queue is a min-heap of handles keyed by (at, seq).
type queue []*Handle

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	h := x.(*Handle)
	h.index = len(*q)
	*q = append(*q, h)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]
	return h
}

func (q queue) peek() *Handle {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// popDue removes and returns the earliest handle if it is due at now.
func (q *queue) popDue(now time.Time) *Handle {
	h := q.peek()
	if h == nil || h.at.After(now) {
		return nil
	}
	return heap.Pop(q).(*Handle)
}

func (q *queue) remove(h *Handle) bool {
	if h == nil || h.index < 0 || h.index >= len(*q) || (*q)[h.index] != h {
		return false
	}
	heap.Remove(q, h.index)
	return true
}
