package events

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultMaxEvents is the number of notifications retained for replay.
	DefaultMaxEvents = 1000
	// DefaultBufferSize is the per-subscriber channel size.
	DefaultBufferSize = 100
)

// Subscriber is a client receiving live notifications.
type Subscriber struct {
	ID     string
	Events chan Event
	Done   chan struct{}
}

// Hub keeps recent notifications and fans new ones out to subscribers.
// Slow subscribers lose events rather than stall the publisher.
type Hub struct {
	mu          sync.RWMutex
	events      []Event
	maxEvents   int
	subscribers map[string]*Subscriber
	total       int64
}

// NewHub creates a hub retaining up to DefaultMaxEvents notifications.
func NewHub() *Hub {
	return &Hub{
		events:      make([]Event, 0, DefaultMaxEvents),
		maxEvents:   DefaultMaxEvents,
		subscribers: make(map[string]*Subscriber),
	}
}

// Notify records e and broadcasts it. It never blocks.
func (h *Hub) Notify(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}

	h.total++
	if len(h.events) >= h.maxEvents {
		h.events = h.events[1:]
	}
	h.events = append(h.events, e)

	for _, sub := range h.subscribers {
		select {
		case sub.Events <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber that is removed when ctx is done or
// Done is closed.
func (h *Hub) Subscribe(ctx context.Context) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Events: make(chan Event, DefaultBufferSize),
		Done:   make(chan struct{}),
	}
	h.subscribers[sub.ID] = sub

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.Done:
		}
		h.Unsubscribe(sub.ID)
	}()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Events)
		delete(h.subscribers, id)
	}
}

// Recent returns up to limit of the newest events, oldest first. A non-empty
// sessionID restricts the result to that session.
func (h *Hub) Recent(limit int, sessionID string) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var matched []Event
	if sessionID == "" {
		matched = h.events
	} else {
		for _, e := range h.events {
			if e.SessionID == sessionID {
				matched = append(matched, e)
			}
		}
	}

	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	out := make([]Event, limit)
	copy(out, matched[len(matched)-limit:])
	return out
}

// Total returns how many notifications have been published.
func (h *Hub) Total() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
