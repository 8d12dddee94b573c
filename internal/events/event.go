// Package events carries session notifications from the stream manager to
// observers: the HTTP event stream, the history recorder and CLI output.
package events

import "time"

// Type names a notification. The values are part of the external API.
type Type string

const (
	TypeScheduled       Type = "stream-scheduled"
	TypeStarted         Type = "streaming-started"
	TypeLog             Type = "stream-log"
	TypeStopped         Type = "streaming-stopped"
	TypeError           Type = "streaming-error"
	TypeSchedulingError Type = "scheduling-error"
)

// Event is a single notification about a session.
type Event struct {
	ID            string     `json:"id"`
	Type          Type       `json:"type"`
	SessionID     string     `json:"sessionId"`
	Message       string     `json:"message,omitempty"`
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
	RetryCount    int        `json:"retryCount,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Terminal reports whether the event ends a session's lifecycle.
func (e Event) Terminal() bool {
	return e.Type == TypeStopped || e.Type == TypeError
}

// Sink receives notifications. Notify must not block.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Notify(e Event) { f(e) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout delivers each notification to every sink in order.
func Fanout(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Notify(e)
		}
	})
}
