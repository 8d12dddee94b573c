// Package transcoder launches the external encoder for a streaming session
// and reports its lifecycle as events.
package transcoder

import (
	"context"
	"strings"
	"time"

	"github.com/jmylchreest/loopcast/internal/ffmpeg"
	"github.com/jmylchreest/loopcast/internal/models"
)

// KeyPlaceholder is replaced with the stream key in endpoint templates.
const KeyPlaceholder = "{key}"

// EventKind identifies a process lifecycle event.
type EventKind int

const (
	// EventStarted is emitted once the process is running.
	EventStarted EventKind = iota
	// EventStderr carries one line of encoder output.
	EventStderr
	// EventEnded is emitted when the process exits cleanly.
	EventEnded
	// EventErrored is emitted when the process exits abnormally.
	EventErrored
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStderr:
		return "stderr"
	case EventEnded:
		return "ended"
	case EventErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Event is a process lifecycle notification. Ended and Errored are terminal:
// exactly one of them is delivered per handle, after Started.
type Event struct {
	Kind EventKind
	// Line is set for EventStderr.
	Line string
	// Message describes an abnormal exit.
	Message string
	// Tail holds the last stderr lines at exit.
	Tail []string
	// Killed is true when the exit was caused by Handle.Kill.
	Killed bool
	At     time.Time
}

// EventFunc receives events. It is called from transcoder goroutines and
// must not block.
type EventFunc func(Event)

// Spec describes what a process should stream.
type Spec struct {
	SessionID  string
	SourcePath string
	StreamKey  models.StreamKey
}

// Handle controls a running encoder process.
type Handle interface {
	PID() int
	// Kill requests termination and returns without waiting.
	Kill() error
	// Done is closed once the process has exited and its terminal event
	// has been delivered.
	Done() <-chan struct{}
	Progress() ffmpeg.Progress
	Stats() *ffmpeg.ProcessStats
	StderrTail() []string
}

// Spawner starts encoder processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec, onEvent EventFunc) (Handle, error)
}

// DestinationURL substitutes key into template. The key is inserted
// verbatim; a template without the placeholder gets the key appended.
func DestinationURL(template string, key models.StreamKey) string {
	if strings.Contains(template, KeyPlaceholder) {
		return strings.ReplaceAll(template, KeyPlaceholder, string(key))
	}
	if !strings.HasSuffix(template, "/") {
		template += "/"
	}
	return template + string(key)
}
