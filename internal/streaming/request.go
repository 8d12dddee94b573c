package streaming

import (
	"time"

	"github.com/jmylchreest/loopcast/internal/models"
)

// StopKind selects how a running session ends.
type StopKind int

const (
	// StopNone streams until stopped explicitly.
	StopNone StopKind = iota
	// StopAfterDuration streams for a fixed time measured from the first
	// actual start.
	StopAfterDuration
	// StopAtTime streams until an absolute instant.
	StopAtTime
)

func (k StopKind) String() string {
	switch k {
	case StopAfterDuration:
		return "duration"
	case StopAtTime:
		return "end_time"
	default:
		return "none"
	}
}

// StopPolicy is the rule that ends a running session.
type StopPolicy struct {
	Kind     StopKind
	Duration time.Duration
	EndTime  time.Time
}

// NoStop streams until stopped.
func NoStop() StopPolicy { return StopPolicy{} }

// StopAfter stops d after the session first starts streaming.
func StopAfter(d time.Duration) StopPolicy {
	return StopPolicy{Kind: StopAfterDuration, Duration: d}
}

// StopAt stops at t.
func StopAt(t time.Time) StopPolicy {
	return StopPolicy{Kind: StopAtTime, EndTime: t}
}

// Request asks the manager to stream SourcePath to StreamKey from StartTime.
type Request struct {
	SessionID  string
	SourcePath string
	StreamKey  models.StreamKey
	StartTime  time.Time
	Stop       StopPolicy
	// Replace tears down a live session with the same id instead of
	// rejecting the request.
	Replace bool
}

// Validate checks the request against now.
func (r Request) Validate(now time.Time) error {
	switch {
	case r.SessionID == "":
		return &ValidationError{Field: "sessionId", Message: "is required"}
	case r.SourcePath == "":
		return &ValidationError{Field: "sourcePath", Message: "is required"}
	case r.StreamKey == "":
		return &ValidationError{Field: "destinationKey", Message: "is required"}
	case r.StartTime.IsZero():
		return &ValidationError{Field: "startTime", Message: "is required"}
	}

	switch r.Stop.Kind {
	case StopNone:
	case StopAfterDuration:
		if r.Stop.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "must be positive"}
		}
	case StopAtTime:
		if r.Stop.EndTime.IsZero() {
			return &ValidationError{Field: "endTime", Message: "is required"}
		}
		if !r.Stop.EndTime.After(now) {
			return &ValidationError{Field: "endTime", Message: "must be in the future"}
		}
		if !r.Stop.EndTime.After(r.StartTime) {
			return &ValidationError{Field: "endTime", Message: "must be after startTime"}
		}
	default:
		return &ValidationError{Field: "stopPolicy", Message: "unknown kind"}
	}
	return nil
}
