package streaming

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest is wrapped by every ValidationError.
	ErrInvalidRequest = errors.New("invalid schedule request")
	// ErrSourceAccess means the source video is missing or unreadable.
	ErrSourceAccess = errors.New("video file not found or not accessible")
	// ErrRetryBudgetExhausted ends a session after too many failures.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	// ErrSessionExists rejects a schedule for an id that is still live.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotRunning is returned when an operation needs a running session.
	ErrNotRunning = errors.New("session is not running")
	// ErrManagerClosed is returned once the manager has shut down.
	ErrManagerClosed = errors.New("stream manager is closed")
)

// ValidationError describes a rejected schedule request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// FailureClass buckets an abnormal process exit for backoff purposes.
type FailureClass int

const (
	// FailureUnclassified is retried with the fixed delay.
	FailureUnclassified FailureClass = iota
	// FailureTransient is a network fault retried with exponential backoff.
	FailureTransient
)

func (c FailureClass) String() string {
	switch c {
	case FailureTransient:
		return "transient"
	default:
		return "unclassified"
	}
}

// transientMarkers are matched case-insensitively against the exit message
// and stderr tail. The encoder only reports text, so this is best effort.
var transientMarkers = []string{
	"connection reset",
	"connection aborted",
	"connection refused",
	"connection timed out",
	"broken pipe",
	"network is unreachable",
	"host is unreachable",
	"no route to host",
	"i/o timeout",
	"timed out",
	"end of file",
	"econnreset",
	"econnaborted",
	"econnrefused",
	"epipe",
	"etimedout",
	"wsaeconnreset",
	"wsaeconnaborted",
	"wsaeconnrefused",
	"error number -10053",
	"error number -10054",
	"error number -10061",
	"error number -104",
	"error number -32",
}

// ClassifyFailure inspects the failure text and recent stderr.
func ClassifyFailure(message string, tail []string) FailureClass {
	msg := strings.ToLower(message)
	texts := make([]string, 0, len(tail)+1)
	texts = append(texts, msg)
	for _, line := range tail {
		texts = append(texts, strings.ToLower(line))
	}
	for _, text := range texts {
		for _, m := range transientMarkers {
			if strings.Contains(text, m) {
				return FailureTransient
			}
		}
	}
	return FailureUnclassified
}
