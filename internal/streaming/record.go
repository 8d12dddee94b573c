package streaming

import (
	"time"

	"github.com/jmylchreest/loopcast/internal/ffmpeg"
	"github.com/jmylchreest/loopcast/internal/timer"
	"github.com/jmylchreest/loopcast/internal/transcoder"
)

// State is a session's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateRetrying  State = "retrying"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// record is the manager's entry for one live session. Only the dispatcher
// goroutine touches it. Terminal states are never stored; the record is
// deleted instead.
type record struct {
	id         string
	req        Request
	createdAt  time.Time
	retryCount int
	// firstStart is when a process first reached running.
	firstStart time.Time
	// endAt is the resolved stop instant, zero for StopNone. Duration
	// policies resolve at firstStart.
	endAt   time.Time
	lastErr string
	phase   phase
}

// phase holds exactly the resources valid in one state.
type phase interface {
	state() State
}

type scheduledPhase struct {
	timer *timer.Handle
	token uint64
	at    time.Time
}

type startingPhase struct {
	proc      transcoder.Handle
	gen       uint64
	spawnedAt time.Time
}

type runningPhase struct {
	proc      transcoder.Handle
	gen       uint64
	since     time.Time
	stopTimer *timer.Handle // nil when there is no stop policy
	stopToken uint64
}

type retryingPhase struct {
	timer *timer.Handle
	token uint64
	delay time.Duration
	class FailureClass
	until time.Time
}

func (*scheduledPhase) state() State { return StateScheduled }
func (*startingPhase) state() State  { return StateStarting }
func (*runningPhase) state() State   { return StateRunning }
func (*retryingPhase) state() State  { return StateRetrying }

// process returns the live handle, if the phase owns one.
func (r *record) process() transcoder.Handle {
	switch p := r.phase.(type) {
	case *startingPhase:
		return p.proc
	case *runningPhase:
		return p.proc
	}
	return nil
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	SessionID   string               `json:"sessionId"`
	SourcePath  string               `json:"sourcePath"`
	State       State                `json:"state"`
	StopPolicy  string               `json:"stopPolicy"`
	RetryCount  int                  `json:"retryCount"`
	CreatedAt   time.Time            `json:"createdAt"`
	StartTime   time.Time            `json:"startTime"`
	StartedAt   *time.Time           `json:"startedAt,omitempty"`
	EndAt       *time.Time           `json:"endAt,omitempty"`
	NextAttempt *time.Time           `json:"nextAttempt,omitempty"`
	PID         int                  `json:"pid,omitempty"`
	LastError   string               `json:"lastError,omitempty"`
	Progress    *ffmpeg.Progress     `json:"progress,omitempty"`
	Process     *ffmpeg.ProcessStats `json:"process,omitempty"`
}

func (r *record) info() SessionInfo {
	info := SessionInfo{
		SessionID:  r.id,
		SourcePath: r.req.SourcePath,
		State:      r.phase.state(),
		StopPolicy: r.req.Stop.Kind.String(),
		RetryCount: r.retryCount,
		CreatedAt:  r.createdAt,
		StartTime:  r.req.StartTime,
		LastError:  r.lastErr,
	}
	if !r.firstStart.IsZero() {
		t := r.firstStart
		info.StartedAt = &t
	}
	if !r.endAt.IsZero() {
		t := r.endAt
		info.EndAt = &t
	}
	if p, ok := r.phase.(*retryingPhase); ok {
		t := p.until
		info.NextAttempt = &t
	}
	if proc := r.process(); proc != nil {
		info.PID = proc.PID()
		progress := proc.Progress()
		info.Progress = &progress
		info.Process = proc.Stats()
	}
	return info
}
