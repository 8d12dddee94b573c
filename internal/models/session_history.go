package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionOutcome is how a session ended.
type SessionOutcome string

const (
	// SessionOutcomeStopped covers stop requests, stop times and clean exits.
	SessionOutcomeStopped SessionOutcome = "stopped"
	// SessionOutcomeFailed means the retry budget ran out.
	SessionOutcomeFailed SessionOutcome = "failed"
	// SessionOutcomeError means the session could not run at all, for
	// example because the source file is missing.
	SessionOutcomeError SessionOutcome = "error"
)

// SessionHistory is one finished session.
type SessionHistory struct {
	ID         ULID           `gorm:"primarykey;type:varchar(26)" json:"id"`
	SessionID  string         `gorm:"not null;size:255;index" json:"session_id"`
	Outcome    SessionOutcome `gorm:"not null;size:20;index" json:"outcome"`
	Message    string         `gorm:"size:4096" json:"message,omitempty"`
	RetryCount int            `gorm:"default:0" json:"retry_count"`
	// ScheduledAt is the requested start time, nil for immediate starts.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     time.Time  `gorm:"not null;index" json:"ended_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (SessionHistory) TableName() string {
	return "session_histories"
}

// BeforeCreate assigns an id.
func (h *SessionHistory) BeforeCreate(*gorm.DB) error {
	if h.ID.IsZero() {
		h.ID = NewULID()
	}
	return nil
}

// RunTime is how long the session streamed, zero if it never started.
func (h *SessionHistory) RunTime() time.Duration {
	if h.StartedAt == nil {
		return 0
	}
	return h.EndedAt.Sub(*h.StartedAt)
}
