package models

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronParser parses the five-field cron expressions used by definitions.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// StreamDefinition is a saved stream: which file to loop, where to send it
// and when. A definition is either one-off (StartTime) or recurring
// (CronSchedule). Scheduling it creates a live session whose id is the
// definition's ULID.
type StreamDefinition struct {
	BaseModel

	Name        string `gorm:"not null;size:255;uniqueIndex" json:"name" yaml:"name"`
	Description string `gorm:"size:1024" json:"description,omitempty" yaml:"description,omitempty"`

	// SourcePath is the local video file looped into the stream.
	SourcePath string `gorm:"not null;size:4096" json:"source_path" yaml:"source_path"`

	// StreamKey is substituted into the endpoint template.
	StreamKey StreamKey `gorm:"not null;size:255" json:"stream_key" yaml:"stream_key" masq:"secret"`

	// StartTime is the first start for one-off definitions.
	StartTime *time.Time `json:"start_time,omitempty" yaml:"start_time,omitempty"`

	// CronSchedule makes the definition recurring. Each occurrence starts a
	// new session.
	CronSchedule string `gorm:"size:100" json:"cron_schedule,omitempty" yaml:"cron_schedule,omitempty"`

	// Duration stops the stream this long after it starts. Mutually
	// exclusive with EndTime.
	Duration time.Duration `gorm:"default:0" json:"duration,omitempty" yaml:"duration,omitempty"`

	// EndTime stops a one-off stream at a fixed instant.
	EndTime *time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`

	Enabled *bool `gorm:"default:true" json:"enabled" yaml:"enabled,omitempty"`

	// LastScheduledAt is the start time most recently handed to the
	// stream manager.
	LastScheduledAt *time.Time `json:"last_scheduled_at,omitempty" yaml:"-"`
}

func (StreamDefinition) TableName() string {
	return "stream_definitions"
}

// IsRecurring reports whether the definition runs on a cron schedule.
func (d *StreamDefinition) IsRecurring() bool {
	return d.CronSchedule != ""
}

// IsEnabled reports whether the planner should schedule the definition.
func (d *StreamDefinition) IsEnabled() bool {
	return BoolVal(d.Enabled)
}

// Validate checks the fields that do not depend on the current time.
func (d *StreamDefinition) Validate() error {
	switch {
	case d.Name == "":
		return ErrNameRequired
	case d.SourcePath == "":
		return ErrSourcePathRequired
	case d.StreamKey == "":
		return ErrStreamKeyRequired
	case d.StartTime == nil && d.CronSchedule == "":
		return ErrStartRequired
	case d.Duration != 0 && d.EndTime != nil:
		return ErrStopPolicyConflict
	case d.Duration < 0:
		return ErrValidation{Field: "duration", Message: "must be positive"}
	}
	if d.CronSchedule != "" {
		if _, err := CronParser.Parse(d.CronSchedule); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidCronSchedule, err)
		}
		if d.EndTime != nil {
			return ErrValidation{Field: "end_time", Message: "is not allowed on recurring definitions, use duration"}
		}
	}
	if d.StartTime != nil && d.EndTime != nil && !d.EndTime.After(*d.StartTime) {
		return ErrInvalidTimeRange
	}
	return nil
}

// NextStart returns the start time to schedule after from. One-off
// definitions return their StartTime once; ok is false when nothing is left
// to schedule.
func (d *StreamDefinition) NextStart(from time.Time) (time.Time, bool) {
	if d.IsRecurring() {
		sched, err := CronParser.Parse(d.CronSchedule)
		if err != nil {
			return time.Time{}, false
		}
		next := sched.Next(from)
		if d.LastScheduledAt != nil && !next.After(*d.LastScheduledAt) {
			next = sched.Next(*d.LastScheduledAt)
		}
		return next, !next.IsZero()
	}
	if d.StartTime == nil || d.LastScheduledAt != nil {
		return time.Time{}, false
	}
	return *d.StartTime, true
}

// MarkScheduled records that the occurrence at start was handed to the
// stream manager.
func (d *StreamDefinition) MarkScheduled(start time.Time) {
	d.LastScheduledAt = &start
}
