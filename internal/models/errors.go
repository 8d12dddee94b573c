package models

import (
	"errors"
	"fmt"
)

// ErrValidation reports an invalid model field.
type ErrValidation struct {
	Field   string
	Message string
}

func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrSourcePathRequired indicates a definition without a video file.
	ErrSourcePathRequired = errors.New("source_path is required")

	// ErrStreamKeyRequired indicates a definition without a destination key.
	ErrStreamKeyRequired = errors.New("stream_key is required")

	// ErrStartRequired indicates a definition with neither a start time nor
	// a cron schedule.
	ErrStartRequired = errors.New("start_time or cron_schedule is required")

	// ErrStopPolicyConflict indicates both duration and end_time are set.
	ErrStopPolicyConflict = errors.New("duration and end_time are mutually exclusive")

	// ErrInvalidTimeRange indicates end time is not after start time.
	ErrInvalidTimeRange = errors.New("end time must be after start time")

	ErrInvalidCronSchedule = errors.New("invalid cron schedule")

	// ErrDefinitionNotFound indicates a stream definition was not found.
	ErrDefinitionNotFound = errors.New("stream definition not found")
)
