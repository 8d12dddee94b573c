package handlers

import (
	"time"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/pkg/duration"
	"github.com/jmylchreest/loopcast/pkg/format"
)

// DefinitionResponse is a stream definition as returned by the API. The
// stream key is masked.
type DefinitionResponse struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	SourcePath      string     `json:"source_path"`
	StreamKey       string     `json:"stream_key" doc:"Masked stream key"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	CronSchedule    string     `json:"cron_schedule,omitempty"`
	Schedule        string     `json:"schedule,omitempty" doc:"Cron schedule in words"`
	Duration        string     `json:"duration,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Enabled         bool       `json:"enabled"`
	LastScheduledAt *time.Time `json:"last_scheduled_at,omitempty"`
	NextStart       *time.Time `json:"next_start,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DefinitionFromModel converts a definition; now is used for NextStart.
func DefinitionFromModel(d *models.StreamDefinition, now time.Time) DefinitionResponse {
	resp := DefinitionResponse{
		ID:              d.ID.String(),
		Name:            d.Name,
		Description:     d.Description,
		SourcePath:      d.SourcePath,
		StreamKey:       d.StreamKey.Masked(),
		StartTime:       d.StartTime,
		CronSchedule:    d.CronSchedule,
		EndTime:         d.EndTime,
		Enabled:         d.IsEnabled(),
		LastScheduledAt: d.LastScheduledAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.CronSchedule != "" {
		resp.Schedule = format.Cron(d.CronSchedule)
	}
	if d.Duration > 0 {
		resp.Duration = duration.Format(d.Duration)
	}
	if d.IsEnabled() {
		if next, ok := d.NextStart(now); ok {
			resp.NextStart = &next
		}
	}
	return resp
}

// DefinitionRequest creates or replaces a stream definition.
type DefinitionRequest struct {
	Name         string     `json:"name" minLength:"1" maxLength:"255" doc:"Unique name"`
	Description  string     `json:"description,omitempty" maxLength:"1024"`
	SourcePath   string     `json:"source_path" minLength:"1" doc:"Video file to loop"`
	StreamKey    string     `json:"stream_key" minLength:"1" doc:"Destination stream key"`
	StartTime    *time.Time `json:"start_time,omitempty" doc:"Start of a one-off stream"`
	CronSchedule string     `json:"cron_schedule,omitempty" doc:"Five-field cron expression for recurring streams" example:"0 18 * * *"`
	Duration     string     `json:"duration,omitempty" doc:"Stop this long after starting" example:"1h30m"`
	EndTime      *time.Time `json:"end_time,omitempty" doc:"Stop a one-off stream at this time"`
	Enabled      *bool      `json:"enabled,omitempty"`
}

// ToModel builds a definition from the request.
func (r DefinitionRequest) ToModel() (*models.StreamDefinition, error) {
	def := &models.StreamDefinition{
		Name:         r.Name,
		Description:  r.Description,
		SourcePath:   r.SourcePath,
		StreamKey:    models.StreamKey(r.StreamKey),
		StartTime:    r.StartTime,
		CronSchedule: r.CronSchedule,
		EndTime:      r.EndTime,
		Enabled:      r.Enabled,
	}
	if r.Duration != "" {
		d, err := duration.Parse(r.Duration)
		if err != nil {
			return nil, models.ErrValidation{Field: "duration", Message: err.Error()}
		}
		def.Duration = d
	}
	return def, nil
}

// HistoryResponse is one finished session.
type HistoryResponse struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Outcome     string     `json:"outcome"`
	Message     string     `json:"message,omitempty"`
	RetryCount  int        `json:"retry_count"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     time.Time  `json:"ended_at"`
	RunTime     string     `json:"run_time,omitempty"`
}

// HistoryFromModel converts a history entry.
func HistoryFromModel(h *models.SessionHistory) HistoryResponse {
	resp := HistoryResponse{
		ID:          h.ID.String(),
		SessionID:   h.SessionID,
		Outcome:     string(h.Outcome),
		Message:     h.Message,
		RetryCount:  h.RetryCount,
		ScheduledAt: h.ScheduledAt,
		StartedAt:   h.StartedAt,
		EndedAt:     h.EndedAt,
	}
	if rt := h.RunTime(); rt > 0 {
		resp.RunTime = duration.Format(rt)
	}
	return resp
}
