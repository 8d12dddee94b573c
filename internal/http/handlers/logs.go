package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/loopcast/internal/observability"
	"github.com/jmylchreest/loopcast/internal/service/logs"
)

// LogsHandler serves captured server logs.
type LogsHandler struct {
	capture *logs.Capture
}

// NewLogsHandler creates a logs handler.
func NewLogsHandler(capture *logs.Capture) *LogsHandler {
	return &LogsHandler{capture: capture}
}

// Register registers the log routes with the API.
func (h *LogsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listLogs",
		Method:      http.MethodGet,
		Path:        "/api/v1/logs",
		Summary:     "Recent server logs",
		Description: "Returns the newest captured log records, oldest first. Stream keys are redacted.",
		Tags:        []string{"System"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getLogStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/logs/stats",
		Summary:     "Log statistics",
		Tags:        []string{"System"},
	}, h.Stats)
}

// ListLogsInput filters captured logs.
type ListLogsInput struct {
	Level     string `query:"level" default:"info" enum:"debug,info,warn,error" doc:"Minimum level"`
	Component string `query:"component" doc:"Only this component, e.g. stream-manager"`
	SessionID string `query:"session_id" doc:"Only records about this session"`
	Limit     int    `query:"limit" default:"200" minimum:"1" maximum:"1000"`
}

// ListLogsOutput is the output for listing logs.
type ListLogsOutput struct {
	Body struct {
		Logs []logs.Entry `json:"logs"`
	}
}

// List returns captured log records.
func (h *LogsHandler) List(_ context.Context, input *ListLogsInput) (*ListLogsOutput, error) {
	resp := &ListLogsOutput{}
	resp.Body.Logs = h.capture.Recent(logs.Filter{
		MinLevel:  observability.ParseLevel(input.Level),
		Component: input.Component,
		SessionID: input.SessionID,
		Limit:     input.Limit,
	})
	return resp, nil
}

// LogStatsInput is the input for log statistics.
type LogStatsInput struct{}

// LogStatsOutput is the output for log statistics.
type LogStatsOutput struct {
	Body logs.Stats
}

// Stats returns capture statistics.
func (h *LogsHandler) Stats(_ context.Context, _ *LogStatsInput) (*LogStatsOutput, error) {
	return &LogStatsOutput{Body: h.capture.Stats()}, nil
}
