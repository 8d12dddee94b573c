package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/streaming"
	"github.com/jmylchreest/loopcast/pkg/duration"
)

// SessionManager is the stream manager API used by the handlers.
type SessionManager interface {
	ScheduleSession(ctx context.Context, req streaming.Request) error
	RejectSchedule(ctx context.Context, sessionID string, err error) error
	StopSession(ctx context.Context, sessionID string) error
	UpdateStreamEnd(ctx context.Context, sessionID string, endAt time.Time) error
	Get(ctx context.Context, sessionID string) (streaming.SessionInfo, error)
	List(ctx context.Context) ([]streaming.SessionInfo, error)
}

// StreamHandler exposes live sessions.
type StreamHandler struct {
	sessions SessionManager
	now      func() time.Time
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(sessions SessionManager) *StreamHandler {
	return &StreamHandler{sessions: sessions, now: time.Now}
}

// WithClock overrides the time source used for default start times.
func (h *StreamHandler) WithClock(now func() time.Time) *StreamHandler {
	h.now = now
	return h
}

// Register registers the stream routes with the API.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "scheduleStream",
		Method:        http.MethodPost,
		Path:          "/api/v1/streams",
		Summary:       "Schedule stream",
		Description:   "Schedules a looped stream of a local video file. A missing start time starts immediately.",
		Tags:          []string{"Streams"},
		DefaultStatus: http.StatusAccepted,
	}, h.Schedule)

	huma.Register(api, huma.Operation{
		OperationID: "listStreams",
		Method:      http.MethodGet,
		Path:        "/api/v1/streams",
		Summary:     "List streams",
		Description: "Returns every live session",
		Tags:        []string{"Streams"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getStream",
		Method:      http.MethodGet,
		Path:        "/api/v1/streams/{id}",
		Summary:     "Get stream",
		Tags:        []string{"Streams"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "stopStream",
		Method:      http.MethodDelete,
		Path:        "/api/v1/streams/{id}",
		Summary:     "Stop stream",
		Description: "Stops a session in any state. Unknown ids succeed.",
		Tags:        []string{"Streams"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "updateStreamEnd",
		Method:      http.MethodPut,
		Path:        "/api/v1/streams/{id}/end",
		Summary:     "Reschedule stream end",
		Description: "Moves the stop time of a running session",
		Tags:        []string{"Streams"},
	}, h.UpdateEnd)
}

// ScheduleStreamBody is the request body for scheduling a stream.
type ScheduleStreamBody struct {
	SessionID  string     `json:"sessionId" minLength:"1" maxLength:"255" doc:"Caller-chosen session id"`
	SourcePath string     `json:"sourcePath" minLength:"1" doc:"Video file to loop"`
	StreamKey  string     `json:"streamKey" minLength:"1" doc:"Destination stream key"`
	StartTime  *time.Time `json:"startTime,omitempty" doc:"When to start; defaults to now"`
	Duration   string     `json:"duration,omitempty" doc:"Stop this long after the stream first starts" example:"2h"`
	EndTime    *time.Time `json:"endTime,omitempty" doc:"Stop at this time"`
	Replace    bool       `json:"replace,omitempty" doc:"Replace a live session with the same id"`
}

// ScheduleStreamInput is the input for scheduling a stream.
type ScheduleStreamInput struct {
	Body ScheduleStreamBody
}

// ScheduleStreamOutput is the output for scheduling a stream.
type ScheduleStreamOutput struct {
	Body struct {
		SessionID string `json:"sessionId"`
		// Session is absent when the session already ended, for example
		// because the source file is missing.
		Session *streaming.SessionInfo `json:"session,omitempty"`
	}
}

func (b ScheduleStreamBody) request(now time.Time) (streaming.Request, error) {
	req := streaming.Request{
		SessionID:  b.SessionID,
		SourcePath: b.SourcePath,
		StreamKey:  models.StreamKey(b.StreamKey),
		StartTime:  now,
		Replace:    b.Replace,
	}
	if b.StartTime != nil {
		req.StartTime = *b.StartTime
	}
	switch {
	case b.Duration != "" && b.EndTime != nil:
		return req, &streaming.ValidationError{Field: "endTime", Message: "cannot be combined with duration"}
	case b.Duration != "":
		d, err := duration.Parse(b.Duration)
		if err != nil {
			return req, &streaming.ValidationError{Field: "duration", Message: err.Error()}
		}
		req.Stop = streaming.StopAfter(d)
	case b.EndTime != nil:
		req.Stop = streaming.StopAt(*b.EndTime)
	}
	return req, nil
}

// Schedule schedules a new session.
func (h *StreamHandler) Schedule(ctx context.Context, input *ScheduleStreamInput) (*ScheduleStreamOutput, error) {
	req, err := input.Body.request(h.now())
	if err != nil {
		// Subscribers hear about rejected input too, not just the caller.
		return nil, huma.Error400BadRequest(h.sessions.RejectSchedule(ctx, req.SessionID, err).Error())
	}
	if err := h.sessions.ScheduleSession(ctx, req); err != nil {
		return nil, apiError(err, "failed to schedule stream")
	}

	resp := &ScheduleStreamOutput{}
	resp.Body.SessionID = req.SessionID
	info, err := h.sessions.Get(ctx, req.SessionID)
	switch {
	case err == nil:
		resp.Body.Session = &info
	case !errors.Is(err, streaming.ErrSessionNotFound):
		return nil, apiError(err, "failed to get stream")
	}
	return resp, nil
}

// ListStreamsInput is the input for listing streams.
type ListStreamsInput struct{}

// ListStreamsOutput is the output for listing streams.
type ListStreamsOutput struct {
	Body struct {
		Sessions []streaming.SessionInfo `json:"sessions"`
	}
}

// List returns all live sessions.
func (h *StreamHandler) List(ctx context.Context, _ *ListStreamsInput) (*ListStreamsOutput, error) {
	sessions, err := h.sessions.List(ctx)
	if err != nil {
		return nil, apiError(err, "failed to list streams")
	}
	resp := &ListStreamsOutput{}
	resp.Body.Sessions = sessions
	if resp.Body.Sessions == nil {
		resp.Body.Sessions = []streaming.SessionInfo{}
	}
	return resp, nil
}

// StreamIDInput identifies a session.
type StreamIDInput struct {
	ID string `path:"id" doc:"Session id"`
}

// GetStreamOutput is the output for getting a stream.
type GetStreamOutput struct {
	Body streaming.SessionInfo
}

// Get returns one session.
func (h *StreamHandler) Get(ctx context.Context, input *StreamIDInput) (*GetStreamOutput, error) {
	info, err := h.sessions.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err, "failed to get stream")
	}
	return &GetStreamOutput{Body: info}, nil
}

// StopStreamOutput is the output for stopping a stream.
type StopStreamOutput struct{}

// Stop stops a session.
func (h *StreamHandler) Stop(ctx context.Context, input *StreamIDInput) (*StopStreamOutput, error) {
	if err := h.sessions.StopSession(ctx, input.ID); err != nil {
		return nil, apiError(err, "failed to stop stream")
	}
	return &StopStreamOutput{}, nil
}

// UpdateStreamEndInput is the input for rescheduling a stream's end.
type UpdateStreamEndInput struct {
	ID   string `path:"id" doc:"Session id"`
	Body struct {
		EndTime time.Time `json:"endTime" doc:"New stop time"`
	}
}

// UpdateEnd moves the stop time of a running session.
func (h *StreamHandler) UpdateEnd(ctx context.Context, input *UpdateStreamEndInput) (*GetStreamOutput, error) {
	if err := h.sessions.UpdateStreamEnd(ctx, input.ID, input.Body.EndTime); err != nil {
		return nil, apiError(err, "failed to update stream end")
	}
	return h.Get(ctx, &StreamIDInput{ID: input.ID})
}
