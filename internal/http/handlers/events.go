package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/loopcast/internal/events"
)

// EventHandler exposes session notifications, both recent history and a
// live Server-Sent Events stream.
type EventHandler struct {
	hub               *events.Hub
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewEventHandler creates an event handler.
func NewEventHandler(hub *events.Hub) *EventHandler {
	return &EventHandler{
		hub:               hub,
		heartbeatInterval: 30 * time.Second,
		logger:            slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *EventHandler) WithLogger(logger *slog.Logger) *EventHandler {
	h.logger = logger
	return h
}

// SetHeartbeatInterval sets the SSE heartbeat interval.
func (h *EventHandler) SetHeartbeatInterval(interval time.Duration) {
	h.heartbeatInterval = interval
}

// Register registers the event routes with the API.
func (h *EventHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "List recent events",
		Description: "Returns the newest session notifications, oldest first",
		Tags:        []string{"Events"},
	}, h.List)
}

// RegisterSSE registers the live stream on the router. Huma does not
// stream, so this is a plain handler.
func (h *EventHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/events/stream", h.HandleSSE)
}

// ListEventsInput filters recent events.
type ListEventsInput struct {
	SessionID string `query:"session_id" doc:"Only this session"`
	Limit     int    `query:"limit" default:"100" minimum:"1" maximum:"1000"`
}

// ListEventsOutput is the output for listing events.
type ListEventsOutput struct {
	Body struct {
		Events []events.Event `json:"events"`
		Total  int64          `json:"total" doc:"Notifications published since start"`
	}
}

// List returns recent notifications.
func (h *EventHandler) List(_ context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
	resp := &ListEventsOutput{}
	resp.Body.Events = h.hub.Recent(input.Limit, input.SessionID)
	resp.Body.Total = h.hub.Total()
	return resp, nil
}

// HandleSSE streams notifications as they happen. The optional session_id
// query parameter restricts the stream to one session.
func (h *EventHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sessionID := r.URL.Query().Get("session_id")
	ctx := r.Context()
	sub := h.hub.Subscribe(ctx)
	defer close(sub.Done)

	rc := http.NewResponseController(w)
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	fmt.Fprint(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush SSE connection", slog.Any("error", err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if sessionID != "" && ev.SessionID != sessionID {
				continue
			}
			if err := writeSSE(w, ev); err != nil {
				h.logger.Debug("failed to write SSE event",
					slog.String("type", string(ev.Type)),
					slog.Any("error", err))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}
