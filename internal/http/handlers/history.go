package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/repository"
	"github.com/jmylchreest/loopcast/internal/service"
)

// HistoryHandler serves finished sessions.
type HistoryHandler struct {
	service *service.HistoryService
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(svc *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{service: svc}
}

// Register registers the history routes with the API.
func (h *HistoryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listHistory",
		Method:      http.MethodGet,
		Path:        "/api/v1/history",
		Summary:     "List session history",
		Description: "Returns finished sessions, newest first",
		Tags:        []string{"History"},
	}, h.List)
}

// ListHistoryInput filters the history listing.
type ListHistoryInput struct {
	SessionID string    `query:"session_id" doc:"Only this session"`
	Outcome   string    `query:"outcome" doc:"Only this outcome: stopped, failed or error"`
	Since     time.Time `query:"since" doc:"Only sessions that ended at or after this time"`
	Limit     int       `query:"limit" default:"100" minimum:"1" maximum:"1000"`
}

// ListHistoryOutput is the output for listing history.
type ListHistoryOutput struct {
	Body struct {
		Sessions []HistoryResponse `json:"sessions"`
	}
}

// List returns matching history entries.
func (h *HistoryHandler) List(ctx context.Context, input *ListHistoryInput) (*ListHistoryOutput, error) {
	entries, err := h.service.List(ctx, repository.HistoryFilter{
		SessionID: input.SessionID,
		Outcome:   models.SessionOutcome(input.Outcome),
		Since:     input.Since,
		Limit:     input.Limit,
	})
	if err != nil {
		return nil, apiError(err, "failed to list history")
	}
	resp := &ListHistoryOutput{}
	resp.Body.Sessions = make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		resp.Body.Sessions = append(resp.Body.Sessions, HistoryFromModel(e))
	}
	return resp, nil
}
