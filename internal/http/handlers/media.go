package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/loopcast/internal/service"
)

// MediaHandler lists streamable video files.
type MediaHandler struct {
	service *service.MediaService
}

// NewMediaHandler creates a media handler.
func NewMediaHandler(svc *service.MediaService) *MediaHandler {
	return &MediaHandler{service: svc}
}

// Register registers the media routes with the API.
func (h *MediaHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listMedia",
		Method:      http.MethodGet,
		Path:        "/api/v1/media",
		Summary:     "List media files",
		Description: "Returns .mp4, .avi and .mkv files under the media directory",
		Tags:        []string{"Media"},
	}, h.List)
}

// ListMediaInput is the input for listing media.
type ListMediaInput struct{}

// ListMediaOutput is the output for listing media.
type ListMediaOutput struct {
	Body struct {
		Dir   string              `json:"dir"`
		Files []service.MediaFile `json:"files"`
	}
}

// List returns the media files.
func (h *MediaHandler) List(ctx context.Context, _ *ListMediaInput) (*ListMediaOutput, error) {
	files, err := h.service.List(ctx)
	if err != nil {
		return nil, apiError(err, "failed to list media")
	}
	resp := &ListMediaOutput{}
	resp.Body.Dir = h.service.Dir()
	resp.Body.Files = files
	if resp.Body.Files == nil {
		resp.Body.Files = []service.MediaFile{}
	}
	return resp, nil
}
