package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/loopcast/internal/service"
)

// DefinitionHandler handles saved stream definitions.
type DefinitionHandler struct {
	service *service.DefinitionService
	now     func() time.Time
}

// NewDefinitionHandler creates a definition handler.
func NewDefinitionHandler(svc *service.DefinitionService) *DefinitionHandler {
	return &DefinitionHandler{service: svc, now: time.Now}
}

// Register registers the definition routes with the API.
func (h *DefinitionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listDefinitions",
		Method:      http.MethodGet,
		Path:        "/api/v1/definitions",
		Summary:     "List stream definitions",
		Tags:        []string{"Definitions"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID:   "createDefinition",
		Method:        http.MethodPost,
		Path:          "/api/v1/definitions",
		Summary:       "Create stream definition",
		Tags:          []string{"Definitions"},
		DefaultStatus: http.StatusCreated,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "exportDefinitions",
		Method:      http.MethodGet,
		Path:        "/api/v1/definitions/export",
		Summary:     "Export stream definitions",
		Description: "Returns every definition as YAML, stream keys included",
		Tags:        []string{"Definitions"},
	}, h.Export)

	huma.Register(api, huma.Operation{
		OperationID: "importDefinitions",
		Method:      http.MethodPost,
		Path:        "/api/v1/definitions/import",
		Summary:     "Import stream definitions",
		Description: "Imports a YAML export. Existing names are skipped unless overwrite is set.",
		Tags:        []string{"Definitions"},
	}, h.Import)

	huma.Register(api, huma.Operation{
		OperationID: "getDefinition",
		Method:      http.MethodGet,
		Path:        "/api/v1/definitions/{id}",
		Summary:     "Get stream definition",
		Tags:        []string{"Definitions"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "updateDefinition",
		Method:      http.MethodPut,
		Path:        "/api/v1/definitions/{id}",
		Summary:     "Update stream definition",
		Tags:        []string{"Definitions"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "deleteDefinition",
		Method:      http.MethodDelete,
		Path:        "/api/v1/definitions/{id}",
		Summary:     "Delete stream definition",
		Description: "Deletes the definition. A live session started from it keeps running.",
		Tags:        []string{"Definitions"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID:   "scheduleDefinition",
		Method:        http.MethodPost,
		Path:          "/api/v1/definitions/{id}/schedule",
		Summary:       "Schedule stream definition",
		Description:   "Hands the definition to the stream manager now instead of waiting for the planner",
		Tags:          []string{"Definitions"},
		DefaultStatus: http.StatusAccepted,
	}, h.Schedule)
}

// ListDefinitionsInput is the input for listing definitions.
type ListDefinitionsInput struct{}

// ListDefinitionsOutput is the output for listing definitions.
type ListDefinitionsOutput struct {
	Body struct {
		Definitions []DefinitionResponse `json:"definitions"`
	}
}

// List returns all definitions.
func (h *DefinitionHandler) List(ctx context.Context, _ *ListDefinitionsInput) (*ListDefinitionsOutput, error) {
	defs, err := h.service.List(ctx)
	if err != nil {
		return nil, apiError(err, "failed to list definitions")
	}
	now := h.now()
	resp := &ListDefinitionsOutput{}
	resp.Body.Definitions = make([]DefinitionResponse, 0, len(defs))
	for _, d := range defs {
		resp.Body.Definitions = append(resp.Body.Definitions, DefinitionFromModel(d, now))
	}
	return resp, nil
}

// DefinitionIDInput identifies a definition.
type DefinitionIDInput struct {
	ID string `path:"id" doc:"Definition ID (ULID)"`
}

// DefinitionOutput wraps a single definition.
type DefinitionOutput struct {
	Body DefinitionResponse
}

// Get returns a definition by ID.
func (h *DefinitionHandler) Get(ctx context.Context, input *DefinitionIDInput) (*DefinitionOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	def, err := h.service.GetByID(ctx, id)
	if err != nil {
		return nil, apiError(err, "failed to get definition")
	}
	return &DefinitionOutput{Body: DefinitionFromModel(def, h.now())}, nil
}

// CreateDefinitionInput is the input for creating a definition.
type CreateDefinitionInput struct {
	Body DefinitionRequest
}

// Create stores a new definition.
func (h *DefinitionHandler) Create(ctx context.Context, input *CreateDefinitionInput) (*DefinitionOutput, error) {
	def, err := input.Body.ToModel()
	if err != nil {
		return nil, apiError(err, "invalid definition")
	}
	if err := h.service.Create(ctx, def); err != nil {
		return nil, apiError(err, "failed to create definition")
	}
	return &DefinitionOutput{Body: DefinitionFromModel(def, h.now())}, nil
}

// UpdateDefinitionInput is the input for updating a definition.
type UpdateDefinitionInput struct {
	ID   string `path:"id" doc:"Definition ID (ULID)"`
	Body DefinitionRequest
}

// Update replaces a definition.
func (h *DefinitionHandler) Update(ctx context.Context, input *UpdateDefinitionInput) (*DefinitionOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	def, err := input.Body.ToModel()
	if err != nil {
		return nil, apiError(err, "invalid definition")
	}
	def.ID = id
	if err := h.service.Update(ctx, def); err != nil {
		return nil, apiError(err, "failed to update definition")
	}
	return h.Get(ctx, &DefinitionIDInput{ID: input.ID})
}

// DeleteDefinitionOutput is the output for deleting a definition.
type DeleteDefinitionOutput struct{}

// Delete removes a definition.
func (h *DefinitionHandler) Delete(ctx context.Context, input *DefinitionIDInput) (*DeleteDefinitionOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	if err := h.service.Delete(ctx, id); err != nil {
		return nil, apiError(err, "failed to delete definition")
	}
	return &DeleteDefinitionOutput{}, nil
}

// ScheduleDefinitionInput is the input for scheduling a definition.
type ScheduleDefinitionInput struct {
	ID   string `path:"id" doc:"Definition ID (ULID)"`
	Body struct {
		StartTime *time.Time `json:"start_time,omitempty" doc:"Override the start; defaults to the next occurrence or now"`
		Replace   bool       `json:"replace,omitempty" doc:"Replace a live session of this definition"`
	}
}

// ScheduleDefinitionOutput is the output for scheduling a definition.
type ScheduleDefinitionOutput struct {
	Body struct {
		SessionID string    `json:"session_id"`
		StartTime time.Time `json:"start_time"`
	}
}

// Schedule hands a definition to the stream manager.
func (h *DefinitionHandler) Schedule(ctx context.Context, input *ScheduleDefinitionInput) (*ScheduleDefinitionOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	var start time.Time
	if input.Body.StartTime != nil {
		start = *input.Body.StartTime
	}
	start, err = h.service.Schedule(ctx, id, start, input.Body.Replace)
	if err != nil {
		return nil, apiError(err, "failed to schedule definition")
	}
	resp := &ScheduleDefinitionOutput{}
	resp.Body.SessionID = id.String()
	resp.Body.StartTime = start
	return resp, nil
}

// ExportDefinitionsInput is the input for exporting definitions.
type ExportDefinitionsInput struct{}

// ExportDefinitionsOutput is a YAML download.
type ExportDefinitionsOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// Export returns every definition as YAML.
func (h *DefinitionHandler) Export(ctx context.Context, _ *ExportDefinitionsInput) (*ExportDefinitionsOutput, error) {
	var buf bytes.Buffer
	if _, err := h.service.Export(ctx, &buf); err != nil {
		return nil, apiError(err, "failed to export definitions")
	}
	return &ExportDefinitionsOutput{
		ContentType:        "application/yaml",
		ContentDisposition: fmt.Sprintf(`attachment; filename="loopcast-definitions-%s.yaml"`, h.now().UTC().Format("20060102-150405")),
		Body:               buf.Bytes(),
	}, nil
}

// ImportDefinitionsInput is the input for importing definitions.
type ImportDefinitionsInput struct {
	Overwrite bool `query:"overwrite" default:"false" doc:"Replace definitions whose name exists"`
	DryRun    bool `query:"dry_run" default:"false" doc:"Validate without writing"`
	RawBody   []byte
}

// ImportDefinitionsOutput is the output for importing definitions.
type ImportDefinitionsOutput struct {
	Body *service.ImportResult
}

// Import reads a YAML export.
func (h *DefinitionHandler) Import(ctx context.Context, input *ImportDefinitionsInput) (*ImportDefinitionsOutput, error) {
	if len(bytes.TrimSpace(input.RawBody)) == 0 {
		return nil, huma.Error400BadRequest("import document is required")
	}
	res, err := h.service.Import(ctx, bytes.NewReader(input.RawBody), service.ImportOptions{
		Overwrite: input.Overwrite,
		DryRun:    input.DryRun,
	})
	if err != nil {
		if res == nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, apiError(err, "failed to import definitions")
	}
	return &ImportDefinitionsOutput{Body: res}, nil
}
