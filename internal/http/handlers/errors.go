package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/loopcast/internal/models"
	"github.com/jmylchreest/loopcast/internal/service"
	"github.com/jmylchreest/loopcast/internal/streaming"
)

// apiError maps domain errors onto HTTP status codes. msg is used for 500s
// so internal details stay out of the response.
func apiError(err error, msg string) error {
	var validation models.ErrValidation
	switch {
	case errors.Is(err, streaming.ErrInvalidRequest),
		errors.As(err, &validation),
		errors.Is(err, models.ErrNameRequired),
		errors.Is(err, models.ErrSourcePathRequired),
		errors.Is(err, models.ErrStreamKeyRequired),
		errors.Is(err, models.ErrStartRequired),
		errors.Is(err, models.ErrStopPolicyConflict),
		errors.Is(err, models.ErrInvalidTimeRange),
		errors.Is(err, models.ErrInvalidCronSchedule):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, streaming.ErrSessionNotFound),
		errors.Is(err, models.ErrDefinitionNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, streaming.ErrSessionExists),
		errors.Is(err, service.ErrDefinitionExists),
		errors.Is(err, streaming.ErrNotRunning):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, streaming.ErrManagerClosed),
		errors.Is(err, service.ErrMediaDirUnavailable):
		return huma.Error503ServiceUnavailable(err.Error())
	default:
		return huma.Error500InternalServerError(msg, err)
	}
}

// parseID parses a ULID path parameter.
func parseID(s string) (models.ULID, error) {
	id, err := models.ParseULID(s)
	if err != nil {
		return models.ULID{}, huma.Error400BadRequest("invalid ID format", err)
	}
	return id, nil
}
