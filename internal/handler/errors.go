package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dharmasatrya/skysearch/internal/cache"
	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/orchestrator"
	"github.com/dharmasatrya/skysearch/internal/providers"
	"github.com/dharmasatrya/skysearch/internal/session"
)

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: "Failed to parse request body: " + err.Error(),
		Code:    http.StatusBadRequest,
	})
}

// writeError maps domain errors to the API error shape. Provider and store
// internals never reach the client; search failures carry only their reason
// category.
func writeError(c echo.Context, err error) error {
	status, resp := classify(err)
	resp.Code = status
	return c.JSON(status, resp)
}

func classify(err error) (int, models.ErrorResponse) {
	var verr models.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, models.ErrorResponse{Error: "validation_error", Message: verr.Error()}
	}

	var serr *orchestrator.SearchFailedError
	if errors.As(err, &serr) {
		if serr.Category == orchestrator.CategoryCancelled {
			return http.StatusConflict, models.ErrorResponse{
				Error:   "search_cancelled",
				Message: "The search was cancelled before it completed",
				Reason:  string(serr.Category),
			}
		}
		return http.StatusBadGateway, models.ErrorResponse{
			Error:   "search_failed",
			Message: "No flights could be retrieved, please retry",
			Reason:  string(serr.Category),
		}
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, models.ErrorResponse{Error: "session_not_found", Message: err.Error()}
	case errors.Is(err, session.ErrItineraryNotFound):
		return http.StatusNotFound, models.ErrorResponse{Error: "itinerary_not_found", Message: err.Error()}
	case errors.Is(err, cache.ErrNotFound):
		return http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "resource not found"}
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, models.ErrorResponse{Error: "search_superseded", Message: err.Error()}
	case errors.Is(err, session.ErrNoResults), errors.Is(err, session.ErrNothingSelected):
		return http.StatusConflict, models.ErrorResponse{Error: "invalid_state", Message: err.Error()}
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone, models.ErrorResponse{Error: "session_closed", Message: err.Error()}
	case errors.Is(err, session.ErrPriceCheckDisabled):
		return http.StatusNotImplemented, models.ErrorResponse{Error: "not_implemented", Message: err.Error()}
	}

	var perr *providers.ProviderError
	if errors.As(err, &perr) {
		return http.StatusBadGateway, models.ErrorResponse{
			Error:   "provider_error",
			Message: "The flight provider could not complete the request",
			Reason:  string(perr.Kind),
		}
	}

	return http.StatusInternalServerError, models.ErrorResponse{Error: "internal_error", Message: "internal server error"}
}
