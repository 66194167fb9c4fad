package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dharmasatrya/skysearch/internal/filter"
	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/session"
)

// SearchRequest is a trip plus optional filters and sort order in one body.
type SearchRequest struct {
	models.TripSpec
	Filters models.FilterSpec `json:"filters"`
	Sort    models.SortSpec   `json:"sort"`
}

// SearchHandler serves one-shot searches that keep no session state.
type SearchHandler struct {
	searcher session.Searcher
}

func NewSearchHandler(searcher session.Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

func (h *SearchHandler) Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	if err := req.TripSpec.Validate(); err != nil {
		return writeError(c, err)
	}
	if err := req.Filters.Validate(); err != nil {
		return writeError(c, err)
	}
	if err := req.Sort.Validate(); err != nil {
		return writeError(c, err)
	}

	set, err := h.searcher.Search(c.Request().Context(), req.TripSpec)
	if err != nil {
		return writeError(c, err)
	}

	flights := filter.Apply(set.Itineraries, req.Filters, req.Sort)
	nearby := set.Alternates
	if nearby == nil {
		nearby = []models.DateSummary{}
	}

	return c.JSON(http.StatusOK, models.SearchResponse{
		Trip:     set.Trip,
		Metadata: set.Metadata,
		Filters:  req.Filters,
		Sort:     req.Sort,
		Total:    len(flights),
		Flights:  flights,
		Nearby:   nearby,
	})
}

func HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
