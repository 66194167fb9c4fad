package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dharmasatrya/skysearch/internal/cache"
	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/session"
)

// LibraryHandler exposes the search history log and saved comparison
// snapshots.
type LibraryHandler struct {
	cache    *cache.ResultCache
	sessions *session.Manager
}

func NewLibraryHandler(resultCache *cache.ResultCache, sessions *session.Manager) *LibraryHandler {
	return &LibraryHandler{cache: resultCache, sessions: sessions}
}

// SnapshotRequest saves either the given itineraries or, when SessionID is
// set, the session's current view.
type SnapshotRequest struct {
	Name        string             `json:"name"`
	SessionID   string             `json:"session_id,omitempty"`
	Itineraries []models.Itinerary `json:"itineraries,omitempty"`
}

func (h *LibraryHandler) History(c echo.Context) error {
	entries, err := h.cache.History(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *LibraryHandler) CreateSnapshot(c echo.Context) error {
	var req SnapshotRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "name is required",
			Code:    http.StatusBadRequest,
		})
	}

	itineraries := req.Itineraries
	if req.SessionID != "" {
		s, err := h.sessions.Get(req.SessionID)
		if err != nil {
			return writeError(c, err)
		}
		itineraries = s.Results().Flights
	}

	snap, err := h.cache.SaveSnapshot(c.Request().Context(), req.Name, itineraries)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, snap)
}

func (h *LibraryHandler) ListSnapshots(c echo.Context) error {
	snaps, err := h.cache.Snapshots(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, snaps)
}

func (h *LibraryHandler) GetSnapshot(c echo.Context) error {
	snap, err := h.cache.Snapshot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *LibraryHandler) DeleteSnapshot(c echo.Context) error {
	if err := h.cache.DeleteSnapshot(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
