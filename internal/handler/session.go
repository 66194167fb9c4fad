package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dharmasatrya/skysearch/internal/models"
	"github.com/dharmasatrya/skysearch/internal/session"
)

type SessionHandler struct {
	sessions *session.Manager
}

func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sessionCreated struct {
	SessionID string `json:"session_id"`
}

type selectRequest struct {
	ItineraryID string `json:"itinerary_id"`
}

func (h *SessionHandler) Create(c echo.Context) error {
	s := h.sessions.Create()
	return c.JSON(http.StatusCreated, sessionCreated{SessionID: s.ID()})
}

func (h *SessionHandler) Delete(c echo.Context) error {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) Results(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s.Results())
}

func (h *SessionHandler) Search(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	var trip models.TripSpec
	if err := c.Bind(&trip); err != nil {
		return badRequest(c, err)
	}

	resp, err := s.SearchFlights(c.Request().Context(), trip)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) UpdateFilters(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	var partial models.FilterSpec
	if err := c.Bind(&partial); err != nil {
		return badRequest(c, err)
	}

	resp, err := s.UpdateFilters(partial)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) UpdateSort(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	var spec models.SortSpec
	if err := c.Bind(&spec); err != nil {
		return badRequest(c, err)
	}

	resp, err := s.UpdateSort(spec)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) Select(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}

	it, err := s.SelectFlight(req.ItineraryID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *SessionHandler) Confirm(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	conf, err := s.ConfirmPrice(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conf)
}
