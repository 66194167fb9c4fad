package handler

import "github.com/labstack/echo/v4"

// Register mounts every API route on e.
func Register(e *echo.Echo, search *SearchHandler, sessions *SessionHandler, library *LibraryHandler) {
	api := e.Group("/api/v1")
	api.POST("/flights/search", search.Search)

	api.POST("/sessions", sessions.Create)
	api.GET("/sessions/:id", sessions.Results)
	api.DELETE("/sessions/:id", sessions.Delete)
	api.POST("/sessions/:id/search", sessions.Search)
	api.PATCH("/sessions/:id/filters", sessions.UpdateFilters)
	api.PUT("/sessions/:id/sort", sessions.UpdateSort)
	api.POST("/sessions/:id/select", sessions.Select)
	api.POST("/sessions/:id/confirm", sessions.Confirm)

	api.GET("/history", library.History)
	api.POST("/snapshots", library.CreateSnapshot)
	api.GET("/snapshots", library.ListSnapshots)
	api.GET("/snapshots/:id", library.GetSnapshot)
	api.DELETE("/snapshots/:id", library.DeleteSnapshot)

	e.GET("/health", HealthHandler)
}
