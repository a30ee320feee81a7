// Package v1 provides the control API handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/orchestrator"
	"github.com/xiaot623/gogo/simulator/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	version string
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, version string) *Handler {
	return &Handler{
		service: service,
		version: version,
	}
}

// RegisterRoutes registers the control routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/tests", h.ListTests)
	e.POST("/v1/tests/:test_id/runs", h.StartRun)
	e.GET("/v1/tests/:test_id/runs", h.ListRuns)

	e.GET("/v1/runs/:run_id", h.GetRun)
	e.POST("/v1/runs/:run_id/cancel", h.CancelRun)
	e.GET("/v1/runs/:run_id/conversations", h.ListConversations)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)

	e.GET("/v1/conversations/:conversation_id", h.GetConversation)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// writeError maps service errors onto status codes.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrTestNotFound),
		errors.Is(err, domain.ErrConversationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRunNotCancelable):
		status = http.StatusConflict
	case orchestrator.IsConfigError(err):
		status = http.StatusBadRequest
	}
	return c.JSON(status, domain.ErrorResponse{Error: err.Error()})
}
