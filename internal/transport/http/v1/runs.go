package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// ListTests lists the configured tests.
// GET /v1/tests
func (h *Handler) ListTests(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tests": h.service.ListTests(),
	})
}

// StartRun schedules a run of a test.
// POST /v1/tests/:test_id/runs
func (h *Handler) StartRun(c echo.Context) error {
	var req domain.StartRunRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "invalid request body"})
		}
	}
	if req.APIKey == "" {
		req.APIKey = c.Request().Header.Get("X-Api-Key")
	}

	resp, err := h.service.StartRun(c.Request().Context(), c.Param("test_id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, resp)
}

// ListRuns lists recent runs of a test.
// GET /v1/tests/:test_id/runs
func (h *Handler) ListRuns(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	runs, err := h.service.ListRuns(c.Request().Context(), c.Param("test_id"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

// GetRun returns a run with its progress and stats.
// GET /v1/runs/:run_id
func (h *Handler) GetRun(c echo.Context) error {
	run, err := h.service.GetRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

// CancelRun requests cancellation of a run.
// POST /v1/runs/:run_id/cancel
func (h *Handler) CancelRun(c echo.Context) error {
	resp, err := h.service.CancelRun(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListConversations lists the conversations of a run.
// GET /v1/runs/:run_id/conversations
func (h *Handler) ListConversations(c echo.Context) error {
	resp, err := h.service.ListConversations(c.Request().Context(), c.Param("run_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetConversation returns one conversation with its transcript.
// GET /v1/conversations/:conversation_id
func (h *Handler) GetConversation(c echo.Context) error {
	conv, err := h.service.GetConversation(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}
