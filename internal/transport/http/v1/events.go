package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// GetRunEvents returns a run's recorded events, or streams them as SSE
// when the client accepts text/event-stream.
// GET /v1/runs/:run_id/events
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}

	if strings.Contains(c.Request().Header.Get("Accept"), "text/event-stream") {
		return h.streamRunEvents(c, runID, afterTs)
	}

	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		for _, typ := range strings.Split(t, ",") {
			if typ = strings.TrimSpace(typ); typ != "" {
				types = append(types, typ)
			}
		}
	}

	ctx := c.Request().Context()
	if _, err := h.service.GetRun(ctx, runID); err != nil {
		return writeError(c, err)
	}
	events, err := h.service.GetRunEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return writeError(c, err)
	}
	if events == nil {
		events = []domain.Event{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events":   events,
		"has_more": limit > 0 && len(events) == limit,
	})
}

func (h *Handler) streamRunEvents(c echo.Context, runID string, afterTs int64) error {
	events, err := h.service.StreamRunEvents(c.Request().Context(), runID, afterTs)
	if err != nil {
		return writeError(c, err)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "streaming not supported"})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	w := c.Response().Writer
	for ev := range events {
		payload := ev.Payload
		if len(payload) == 0 {
			payload = []byte("{}")
		}
		if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.EventID, ev.Type, payload); err != nil {
			return nil
		}
		flusher.Flush()
	}
	return nil
}
