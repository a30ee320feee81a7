// Package ingress pushes engine events to the ingress service over JSON-RPC so
// that connected dashboards see runs progress live.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/rpc/jsonrpc"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/events"
)

// PushMethod is the JSON-RPC method exposed by the ingress service.
const PushMethod = "Ingress.PushEvent"

// Client delivers events to the ingress service. A zero address disables it.
type Client struct {
	addr        string
	dialTimeout time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
}

var _ events.Sink = (*Client)(nil)

// NewClient creates an ingress client for baseURL (host:port or a URL).
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		addr:        resolveRPCAddr(baseURL),
		dialTimeout: 5 * time.Second,
		callTimeout: 5 * time.Second,
		logger:      logger.With("component", "ingress"),
	}
}

// SendRequest represents the request body for event delivery. The run id is
// used as the ingress session id.
type SendRequest struct {
	SessionID string         `json:"session_id"`
	Event     map[string]any `json:"event"`
}

// SendResponse represents the response for event delivery.
type SendResponse struct {
	OK        bool `json:"ok"`
	Delivered bool `json:"delivered"`
}

// Emit pushes ev and logs delivery failures.
func (c *Client) Emit(ctx context.Context, ev domain.Event) {
	if err := c.PushEvent(ctx, ev); err != nil {
		c.logger.Warn("failed to push event", "run_id", ev.RunID, "type", ev.Type, "error", err)
	}
}

// PushEvent delivers one event and reports any failure.
func (c *Client) PushEvent(ctx context.Context, ev domain.Event) error {
	if c.addr == "" {
		return nil
	}

	body := map[string]any{
		"type":     string(ev.Type),
		"event_id": ev.EventID,
		"run_id":   ev.RunID,
		"ts":       ev.Ts,
	}
	if len(ev.Payload) > 0 {
		body["payload"] = json.RawMessage(ev.Payload)
	}
	req := &SendRequest{SessionID: ev.RunID, Event: body}

	var resp SendResponse
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
	defer cancel()

	if err := c.call(ctx, PushMethod, req, &resp); err != nil {
		return fmt.Errorf("failed to push event to ingress: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("ingress rpc returned ok=false (delivered=%v)", resp.Delivered)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, args, reply any) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client := jsonrpc.NewClient(conn)
	call := client.Go(method, args, reply, nil)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		return call.Error
	}
}

func resolveRPCAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err == nil && parsed.Host != "" {
			return parsed.Host
		}
	}
	return raw
}
