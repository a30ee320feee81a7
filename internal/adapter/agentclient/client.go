// Package agentclient sends simulated-user messages to the agent under test.
// The agent may answer with a JSON body or an SSE stream.
package agentclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

const maxErrorBody = 512

// SSEEvent represents a parsed SSE event.
type SSEEvent struct {
	Event string
	Data  string
}

// EventHandler is called for each SSE event from the agent.
type EventHandler func(event SSEEvent) error

// Client is an HTTP client for the agent gateway.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new agent client. timeout bounds one whole exchange.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SendMessage posts message to the flow endpoint within the given session and
// returns the agent's answer.
func (c *Client) SendMessage(ctx context.Context, flow domain.FlowConfig, message, sessionID, userID string) (*domain.GatewayResponse, error) {
	if flow.Endpoint == "" {
		return nil, fmt.Errorf("agent flow endpoint is not configured")
	}

	body, err := json.Marshal(&domain.GatewayRequest{
		Message:   message,
		SessionID: sessionID,
		UserID:    userID,
		FlowID:    flow.FlowID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, flow.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range flow.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	httpReq.Header.Set("X-Session-ID", sessionID)
	if userID != "" {
		httpReq.Header.Set("X-User-ID", userID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return c.readStream(resp.Body)
	}

	var out domain.GatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode agent response: %w", err)
	}
	return &out, nil
}

// readStream folds delta/done/error events into a single answer.
func (c *Client) readStream(r io.Reader) (*domain.GatewayResponse, error) {
	var text strings.Builder
	var out *domain.GatewayResponse

	err := c.parseSSE(r, func(event SSEEvent) error {
		switch event.Event {
		case "delta":
			delta, err := ParseDeltaEvent(event.Data)
			if err != nil {
				return err
			}
			text.WriteString(delta.Text)
		case "done":
			done, err := ParseDoneEvent(event.Data)
			if err != nil {
				return err
			}
			answer := done.FinalMessage
			if answer == "" {
				answer = text.String()
			}
			out = &domain.GatewayResponse{Answer: answer, ExecutionID: done.ExecutionID}
			return errStreamDone
		case "error":
			errEvt, err := ParseErrorEvent(event.Data)
			if err != nil {
				return err
			}
			return fmt.Errorf("agent error %s: %s", errEvt.Code, errEvt.Message)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStreamDone) {
		return nil, err
	}
	if out == nil {
		out = &domain.GatewayResponse{Answer: text.String()}
	}
	return out, nil
}

var errStreamDone = errors.New("stream done")

// parseSSE parses an SSE stream and calls the handler for each event.
func (c *Client) parseSSE(reader io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var event SSEEvent

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if event.Event != "" || event.Data != "" {
				if err := handler(event); err != nil {
					return err
				}
				event = SSEEvent{}
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		}
	}

	if event.Event != "" || event.Data != "" {
		if err := handler(event); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// ParseDeltaEvent parses a delta event data.
func ParseDeltaEvent(data string) (*domain.DeltaEventData, error) {
	var delta domain.DeltaEventData
	if err := json.Unmarshal([]byte(data), &delta); err != nil {
		return nil, fmt.Errorf("failed to parse delta event: %w", err)
	}
	return &delta, nil
}

// ParseDoneEvent parses a done event data.
func ParseDoneEvent(data string) (*domain.DoneEventData, error) {
	var done domain.DoneEventData
	if err := json.Unmarshal([]byte(data), &done); err != nil {
		return nil, fmt.Errorf("failed to parse done event: %w", err)
	}
	return &done, nil
}

// ParseErrorEvent parses an error event data.
func ParseErrorEvent(data string) (*domain.ErrorEventData, error) {
	var errEvt domain.ErrorEventData
	if err := json.Unmarshal([]byte(data), &errEvt); err != nil {
		return nil, fmt.Errorf("failed to parse error event: %w", err)
	}
	return &errEvt, nil
}
