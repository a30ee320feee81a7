package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultMockTurns is how many messages the mock simulated user sends before ending.
const DefaultMockTurns = 2

// MockProvider answers without any network access. Requests that carry tools
// get a send_message call until the dialogue holds Turns assistant entries,
// then an end_conversation call. Requests without tools get a canned summary.
type MockProvider struct {
	Turns int
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock provider with DefaultMockTurns.
func NewMockProvider() *MockProvider {
	return &MockProvider{Turns: DefaultMockTurns}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() ProviderName {
	return ProviderMock
}

// Complete returns a scripted response.
func (m *MockProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &Response{
		Model: req.Model,
		Usage: Usage{PromptTokens: estimateTokens(req)},
	}

	if len(req.Tools) == 0 {
		resp.Text = fmt.Sprintf("[MOCK] Conversation with %d messages reviewed.", len(req.Messages))
		resp.Usage.CompletionTokens = len(resp.Text) / 4
		resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
		return resp, nil
	}

	sent := 0
	for _, msg := range req.Messages {
		if msg.Role == RoleAssistant {
			sent++
		}
	}

	var call ToolCall
	if sent >= m.Turns {
		call = mockToolCall("end_conversation", map[string]any{
			"reason":       "[MOCK] goal reached",
			"goalAchieved": true,
		})
	} else {
		call = mockToolCall("send_message", map[string]any{
			"text": fmt.Sprintf("[MOCK] message %d", sent+1),
		})
	}
	resp.ToolCalls = []ToolCall{call}
	resp.Usage.CompletionTokens = len(call.Arguments) / 4
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	return resp, nil
}

func mockToolCall(name string, args map[string]any) ToolCall {
	raw, _ := json.Marshal(args)
	return ToolCall{
		ID:        fmt.Sprintf("mock-call-%d", time.Now().UnixNano()),
		Name:      name,
		Arguments: raw,
	}
}

// estimateTokens provides a rough token count estimate.
func estimateTokens(req *Request) int {
	total := len(req.System) / 4
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}
