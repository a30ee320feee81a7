// Package llm provides an abstraction over the upstream LLM chat APIs used by
// the simulated user and the summary generator.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// ProviderName identifies an upstream wire protocol.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderMock      ProviderName = "mock"
)

// Provider sends one completion request to an upstream LLM API.
type Provider interface {
	Name() ProviderName
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Role is a dialogue role understood by both upstream APIs.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one dialogue entry. System prompts travel separately in Request.System.
type Message struct {
	Role    Role
	Content string
}

// ToolSpec describes a function the model may call, as a JSON object schema.
type ToolSpec struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// Request is a provider-neutral completion request. Provider overrides the
// model-name routing when set. RequireTool forces a tool-call answer.
type Request struct {
	Model    string
	Provider ProviderName
	APIKey   string

	System   string
	Messages []Message

	Tools       []ToolSpec
	RequireTool bool

	Temperature     *float64
	MaxTokens       int
	Reasoning       bool
	ReasoningEffort string
}

// ToolCall is a function invocation returned by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a provider-neutral completion result.
type Response struct {
	Model     string
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// FirstToolCall returns the first tool call, or nil when the model answered with text.
func (r *Response) FirstToolCall() *ToolCall {
	if r == nil || len(r.ToolCalls) == 0 {
		return nil
	}
	return &r.ToolCalls[0]
}

// Observer is notified after every upstream call.
type Observer interface {
	ObserveLLMCall(provider ProviderName, model string, elapsed time.Duration, usage Usage, err error)
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 {
	return &v
}
