package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-style chat-completions adapter.
type OpenAIConfig struct {
	// BaseURL overrides the API root, including the /v1 suffix.
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAIProvider speaks the OpenAI chat-completions protocol.
// A client is built per request because credentials arrive with each run.
type OpenAIProvider struct {
	config OpenAIConfig
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates an OpenAI adapter.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{config: cfg}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() ProviderName {
	return ProviderOpenAI
}

// Complete sends a non-streaming chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	clientCfg := openai.DefaultConfig(req.APIKey)
	if p.config.BaseURL != "" {
		clientCfg.BaseURL = p.config.BaseURL
	}
	if p.config.HTTPClient != nil {
		clientCfg.HTTPClient = p.config.HTTPClient
	}
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	return convertOpenAIResponse(resp)
}

func (p *OpenAIProvider) buildRequest(req *Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
		// The client omits a zero temperature from the body.
		if chatReq.Temperature == 0 {
			chatReq.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if req.MaxTokens > 0 {
		if req.Reasoning {
			chatReq.MaxCompletionTokens = req.MaxTokens
		} else {
			chatReq.MaxTokens = req.MaxTokens
		}
	}
	if req.ReasoningEffort != "" {
		chatReq.ReasoningEffort = req.ReasoningEffort
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOpenAITools(req.Tools)
		if req.RequireTool {
			chatReq.ToolChoice = "required"
		}
	}
	return chatReq
}

func toOpenAITools(specs []ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(specs))
	for i, spec := range specs {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  objectSchema(spec),
			},
		}
	}
	return result
}

func objectSchema(spec ToolSpec) map[string]any {
	properties := spec.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(spec.Required) > 0 {
		schema["required"] = spec.Required
	}
	return schema
}

func convertOpenAIResponse(resp openai.ChatCompletionResponse) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response contained no choices")
	}
	msg := resp.Choices[0].Message

	out := &Response{
		Model: resp.Model,
		Text:  msg.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai: status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("openai: status %d: %w", reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("openai: %w", err)
}
