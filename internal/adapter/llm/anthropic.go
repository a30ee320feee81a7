package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// beginMessage opens a dialogue whose first entry would otherwise be an assistant turn.
const beginMessage = "Begin."

const defaultAnthropicMaxTokens = 1024

// AnthropicConfig configures the Anthropic messages adapter.
type AnthropicConfig struct {
	BaseURL    string
	HTTPClient *http.Client
}

// AnthropicProvider speaks the Anthropic messages protocol.
type AnthropicProvider struct {
	config AnthropicConfig
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider creates an Anthropic adapter.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	return &AnthropicProvider{config: cfg}
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() ProviderName {
	return ProviderAnthropic
}

// Complete sends a single non-streaming messages request. Retries are
// disabled; the caller's context bounds the attempt.
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(req.APIKey),
		option.WithMaxRetries(0),
	}
	if p.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.config.BaseURL))
	}
	if p.config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(p.config.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAnthropicError(err)
	}
	return convertAnthropicMessage(msg), nil
}

func (p *AnthropicProvider) buildParams(req *Request) (anthropic.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	normalized := NormalizeAlternation(req.Messages)
	messages := make([]anthropic.MessageParam, 0, len(normalized))
	for _, msg := range normalized {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := toAnthropicTools(req.Tools)
		if err != nil {
			return params, err
		}
		params.Tools = tools
		if req.RequireTool {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		}
	}
	return params, nil
}

// NormalizeAlternation enforces the strict user/assistant alternation the
// messages API requires: consecutive same-role entries are concatenated and
// a synthetic user entry is prepended when the list does not open with one.
func NormalizeAlternation(messages []Message) []Message {
	out := make([]Message, 0, len(messages)+1)
	for _, msg := range messages {
		if n := len(out); n > 0 && out[n-1].Role == msg.Role {
			out[n-1].Content = out[n-1].Content + "\n\n" + msg.Content
			continue
		}
		out = append(out, msg)
	}
	if len(out) == 0 || out[0].Role != RoleUser {
		out = append([]Message{{Role: RoleUser, Content: beginMessage}}, out...)
	}
	return out
}

func toAnthropicTools(specs []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		raw, err := json.Marshal(objectSchema(spec))
		if err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", spec.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", spec.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: missing tool definition", spec.Name)
		}
		param.OfTool.Description = anthropic.String(spec.Description)
		result = append(result, param)
	}
	return result, nil
}

func convertAnthropicMessage(msg *anthropic.Message) *Response {
	out := &Response{
		Model: string(msg.Model),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	var text []string
	for _, block := range msg.Content {
		switch block.Type {
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		case "text":
			if block.Text != "" {
				text = append(text, block.Text)
			}
		}
	}
	if len(text) > 0 {
		out.Text = text[0]
	}
	return out
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic: status %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("anthropic: %w", err)
}

// isAnthropicModel reports whether model belongs to the Anthropic family.
func isAnthropicModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "claude")
}
