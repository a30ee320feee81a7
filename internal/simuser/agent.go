package simuser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/adapter/llm"
	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/tools"
)

const (
	// DefaultTimeout bounds every simulated-user call.
	DefaultTimeout = 60 * time.Second
	// DefaultTemperature applies to non-reasoning models without an explicit temperature.
	DefaultTemperature = 0.7

	reasoningTemperature = 1.0
)

// Config is the per-scenario simulated-user configuration. It is read-only
// while the scenario runs.
type Config struct {
	Model           string
	Provider        llm.ProviderName
	APIKey          string
	Temperature     *float64
	MaxTokens       int
	ReasoningModel  bool
	ReasoningEffort string
	PersonaPrompt   string
	Goal            string
}

// NewConfig builds the simulated-user configuration for one scenario of a test.
func NewConfig(test *domain.Test, persona domain.Persona, scenario domain.Scenario, apiKey string) Config {
	settings := test.SimulatedUser
	return Config{
		Model:           settings.Model,
		Provider:        llm.ProviderName(strings.ToLower(settings.Provider)),
		APIKey:          apiKey,
		Temperature:     settings.ModelConfig.Temperature,
		MaxTokens:       settings.ModelConfig.MaxTokens,
		ReasoningModel:  settings.ReasoningModel,
		ReasoningEffort: settings.ReasoningEffort,
		PersonaPrompt:   persona.SystemPrompt,
		Goal:            scenario.Goal,
	}
}

// Options configures an Agent.
type Options struct {
	Timeout            time.Duration
	DefaultTemperature float64
	DefaultMaxTokens   int
	Tools              *tools.Registry
	Logger             *slog.Logger
}

// Agent asks an LLM for the simulated user's next move.
type Agent struct {
	llm         llm.Completer
	tools       *tools.Registry
	timeout     time.Duration
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewAgent creates a simulated-user agent backed by the given completer.
func NewAgent(completer llm.Completer, opts Options) *Agent {
	a := &Agent{
		llm:         completer,
		tools:       opts.Tools,
		timeout:     opts.Timeout,
		temperature: opts.DefaultTemperature,
		maxTokens:   opts.DefaultMaxTokens,
		logger:      opts.Logger,
	}
	if a.tools == nil {
		a.tools = tools.DefaultRegistry
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.temperature == 0 {
		a.temperature = DefaultTemperature
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "simuser")
	return a
}

// NextAction returns the simulated user's next move given the transcript so
// far. It never returns an error; every failure becomes a Failure action.
func (a *Agent) NextAction(ctx context.Context, cfg Config, history []domain.Turn) (action Action) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("simulated user panicked", "panic", r)
			action = Failure{Message: fmt.Sprintf("simulated user panicked: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.llm.Complete(ctx, a.buildRequest(cfg, history))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("simulated user call timed out after %s", a.timeout)
		}
		a.logger.Warn("failed to get simulated user action", "model", cfg.Model, "error", err)
		return Failure{Message: err.Error()}
	}
	return a.parseResponse(resp)
}

func (a *Agent) buildRequest(cfg Config, history []domain.Turn) *llm.Request {
	req := &llm.Request{
		Model:       cfg.Model,
		Provider:    cfg.Provider,
		APIKey:      cfg.APIKey,
		System:      SystemPrompt(cfg.PersonaPrompt, cfg.Goal),
		Messages:    BuildMessages(cfg.Goal, history),
		Tools:       a.tools.Specs(),
		RequireTool: true,
		MaxTokens:   cfg.MaxTokens,
		Reasoning:   cfg.ReasoningModel,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = a.maxTokens
	}

	switch {
	case cfg.ReasoningModel:
		req.Temperature = llm.Float(reasoningTemperature)
		req.ReasoningEffort = cfg.ReasoningEffort
	case cfg.Temperature != nil:
		req.Temperature = llm.Float(*cfg.Temperature)
	default:
		req.Temperature = llm.Float(a.temperature)
	}
	return req
}

func (a *Agent) parseResponse(resp *llm.Response) Action {
	call := resp.FirstToolCall()
	if call == nil {
		if text := strings.TrimSpace(resp.Text); text != "" {
			return SendMessage{Text: text}
		}
		return Failure{Message: "simulated user returned neither a tool call nor text"}
	}

	args, err := a.tools.Decode(call.Name, call.Arguments)
	if err != nil {
		return Failure{Message: fmt.Sprintf("failed to decode %s call: %v", call.Name, err)}
	}

	switch v := args.(type) {
	case tools.SendMessageArgs:
		if strings.TrimSpace(v.Text) == "" {
			return Failure{Message: "simulated user sent an empty message"}
		}
		return SendMessage{Text: v.Text}
	case tools.EndConversationArgs:
		return EndConversation{Reason: v.Reason, GoalAchieved: v.GoalAchieved}
	}
	return Failure{Message: fmt.Sprintf("unsupported tool %s", call.Name)}
}
