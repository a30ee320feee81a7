package domain

import (
	"sort"
	"strings"
)

// Persona is a simulated-user character defined by a system prompt.
type Persona struct {
	PersonaID    string `json:"persona_id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
}

// Scenario is one conversational goal for a persona.
type Scenario struct {
	ScenarioID string `json:"scenario_id" yaml:"id"`
	TestID     string `json:"test_id" yaml:"-"`
	PersonaID  string `json:"persona_id" yaml:"persona"`
	Name       string `json:"name" yaml:"name"`
	Goal       string `json:"goal" yaml:"goal"`
	MaxTurns   int    `json:"max_turns" yaml:"max_turns"`
	OrderIndex int    `json:"order_index" yaml:"order"`
}

// FlowConfig describes how to reach the agent under test.
type FlowConfig struct {
	Endpoint string            `json:"endpoint" yaml:"endpoint"`
	FlowID   string            `json:"flow_id,omitempty" yaml:"flow_id"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers"`
}

// ModelConfig carries sampling parameters for the simulated user.
type ModelConfig struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// SimulatedUserSettings is the test-level simulated-user model selection.
type SimulatedUserSettings struct {
	Model           string      `json:"model" yaml:"model"`
	Provider        string      `json:"provider,omitempty" yaml:"provider"`
	ModelConfig     ModelConfig `json:"model_config" yaml:"model_config"`
	ReasoningModel  bool        `json:"reasoning_model,omitempty" yaml:"reasoning_model"`
	ReasoningEffort string      `json:"reasoning_effort,omitempty" yaml:"reasoning_effort"`
	SummaryModel    string      `json:"summary_model,omitempty" yaml:"summary_model"`
}

// Test is a benchmark definition: an agent flow plus the scenarios to run against it.
type Test struct {
	TestID         string                `json:"test_id" yaml:"id"`
	Name           string                `json:"name" yaml:"name"`
	ExecutionMode  ExecutionMode         `json:"execution_mode" yaml:"execution_mode"`
	Flow           FlowConfig            `json:"flow" yaml:"flow"`
	SimulatedUser  SimulatedUserSettings `json:"simulated_user" yaml:"simulated_user"`
	WebhookEnabled bool                  `json:"webhook_enabled" yaml:"webhook"`
	Personas       map[string]Persona    `json:"personas" yaml:"-"`
	Scenarios      []Scenario            `json:"scenarios" yaml:"scenarios"`
}

// OrderedScenarios returns the scenarios sorted by OrderIndex, ties kept in input order.
func (t *Test) OrderedScenarios() []Scenario {
	out := make([]Scenario, len(t.Scenarios))
	copy(out, t.Scenarios)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}

// Persona looks up the persona of a scenario. Unknown personas yield an empty prompt.
func (t *Test) Persona(id string) Persona {
	if p, ok := t.Personas[id]; ok {
		return p
	}
	return Persona{PersonaID: id}
}

// Parallel reports whether scenarios should run concurrently.
func (t *Test) Parallel() bool {
	return strings.EqualFold(string(t.ExecutionMode), string(ExecutionModeParallel))
}
