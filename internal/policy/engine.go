// Package policy evaluates rego policies that gate outbound notifications.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decision is the outcome of a webhook policy evaluation.
type Decision string

const (
	DecisionDeliver Decision = "deliver"
	DecisionSkip    Decision = "skip"
)

// Query is the rule every webhook policy must define.
const Query = "data.webhook_policy.decision"

// Input is the document a policy is evaluated against.
type Input struct {
	Event   string `json:"event"`
	UserID  string `json:"user_id"`
	Payload any    `json:"payload"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares a policy module. An empty policy uses DefaultPolicy.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	if policyContent == "" {
		policyContent = DefaultPolicy
	}
	r := rego.New(
		rego.Query(Query),
		rego.Module("webhook_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &Engine{query: query}, nil
}

// LoadEngine reads a policy file, falling back to DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(data))
}

// Evaluate decides whether a notification should be delivered. A policy
// that yields no value delivers.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	doc := map[string]any{
		"event":   input.Event,
		"user_id": input.UserID,
		"payload": input.Payload,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionDeliver, nil
	}

	switch v := results[0].Expressions[0].Value.(type) {
	case string:
		d := Decision(v)
		if d != DecisionDeliver && d != DecisionSkip {
			return "", fmt.Errorf("policy returned unknown decision %q", v)
		}
		return d, nil
	default:
		return "", fmt.Errorf("policy returned %T, want string", v)
	}
}

// DefaultPolicy delivers every notification.
const DefaultPolicy = `
package webhook_policy

default decision = "deliver"
`
