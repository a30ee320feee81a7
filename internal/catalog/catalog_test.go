package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

const sampleCatalog = `
personas:
  - id: impatient
    name: Impatient customer
    system_prompt: You are in a hurry.
  - id: unused
    name: Unused
    system_prompt: Never referenced.
tests:
  - id: refunds
    name: Refund flows
    execution_mode: Parallel
    webhook: true
    flow:
      endpoint: http://agent.local/chat
      flow_id: refunds-v2
      headers:
        Authorization: Bearer ${CATALOG_TEST_TOKEN}
    simulated_user:
      model: gpt-4o
      model_config:
        temperature: 0.2
        max_tokens: 256
    scenarios:
      - id: s2
        persona: impatient
        name: Late order
        goal: Get a refund for a late order
        max_turns: 4
        order: 2
      - id: s1
        persona: impatient
        name: Damaged item
        goal: Get a replacement
        order: 1
  - id: smoke
    flow:
      endpoint: http://agent.local/chat
    simulated_user:
      model: claude-3-5-sonnet
`

func TestParseCatalog(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	test, err := c.Get("refunds")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionModeParallel, test.ExecutionMode)
	assert.True(t, test.Parallel())
	assert.True(t, test.WebhookEnabled)
	assert.Equal(t, "refunds-v2", test.Flow.FlowID)
	require.NotNil(t, test.SimulatedUser.ModelConfig.Temperature)
	assert.InDelta(t, 0.2, *test.SimulatedUser.ModelConfig.Temperature, 1e-9)
	assert.Equal(t, 256, test.SimulatedUser.ModelConfig.MaxTokens)

	require.Len(t, test.Scenarios, 2)
	for _, s := range test.Scenarios {
		assert.Equal(t, "refunds", s.TestID)
	}
	ordered := test.OrderedScenarios()
	assert.Equal(t, "s1", ordered[0].ScenarioID)
	assert.Equal(t, "You are in a hurry.", test.Persona("impatient").SystemPrompt)
	assert.NotContains(t, test.Personas, "unused")

	smoke, err := c.Get("smoke")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionModeSequential, smoke.ExecutionMode)
	assert.Empty(t, smoke.Scenarios)
}

func TestGetReturnsCopy(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	first, _ := c.Get("refunds")
	first.Scenarios[0].Goal = "mutated"
	first.Flow.Headers["Authorization"] = "mutated"

	second, _ := c.Get("refunds")
	assert.NotEqual(t, "mutated", second.Scenarios[0].Goal)
	assert.NotEqual(t, "mutated", second.Flow.Headers["Authorization"])
}

func TestGetUnknownTest(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	_, err = c.Get("missing")
	assert.True(t, errors.Is(err, domain.ErrTestNotFound))
}

func TestListKeepsFileOrder(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	items := c.List()
	require.Len(t, items, 2)
	assert.Equal(t, "refunds", items[0].TestID)
	assert.Equal(t, 2, items[0].Scenarios)
	assert.Equal(t, []string{"refunds", "smoke"}, c.IDs())
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing endpoint", "tests:\n  - id: t1\n"},
		{"duplicate test", "tests:\n  - id: t1\n    flow: {endpoint: x}\n  - id: t1\n    flow: {endpoint: x}\n"},
		{"unknown persona", "tests:\n  - id: t1\n    flow: {endpoint: x}\n    scenarios:\n      - id: s1\n        persona: ghost\n"},
		{"duplicate scenario", "tests:\n  - id: t1\n    flow: {endpoint: x}\n    scenarios:\n      - id: s1\n      - id: s1\n"},
		{"bad mode", "tests:\n  - id: t1\n    execution_mode: random\n    flow: {endpoint: x}\n"},
		{"malformed", "tests: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("CATALOG_TEST_TOKEN", "secret")
	path := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	test, err := c.Get("refunds")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", test.Flow.Headers["Authorization"])

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
