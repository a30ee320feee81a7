package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/simulator/internal/adapter/llm"
)

func TestDefaultRegistrySpecs(t *testing.T) {
	specs := DefaultRegistry.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, SendMessage, specs[0].Name)
	assert.Equal(t, []string{"text"}, specs[0].Required)
	assert.Equal(t, EndConversation, specs[1].Name)
	assert.ElementsMatch(t, []string{"reason", "goalAchieved"}, specs[1].Required)
}

func TestDefaultRegistryDecode(t *testing.T) {
	v, err := DefaultRegistry.Decode(SendMessage, json.RawMessage(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, SendMessageArgs{Text: "hello"}, v)

	v, err = DefaultRegistry.Decode(EndConversation, json.RawMessage(`{"reason":"done","goalAchieved":true}`))
	require.NoError(t, err)
	assert.Equal(t, EndConversationArgs{Reason: "done", GoalAchieved: true}, v)

	v, err = DefaultRegistry.Decode(SendMessage, nil)
	require.NoError(t, err)
	assert.Equal(t, SendMessageArgs{}, v)

	_, err = DefaultRegistry.Decode(SendMessage, json.RawMessage(`{not json`))
	assert.Error(t, err)

	_, err = DefaultRegistry.Decode("transfer_funds", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	def := Definition{
		Spec:   llm.ToolSpec{Name: "noop"},
		Decode: func(json.RawMessage) (any, error) { return nil, nil },
	}
	require.NoError(t, r.Register(def))
	assert.Error(t, r.Register(def))
	assert.Error(t, r.Register(Definition{Spec: llm.ToolSpec{Name: "nodecoder"}}))
	assert.Error(t, r.Register(Definition{Decode: def.Decode}))
}
