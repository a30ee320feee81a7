package tools

import (
	"encoding/json"
	"fmt"

	"github.com/xiaot623/gogo/simulator/internal/adapter/llm"
)

const (
	SendMessage     = "send_message"
	EndConversation = "end_conversation"
)

// SendMessageArgs is the payload of a send_message call.
type SendMessageArgs struct {
	Text string `json:"text"`
}

// EndConversationArgs is the payload of an end_conversation call.
type EndConversationArgs struct {
	Reason       string `json:"reason"`
	GoalAchieved bool   `json:"goalAchieved"`
}

func init() {
	MustRegister(Definition{
		Spec: llm.ToolSpec{
			Name:        SendMessage,
			Description: "Send your next message to the agent you are talking to.",
			Properties: map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "The message text, written in your persona's voice.",
				},
			},
			Required: []string{"text"},
		},
		Decode: func(args json.RawMessage) (any, error) {
			var v SendMessageArgs
			if err := decodeArgs(args, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	})
	MustRegister(Definition{
		Spec: llm.ToolSpec{
			Name:        EndConversation,
			Description: "End the conversation once your goal is met or cannot be met.",
			Properties: map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Why the conversation is ending.",
				},
				"goalAchieved": map[string]any{
					"type":        "boolean",
					"description": "Whether your goal was achieved.",
				},
			},
			Required: []string{"reason", "goalAchieved"},
		},
		Decode: func(args json.RawMessage) (any, error) {
			var v EndConversationArgs
			if err := decodeArgs(args, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	})
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}
