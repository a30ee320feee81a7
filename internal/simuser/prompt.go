package simuser

import (
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/simulator/internal/adapter/llm"
	"github.com/xiaot623/gogo/simulator/internal/domain"
)

const instructionBlock = `You are role-playing a user who is talking to an AI agent.
Stay in character at all times and never reveal that you are simulated or that you are an AI.

Every reply MUST be exactly one tool call:
- send_message: send your next message to the agent.
- end_conversation: finish once your goal is achieved, or once it clearly cannot be achieved.

Never answer with plain text.`

const decidePrompt = "Decide your next move: reply with send_message, or call end_conversation if you are done."

// SystemPrompt combines the persona prompt, the fixed tool-use rules and the goal.
func SystemPrompt(personaPrompt, goal string) string {
	var b strings.Builder
	if p := strings.TrimSpace(personaPrompt); p != "" {
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	b.WriteString(instructionBlock)
	if g := strings.TrimSpace(goal); g != "" {
		b.WriteString("\n\nYour goal: ")
		b.WriteString(g)
	}
	return b.String()
}

// OpeningPrompt is the sole message of the first call, before any turn exists.
func OpeningPrompt(goal string) string {
	return fmt.Sprintf("Your goal: %s\n\nStart the conversation by sending your first message to the agent.", goal)
}

// BuildMessages re-expresses the transcript in the two dialogue roles the
// upstream APIs understand. The simulated user's own turns become assistant
// statements of intent; the agent's turns become user reports.
func BuildMessages(goal string, history []domain.Turn) []llm.Message {
	if len(history) == 0 {
		return []llm.Message{{Role: llm.RoleUser, Content: OpeningPrompt(goal)}}
	}

	messages := make([]llm.Message, 0, len(history)+1)
	for _, turn := range history {
		switch turn.Role {
		case domain.TurnRoleUser:
			messages = append(messages, llm.Message{
				Role:    llm.RoleAssistant,
				Content: "I'll send this message: " + turn.Message,
			})
		case domain.TurnRoleAgent:
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: "The agent responded: " + turn.Message,
			})
		}
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: decidePrompt})
}
