// Package summary produces post-hoc narrative summaries of finished
// conversations. Summaries are best effort and never block a scenario.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/adapter/llm"
	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// FailurePrefix starts every summary that could not be generated.
const FailurePrefix = "Summary generation failed: "

const systemPrompt = `You review conversations between a simulated user and an AI agent.
Write a short narrative summary: what the user wanted, how the agent responded,
and whether the user's goal was met. Plain prose, no headings.`

// Generator calls an LLM to summarize transcripts.
type Generator struct {
	llm       llm.Completer
	timeout   time.Duration
	maxTokens int
}

// NewGenerator creates a generator. A non-positive timeout disables the bound.
func NewGenerator(completer llm.Completer, timeout time.Duration) *Generator {
	return &Generator{llm: completer, timeout: timeout, maxTokens: 1024}
}

// Summarize returns the model's summary of turns judged against goal. It never
// fails: any error comes back as a FailurePrefix string.
func (g *Generator) Summarize(ctx context.Context, turns []domain.Turn, goal, model, apiKey string) (summary string) {
	defer func() {
		if r := recover(); r != nil {
			summary = FailurePrefix + fmt.Sprint(r)
		}
	}()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.llm.Complete(ctx, &llm.Request{
		Model:       model,
		APIKey:      apiKey,
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: BuildPrompt(turns, goal)}},
		Temperature: llm.Float(0),
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return FailurePrefix + err.Error()
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return FailurePrefix + "empty response"
	}
	return text
}

// BuildPrompt renders the goal and transcript for the summary request.
func BuildPrompt(turns []domain.Turn, goal string) string {
	var b strings.Builder
	b.WriteString("User goal: ")
	b.WriteString(goal)
	b.WriteString("\n\nTranscript:\n")
	for _, t := range turns {
		speaker := "User"
		if t.Role == domain.TurnRoleAgent {
			speaker = "Agent"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, t.Message)
	}
	b.WriteString("\nSummarize this conversation.")
	return b.String()
}

// IsFailure reports whether summary is a failure marker rather than a narrative.
func IsFailure(summary string) bool {
	return strings.HasPrefix(summary, FailurePrefix)
}
