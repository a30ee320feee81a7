package domain

import "time"

// Turn is one message within a conversation.
type Turn struct {
	Index     int       `json:"index"`
	Role      TurnRole  `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the transcript and outcome of one scenario within a run.
type Conversation struct {
	ConversationID string             `json:"conversation_id"`
	RunID          string             `json:"run_id"`
	ScenarioID     string             `json:"scenario_id"`
	Status         ConversationStatus `json:"status"`
	Turns          []Turn             `json:"turns"`
	Summary        *string            `json:"summary,omitempty"`
	EndReason      *string            `json:"end_reason,omitempty"`
	GoalAchieved   *bool              `json:"goal_achieved,omitempty"`
	TotalTurns     int                `json:"total_turns"`
	StartedAt      time.Time          `json:"started_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// AppendTurn appends a turn with the next index and keeps TotalTurns in step.
func (c *Conversation) AppendTurn(role TurnRole, message string, at time.Time) Turn {
	turn := Turn{
		Index:     len(c.Turns),
		Role:      role,
		Message:   message,
		Timestamp: at,
	}
	c.Turns = append(c.Turns, turn)
	c.TotalTurns = len(c.Turns)
	return turn
}

// UserTurns counts the turns written by the simulated user.
func (c *Conversation) UserTurns() int {
	n := 0
	for _, t := range c.Turns {
		if t.Role == TurnRoleUser {
			n++
		}
	}
	return n
}

// CopyTurns returns a snapshot of the turns slice.
func (c *Conversation) CopyTurns() []Turn {
	out := make([]Turn, len(c.Turns))
	copy(out, c.Turns)
	return out
}
