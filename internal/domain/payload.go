package domain

// RunStartPayload is the payload for the run_start event.
type RunStartPayload struct {
	RunID          string        `json:"run_id"`
	TestID         string        `json:"test_id"`
	TotalScenarios int           `json:"total_scenarios"`
	ExecutionMode  ExecutionMode `json:"execution_mode"`
}

// ScenarioStartPayload is the payload for the scenario:start event.
type ScenarioStartPayload struct {
	ConversationID string `json:"conversation_id"`
	ScenarioID     string `json:"scenario_id"`
	ScenarioName   string `json:"scenario_name"`
	Goal           string `json:"goal"`
	MaxTurns       int    `json:"max_turns"`
}

// TurnPayload is the payload for the turn:user and turn:agent events.
type TurnPayload struct {
	ConversationID string `json:"conversation_id"`
	ScenarioID     string `json:"scenario_id"`
	Turn           Turn   `json:"turn"`
}

// ScenarioEndPayload is the payload for the scenario:end event.
type ScenarioEndPayload struct {
	ConversationID string             `json:"conversation_id"`
	ScenarioID     string             `json:"scenario_id"`
	Status         ConversationStatus `json:"status"`
	EndReason      *string            `json:"end_reason,omitempty"`
	GoalAchieved   *bool              `json:"goal_achieved,omitempty"`
	TotalTurns     int                `json:"total_turns"`
}

// SummaryGeneratedPayload is the payload for the summary:generated event.
type SummaryGeneratedPayload struct {
	ConversationID string `json:"conversation_id"`
	Summary        string `json:"summary"`
}

// RunCompletePayload is the payload for the run:complete event.
type RunCompletePayload struct {
	RunID              string    `json:"run_id"`
	CompletedScenarios int       `json:"completed_scenarios"`
	TotalScenarios     int       `json:"total_scenarios"`
	Stats              *RunStats `json:"stats"`
}

// CanceledPayload is the payload for the canceled event.
type CanceledPayload struct {
	RunID              string `json:"run_id"`
	CompletedScenarios int    `json:"completed_scenarios"`
}

// RunErrorPayload is the payload for the run:error event.
type RunErrorPayload struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// CompletePayload is the payload for the final complete event.
type CompletePayload struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

// ScenarioWebhookPayload is delivered to a test's webhook when a scenario finishes.
type ScenarioWebhookPayload struct {
	RunID          string             `json:"run_id"`
	TestID         string             `json:"test_id"`
	ScenarioID     string             `json:"scenario_id"`
	ConversationID string             `json:"conversation_id"`
	Status         ConversationStatus `json:"status"`
	GoalAchieved   *bool              `json:"goal_achieved,omitempty"`
	TotalTurns     int                `json:"total_turns"`
	EndReason      *string            `json:"end_reason,omitempty"`
}
