package domain

import (
	"encoding/json"
	"time"
)

// Run represents a single execution of all scenarios of a test.
type Run struct {
	RunID              string          `json:"run_id"`
	TestID             string          `json:"test_id"`
	UserID             string          `json:"user_id"`
	Status             RunStatus       `json:"status"`
	TotalScenarios     int             `json:"total_scenarios"`
	CompletedScenarios int             `json:"completed_scenarios"`
	Stats              *RunStats       `json:"stats,omitempty"`
	Error              string          `json:"error,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
}

// RunStats aggregates the outcomes of a run's conversations.
type RunStats struct {
	TotalConversations int                        `json:"total_conversations"`
	GoalAchieved       int                        `json:"goal_achieved"`
	GoalNotAchieved    int                        `json:"goal_not_achieved"`
	MaxTurnsReached    int                        `json:"max_turns_reached"`
	Errored            int                        `json:"errored"`
	SuccessRate        float64                    `json:"success_rate"`
	AverageTurns       float64                    `json:"average_turns"`
	ByStatus           map[ConversationStatus]int `json:"by_status"`
}

// Event represents a recorded engine event for replay.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
