// Package domain defines the core domain models for the simulation engine.
package domain

// RunStatus represents the status of a test run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected for the run.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCanceled:
		return true
	}
	return false
}

// ConversationStatus represents the status of one simulated conversation.
type ConversationStatus string

const (
	ConversationStatusRunning         ConversationStatus = "running"
	ConversationStatusCompleted       ConversationStatus = "completed"
	ConversationStatusGoalAchieved    ConversationStatus = "goal_achieved"
	ConversationStatusGoalNotAchieved ConversationStatus = "goal_not_achieved"
	ConversationStatusMaxTurnsReached ConversationStatus = "max_turns_reached"
	ConversationStatusError           ConversationStatus = "error"
)

// ConversationStatuses lists every valid conversation status.
var ConversationStatuses = []ConversationStatus{
	ConversationStatusRunning,
	ConversationStatusCompleted,
	ConversationStatusGoalAchieved,
	ConversationStatusGoalNotAchieved,
	ConversationStatusMaxTurnsReached,
	ConversationStatusError,
}

// IsTerminal reports whether the conversation has left the running state.
func (s ConversationStatus) IsTerminal() bool {
	return s != ConversationStatusRunning && s.Valid()
}

// Valid reports whether s is one of the enumerated statuses.
func (s ConversationStatus) Valid() bool {
	for _, known := range ConversationStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// TurnRole identifies who produced a turn.
type TurnRole string

const (
	// TurnRoleUser is a message written by the simulated user.
	TurnRoleUser TurnRole = "user"
	// TurnRoleAgent is a response from the agent under test.
	TurnRoleAgent TurnRole = "agent"
)

// ExecutionMode controls how scenarios of a test are scheduled.
type ExecutionMode string

const (
	ExecutionModeSequential ExecutionMode = "sequential"
	ExecutionModeParallel   ExecutionMode = "parallel"
)

// EventType represents the type of an engine event.
type EventType string

const (
	EventTypeRunStart         EventType = "run_start"
	EventTypeScenarioStart    EventType = "scenario:start"
	EventTypeTurnUser         EventType = "turn:user"
	EventTypeTurnAgent        EventType = "turn:agent"
	EventTypeScenarioEnd      EventType = "scenario:end"
	EventTypeSummaryGenerated EventType = "summary:generated"
	EventTypeRunComplete      EventType = "run:complete"
	EventTypeCanceled         EventType = "canceled"
	EventTypeRunError         EventType = "run:error"
	EventTypeComplete         EventType = "complete"
)

// IsTerminal reports whether the event closes a run's event stream.
func (t EventType) IsTerminal() bool {
	switch t {
	case EventTypeComplete, EventTypeCanceled, EventTypeRunError:
		return true
	}
	return false
}

// WebhookEvent names the notifications sent to a test's webhook.
type WebhookEvent string

const (
	WebhookEventScenarioCompleted WebhookEvent = "scenario.completed"
)
