package domain

// StartRunRequest represents the request to start a run of a test.
type StartRunRequest struct {
	UserID string `json:"user_id,omitempty"`
	APIKey string `json:"api_key"`
}

// StartRunResponse represents the response after a run has been scheduled.
type StartRunResponse struct {
	RunID          string    `json:"run_id"`
	TestID         string    `json:"test_id"`
	Status         RunStatus `json:"status"`
	TotalScenarios int       `json:"total_scenarios"`
}

// CancelRunResponse represents the response after a cancel request.
type CancelRunResponse struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

// ListConversationsResponse represents the conversations of a run.
type ListConversationsResponse struct {
	RunID         string         `json:"run_id"`
	Conversations []Conversation `json:"conversations"`
}

// TestListItem represents a test in the list response.
type TestListItem struct {
	TestID        string        `json:"test_id"`
	Name          string        `json:"name"`
	ExecutionMode ExecutionMode `json:"execution_mode"`
	Scenarios     int           `json:"scenarios"`
}

// ErrorResponse is the JSON error body of the control API.
type ErrorResponse struct {
	Error string `json:"error"`
}
