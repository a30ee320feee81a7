package domain

// GatewayRequest is the body posted to the agent under test.
type GatewayRequest struct {
	Message   string            `json:"message"`
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id,omitempty"`
	FlowID    string            `json:"flow_id,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// GatewayResponse is a non-streaming reply from the agent under test.
type GatewayResponse struct {
	Answer      string `json:"answer"`
	ExecutionID string `json:"execution_id,omitempty"`
}

// DeltaEventData is the data for a delta SSE event.
type DeltaEventData struct {
	Text string `json:"text"`
}

// DoneEventData is the data for a done SSE event.
type DoneEventData struct {
	FinalMessage string `json:"final_message,omitempty"`
	ExecutionID  string `json:"execution_id,omitempty"`
}

// ErrorEventData is the data for an error SSE event.
type ErrorEventData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
