package domain

import "errors"

// Configuration errors are fatal at run start; no scenario is attempted.
var (
	ErrNoScenarios          = errors.New("Test has no scenarios")
	ErrNoSimulatedUserModel = errors.New("simulated user model is not configured")
	ErrMissingAPIKey        = errors.New("simulated user API key is required")
)

var (
	ErrRunNotFound          = errors.New("run not found")
	ErrTestNotFound         = errors.New("test not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrRunNotCancelable     = errors.New("run is already finished")
)
