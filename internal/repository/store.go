// Package repository persists runs, conversations and events.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// ErrConversationFinalized is returned when writing to a conversation that
// already left the running status.
var ErrConversationFinalized = errors.New("conversation is already finalized")

// Store defines the interface for data persistence.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, testID string, limit int) ([]domain.Run, error)
	StartRun(ctx context.Context, runID string, totalScenarios int) error
	IncrementCompletedScenarios(ctx context.Context, runID string) (int, error)
	CompleteRun(ctx context.Context, runID string, stats *domain.RunStats) (bool, error)
	FailRun(ctx context.Context, runID, message string) error
	CancelRun(ctx context.Context, runID string) (bool, error)
	FailInterruptedRuns(ctx context.Context, message string) (int, error)

	// Conversation operations
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	UpdateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, runID string) ([]domain.Conversation, error)
	SetConversationSummary(ctx context.Context, conversationID, summary string) error
	ListStaleConversations(ctx context.Context, endedBefore time.Time) ([]domain.Conversation, error)
	FailConversation(ctx context.Context, conversationID, reason string) (bool, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Lifecycle
	Close() error
}
