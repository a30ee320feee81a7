// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/repository"
)

// NewStore returns an in-memory SQLite store closed at test cleanup.
func NewStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// CreateRun inserts a pending run for testID.
func CreateRun(t *testing.T, store repository.Store, runID, testID string) *domain.Run {
	t.Helper()
	run := &domain.Run{
		RunID:     runID,
		TestID:    testID,
		UserID:    "u1",
		Status:    domain.RunStatusPending,
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	return run
}

// NewTest builds a test with n scenarios s1..sn sharing one persona.
func NewTest(testID string, mode domain.ExecutionMode, n int) *domain.Test {
	test := &domain.Test{
		TestID:        testID,
		Name:          "test " + testID,
		ExecutionMode: mode,
		Flow:          domain.FlowConfig{Endpoint: "http://agent.invalid/chat"},
		SimulatedUser: domain.SimulatedUserSettings{Model: "gpt-4o"},
		Personas: map[string]domain.Persona{
			"p1": {PersonaID: "p1", Name: "Tester", SystemPrompt: "You are a tester."},
		},
	}
	for i := 1; i <= n; i++ {
		test.Scenarios = append(test.Scenarios, domain.Scenario{
			ScenarioID: fmt.Sprintf("s%d", i),
			TestID:     testID,
			PersonaID:  "p1",
			Name:       fmt.Sprintf("scenario %d", i),
			Goal:       fmt.Sprintf("goal %d", i),
			MaxTurns:   3,
			OrderIndex: i,
		})
	}
	return test
}

// RecordingSink collects emitted events.
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

// Emit records ev.
func (r *RecordingSink) Emit(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a snapshot of the recorded events.
func (r *RecordingSink) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *RecordingSink) Types() []domain.EventType {
	evs := r.Events()
	out := make([]domain.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// Terminal returns the recorded events that close a run's stream.
func (r *RecordingSink) Terminal() []domain.Event {
	var out []domain.Event
	for _, ev := range r.Events() {
		if ev.Type.IsTerminal() {
			out = append(out, ev)
		}
	}
	return out
}
