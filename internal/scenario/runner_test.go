package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/events"
	"github.com/xiaot623/gogo/simulator/internal/simuser"
	"github.com/xiaot623/gogo/simulator/internal/summary"
)

type scriptedAgent struct {
	actions   []simuser.Action
	histories [][]domain.Turn
	panicAt   int
}

func (s *scriptedAgent) NextAction(ctx context.Context, cfg simuser.Config, history []domain.Turn) simuser.Action {
	call := len(s.histories)
	s.histories = append(s.histories, history)
	if s.panicAt > 0 && call+1 == s.panicAt {
		panic("model adapter exploded")
	}
	if call >= len(s.actions) {
		return simuser.Failure{Message: "script exhausted"}
	}
	return s.actions[call]
}

type fakeGateway struct {
	sessions []string
	failOn   map[int]error
	calls    int
}

func (g *fakeGateway) SendMessage(ctx context.Context, flow domain.FlowConfig, message, sessionID, userID string) (*domain.GatewayResponse, error) {
	g.calls++
	g.sessions = append(g.sessions, sessionID)
	if err := g.failOn[g.calls]; err != nil {
		return nil, err
	}
	return &domain.GatewayResponse{Answer: "echo: " + message}, nil
}

type memoryStore struct {
	mu        sync.Mutex
	convs     map[string]domain.Conversation
	createErr error
	updateErr error
	updates   int
	failed    map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{convs: make(map[string]domain.Conversation), failed: make(map[string]string)}
}

func (m *memoryStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[conv.ConversationID] = *conv
	return nil
}

func (m *memoryStore) UpdateConversation(ctx context.Context, conv *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	c := *conv
	c.Turns = conv.CopyTurns()
	m.convs[conv.ConversationID] = c
	return nil
}

func (m *memoryStore) FailConversation(ctx context.Context, conversationID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[conversationID]
	if !ok || conv.Status != domain.ConversationStatusRunning {
		return false, nil
	}
	conv.Status = domain.ConversationStatusError
	conv.EndReason = &reason
	conv.GoalAchieved = boolPtr(false)
	m.convs[conversationID] = conv
	m.failed[conversationID] = reason
	return true, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSink) Emit(ctx context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type recordingScheduler struct {
	jobs []summary.Job
}

func (r *recordingScheduler) Schedule(ctx context.Context, job summary.Job) {
	r.jobs = append(r.jobs, job)
}

type harness struct {
	agent     *scriptedAgent
	gateway   *fakeGateway
	store     *memoryStore
	sink      *recordingSink
	summaries *recordingScheduler
	runner    *Runner
}

func newHarness(actions ...simuser.Action) *harness {
	h := &harness{
		agent:     &scriptedAgent{actions: actions},
		gateway:   &fakeGateway{failOn: map[int]error{}},
		store:     newMemoryStore(),
		sink:      &recordingSink{},
		summaries: &recordingScheduler{},
	}
	h.runner = NewRunner(h.store, h.agent, h.gateway, Options{Summaries: h.summaries})
	return h
}

func testInput(maxTurns int) Input {
	return Input{
		Run: &domain.Run{RunID: "run_1"},
		Test: &domain.Test{
			TestID:        "test_1",
			Flow:          domain.FlowConfig{Endpoint: "http://agent.local"},
			SimulatedUser: domain.SimulatedUserSettings{Model: "gpt-4o"},
			Personas:      map[string]domain.Persona{"p1": {PersonaID: "p1", SystemPrompt: "You are terse."}},
		},
		Scenario: domain.Scenario{ScenarioID: "sc_1", PersonaID: "p1", Goal: "get a refund", MaxTurns: maxTurns},
		APIKey:   "sk-test",
		UserID:   "user_1",
	}
}

func notCanceled(context.Context) (bool, error) { return false, nil }

func assertTurnInvariant(t *testing.T, conv *domain.Conversation) {
	t.Helper()
	assert.Equal(t, len(conv.Turns), conv.TotalTurns)
	for i, turn := range conv.Turns {
		assert.Equal(t, i, turn.Index)
	}
	assert.True(t, conv.Status.IsTerminal())
	assert.NotNil(t, conv.CompletedAt)
}

func TestRunReachesMaxTurns(t *testing.T) {
	h := newHarness(
		simuser.SendMessage{Text: "first"},
		simuser.SendMessage{Text: "second"},
		simuser.SendMessage{Text: "never sent"},
	)

	conv := h.runner.Run(context.Background(), testInput(2), h.sink, notCanceled)

	assertTurnInvariant(t, conv)
	require.Len(t, conv.Turns, 4)
	assert.Equal(t, 2, conv.UserTurns())
	assert.Equal(t, domain.ConversationStatusMaxTurnsReached, conv.Status)
	require.NotNil(t, conv.GoalAchieved)
	assert.False(t, *conv.GoalAchieved)
	assert.Equal(t, "echo: second", conv.Turns[3].Message)
	assert.Len(t, h.agent.histories, 2)

	assert.Equal(t, []domain.EventType{
		domain.EventTypeScenarioStart,
		domain.EventTypeTurnUser,
		domain.EventTypeTurnAgent,
		domain.EventTypeTurnUser,
		domain.EventTypeTurnAgent,
		domain.EventTypeScenarioEnd,
	}, h.sink.types())

	stored := h.store.convs[conv.ConversationID]
	assert.Equal(t, domain.ConversationStatusMaxTurnsReached, stored.Status)
	assert.Len(t, stored.Turns, 4)

	require.Len(t, h.summaries.jobs, 1)
	assert.Equal(t, "gpt-4o", h.summaries.jobs[0].Model)
	assert.Equal(t, "get a refund", h.summaries.jobs[0].Goal)
}

func TestRunUsesOneSessionPerScenario(t *testing.T) {
	h := newHarness(
		simuser.SendMessage{Text: "a"},
		simuser.SendMessage{Text: "b"},
		simuser.EndConversation{Reason: "done", GoalAchieved: true},
	)

	h.runner.Run(context.Background(), testInput(5), h.sink, notCanceled)

	require.Len(t, h.gateway.sessions, 2)
	assert.NotEmpty(t, h.gateway.sessions[0])
	assert.Equal(t, h.gateway.sessions[0], h.gateway.sessions[1])

	other := newHarness(simuser.SendMessage{Text: "x"}, simuser.EndConversation{Reason: "ok", GoalAchieved: true})
	other.runner.Run(context.Background(), testInput(5), other.sink, notCanceled)
	assert.NotEqual(t, h.gateway.sessions[0], other.gateway.sessions[0])
}

func TestRunEndsImmediatelyWithGoalAchieved(t *testing.T) {
	h := newHarness(simuser.EndConversation{Reason: "not needed", GoalAchieved: true})

	conv := h.runner.Run(context.Background(), testInput(3), h.sink, notCanceled)

	assertTurnInvariant(t, conv)
	assert.Empty(t, conv.Turns)
	assert.Equal(t, domain.ConversationStatusGoalAchieved, conv.Status)
	assert.Equal(t, "not needed", *conv.EndReason)
	assert.True(t, *conv.GoalAchieved)
	assert.Empty(t, h.summaries.jobs)
	assert.Equal(t, 0, h.gateway.calls)
}

func TestRunGoalNotAchieved(t *testing.T) {
	h := newHarness(
		simuser.SendMessage{Text: "help"},
		simuser.EndConversation{Reason: "agent refused", GoalAchieved: false},
	)

	conv := h.runner.Run(context.Background(), testInput(3), h.sink, notCanceled)

	assertTurnInvariant(t, conv)
	assert.Equal(t, domain.ConversationStatusGoalNotAchieved, conv.Status)
	assert.False(t, *conv.GoalAchieved)
	assert.Len(t, conv.Turns, 2)
}

func TestRunSubstitutesAgentErrors(t *testing.T) {
	h := newHarness(
		simuser.SendMessage{Text: "one"},
		simuser.SendMessage{Text: "two"},
		simuser.EndConversation{Reason: "done", GoalAchieved: true},
	)
	h.gateway.failOn[1] = errors.New("connection reset")

	conv := h.runner.Run(context.Background(), testInput(5), h.sink, notCanceled)

	assertTurnInvariant(t, conv)
	require.Len(t, conv.Turns, 4)
	assert.Equal(t, "[Agent Error: connection reset]", conv.Turns[1].Message)
	assert.Equal(t, domain.TurnRoleAgent, conv.Turns[1].Role)
	assert.Equal(t, "echo: two", conv.Turns[3].Message)
	assert.Equal(t, domain.ConversationStatusGoalAchieved, conv.Status)
	require.Len(t, h.agent.histories, 3)
	assert.Len(t, h.agent.histories[1], 2)
}

func TestRunSimulatedUserFailureEndsWithError(t *testing.T) {
	h := newHarness(
		simuser.SendMessage{Text: "one"},
		simuser.Failure{Message: "simulated user call timed out after 1m0s"},
	)

	conv := h.runner.Run(context.Background(), testInput(5), h.sink, notCanceled)

	assertTurnInvariant(t, conv)
	assert.Equal(t, domain.ConversationStatusError, conv.Status)
	assert.Equal(t, "simulated user call timed out after 1m0s", *conv.EndReason)
	assert.False(t, *conv.GoalAchieved)
}

func TestRunObservesCancellation(t *testing.T) {
	h := newHarness(
		simuser.SendMessage{Text: "one"},
		simuser.SendMessage{Text: "two"},
		simuser.SendMessage{Text: "three"},
	)
	checks := 0
	cancelAfterFirstTurn := func(context.Context) (bool, error) {
		checks++
		return checks > 1, nil
	}

	conv := h.runner.Run(context.Background(), testInput(5), h.sink, cancelAfterFirstTurn)

	assertTurnInvariant(t, conv)
	assert.Equal(t, domain.ConversationStatusError, conv.Status)
	assert.Equal(t, CanceledReason, *conv.EndReason)
	assert.Len(t, conv.Turns, 2)
	assert.Equal(t, 1, h.gateway.calls)
}

func TestRunCancelCheckErrorIsFault(t *testing.T) {
	h := newHarness(simuser.SendMessage{Text: "one"})
	failing := func(context.Context) (bool, error) { return false, errors.New("database is locked") }

	conv := h.runner.Run(context.Background(), testInput(5), h.sink, failing)

	assert.Equal(t, domain.ConversationStatusError, conv.Status)
	assert.Contains(t, *conv.EndReason, "database is locked")
	assert.Empty(t, conv.Turns)
}

func TestRunRecoversPanics(t *testing.T) {
	h := newHarness(simuser.SendMessage{Text: "one"})
	h.agent.panicAt = 2

	conv := h.runner.Run(context.Background(), testInput(5), h.sink, notCanceled)

	assertTurnInvariant(t, conv)
	assert.Equal(t, domain.ConversationStatusError, conv.Status)
	assert.Equal(t, "model adapter exploded", *conv.EndReason)
	assert.Len(t, conv.Turns, 2)
	assert.Equal(t, domain.EventTypeScenarioEnd, h.sink.types()[len(h.sink.types())-1])
}

func TestRunPersistenceFailures(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		h := newHarness(simuser.SendMessage{Text: "one"})
		h.store.createErr = errors.New("no such table")

		conv := h.runner.Run(context.Background(), testInput(5), h.sink, notCanceled)

		assert.Equal(t, domain.ConversationStatusError, conv.Status)
		assert.Contains(t, *conv.EndReason, "no such table")
		assert.Empty(t, h.agent.histories)
		assert.Equal(t, []domain.EventType{domain.EventTypeScenarioEnd}, h.sink.types())
	})

	t.Run("update", func(t *testing.T) {
		h := newHarness(simuser.SendMessage{Text: "one"}, simuser.SendMessage{Text: "two"})
		h.store.updateErr = errors.New("disk I/O error")

		conv := h.runner.Run(context.Background(), testInput(5), h.sink, notCanceled)

		assertTurnInvariant(t, conv)
		assert.Equal(t, domain.ConversationStatusError, conv.Status)
		assert.Contains(t, *conv.EndReason, "disk I/O error")
		assert.Len(t, conv.Turns, 2)

		stored := h.store.convs[conv.ConversationID]
		assert.Equal(t, domain.ConversationStatusError, stored.Status)
		require.NotNil(t, stored.EndReason)
		assert.Equal(t, *conv.EndReason, *stored.EndReason)
		require.NotNil(t, conv.GoalAchieved)
		assert.False(t, *conv.GoalAchieved)
	})

	t.Run("final update", func(t *testing.T) {
		h := newHarness(simuser.EndConversation{Reason: "done", GoalAchieved: true})
		h.store.updateErr = errors.New("database is locked")

		conv := h.runner.Run(context.Background(), testInput(5), h.sink, notCanceled)

		assert.Equal(t, domain.ConversationStatusError, conv.Status)
		assert.Contains(t, *conv.EndReason, "database is locked")
		stored := h.store.convs[conv.ConversationID]
		assert.Equal(t, domain.ConversationStatusError, stored.Status)
		assert.Equal(t, *conv.EndReason, h.store.failed[conv.ConversationID])
	})
}

func TestRunDefaultsMaxTurns(t *testing.T) {
	actions := make([]simuser.Action, 0, DefaultMaxTurns+1)
	for i := 0; i <= DefaultMaxTurns; i++ {
		actions = append(actions, simuser.SendMessage{Text: fmt.Sprintf("m%d", i)})
	}
	h := newHarness(actions...)

	conv := h.runner.Run(context.Background(), testInput(0), events.Discard, notCanceled)

	assert.Equal(t, domain.ConversationStatusMaxTurnsReached, conv.Status)
	assert.Equal(t, DefaultMaxTurns, conv.UserTurns())
}
