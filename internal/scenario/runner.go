package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/events"
	"github.com/xiaot623/gogo/simulator/internal/simuser"
	"github.com/xiaot623/gogo/simulator/internal/summary"
)

// DefaultMaxTurns applies to scenarios that do not set a positive limit.
const DefaultMaxTurns = 10

// Store persists conversations.
type Store interface {
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	UpdateConversation(ctx context.Context, conv *domain.Conversation) error
	FailConversation(ctx context.Context, conversationID, reason string) (bool, error)
}

// ActionSource decides the simulated user's next move.
type ActionSource interface {
	NextAction(ctx context.Context, cfg simuser.Config, history []domain.Turn) simuser.Action
}

// Gateway delivers messages to the agent under test.
type Gateway interface {
	SendMessage(ctx context.Context, flow domain.FlowConfig, message, sessionID, userID string) (*domain.GatewayResponse, error)
}

// SummaryScheduler starts summary generation without blocking.
type SummaryScheduler interface {
	Schedule(ctx context.Context, job summary.Job)
}

// Observer is told about every finished conversation.
type Observer interface {
	ObserveConversation(status domain.ConversationStatus, turns int)
}

// CancelCheck reports whether the run has been canceled. It re-reads the
// persisted run status.
type CancelCheck func(ctx context.Context) (bool, error)

// Input identifies the scenario to run.
type Input struct {
	Run      *domain.Run
	Test     *domain.Test
	Scenario domain.Scenario
	APIKey   string
	UserID   string
}

// Options configures a Runner.
type Options struct {
	TurnDelay    time.Duration
	SummaryModel string
	Summaries    SummaryScheduler
	Observer     Observer
	Logger       *slog.Logger
}

// Runner drives single scenarios to completion.
type Runner struct {
	store        Store
	agent        ActionSource
	gateway      Gateway
	summaries    SummaryScheduler
	summaryModel string
	observer     Observer
	turnDelay    time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewRunner creates a scenario runner.
func NewRunner(store Store, agent ActionSource, gateway Gateway, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:        store,
		agent:        agent,
		gateway:      gateway,
		summaries:    opts.Summaries,
		summaryModel: opts.SummaryModel,
		observer:     opts.Observer,
		turnDelay:    opts.TurnDelay,
		logger:       logger.With("component", "scenario"),
		now:          time.Now,
	}
}

// Run executes one scenario and returns its conversation. It always returns
// a conversation in a terminal status; failures are recorded on it.
func (r *Runner) Run(ctx context.Context, in Input, emit events.Sink, isCanceled CancelCheck) *domain.Conversation {
	if emit == nil {
		emit = events.Discard
	}
	if isCanceled == nil {
		isCanceled = neverCanceled
	}
	runID := in.Run.RunID
	logger := r.logger.With("run_id", runID, "scenario_id", in.Scenario.ScenarioID)

	conv := &domain.Conversation{
		ConversationID: "conv_" + uuid.New().String(),
		RunID:          runID,
		ScenarioID:     in.Scenario.ScenarioID,
		Status:         domain.ConversationStatusRunning,
		Turns:          []domain.Turn{},
		StartedAt:      r.now(),
	}

	maxTurns := in.Scenario.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	state := NewState(maxTurns)

	if err := r.store.CreateConversation(ctx, conv); err != nil {
		logger.Error("failed to create conversation", "error", err)
		state = Transition(state, Fault{Message: fmt.Sprintf("failed to create conversation: %v", err)})
	} else {
		emit.Emit(ctx, events.New(runID, domain.EventTypeScenarioStart, domain.ScenarioStartPayload{
			ConversationID: conv.ConversationID,
			ScenarioID:     in.Scenario.ScenarioID,
			ScenarioName:   in.Scenario.Name,
			Goal:           in.Scenario.Goal,
			MaxTurns:       maxTurns,
		}))
		state = r.loop(ctx, in, conv, state, emit, isCanceled)
	}

	r.finish(ctx, in, conv, state, emit, logger)
	return conv
}

// loop runs the turn loop. Panics are recovered into a Fault.
func (r *Runner) loop(ctx context.Context, in Input, conv *domain.Conversation, state State, emit events.Sink, isCanceled CancelCheck) (final State) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("scenario loop panicked", "conversation_id", conv.ConversationID, "panic", rec)
			final = Transition(state, Fault{Message: fmt.Sprintf("%v", rec)})
		}
	}()

	persona := in.Test.Persona(in.Scenario.PersonaID)
	cfg := simuser.NewConfig(in.Test, persona, in.Scenario, in.APIKey)
	sessionID := "sess_" + uuid.New().String()
	runID := conv.RunID

	action := r.agent.NextAction(ctx, cfg, nil)

	for !state.Done() {
		canceled, err := isCanceled(ctx)
		if err != nil {
			state = Transition(state, Fault{Message: fmt.Sprintf("failed to check run status: %v", err)})
			continue
		}
		if canceled {
			state = Transition(state, Canceled{})
			continue
		}

		state = Transition(state, ActionReceived{Action: action})
		msg, ok := action.(simuser.SendMessage)
		if !ok || state.Phase != PhaseAwaitingAgent {
			continue
		}

		userTurn := conv.AppendTurn(domain.TurnRoleUser, msg.Text, r.now())
		emit.Emit(ctx, events.New(runID, domain.EventTypeTurnUser, domain.TurnPayload{
			ConversationID: conv.ConversationID,
			ScenarioID:     conv.ScenarioID,
			Turn:           userTurn,
		}))

		answer := r.callAgent(ctx, in, msg.Text, sessionID)
		agentTurn := conv.AppendTurn(domain.TurnRoleAgent, answer, r.now())
		emit.Emit(ctx, events.New(runID, domain.EventTypeTurnAgent, domain.TurnPayload{
			ConversationID: conv.ConversationID,
			ScenarioID:     conv.ScenarioID,
			Turn:           agentTurn,
		}))

		if err := r.store.UpdateConversation(ctx, conv); err != nil {
			state = Transition(state, Fault{Message: fmt.Sprintf("failed to save turns: %v", err)})
			continue
		}

		state = Transition(state, AgentReplied{})
		if state.Done() {
			break
		}

		if err := r.pause(ctx); err != nil {
			state = Transition(state, Fault{Message: err.Error()})
			continue
		}
		action = r.agent.NextAction(ctx, cfg, conv.CopyTurns())
	}
	return state
}

// callAgent returns the agent's answer, or an error marker in its place.
func (r *Runner) callAgent(ctx context.Context, in Input, message, sessionID string) string {
	resp, err := r.gateway.SendMessage(ctx, in.Test.Flow, message, sessionID, in.UserID)
	if err != nil {
		r.logger.Warn("agent call failed", "run_id", in.Run.RunID, "scenario_id", in.Scenario.ScenarioID, "error", err)
		return fmt.Sprintf("[Agent Error: %s]", err.Error())
	}
	if resp == nil {
		return ""
	}
	return resp.Answer
}

func neverCanceled(context.Context) (bool, error) {
	return false, nil
}

func (r *Runner) pause(ctx context.Context) error {
	if r.turnDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(r.turnDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish applies the terminal state, persists it, emits scenario:end and
// hands the transcript to the summary scheduler.
func (r *Runner) finish(ctx context.Context, in Input, conv *domain.Conversation, state State, emit events.Sink, logger *slog.Logger) {
	completedAt := r.now()
	conv.Status = state.Status
	conv.EndReason = state.EndReason
	conv.GoalAchieved = state.GoalAchieved
	conv.TotalTurns = len(conv.Turns)
	conv.CompletedAt = &completedAt

	saveCtx := context.WithoutCancel(ctx)
	if err := r.store.UpdateConversation(saveCtx, conv); err != nil {
		logger.Error("failed to save conversation", "conversation_id", conv.ConversationID, "error", err)
		if conv.Status != domain.ConversationStatusError || conv.EndReason == nil {
			reason := fmt.Sprintf("failed to save conversation: %v", err)
			conv.Status = domain.ConversationStatusError
			conv.EndReason = &reason
		}
		conv.GoalAchieved = boolPtr(false)
		// Mark the stored row too so it agrees with what callers see.
		if _, err := r.store.FailConversation(saveCtx, conv.ConversationID, *conv.EndReason); err != nil {
			logger.Error("failed to mark conversation failed", "conversation_id", conv.ConversationID, "error", err)
		}
	}

	emit.Emit(ctx, events.New(conv.RunID, domain.EventTypeScenarioEnd, domain.ScenarioEndPayload{
		ConversationID: conv.ConversationID,
		ScenarioID:     conv.ScenarioID,
		Status:         conv.Status,
		EndReason:      conv.EndReason,
		GoalAchieved:   conv.GoalAchieved,
		TotalTurns:     conv.TotalTurns,
	}))
	logger.Info("scenario finished", "conversation_id", conv.ConversationID, "status", conv.Status, "turns", conv.TotalTurns)

	if r.observer != nil {
		r.observer.ObserveConversation(conv.Status, conv.TotalTurns)
	}

	if r.summaries != nil && len(conv.Turns) > 0 {
		settings := in.Test.SimulatedUser
		model := settings.SummaryModel
		if model == "" {
			model = r.summaryModel
		}
		if model == "" {
			model = settings.Model
		}
		r.summaries.Schedule(ctx, summary.Job{
			RunID:          conv.RunID,
			ConversationID: conv.ConversationID,
			Turns:          conv.CopyTurns(),
			Goal:           in.Scenario.Goal,
			Model:          model,
			APIKey:         in.APIKey,
			Emit:           emit,
		})
	}
}
