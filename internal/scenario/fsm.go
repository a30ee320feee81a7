// Package scenario drives one scenario's turn loop between the simulated user
// and the agent under test.
package scenario

import (
	"fmt"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/simuser"
)

// CanceledReason is the end reason recorded when a run is canceled mid-scenario.
const CanceledReason = "Run was canceled"

// Phase is the position of the turn loop.
type Phase int

const (
	// PhaseAwaitingAction waits for the simulated user's decision.
	PhaseAwaitingAction Phase = iota
	// PhaseAwaitingAgent waits for the agent's reply to a delivered message.
	PhaseAwaitingAgent
	// PhaseDone is terminal.
	PhaseDone
)

// State is the turn loop state. Status stays running until Phase is PhaseDone.
type State struct {
	Phase        Phase
	Status       domain.ConversationStatus
	UserTurns    int
	MaxTurns     int
	EndReason    *string
	GoalAchieved *bool
}

// Event drives a transition. It is one of ActionReceived, AgentReplied,
// Canceled or Fault.
type Event interface {
	isEvent()
}

// ActionReceived carries the simulated user's decision.
type ActionReceived struct {
	Action simuser.Action
}

// AgentReplied reports that the agent turn has been appended.
type AgentReplied struct{}

// Canceled reports that a checkpoint observed run cancellation.
type Canceled struct{}

// Fault reports an unexpected failure inside the loop.
type Fault struct {
	Message string
}

func (ActionReceived) isEvent() {}
func (AgentReplied) isEvent()   {}
func (Canceled) isEvent()       {}
func (Fault) isEvent()          {}

// NewState returns the initial running state.
func NewState(maxTurns int) State {
	return State{
		Phase:    PhaseAwaitingAction,
		Status:   domain.ConversationStatusRunning,
		MaxTurns: maxTurns,
	}
}

// Done reports whether the loop has reached a terminal state.
func (s State) Done() bool {
	return s.Phase == PhaseDone
}

// Transition computes the next state. It is pure; terminal states absorb
// every event unchanged.
func Transition(s State, e Event) State {
	if s.Done() {
		return s
	}

	switch ev := e.(type) {
	case Canceled:
		return s.finish(domain.ConversationStatusError, CanceledReason, nil)
	case Fault:
		return s.finish(domain.ConversationStatusError, ev.Message, boolPtr(false))
	case ActionReceived:
		if s.Phase != PhaseAwaitingAction {
			return s.unexpected(e)
		}
		switch a := ev.Action.(type) {
		case simuser.SendMessage:
			s.Phase = PhaseAwaitingAgent
			s.UserTurns++
			return s
		case simuser.EndConversation:
			status := domain.ConversationStatusGoalNotAchieved
			if a.GoalAchieved {
				status = domain.ConversationStatusGoalAchieved
			}
			return s.finish(status, a.Reason, boolPtr(a.GoalAchieved))
		case simuser.Failure:
			return s.finish(domain.ConversationStatusError, a.Message, boolPtr(false))
		}
		return s.unexpected(e)
	case AgentReplied:
		if s.Phase != PhaseAwaitingAgent {
			return s.unexpected(e)
		}
		if s.UserTurns >= s.MaxTurns {
			return s.finish(domain.ConversationStatusMaxTurnsReached, fmt.Sprintf("Reached maximum of %d turns", s.MaxTurns), boolPtr(false))
		}
		s.Phase = PhaseAwaitingAction
		return s
	}
	return s.unexpected(e)
}

func (s State) finish(status domain.ConversationStatus, reason string, goalAchieved *bool) State {
	s.Phase = PhaseDone
	s.Status = status
	s.EndReason = &reason
	s.GoalAchieved = goalAchieved
	return s
}

func (s State) unexpected(e Event) State {
	return s.finish(domain.ConversationStatusError, fmt.Sprintf("unexpected %T in phase %d", e, s.Phase), boolPtr(false))
}

func boolPtr(v bool) *bool {
	return &v
}
