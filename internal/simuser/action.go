// Package simuser implements the simulated user: an LLM playing a persona that
// decides, turn by turn, whether to message the agent under test or end the
// conversation.
package simuser

// Action is the simulated user's next move. It is one of SendMessage,
// EndConversation or Failure.
type Action interface {
	isAction()
}

// SendMessage asks the runner to deliver Text to the agent under test.
type SendMessage struct {
	Text string
}

// EndConversation closes the conversation with the simulated user's verdict.
type EndConversation struct {
	Reason       string
	GoalAchieved bool
}

// Failure reports that no decision could be obtained.
type Failure struct {
	Message string
}

func (SendMessage) isAction()     {}
func (EndConversation) isAction() {}
func (Failure) isAction()         {}
