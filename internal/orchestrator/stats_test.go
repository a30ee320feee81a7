package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

func TestComputeStats(t *testing.T) {
	convs := []domain.Conversation{
		{Status: domain.ConversationStatusGoalAchieved, TotalTurns: 4},
		{Status: domain.ConversationStatusGoalAchieved, TotalTurns: 2},
		{Status: domain.ConversationStatusGoalNotAchieved, TotalTurns: 6},
		{Status: domain.ConversationStatusMaxTurnsReached, TotalTurns: 8},
		{Status: domain.ConversationStatusError, TotalTurns: 0},
	}

	stats := ComputeStats(convs)
	assert.Equal(t, 5, stats.TotalConversations)
	assert.Equal(t, 2, stats.GoalAchieved)
	assert.Equal(t, 1, stats.GoalNotAchieved)
	assert.Equal(t, 1, stats.MaxTurnsReached)
	assert.Equal(t, 1, stats.Errored)
	assert.InDelta(t, 0.4, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 4.0, stats.AverageTurns, 1e-9)
	assert.Equal(t, 2, stats.ByStatus[domain.ConversationStatusGoalAchieved])
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)
	assert.Equal(t, 0, stats.TotalConversations)
	assert.Zero(t, stats.SuccessRate)
	assert.NotNil(t, stats.ByStatus)
}
