package orchestrator

import "github.com/xiaot623/gogo/simulator/internal/domain"

// ComputeStats aggregates the outcomes of a run's conversations.
func ComputeStats(convs []domain.Conversation) *domain.RunStats {
	stats := &domain.RunStats{
		TotalConversations: len(convs),
		ByStatus:           make(map[domain.ConversationStatus]int),
	}
	if len(convs) == 0 {
		return stats
	}

	turns := 0
	for _, c := range convs {
		stats.ByStatus[c.Status]++
		turns += c.TotalTurns
		switch c.Status {
		case domain.ConversationStatusGoalAchieved:
			stats.GoalAchieved++
		case domain.ConversationStatusGoalNotAchieved:
			stats.GoalNotAchieved++
		case domain.ConversationStatusMaxTurnsReached:
			stats.MaxTurnsReached++
		case domain.ConversationStatusError:
			stats.Errored++
		}
	}

	total := float64(len(convs))
	stats.SuccessRate = float64(stats.GoalAchieved) / total
	stats.AverageTurns = float64(turns) / total
	return stats
}
