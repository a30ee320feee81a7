package service

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/events"
)

// StaleReason is recorded on conversations the sweeper fails.
const StaleReason = "Run ended before conversation finished"

// RunStaleConversationSweeper fails conversations left running after their
// run ended, every interval until ctx is done.
func (s *Service) RunStaleConversationSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleConversations(ctx)
		}
	}
}

// sweepStaleConversations returns how many conversations it failed.
func (s *Service) sweepStaleConversations(ctx context.Context) int {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stale, err := s.store.ListStaleConversations(sweepCtx, time.Now().Add(-s.staleGrace))
	if err != nil {
		s.logger.Warn("stale conversation sweep failed", "error", err)
		return 0
	}

	swept := 0
	for _, conv := range stale {
		updated, err := s.store.FailConversation(sweepCtx, conv.ConversationID, StaleReason)
		if err != nil {
			s.logger.Warn("failed to fail stale conversation", "conversation_id", conv.ConversationID, "error", err)
			continue
		}
		if !updated {
			continue
		}
		swept++

		reason := StaleReason
		goal := false
		s.sink.Emit(sweepCtx, events.New(conv.RunID, domain.EventTypeScenarioEnd, domain.ScenarioEndPayload{
			ConversationID: conv.ConversationID,
			ScenarioID:     conv.ScenarioID,
			Status:         domain.ConversationStatusError,
			EndReason:      &reason,
			GoalAchieved:   &goal,
			TotalTurns:     len(conv.Turns),
		}))
	}
	if swept > 0 {
		s.logger.Info("failed stale conversations", "count", swept)
	}
	return swept
}
