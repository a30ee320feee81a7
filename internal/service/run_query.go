package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// ListConversations returns the conversations of a run.
func (s *Service) ListConversations(ctx context.Context, runID string) (*domain.ListConversationsResponse, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	convs, err := s.store.ListConversations(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return &domain.ListConversationsResponse{RunID: runID, Conversations: convs}, nil
}

// GetConversation returns one conversation.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrConversationNotFound
	}
	return conv, nil
}

// GetRunEvents returns a run's recorded events.
func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	events, err := s.store.GetEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}

// StreamRunEvents replays a run's recorded events after afterTs and then
// follows live ones. The channel closes after the terminal event, when the
// run is already finished, or when ctx is done.
func (s *Service) StreamRunEvents(ctx context.Context, runID string, afterTs int64) (<-chan domain.Event, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	// Subscribe before reading the backlog so nothing falls in between.
	live, unsubscribe := s.broker.Subscribe(runID)
	backlog, err := s.store.GetEvents(ctx, runID, afterTs, nil, 0)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}

	out := make(chan domain.Event)
	go func() {
		defer close(out)
		defer unsubscribe()

		seen := make(map[string]struct{}, len(backlog))
		send := func(ev domain.Event) bool {
			if _, dup := seen[ev.EventID]; dup {
				return true
			}
			seen[ev.EventID] = struct{}{}
			select {
			case out <- ev:
				return !ev.Type.IsTerminal()
			case <-ctx.Done():
				return false
			}
		}

		for _, ev := range backlog {
			if !send(ev) {
				return
			}
		}

		// catchUp sends what the log holds beyond what was already sent. The
		// recorder persists an event before the broker publishes it.
		catchUp := func() {
			rest, err := s.store.GetEvents(ctx, runID, afterTs, nil, 0)
			if err != nil {
				s.logger.Warn("failed to read run events", "run_id", runID, "error", err)
				return
			}
			for _, ev := range rest {
				if !send(ev) {
					return
				}
			}
		}

		// A finished run's log is complete; replay what was recorded since
		// the backlog read instead of waiting on the broker.
		if s.finished(ctx, runID) {
			catchUp()
			return
		}

		for {
			select {
			case ev, ok := <-live:
				if !ok {
					// The broker dropped events for this subscriber.
					catchUp()
					return
				}
				if ev.Type.IsTerminal() {
					catchUp()
					send(ev)
					return
				}
				if !send(ev) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// finished reports whether the run is terminal and its terminal event has
// been recorded.
func (s *Service) finished(ctx context.Context, runID string) bool {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil || run == nil || !run.Status.IsTerminal() {
		return false
	}
	terminal, err := s.store.GetEvents(ctx, runID, 0, terminalTypes, 1)
	return err == nil && len(terminal) > 0
}

var terminalTypes = []string{
	string(domain.EventTypeComplete),
	string(domain.EventTypeCanceled),
	string(domain.EventTypeRunError),
}
