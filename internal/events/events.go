// Package events carries engine events from the runner and orchestrator to
// their consumers: the event log, live subscribers and the ingress service.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// Sink accepts engine events. Emit must not block for long and never fails
// the caller; delivery problems are the sink's to log.
type Sink interface {
	Emit(ctx context.Context, ev domain.Event)
}

// Func adapts a plain function to Sink.
type Func func(ctx context.Context, ev domain.Event)

// Emit calls f.
func (f Func) Emit(ctx context.Context, ev domain.Event) {
	f(ctx, ev)
}

// Discard drops every event.
var Discard Sink = Func(func(context.Context, domain.Event) {})

// New builds an event with a fresh id and the current timestamp.
func New(runID string, eventType domain.EventType, payload any) domain.Event {
	ev := domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   runID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("failed to marshal event payload", "type", eventType, "error", err)
		} else {
			ev.Payload = data
		}
	}
	return ev
}

// Multi delivers every event to each sink in order.
type Multi []Sink

// Emit forwards ev to all sinks.
func (m Multi) Emit(ctx context.Context, ev domain.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}
