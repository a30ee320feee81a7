package events

import (
	"context"
	"log/slog"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// EventStore persists events.
type EventStore interface {
	CreateEvent(ctx context.Context, event *domain.Event) error
}

// Recorder appends every event to the run's event log.
type Recorder struct {
	store  EventStore
	logger *slog.Logger
}

// NewRecorder creates a sink backed by store.
func NewRecorder(store EventStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Emit stores ev. The write is detached from ctx cancellation so terminal
// events survive a canceled request.
func (r *Recorder) Emit(ctx context.Context, ev domain.Event) {
	if err := r.store.CreateEvent(context.WithoutCancel(ctx), &ev); err != nil {
		r.logger.Error("failed to record event", "run_id", ev.RunID, "type", ev.Type, "error", err)
	}
}
