package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

const subscriberBuffer = 64

// Broker fans events out to live subscribers of a run.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	logger *slog.Logger
}

type subscription struct {
	ch     chan domain.Event
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[string]map[*subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscriber for runID. The channel is closed after a
// terminal event or when the returned cancel func is called.
func (b *Broker) Subscribe(runID string) (<-chan domain.Event, func()) {
	sub := &subscription{ch: make(chan domain.Event, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[*subscription]struct{})
	}
	b.subs[runID][sub] = struct{}{}
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.remove(runID, sub)
	}
}

// Emit delivers ev to the run's subscribers. Slow subscribers lose events
// rather than stall the engine.
func (b *Broker) Emit(_ context.Context, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[ev.RunID] {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber", "run_id", ev.RunID, "type", ev.Type)
		}
		if ev.Type.IsTerminal() {
			b.remove(ev.RunID, sub)
		}
	}
}

// Subscribers returns the number of live subscribers for runID.
func (b *Broker) Subscribers(runID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[runID])
}

// remove must be called with b.mu held.
func (b *Broker) remove(runID string, sub *subscription) {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	delete(b.subs[runID], sub)
	if len(b.subs[runID]) == 0 {
		delete(b.subs, runID)
	}
}
