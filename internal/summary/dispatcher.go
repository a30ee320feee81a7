package summary

import (
	"context"
	"log/slog"
	"sync"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/events"
)

// Store persists summaries.
type Store interface {
	SetConversationSummary(ctx context.Context, conversationID, summary string) error
}

// Job describes one conversation to summarize.
type Job struct {
	RunID          string
	ConversationID string
	Turns          []domain.Turn
	Goal           string
	Model          string
	APIKey         string
	Emit           events.Sink
}

// Dispatcher runs summary jobs as tracked background tasks.
type Dispatcher struct {
	generator *Generator
	store     Store
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewDispatcher creates a dispatcher writing results through store.
func NewDispatcher(generator *Generator, store Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		generator: generator,
		store:     store,
		logger:    logger.With("component", "summary"),
	}
}

// Schedule starts job in the background and returns immediately. The job
// outlives ctx cancellation so a finished conversation still gets its summary.
func (d *Dispatcher) Schedule(ctx context.Context, job Job) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(context.WithoutCancel(ctx), job)
	}()
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	text := d.generator.Summarize(ctx, job.Turns, job.Goal, job.Model, job.APIKey)
	if IsFailure(text) {
		d.logger.Warn("summary generation failed", "conversation_id", job.ConversationID, "summary", text)
	}

	if err := d.store.SetConversationSummary(ctx, job.ConversationID, text); err != nil {
		d.logger.Error("failed to store summary", "conversation_id", job.ConversationID, "error", err)
		return
	}

	if job.Emit != nil {
		job.Emit.Emit(ctx, events.New(job.RunID, domain.EventTypeSummaryGenerated, domain.SummaryGeneratedPayload{
			ConversationID: job.ConversationID,
			Summary:        text,
		}))
	}
	d.logger.Debug("summary stored", "conversation_id", job.ConversationID)
}

// Wait blocks until every scheduled job finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
