// Package service implements the simulator's control operations: starting,
// canceling and inspecting runs.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/events"
	"github.com/xiaot623/gogo/simulator/internal/repository"
)

// DefaultStaleGrace is how long after a run ends its running conversations
// are left alone before the sweeper fails them.
const DefaultStaleGrace = 5 * time.Minute

// mockAPIKey stands in for the credential when the LLM is mocked.
const mockAPIKey = "mock"

// Catalog provides test definitions.
type Catalog interface {
	Get(testID string) (*domain.Test, error)
	List() []domain.TestListItem
}

// Executor runs a test to a terminal status.
type Executor interface {
	Execute(ctx context.Context, test *domain.Test, run *domain.Run, userID, apiKey string, emit events.Sink) domain.RunStatus
}

// Options configures a Service.
type Options struct {
	DefaultModel string
	MockLLM      bool
	StaleGrace   time.Duration
	// Sink receives every event in addition to the event log and live subscribers.
	Sink   events.Sink
	Logger *slog.Logger
}

// Service coordinates runs.
type Service struct {
	store    repository.Store
	catalog  Catalog
	executor Executor
	broker   *events.Broker
	sink     events.Sink

	defaultModel string
	mockLLM      bool
	staleGrace   time.Duration
	logger       *slog.Logger

	baseCtx context.Context
	runs    sync.WaitGroup
}

// New creates a service. Runs started through it execute on background
// goroutines bound to ctx.
func New(ctx context.Context, store repository.Store, catalog Catalog, executor Executor, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := opts.StaleGrace
	if grace <= 0 {
		grace = DefaultStaleGrace
	}

	broker := events.NewBroker(logger.With("component", "broker"))
	sinks := events.Multi{events.NewRecorder(store, logger.With("component", "recorder")), broker}
	if opts.Sink != nil {
		sinks = append(sinks, opts.Sink)
	}

	return &Service{
		store:        store,
		catalog:      catalog,
		executor:     executor,
		broker:       broker,
		sink:         sinks,
		defaultModel: opts.DefaultModel,
		mockLLM:      opts.MockLLM,
		staleGrace:   grace,
		logger:       logger.With("component", "service"),
		baseCtx:      ctx,
	}
}

// Sink returns the sink every run event goes through.
func (s *Service) Sink() events.Sink {
	return s.sink
}

// Wait blocks until every started run has finished.
func (s *Service) Wait() {
	s.runs.Wait()
}

// ListTests lists the catalog.
func (s *Service) ListTests() []domain.TestListItem {
	return s.catalog.List()
}

// RecoverInterrupted fails runs left unfinished by a previous process.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := s.store.FailInterruptedRuns(ctx, "Run interrupted by restart")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("failed interrupted runs", "count", n)
	}
	return n, nil
}
