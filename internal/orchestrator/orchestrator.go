// Package orchestrator executes every scenario of a test run and reports the
// run's terminal status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/events"
	"github.com/xiaot623/gogo/simulator/internal/scenario"
	"github.com/xiaot623/gogo/simulator/internal/workpool"
)

// DefaultChunkSize is the number of scenarios run concurrently in parallel mode.
const DefaultChunkSize = 3

// Store is the run persistence the orchestrator needs.
type Store interface {
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	StartRun(ctx context.Context, runID string, totalScenarios int) error
	IncrementCompletedScenarios(ctx context.Context, runID string) (int, error)
	CompleteRun(ctx context.Context, runID string, stats *domain.RunStats) (bool, error)
	FailRun(ctx context.Context, runID, message string) error
}

// ScenarioRunner runs one scenario to a terminal conversation.
type ScenarioRunner interface {
	Run(ctx context.Context, in scenario.Input, emit events.Sink, isCanceled scenario.CancelCheck) *domain.Conversation
}

// Notifier sends webhook notifications without blocking.
type Notifier interface {
	Fire(ctx context.Context, userID string, event domain.WebhookEvent, payload any)
}

// RunObserver is told when runs start and finish.
type RunObserver interface {
	RunStarted()
	RunFinished(status domain.RunStatus)
}

// Options configures an Orchestrator.
type Options struct {
	ChunkSize int
	Notifier  Notifier
	Observer  RunObserver
	Logger    *slog.Logger
}

// Orchestrator schedules the scenarios of a run.
type Orchestrator struct {
	store    Store
	runner   ScenarioRunner
	pool     *workpool.Pool
	notifier Notifier
	observer RunObserver
	logger   *slog.Logger
}

// New creates an orchestrator.
func New(store Store, runner ScenarioRunner, opts Options) *Orchestrator {
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		runner:   runner,
		pool:     workpool.New(chunk),
		notifier: opts.Notifier,
		observer: opts.Observer,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Validate reports configuration errors that make a run impossible.
func Validate(test *domain.Test, apiKey string) error {
	if len(test.Scenarios) == 0 {
		return domain.ErrNoScenarios
	}
	if strings.TrimSpace(test.SimulatedUser.Model) == "" {
		return domain.ErrNoSimulatedUserModel
	}
	if strings.TrimSpace(apiKey) == "" {
		return domain.ErrMissingAPIKey
	}
	return nil
}

// execution is the state of one Execute call.
type execution struct {
	test   *domain.Test
	run    *domain.Run
	userID string
	apiKey string
	emit   events.Sink

	mu    sync.Mutex
	convs []domain.Conversation
}

func (x *execution) record(conv *domain.Conversation) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.convs = append(x.convs, *conv)
}

// Execute runs every scenario of test under run and emits exactly one
// terminal event: complete, canceled or run:error. It returns the run's
// final status.
func (o *Orchestrator) Execute(ctx context.Context, test *domain.Test, run *domain.Run, userID, apiKey string, emit events.Sink) domain.RunStatus {
	if emit == nil {
		emit = events.Discard
	}
	logger := o.logger.With("run_id", run.RunID, "test_id", test.TestID)
	if o.observer != nil {
		o.observer.RunStarted()
	}

	status := o.execute(ctx, &execution{
		test:   test,
		run:    run,
		userID: userID,
		apiKey: apiKey,
		emit:   emit,
	}, logger)

	if o.observer != nil {
		o.observer.RunFinished(status)
	}
	logger.Info("run finished", "status", status)
	return status
}

func (o *Orchestrator) execute(ctx context.Context, x *execution, logger *slog.Logger) domain.RunStatus {
	runID := x.run.RunID

	if err := Validate(x.test, x.apiKey); err != nil {
		return o.fail(ctx, x, err)
	}

	scenarios := x.test.OrderedScenarios()
	if err := o.store.StartRun(ctx, runID, len(scenarios)); err != nil {
		return o.fail(ctx, x, fmt.Errorf("failed to start run: %w", err))
	}
	x.emit.Emit(ctx, events.New(runID, domain.EventTypeRunStart, domain.RunStartPayload{
		RunID:          runID,
		TestID:         x.test.TestID,
		TotalScenarios: len(scenarios),
		ExecutionMode:  x.test.ExecutionMode,
	}))
	logger.Info("run started", "scenarios", len(scenarios), "mode", x.test.ExecutionMode)

	if err := o.runScenarios(ctx, x, scenarios); err != nil {
		return o.fail(ctx, x, err)
	}

	status, err := o.finish(ctx, x)
	if err != nil {
		return o.fail(ctx, x, err)
	}
	return status
}

// runScenarios executes the scenarios in the test's mode. Panics are turned
// into errors.
func (o *Orchestrator) runScenarios(ctx context.Context, x *execution, scenarios []domain.Scenario) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	if x.test.Parallel() {
		return o.runParallel(ctx, x, scenarios)
	}
	return o.runSequential(ctx, x, scenarios)
}

func (o *Orchestrator) runSequential(ctx context.Context, x *execution, scenarios []domain.Scenario) error {
	for _, sc := range scenarios {
		canceled, err := o.isCanceled(ctx, x.run.RunID)
		if err != nil {
			return err
		}
		if canceled {
			o.logger.Info("run canceled", "run_id", x.run.RunID, "next_scenario", sc.ScenarioID)
			return nil
		}
		if err := o.runOne(ctx, x, sc); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runParallel(ctx context.Context, x *execution, scenarios []domain.Scenario) error {
	for _, chunk := range workpool.Chunk(scenarios, o.pool.Limit()) {
		canceled, err := o.isCanceled(ctx, x.run.RunID)
		if err != nil {
			return err
		}
		if canceled {
			o.logger.Info("run canceled", "run_id", x.run.RunID, "next_scenario", chunk[0].ScenarioID)
			return nil
		}

		tasks := make([]workpool.Task, len(chunk))
		for i, sc := range chunk {
			tasks[i] = func(ctx context.Context) error {
				return o.runOne(ctx, x, sc)
			}
		}
		if err := o.pool.Run(ctx, tasks...); err != nil {
			return err
		}
	}
	return nil
}

// runOne runs a scenario, then notifies and counts it. A scenario that
// escapes the runner is logged and not counted; only store failures are
// returned.
func (o *Orchestrator) runOne(ctx context.Context, x *execution, sc domain.Scenario) error {
	conv, ok := o.runScenario(ctx, x, sc)
	if !ok {
		return nil
	}
	x.record(conv)

	if x.test.WebhookEnabled && o.notifier != nil {
		o.notifier.Fire(ctx, x.userID, domain.WebhookEventScenarioCompleted, domain.ScenarioWebhookPayload{
			RunID:          x.run.RunID,
			TestID:         x.test.TestID,
			ScenarioID:     sc.ScenarioID,
			ConversationID: conv.ConversationID,
			Status:         conv.Status,
			GoalAchieved:   conv.GoalAchieved,
			TotalTurns:     conv.TotalTurns,
			EndReason:      conv.EndReason,
		})
	}

	if _, err := o.store.IncrementCompletedScenarios(ctx, x.run.RunID); err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	return nil
}

func (o *Orchestrator) runScenario(ctx context.Context, x *execution, sc domain.Scenario) (conv *domain.Conversation, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("scenario escaped runner", "run_id", x.run.RunID, "scenario_id", sc.ScenarioID, "panic", r)
			conv, ok = nil, false
		}
	}()
	conv = o.runner.Run(ctx, scenario.Input{
		Run:      x.run,
		Test:     x.test,
		Scenario: sc,
		APIKey:   x.apiKey,
		UserID:   x.userID,
	}, x.emit, func(ctx context.Context) (bool, error) {
		return o.isCanceled(ctx, x.run.RunID)
	})
	return conv, conv != nil
}

// finish re-reads the run and either reports cancellation or completes it.
func (o *Orchestrator) finish(ctx context.Context, x *execution) (domain.RunStatus, error) {
	runID := x.run.RunID
	current, err := o.getRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if current.Status == domain.RunStatusCanceled {
		o.emitCanceled(ctx, x, current.CompletedScenarios)
		return domain.RunStatusCanceled, nil
	}

	x.mu.Lock()
	stats := ComputeStats(x.convs)
	x.mu.Unlock()

	marked, err := o.store.CompleteRun(ctx, runID, stats)
	if err != nil {
		return "", fmt.Errorf("failed to complete run: %w", err)
	}
	if !marked {
		// Canceled between the re-read and the write.
		o.emitCanceled(ctx, x, current.CompletedScenarios)
		return domain.RunStatusCanceled, nil
	}

	x.emit.Emit(ctx, events.New(runID, domain.EventTypeRunComplete, domain.RunCompletePayload{
		RunID:              runID,
		CompletedScenarios: current.CompletedScenarios,
		TotalScenarios:     current.TotalScenarios,
		Stats:              stats,
	}))
	x.emit.Emit(ctx, events.New(runID, domain.EventTypeComplete, domain.CompletePayload{
		RunID:  runID,
		Status: domain.RunStatusCompleted,
	}))
	return domain.RunStatusCompleted, nil
}

func (o *Orchestrator) emitCanceled(ctx context.Context, x *execution, completed int) {
	x.emit.Emit(ctx, events.New(x.run.RunID, domain.EventTypeCanceled, domain.CanceledPayload{
		RunID:              x.run.RunID,
		CompletedScenarios: completed,
	}))
}

// fail marks the run failed and emits run:error.
func (o *Orchestrator) fail(ctx context.Context, x *execution, cause error) domain.RunStatus {
	runID := x.run.RunID
	message := cause.Error()
	o.logger.Error("run failed", "run_id", runID, "error", cause)

	if err := o.store.FailRun(context.WithoutCancel(ctx), runID, message); err != nil {
		o.logger.Error("failed to mark run failed", "run_id", runID, "error", err)
	}
	x.emit.Emit(ctx, events.New(runID, domain.EventTypeRunError, domain.RunErrorPayload{
		RunID:   runID,
		Message: message,
	}))
	return domain.RunStatusFailed
}

func (o *Orchestrator) isCanceled(ctx context.Context, runID string) (bool, error) {
	run, err := o.getRun(ctx, runID)
	if err != nil {
		return false, err
	}
	return run.Status == domain.RunStatusCanceled, nil
}

func (o *Orchestrator) getRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("failed to get run: %w", domain.ErrRunNotFound)
	}
	return run, nil
}

// IsConfigError reports whether err is one of the configuration errors
// returned by Validate.
func IsConfigError(err error) bool {
	return errors.Is(err, domain.ErrNoScenarios) ||
		errors.Is(err, domain.ErrNoSimulatedUserModel) ||
		errors.Is(err, domain.ErrMissingAPIKey)
}
