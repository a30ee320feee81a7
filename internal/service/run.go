package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/orchestrator"
)

// StartRun validates the test and schedules a new run of it. Configuration
// errors are returned before any run is created.
func (s *Service) StartRun(ctx context.Context, testID string, req domain.StartRunRequest) (*domain.StartRunResponse, error) {
	test, err := s.catalog.Get(testID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(test.SimulatedUser.Model) == "" {
		test.SimulatedUser.Model = s.defaultModel
	}
	apiKey := req.APIKey
	if apiKey == "" && s.mockLLM {
		apiKey = mockAPIKey
	}
	if err := orchestrator.Validate(test, apiKey); err != nil {
		return nil, err
	}

	run := &domain.Run{
		RunID:     "run_" + uuid.New().String(),
		TestID:    test.TestID,
		UserID:    req.UserID,
		Status:    domain.RunStatusPending,
		StartedAt: time.Now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	s.logger.Info("run scheduled", "run_id", run.RunID, "test_id", test.TestID, "scenarios", len(test.Scenarios))

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.executor.Execute(s.baseCtx, test, run, req.UserID, apiKey, s.sink)
	}()

	return &domain.StartRunResponse{
		RunID:          run.RunID,
		TestID:         test.TestID,
		Status:         run.Status,
		TotalScenarios: len(test.Scenarios),
	}, nil
}

// CancelRun marks a run canceled. Executing scenarios observe it at their
// next checkpoint.
func (s *Service) CancelRun(ctx context.Context, runID string) (*domain.CancelRunResponse, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	canceled, err := s.store.CancelRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel run: %w", err)
	}
	if !canceled {
		return nil, domain.ErrRunNotCancelable
	}
	s.logger.Info("run cancel requested", "run_id", runID)
	return &domain.CancelRunResponse{RunID: runID, Status: domain.RunStatusCanceled}, nil
}

// GetRun returns a run or domain.ErrRunNotFound.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

// ListRuns lists recent runs of a test.
func (s *Service) ListRuns(ctx context.Context, testID string, limit int) ([]domain.Run, error) {
	if _, err := s.catalog.Get(testID); err != nil {
		return nil, err
	}
	runs, err := s.store.ListRuns(ctx, testID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return runs, nil
}
