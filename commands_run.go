package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// buildRunCmd creates the "run" command that executes one test in-process.
func buildRunCmd() *cobra.Command {
	var (
		testID string
		apiKey string
		userID string
		mock   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one test and stream its events",
		Long: `Run one test from the catalog in-process and print every event as a
JSON line on stdout. The command fails unless the run completes.`,
		Example: `  # Run against a real model
  simulator run --test greeting --api-key $OPENAI_API_KEY

  # Run with the scripted model
  simulator run --test greeting --mock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				apiKey = os.Getenv("SIMULATED_USER_API_KEY")
			}
			return runTest(cmd.Context(), testID, domain.StartRunRequest{APIKey: apiKey, UserID: userID}, mock)
		},
	}

	cmd.Flags().StringVarP(&testID, "test", "t", "", "Test ID from the catalog")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Simulated user API key (or set SIMULATED_USER_API_KEY)")
	cmd.Flags().StringVar(&userID, "user", "", "User ID passed to the agent under test")
	cmd.Flags().BoolVar(&mock, "mock", false, "Use the scripted LLM instead of a real provider")
	_ = cmd.MarkFlagRequired("test")

	return cmd
}

func runTest(parent context.Context, testID string, req domain.StartRunRequest, mock bool) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if mock {
		cfg.MockLLM = true
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(context.WithoutCancel(parent), cfg, logger)
	if err != nil {
		return err
	}
	defer a.drain(shutdownTimeout)

	started, err := a.service.StartRun(ctx, testID, req)
	if err != nil {
		return err
	}

	events, err := a.service.StreamRunEvents(ctx, started.RunID, 0)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}

	// Interrupted: ask the run to stop at its next checkpoint.
	if ctx.Err() != nil {
		if _, err := a.service.CancelRun(context.Background(), started.RunID); err != nil {
			logger.Warn("failed to cancel run", "run_id", started.RunID, "error", err)
		}
		a.service.Wait()
	}

	run, err := a.service.GetRun(context.Background(), started.RunID)
	if err != nil {
		return err
	}
	if run.Status != domain.RunStatusCompleted {
		return fmt.Errorf("run %s finished with status %s", run.RunID, run.Status)
	}
	return nil
}
