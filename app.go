package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xiaot623/gogo/simulator/internal/adapter/agentclient"
	"github.com/xiaot623/gogo/simulator/internal/adapter/ingress"
	"github.com/xiaot623/gogo/simulator/internal/adapter/llm"
	"github.com/xiaot623/gogo/simulator/internal/adapter/webhook"
	"github.com/xiaot623/gogo/simulator/internal/catalog"
	"github.com/xiaot623/gogo/simulator/internal/config"
	"github.com/xiaot623/gogo/simulator/internal/observability"
	"github.com/xiaot623/gogo/simulator/internal/orchestrator"
	"github.com/xiaot623/gogo/simulator/internal/policy"
	"github.com/xiaot623/gogo/simulator/internal/repository"
	"github.com/xiaot623/gogo/simulator/internal/scenario"
	"github.com/xiaot623/gogo/simulator/internal/service"
	"github.com/xiaot623/gogo/simulator/internal/simuser"
	"github.com/xiaot623/gogo/simulator/internal/summary"
)

const configEnv = config.EnvConfigFile

// app holds the wired simulator.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *repository.SQLiteStore
	service   *service.Service
	summaries *summary.Dispatcher
	notifier  *webhook.Notifier
	metrics   *observability.Metrics
	registry  *prometheus.Registry
}

// loadConfig loads configuration and installs a logger at its level.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newApp wires every component. Runs started through the returned service
// execute on ctx.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	llmRegistry := llm.NewDefaultRegistry(llm.Options{
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		Mock:             cfg.MockLLM,
	})
	llmRegistry.SetObserver(metrics)

	agent := simuser.NewAgent(llmRegistry, simuser.Options{
		Timeout:            cfg.SimulatedUserTimeout,
		DefaultTemperature: cfg.DefaultTemperature,
		DefaultMaxTokens:   cfg.DefaultMaxTokens,
		Logger:             logger,
	})
	gateway := agentclient.NewClient(cfg.AgentTimeout)
	summaries := summary.NewDispatcher(summary.NewGenerator(llmRegistry, cfg.SummaryTimeout), store, logger)

	runner := scenario.NewRunner(store, agent, gateway, scenario.Options{
		TurnDelay:    cfg.TurnDelay,
		SummaryModel: cfg.SummaryModel,
		Summaries:    summaries,
		Observer:     metrics,
		Logger:       logger,
	})

	orchOpts := orchestrator.Options{
		ChunkSize: cfg.ParallelChunkSize,
		Observer:  metrics,
		Logger:    logger,
	}
	var notifier *webhook.Notifier
	if cfg.WebhookURL != "" {
		engine, err := policy.LoadEngine(ctx, cfg.WebhookPolicy)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize webhook policy: %w", err)
		}
		notifier = webhook.NewNotifier(cfg.WebhookURL, webhook.Options{
			Timeout:  cfg.WebhookTimeout,
			Policy:   engine,
			Recorder: metrics,
			Logger:   logger,
		})
		orchOpts.Notifier = notifier
	}
	orch := orchestrator.New(store, runner, orchOpts)

	svcOpts := service.Options{
		DefaultModel: cfg.DefaultModel,
		MockLLM:      cfg.MockLLM,
		StaleGrace:   cfg.StaleGrace,
		Logger:       logger,
	}
	if cfg.IngressURL != "" {
		svcOpts.Sink = ingress.NewClient(cfg.IngressURL, logger)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		service:   service.New(ctx, store, cat, orch, svcOpts),
		summaries: summaries,
		notifier:  notifier,
		metrics:   metrics,
		registry:  registry,
	}, nil
}

// drain waits for runs, summaries and notifications, then closes the store.
func (a *app) drain(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.service.Wait()
		if a.notifier != nil {
			a.notifier.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("timed out waiting for runs to finish")
	}

	if err := a.summaries.Wait(ctx); err != nil {
		a.logger.Warn("timed out waiting for summaries", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}
