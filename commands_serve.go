package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/xiaot623/gogo/simulator/internal/transport/http"
	"github.com/xiaot623/gogo/simulator/internal/transport/rpc"
)

const shutdownTimeout = 10 * time.Second

// buildServeCmd creates the "serve" command that starts the control API.
func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the simulator control API",
		Long: `Start the simulator control API.

Runs left unfinished by a previous process are marked failed on startup.
Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Runs outlive the request that started them and stop only on shutdown.
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(parent))
	defer cancelRuns()

	a, err := newApp(runCtx, cfg, logger)
	if err != nil {
		return err
	}

	if _, err := a.service.RecoverInterrupted(ctx); err != nil {
		logger.Warn("failed to recover interrupted runs", "error", err)
	}
	go a.service.RunStaleConversationSweeper(runCtx, cfg.StaleSweepInterval)

	e := httpserver.NewServer(a.service, httpserver.Options{
		Version:  version,
		Recorder: a.metrics,
		Gatherer: a.registry,
	})
	errCh := make(chan error, 2)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	logger.Info("control API started", "port", cfg.HTTPPort, "database", cfg.DatabaseURL, "catalog", cfg.CatalogPath, "mock_llm", cfg.MockLLM)

	var rpcServer *rpc.Server
	if cfg.RPCAddr != "" {
		rpcServer, err = rpc.NewServer(a.service, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := rpcServer.Start(cfg.RPCAddr); err != nil {
				errCh <- fmt.Errorf("rpc server: %w", err)
			}
		}()
		logger.Info("rpc server started", "addr", cfg.RPCAddr)
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("server failed", "error", err)
	}

	logger.Info("shutting down simulator")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown http server gracefully", "error", err)
	}
	if rpcServer != nil {
		if err := rpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown rpc server gracefully", "error", err)
		}
	}

	cancelRuns()
	a.drain(shutdownTimeout)
	logger.Info("simulator stopped")
	return err
}
