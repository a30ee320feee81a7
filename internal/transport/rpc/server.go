// Package rpc exposes run control over JSON-RPC for internal clients.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/xiaot623/gogo/simulator/internal/domain"
	"github.com/xiaot623/gogo/simulator/internal/service"
)

// ServiceName is the name methods are registered under, e.g. "Simulator.StartRun".
const ServiceName = "Simulator"

// callTimeout bounds a single RPC call against the store.
const callTimeout = 10 * time.Second

// Server accepts JSON-RPC connections.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *slog.Logger
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the simulator service.
func NewServer(svc *service.Service, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName(ServiceName, handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger,
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	if _, err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve()
}

// Listen binds the server to addr and returns the bound address.
func (s *Server) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.listener = ln
	return ln.Addr(), nil
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("rpc server is not listening")
	}

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept error", "error", err)
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the simulator RPC methods.
type Handler struct {
	service *service.Service
}

// StartRunArgs identifies the test to run and its credentials.
type StartRunArgs struct {
	TestID  string                 `json:"test_id"`
	Request domain.StartRunRequest `json:"request"`
}

// RunArgs identifies a run.
type RunArgs struct {
	RunID string `json:"run_id"`
}

// ListTestsResponse lists the catalog.
type ListTestsResponse struct {
	Tests []domain.TestListItem `json:"tests"`
}

// StartRun schedules a run of a test.
func (h *Handler) StartRun(req *StartRunArgs, resp *domain.StartRunResponse) error {
	if req == nil || req.TestID == "" {
		return errors.New("test_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	result, err := h.service.StartRun(ctx, req.TestID, req.Request)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *result
	}
	return nil
}

// CancelRun cancels a run.
func (h *Handler) CancelRun(req *RunArgs, resp *domain.CancelRunResponse) error {
	if req == nil || req.RunID == "" {
		return errors.New("run_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	result, err := h.service.CancelRun(ctx, req.RunID)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *result
	}
	return nil
}

// GetRun returns a run.
func (h *Handler) GetRun(req *RunArgs, resp *domain.Run) error {
	if req == nil || req.RunID == "" {
		return errors.New("run_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	run, err := h.service.GetRun(ctx, req.RunID)
	if err != nil {
		return err
	}
	if resp != nil {
		*resp = *run
	}
	return nil
}

// ListTests lists the configured tests.
func (h *Handler) ListTests(_ *struct{}, resp *ListTestsResponse) error {
	if resp != nil {
		resp.Tests = h.service.ListTests()
	}
	return nil
}
