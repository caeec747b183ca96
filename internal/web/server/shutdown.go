package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownHook is called after the HTTP server stopped, e.g. to close the database pool
type ShutdownHook func(ctx context.Context) error

// ShutdownConfig holds graceful shutdown configuration
type ShutdownConfig struct {
	// Timeout bounds the drain of active requests and the hooks
	Timeout time.Duration

	// Signals to listen for (default: SIGINT, SIGTERM)
	Signals []os.Signal

	Logger *zap.Logger
}

// DefaultShutdownConfig returns default shutdown configuration
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 15 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		Logger:  zap.NewNop(),
	}
}

// GracefulShutdown runs a server until a signal arrives or its context is cancelled
type GracefulShutdown struct {
	server  *Server
	timeout time.Duration
	signals []os.Signal
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []ShutdownHook
	once  sync.Once
	err   error
}

// NewGracefulShutdown creates a new graceful shutdown handler
func NewGracefulShutdown(server *Server, config *ShutdownConfig) *GracefulShutdown {
	if config == nil {
		config = DefaultShutdownConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	signals := config.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultShutdownConfig().Timeout
	}

	return &GracefulShutdown{
		server:  server,
		timeout: timeout,
		signals: signals,
		logger:  logger,
	}
}

// RegisterHook registers a hook; hooks run in registration order
func (gs *GracefulShutdown) RegisterHook(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// Run serves until ctx is cancelled, a signal arrives or the server fails, then shuts down
func (gs *GracefulShutdown) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		gs.logger.Info("starting server", zap.String("addr", gs.server.Addr()))
		if err := gs.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, gs.signals...)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		gs.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		gs.logger.Info("context cancelled, shutting down")
	case err := <-errChan:
		gs.once.Do(gs.runHooks)
		return err
	}
	return gs.Shutdown()
}

// Shutdown drains the server and runs the hooks. It is safe to call more than once.
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
		defer cancel()

		gs.logger.Info("shutting down HTTP server", zap.Duration("timeout", gs.timeout))
		if err := gs.server.Shutdown(ctx); err != nil {
			gs.err = fmt.Errorf("server shutdown error: %w", err)
			gs.logger.Error("server shutdown failed", zap.Error(err))
		}
		gs.runHooksWith(ctx)
	})
	return gs.err
}

func (gs *GracefulShutdown) runHooks() {
	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()
	gs.runHooksWith(ctx)
}

func (gs *GracefulShutdown) runHooksWith(ctx context.Context) {
	gs.mu.Lock()
	hooks := make([]ShutdownHook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	for i, hook := range hooks {
		if err := hook(ctx); err != nil {
			gs.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
		}
	}
}
