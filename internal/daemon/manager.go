// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon runs the playctld HTTP server and its background workers.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/playctl/internal/log"
)

// ShutdownHook performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Runner is a background worker that lives as long as the daemon.
type Runner func(ctx context.Context) error

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen            string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type namedHook struct {
	name string
	hook ShutdownHook
}

type namedRunner struct {
	name string
	run  Runner
}

// Manager owns the HTTP server, background runners and shutdown hooks.
type Manager struct {
	cfg     ServerConfig
	handler http.Handler

	mu       sync.Mutex
	started  bool
	stopping bool
	server   *http.Server
	addr     string
	ready    chan struct{}
	hooks    []namedHook
	runners  []namedRunner

	logger zerolog.Logger
}

// NewManager creates a manager serving handler.
func NewManager(cfg ServerConfig, handler http.Handler) (*Manager, error) {
	if handler == nil {
		return nil, ErrMissingHandler
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Manager{
		cfg:     cfg,
		handler: handler,
		ready:   make(chan struct{}),
		logger:  xglog.WithComponent("manager"),
	}, nil
}

// RegisterShutdownHook registers a cleanup function.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}

// AddRunner registers a worker started alongside the server. A runner
// error other than cancellation stops the daemon.
func (m *Manager) AddRunner(name string, run Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners = append(m.runners, namedRunner{name: name, run: run})
}

// Ready is closed once the listener is bound.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

// Addr returns the bound address. It is empty before Ready.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Start serves until ctx is cancelled or a component fails, then shuts
// everything down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	runners := append([]namedRunner(nil), m.runners...)
	m.mu.Unlock()

	ln, err := net.Listen("tcp", m.cfg.Listen)
	if err != nil {
		return fmt.Errorf("%w: listen %s: %w", ErrServerStartFailed, m.cfg.Listen, err)
	}

	m.mu.Lock()
	m.server = &http.Server{
		Handler:           m.handler,
		ReadHeaderTimeout: m.cfg.ReadHeaderTimeout,
	}
	m.addr = ln.Addr().String()
	m.mu.Unlock()
	close(m.ready)

	m.logger.Info().
		Str(xglog.FieldEvent, "daemon.started").
		Str("addr", m.addr).
		Dur("shutdown_timeout", m.cfg.ShutdownTimeout).
		Msg("API server listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str(xglog.FieldEvent, "api.server.failed").Msg("API server failed")
			return fmt.Errorf("API server: %w", err)
		}
		return nil
	})
	for _, r := range runners {
		g.Go(func() error {
			if err := r.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error().Err(err).Str("runner", r.name).Msg("runner failed")
				return fmt.Errorf("%s: %w", r.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		m.logger.Info().Msg("shutdown signal received")
		// Detached so shutdown completes even though ctx is already done.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the server and runs hooks in LIFO order. Repeated calls
// are no-ops.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	server := m.server
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	var errs []error
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			m.logger.Error().Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Str(xglog.FieldEvent, "daemon.stopped").Msg("daemon stopped cleanly")
	return nil
}
