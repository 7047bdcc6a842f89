// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes playback sessions over HTTP and WebSocket.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/playctl/internal/api/middleware"
	v1 "github.com/ManuGH/playctl/internal/api/v1"
	"github.com/ManuGH/playctl/internal/control/command"
	"github.com/ManuGH/playctl/internal/health"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/registry"
)

const (
	maxBodyBytes   = 1 << 20
	defaultTimeout = 10 * time.Second
)

// Deps bundles what the server needs.
type Deps struct {
	Registry   *registry.Registry
	Dispatcher *command.Dispatcher
	Version    string
	Stack      middleware.StackConfig
	// Health backs /healthz and /readyz. Nil gets a manager without checks.
	Health *health.Manager
	// CommandTimeout bounds one command round trip. Zero uses 10s.
	CommandTimeout time.Duration
}

// Server routes HTTP requests to sessions. It implements the handlers
// generated from the v1 OpenAPI document.
type Server struct {
	reg        *registry.Registry
	dispatcher *command.Dispatcher
	health     *health.Manager
	timeout    time.Duration
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
	router     chi.Router
}

var _ v1.ServerInterface = (*Server)(nil)

// New builds the server and its router.
func New(deps Deps) *Server {
	s := &Server{
		reg:        deps.Registry,
		dispatcher: deps.Dispatcher,
		health:     deps.Health,
		timeout:    deps.CommandTimeout,
		logger:     xglog.WithComponent("api"),
	}
	if s.health == nil {
		s.health = health.NewManager(deps.Version)
	}
	s.health.SetDetail("sessions", func() any { return s.reg.Len() })
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	origins := deps.Stack.AllowedOrigins
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || middleware.OriginAllowed(origin, origins)
		},
	}
	s.router = s.routes(deps.Stack)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(stack middleware.StackConfig) chi.Router {
	r := middleware.NewRouter(stack)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	v1.HandlerWithOptions(s, v1.ChiServerOptions{
		BaseURL:    v1.BaseURL,
		BaseRouter: r,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			writeBadRequest(w, r, err.Error())
		},
	})
	return r
}
