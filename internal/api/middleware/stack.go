// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/playctl/internal/log"
)

// StackConfig selects the optional layers of the HTTP middleware stack.
type StackConfig struct {
	AllowedOrigins []string
	EnableMetrics  bool
	TracingService string
	EnableLogging  bool
	RateLimit      int
}

// NewRouter returns a chi router with the stack applied.
func NewRouter(cfg StackConfig) chi.Router {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs the middleware in a fixed order: panic recovery
// first, then correlation ids so every later layer can log them.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(CORS(cfg.AllowedOrigins))
	if cfg.EnableMetrics {
		r.Use(Metrics)
	}
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(xglog.Middleware())
	}
	r.Use(RateLimit(cfg.RateLimit))
}
