// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package health serves liveness and readiness checks with per-component
// checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	xglog "github.com/ManuGH/playctl/internal/log"
)

// Status represents the overall health/readiness status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const checkTimeout = 2 * time.Second

// CheckResult represents the result of a component health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the body of both endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Details   map[string]any         `json:"details,omitempty"`
}

// Checker defines the interface for health checks.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type pingChecker struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

// NewPingChecker reports unhealthy when ping fails.
func NewPingChecker(name string, ping func(ctx context.Context) error) Checker {
	return &pingChecker{name: name, ping: ping}
}

// Informational wraps ping so that a failure only degrades the status and
// never blocks readiness.
func Informational(name string, ping func(ctx context.Context) error) Checker {
	return &pingChecker{name: name, ping: ping, optional: true}
}

func (c *pingChecker) Name() string { return c.name }

func (c *pingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		st := StatusUnhealthy
		if c.optional {
			st = StatusDegraded
		}
		return CheckResult{Status: st, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// Manager manages health and readiness checks.
type Manager struct {
	version string

	mu       sync.RWMutex
	checkers []Checker
	details  map[string]func() any
}

// NewManager creates a new health check manager.
func NewManager(version string) *Manager {
	return &Manager{version: version, details: make(map[string]func() any)}
}

// RegisterChecker adds a health checker to the manager.
func (m *Manager) RegisterChecker(c Checker) {
	m.mu.Lock()
	m.checkers = append(m.checkers, c)
	m.mu.Unlock()
}

// SetDetail publishes a value computed at request time.
func (m *Manager) SetDetail(key string, fn func() any) {
	m.mu.Lock()
	m.details[key] = fn
	m.mu.Unlock()
}

func (m *Manager) snapshot() ([]Checker, map[string]any) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	checkers := append([]Checker(nil), m.checkers...)
	var details map[string]any
	if len(m.details) > 0 {
		details = make(map[string]any, len(m.details))
		for k, fn := range m.details {
			details[k] = fn()
		}
	}
	return checkers, details
}

func (m *Manager) evaluate(ctx context.Context, checkers []Checker) (map[string]CheckResult, Status) {
	if len(checkers) == 0 {
		return nil, StatusHealthy
	}
	results := make(map[string]CheckResult, len(checkers))
	overall := StatusHealthy
	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		res := c.Check(cctx)
		cancel()
		results[c.Name()] = res
		switch res.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return results, overall
}

// Health is the liveness view. Checks only run when verbose.
func (m *Manager) Health(ctx context.Context, verbose bool) Response {
	checkers, details := m.snapshot()
	resp := Response{
		Status:    StatusHealthy,
		Ready:     true,
		Version:   m.version,
		Timestamp: time.Now(),
		Details:   details,
	}
	if verbose {
		resp.Checks, resp.Status = m.evaluate(ctx, checkers)
		resp.Ready = resp.Status != StatusUnhealthy
	}
	return resp
}

// Ready runs every check. Any unhealthy component makes the daemon unready.
func (m *Manager) Ready(ctx context.Context) Response {
	checkers, details := m.snapshot()
	checks, st := m.evaluate(ctx, checkers)
	return Response{
		Status:    st,
		Ready:     st != StatusUnhealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Checks:    checks,
		Details:   details,
	}
}

// ServeHealth always answers 200 while the process is alive.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := m.Health(r.Context(), r.URL.Query().Get("verbose") == "true")
	write(w, r, http.StatusOK, resp)
}

// ServeReady answers 503 while a required component is unhealthy.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	write(w, r, code, resp)
}

func write(w http.ResponseWriter, r *http.Request, code int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger := xglog.WithComponentFromContext(r.Context(), "health")
		logger.Error().Err(err).Str(xglog.FieldEvent, "health.encode_error").Msg("failed to encode health response")
	}
}

// NewWritableDirChecker verifies that dir exists and accepts new files.
func NewWritableDirChecker(name, dir string) Checker {
	return Informational(name, func(context.Context) error {
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return err
		}
		_ = f.Close()
		return os.Remove(f.Name())
	})
}
