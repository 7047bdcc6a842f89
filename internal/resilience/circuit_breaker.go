// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/playctl/internal/metrics"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// TripReason labels why a surface breaker opened.
type TripReason string

const (
	TripThreshold   TripReason = "threshold_exceeded"
	TripTrialFailed TripReason = "trial_failed"
)

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// StateListener observes breaker transitions of a surface. It runs with
// the breaker unlocked.
type StateListener func(surface string, from, to State, reason TripReason)

// CircuitBreaker guards one remote presentation surface shared by every
// session. After threshold consecutive failures calls are refused until the
// cooldown has elapsed; then a single trial call decides whether the surface is
// back.
type CircuitBreaker struct {
	surface  string
	cooldown time.Duration
	clock    clock
	listener StateListener

	// When set, a panic in fn counts as a failure before it is re-raised.
	recoverPanic bool

	mu        sync.Mutex
	state     State
	failures  int
	threshold int
	openedAt  time.Time
	trialing  bool
}

// Option customises a CircuitBreaker.
type Option func(*CircuitBreaker)

func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

func WithPanicRecovery(enabled bool) Option {
	return func(cb *CircuitBreaker) { cb.recoverPanic = enabled }
}

// WithStateListener registers fn for every state change.
func WithStateListener(fn StateListener) Option {
	return func(cb *CircuitBreaker) { cb.listener = fn }
}

// NewCircuitBreaker creates a breaker for surface.
func NewCircuitBreaker(surface string, threshold int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	cb := &CircuitBreaker{
		surface:   surface,
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(cb)
	}

	metrics.SetCircuitBreakerState(cb.surface, string(cb.state))
	return cb
}

// Execute runs fn unless the surface is considered down, in which case
// ErrCircuitOpen is returned without calling fn. A context.Canceled result
// is the caller giving up, not the surface failing, and is not counted.
func (cb *CircuitBreaker) Execute(fn func() error) (err error) {
	trial, ok := cb.acquire()
	if !ok {
		return ErrCircuitOpen
	}

	settled := false
	defer func() {
		if settled {
			return
		}
		// fn panicked
		if cb.recoverPanic {
			cb.settle(trial, errors.New("panic"))
		} else {
			cb.release(trial)
		}
	}()

	err = fn()
	settled = true
	if errors.Is(err, context.Canceled) {
		cb.release(trial)
		return err
	}
	cb.settle(trial, err)
	return err
}

// acquire admits a call. In half-open state only one trial call is in flight.
func (cb *CircuitBreaker) acquire() (trial, ok bool) {
	cb.mu.Lock()
	var change *transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(change)
	}()

	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.cooldown {
			return false, false
		}
		change = cb.transitionTo(StateHalfOpen, "")
		cb.trialing = true
		return true, true
	default:
		if cb.trialing {
			return false, false
		}
		cb.trialing = true
		return true, true
	}
}

func (cb *CircuitBreaker) release(trial bool) {
	if !trial {
		return
	}
	cb.mu.Lock()
	cb.trialing = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) settle(trial bool, err error) {
	cb.mu.Lock()
	var change *transition
	defer func() {
		cb.mu.Unlock()
		cb.notify(change)
	}()

	if trial {
		cb.trialing = false
	}
	if err == nil {
		cb.failures = 0
		change = cb.transitionTo(StateClosed, "")
		return
	}

	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		metrics.RecordCircuitBreakerTrip(cb.surface, string(TripTrialFailed))
		change = cb.transitionTo(StateOpen, TripTrialFailed)
	case cb.state == StateClosed && cb.failures >= cb.threshold:
		metrics.RecordCircuitBreakerTrip(cb.surface, string(TripThreshold))
		change = cb.transitionTo(StateOpen, TripThreshold)
	}
}

type transition struct {
	from, to State
	reason   TripReason
}

// Caller must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(to State, reason TripReason) *transition {
	if cb.state == to {
		return nil
	}
	from := cb.state
	cb.state = to
	if to == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetCircuitBreakerState(cb.surface, string(to))
	return &transition{from: from, to: to, reason: reason}
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t != nil && cb.listener != nil {
		cb.listener(cb.surface, t.from, t.to, t.reason)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Surface returns the guarded surface name.
func (cb *CircuitBreaker) Surface() string {
	return cb.surface
}
