// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

var errSurface = errors.New("surface down")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 2, 10*time.Second, WithClock(clock))

	assert.ErrorIs(t, cb.Execute(func() error { return errSurface }), errSurface)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return errSurface }), errSurface)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))

	_ = cb.Execute(func() error { return errSurface })
	assert.Equal(t, StateOpen, cb.State())

	clock.now = clock.now.Add(11 * time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))

	_ = cb.Execute(func() error { return errSurface })
	clock.now = clock.now.Add(11 * time.Second)
	_ = cb.Execute(func() error { return errSurface })
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute, WithPanicRecovery(true))

	assert.Panics(t, func() {
		_ = cb.Execute(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))
	_ = cb.Execute(func() error { return errSurface })
	clock.now = clock.now.Add(11 * time.Second)

	inTrial := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(inTrial)
			<-finish
			return nil
		})
	}()
	<-inTrial

	assert.Equal(t, StateHalfOpen, cb.State())
	called := false
	assert.ErrorIs(t, cb.Execute(func() error { called = true; return nil }), ErrCircuitOpen)
	assert.False(t, called, "second session waits for the trial verdict")

	close(finish)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Minute)

	assert.ErrorIs(t, cb.Execute(func() error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateClosed, cb.State())

	err := cb.Execute(func() error { return context.DeadlineExceeded })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, cb.State(), "a slow surface counts")
}

func TestCircuitBreaker_ReportsTransitions(t *testing.T) {
	type change struct {
		from, to State
		reason   TripReason
	}
	var got []change
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("redis-surface", 1, 10*time.Second, WithClock(clock),
		WithStateListener(func(surface string, from, to State, reason TripReason) {
			assert.Equal(t, "redis-surface", surface)
			got = append(got, change{from, to, reason})
		}))

	_ = cb.Execute(func() error { return errSurface })
	clock.now = clock.now.Add(11 * time.Second)
	_ = cb.Execute(func() error { return errSurface })
	clock.now = clock.now.Add(11 * time.Second)
	_ = cb.Execute(func() error { return nil })

	assert.Equal(t, []change{
		{StateClosed, StateOpen, TripThreshold},
		{StateOpen, StateHalfOpen, ""},
		{StateHalfOpen, StateOpen, TripTrialFailed},
		{StateOpen, StateHalfOpen, ""},
		{StateHalfOpen, StateClosed, ""},
	}, got)
	assert.Equal(t, "redis-surface", cb.Surface())
}
