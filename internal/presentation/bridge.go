// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package presentation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/metrics"
)

// Controller receives forwarded intents.
type Controller interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
}

const (
	defaultIntentRate    = rate.Limit(5)
	defaultIntentBurst   = 3
	defaultPublishBudget = 250 * time.Millisecond
	intentQueue          = 8
)

// Option customises a Bridge.
type Option func(*Bridge)

// WithSurfaces adds surfaces in PiP priority order.
func WithSurfaces(s ...Surface) Option {
	return func(b *Bridge) { b.surfaces = append(b.surfaces, s...) }
}

// WithIntentRate bounds how often surfaces can toggle playback.
func WithIntentRate(r rate.Limit, burst int) Option {
	return func(b *Bridge) { b.limiter = rate.NewLimiter(r, burst) }
}

// WithPublishBudget bounds a single publish round.
func WithPublishBudget(d time.Duration) Option {
	return func(b *Bridge) { b.publishBudget = d }
}

// Bridge fans snapshots out to surfaces. Mirror and EnterPip are called from
// the session owner goroutine. Publishing and intents run on the bridge's
// own goroutines, so a slow surface never delays session commands.
type Bridge struct {
	ctrl          Controller
	surfaces      []Surface
	limiter       *rate.Limiter
	publishBudget time.Duration
	logger        zerolog.Logger

	mu       sync.Mutex
	last     State
	attached []Surface
	pending  *State        // latest state not yet published
	publish  chan struct{} // wakes the publisher, capacity 1
	intents  chan Intent
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewBridge builds a detached bridge.
func NewBridge(ctrl Controller, opts ...Option) *Bridge {
	b := &Bridge{
		ctrl:          ctrl,
		limiter:       rate.NewLimiter(defaultIntentRate, defaultIntentBurst),
		publishBudget: defaultPublishBudget,
		logger:        xglog.WithComponent("presentation"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach starts every surface. A surface that fails to attach is logged and skipped.
func (b *Bridge) Attach(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.intents != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.intents = make(chan Intent, intentQueue)
	b.publish = make(chan struct{}, 1)
	for _, s := range b.surfaces {
		if err := s.Attach(ctx, b.offer); err != nil {
			b.logger.Warn().Err(err).
				Str(xglog.FieldEvent, "surface.attach_failed").
				Str(xglog.FieldSurface, s.Name()).
				Msg("presentation surface unavailable")
			continue
		}
		b.attached = append(b.attached, s)
	}

	b.wg.Add(2)
	go b.drain(loopCtx, b.intents)
	go b.publishLoop(loopCtx, b.publish, b.attached)
}

// offer queues an intent without blocking the surface.
func (b *Bridge) offer(in Intent) {
	b.mu.Lock()
	ch := b.intents
	b.mu.Unlock()
	if ch == nil {
		return
	}
	if !b.limiter.Allow() {
		b.logger.Debug().Str(xglog.FieldEvent, "intent.throttled").Str("intent", string(in)).Msg("intent dropped")
		return
	}
	select {
	case ch <- in:
	default:
	}
}

func (b *Bridge) drain(ctx context.Context, ch <-chan Intent) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-ch:
			b.forward(ctx, in)
		}
	}
}

func (b *Bridge) forward(ctx context.Context, in Intent) {
	if in == IntentToggle {
		b.mu.Lock()
		playing := b.last.Playing
		b.mu.Unlock()
		in = IntentPlay
		if playing {
			in = IntentPause
		}
	}

	var err error
	switch in {
	case IntentPlay:
		err = b.ctrl.Play(ctx)
	case IntentPause:
		err = b.ctrl.Pause(ctx)
	}
	if err != nil {
		b.logger.Debug().Err(err).Str("intent", string(in)).Msg("intent not applied")
	}
}

// Mirror records one emitted snapshot for the surfaces. It never blocks:
// states not yet published are superseded by newer ones.
func (b *Bridge) Mirror(snap media.Snapshot, speed float64) {
	st := StateFrom(snap, speed)

	b.mu.Lock()
	b.last = st
	wake := b.publish
	if wake != nil && len(b.attached) > 0 {
		b.pending = &st
	}
	b.mu.Unlock()
	if wake == nil {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) takePending() *State {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.pending
	b.pending = nil
	return st
}

// publishLoop publishes the latest pending state. On detach the last
// pending state is flushed with a fresh budget.
func (b *Bridge) publishLoop(ctx context.Context, wake <-chan struct{}, surfaces []Surface) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			if st := b.takePending(); st != nil {
				b.publishAll(context.WithoutCancel(ctx), surfaces, *st)
			}
			return
		case <-wake:
			if ctx.Err() != nil {
				continue // flushed by the ctx.Done branch
			}
			if st := b.takePending(); st != nil {
				b.publishAll(ctx, surfaces, *st)
			}
		}
	}
}

func (b *Bridge) publishAll(ctx context.Context, surfaces []Surface, st State) {
	ctx, cancel := context.WithTimeout(ctx, b.publishBudget)
	defer cancel()
	for _, s := range surfaces {
		if err := s.Publish(ctx, st); err != nil {
			metrics.IncPublishFailure(s.Name())
			b.logger.Debug().Err(err).Str(xglog.FieldSurface, s.Name()).Msg("publish failed")
		}
	}
}

// Last returns the most recently mirrored state.
func (b *Bridge) Last() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// EnterPip asks PiP-capable surfaces in order. Refusals and errors yield false.
func (b *Bridge) EnterPip(ctx context.Context, ratio Ratio) bool {
	if !ratio.Valid() {
		ratio = DefaultRatio
	}
	b.mu.Lock()
	surfaces := b.attached
	b.mu.Unlock()

	for _, s := range surfaces {
		pip, ok := s.(PipSurface)
		if !ok {
			continue
		}
		entered, err := pip.EnterPip(ctx, ratio)
		if err != nil {
			b.logger.Warn().Err(err).Str(xglog.FieldSurface, s.Name()).Msg("pip request failed")
			continue
		}
		if entered {
			metrics.RecordPip(true)
			return true
		}
	}
	metrics.RecordPip(false)
	return false
}

// Detach stops intent forwarding and detaches every surface. Idempotent.
func (b *Bridge) Detach() {
	b.mu.Lock()
	if b.intents == nil {
		b.mu.Unlock()
		return
	}
	cancel := b.cancel
	attached := b.attached
	b.attached = nil
	b.intents = nil
	b.publish = nil
	b.cancel = nil
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
	for _, s := range attached {
		if err := s.Detach(); err != nil {
			b.logger.Debug().Err(err).Str(xglog.FieldSurface, s.Name()).Msg("detach failed")
		}
	}
}
