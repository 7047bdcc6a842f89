// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package registry owns the set of live sessions of a daemon.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ManuGH/playctl/internal/engine"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/metrics"
	"github.com/ManuGH/playctl/internal/presentation"
	"github.com/ManuGH/playctl/internal/resume"
	"github.com/ManuGH/playctl/internal/session"
)

var (
	// ErrNotFound is returned for unknown or disposed session ids.
	ErrNotFound = errors.New("session not found")
	// ErrLimitReached is returned when MaxSessions sessions are live.
	ErrLimitReached = errors.New("session limit reached")
)

// SurfaceFactory builds the presentation surfaces of one session.
type SurfaceFactory func(ctx context.Context, sessionID string) []presentation.Surface

// Options configure session creation.
type Options struct {
	Engine         engine.Factory
	Surfaces       SurfaceFactory
	Resume         resume.Store
	SampleInterval time.Duration
	DataSaverCap   int
	IntentRate     rate.Limit
	IntentBurst    int
	// MaxSessions <= 0 means unlimited.
	MaxSessions int
	NewID       func() string
}

// Registry is a mutex-guarded map of session handles.
type Registry struct {
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	pending  int // creations holding a slot but not yet inserted
	limit    int
	wg       sync.WaitGroup
}

func New(opts Options) *Registry {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Registry{
		opts:     opts,
		logger:   xglog.WithComponent("registry"),
		sessions: make(map[string]*session.Session),
		limit:    opts.MaxSessions,
	}
}

// SetMaxSessions changes the limit for future creations.
func (r *Registry) SetMaxSessions(n int) {
	r.mu.Lock()
	r.limit = n
	r.mu.Unlock()
}

// Create starts a new idle session. The slot is reserved before the engine
// is built, so concurrent creations never exceed the limit.
func (r *Registry) Create(ctx context.Context) (*session.Session, error) {
	r.mu.Lock()
	if r.limit > 0 && len(r.sessions)+r.pending >= r.limit {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w (%d)", ErrLimitReached, r.limit)
	}
	r.pending++
	r.mu.Unlock()

	eng, err := r.opts.Engine(ctx)
	if err != nil {
		r.mu.Lock()
		r.pending--
		r.mu.Unlock()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	id := r.opts.NewID()
	var surfaces []presentation.Surface
	if r.opts.Surfaces != nil {
		surfaces = r.opts.Surfaces(ctx, id)
	}

	s := session.New(session.Config{
		ID:             id,
		Engine:         eng,
		SampleInterval: r.opts.SampleInterval,
		DataSaverCap:   r.opts.DataSaverCap,
		Surfaces:       surfaces,
		IntentRate:     r.opts.IntentRate,
		IntentBurst:    r.opts.IntentBurst,
		Resume:         r.opts.Resume,
	})

	r.mu.Lock()
	r.pending--
	r.sessions[id] = s
	r.mu.Unlock()
	metrics.SessionOpened()

	r.wg.Add(1)
	go r.reap(s)

	r.logger.Info().Str(xglog.FieldEvent, "session.created").Str(xglog.FieldSessionID, id).Msg("session created")
	return s, nil
}

// reap removes s once it has been disposed, whichever path disposed it.
func (r *Registry) reap(s *session.Session) {
	defer r.wg.Done()
	<-s.Done()
	r.mu.Lock()
	delete(r.sessions, s.ID())
	r.mu.Unlock()
	metrics.SessionDisposed()
}

// Get returns a live session.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Dispose disposes and forgets a session.
func (r *Registry) Dispose(ctx context.Context, id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	return s.Dispose(ctx)
}

// IDs lists live session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close disposes every session and waits for them to be forgotten.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range all {
		g.Go(func() error { return s.Dispose(gctx) })
	}
	err := g.Wait()
	if err == nil {
		r.wg.Wait()
	}
	return err
}
