// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package session implements the playback session controller: one owner
// goroutine per session serialises commands, engine events, snapshot sampling
// and the rebuffer watchdog over a single engine handle.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/ManuGH/playctl/internal/bitrate"
	"github.com/ManuGH/playctl/internal/engine"
	"github.com/ManuGH/playctl/internal/fsm"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/presentation"
	"github.com/ManuGH/playctl/internal/resume"
	"github.com/ManuGH/playctl/internal/tracks"
)

// DefaultSampleInterval is the snapshot cadence while subscribed.
const DefaultSampleInterval = 500 * time.Millisecond

// Config wires a session to its collaborators.
type Config struct {
	ID     string
	Engine engine.Engine

	// SampleInterval <= 0 uses DefaultSampleInterval.
	SampleInterval time.Duration
	// DataSaverCap <= 0 uses bitrate.DefaultCap.
	DataSaverCap int

	Surfaces    []presentation.Surface
	IntentRate  rate.Limit
	IntentBurst int

	// Resume is optional.
	Resume resume.Store
	Now    func() time.Time
}

type intent int

const (
	intentNone intent = iota
	intentPlay
	intentPause
)

// Session is a single playback control plane instance.
type Session struct {
	id       string
	eng      engine.Engine
	machine  *fsm.Machine[State, Event]
	catalog  *tracks.Catalog
	bitrate  *bitrate.Manager
	bridge   *presentation.Bridge
	resume   resume.Store
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan func()
	done   chan struct{}

	// Owned by the loop goroutine.
	items      []media.Item
	opts       media.SessionOptions
	sink       Sink
	ticker     *time.Ticker
	tickC      <-chan time.Time
	watchdog   *time.Timer
	watchC     <-chan time.Time
	errSummary string
	pending    intent

	mu   sync.Mutex
	last media.Snapshot
}

// New starts the owner goroutine of a fresh idle session.
func New(cfg Config) *Session {
	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = xglog.ContextWithSessionID(ctx, cfg.ID)

	s := &Session{
		id:       cfg.ID,
		eng:      cfg.Engine,
		machine:  newMachine(),
		catalog:  tracks.New(cfg.Engine),
		bitrate:  bitrate.New(cfg.Engine, cfg.DataSaverCap),
		resume:   cfg.Resume,
		interval: interval,
		now:      now,
		logger:   xglog.WithComponent("session").With().Str(xglog.FieldSessionID, cfg.ID).Logger(),
		ctx:      ctx,
		cancel:   cancel,
		cmds:     make(chan func()),
		done:     make(chan struct{}),
		opts:     media.DefaultSessionOptions(),
	}

	bopts := []presentation.Option{presentation.WithSurfaces(cfg.Surfaces...)}
	if cfg.IntentRate > 0 {
		bopts = append(bopts, presentation.WithIntentRate(cfg.IntentRate, max(cfg.IntentBurst, 1)))
	}
	s.bridge = presentation.NewBridge(s, bopts...)
	s.bridge.Attach(ctx)

	go s.run()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Done is closed once the session has been disposed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.machine.State() }

// Snapshot returns the most recently sampled snapshot.
func (s *Session) Snapshot() media.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// do runs fn on the owner goroutine. A command accepted by the loop always
// completes, so only ctx can abandon the wait.
func (s *Session) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case s.cmds <- func() { res <- fn() }:
	case <-s.done:
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func call[T any](ctx context.Context, s *Session, fn func() (T, error)) (T, error) {
	var out T
	err := s.do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// Configure installs the playlist and options and starts preparation.
// Entries without a URL are skipped.
func (s *Session) Configure(ctx context.Context, items []media.Item, opts media.SessionOptions) error {
	return s.do(ctx, func() error { return s.configure(ctx, items, opts) })
}

func (s *Session) configure(ctx context.Context, items []media.Item, opts media.SessionOptions) error {
	if st := s.machine.State(); st != StateIdle {
		return fmt.Errorf("%w: configure in %s", ErrInvalidState, st)
	}

	valid := lo.Filter(items, func(it media.Item, _ int) bool { return strings.TrimSpace(it.URL) != "" })
	if skipped := len(items) - len(valid); skipped > 0 {
		s.logger.Warn().Str(xglog.FieldEvent, "session.playlist_skipped").Int("skipped", skipped).Msg("playlist entries without url skipped")
	}

	if opts.Resume && opts.StartPositionMs == 0 && s.resume != nil && len(valid) > 0 {
		st, err := s.resume.Get(ctx, valid[0].URL)
		if err != nil {
			s.logger.Warn().Err(err).Str(xglog.FieldEvent, "session.resume_lookup_failed").Msg("resume lookup failed")
		}
		opts.StartPositionMs = st.StartPosition()
	}

	s.items = valid
	s.opts = opts
	s.transition(EventConfigure, triggerTransition)

	policy := newLoadErrorPolicy(s.logger, opts.Playback)
	if err := s.eng.Prepare(ctx, valid, policy); err != nil {
		s.logger.Error().Err(err).Str(xglog.FieldEvent, "session.prepare_failed").Msg("engine prepare failed")
		s.fail(SummaryPrepareFailed)
		return nil
	}
	s.eng.SetRepeat(opts.Loop)
	if opts.StartPositionMs > 0 {
		s.eng.Seek(opts.StartPositionMs)
	}
	s.bitrate.SetDataSaver(opts.DataSaver)
	if opts.StartAutoPlay {
		s.eng.Play()
	} else {
		s.eng.Pause()
	}

	s.logger.Info().
		Str(xglog.FieldEvent, "session.configured").
		Int("items", len(valid)).
		Int64("start_ms", opts.StartPositionMs).
		Bool("autoplay", opts.StartAutoPlay).
		Msg("session configured")
	return nil
}

// Play sets the play intent. It never fails for a live session.
func (s *Session) Play(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.setIntent(intentPlay)
		return nil
	})
}

// Pause clears the play intent.
func (s *Session) Pause(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.setIntent(intentPause)
		return nil
	})
}

func (s *Session) setIntent(in intent) {
	switch s.machine.State() {
	case StateIdle, StateError:
		s.pending = in
		return
	}
	play := in == intentPlay
	if s.eng.Status().PlayWhenReady == play {
		return
	}
	if play {
		s.eng.Play()
	} else {
		s.eng.Pause()
	}
}

// SeekTo clamps negative positions to zero; the engine clamps to the duration.
func (s *Session) SeekTo(ctx context.Context, positionMs int64) error {
	return s.do(ctx, func() error {
		s.eng.Seek(max(positionMs, 0))
		return nil
	})
}

// SetSpeed forwards the playback rate verbatim.
func (s *Session) SetSpeed(ctx context.Context, speed float64) error {
	return s.do(ctx, func() error {
		s.eng.SetSpeed(speed)
		return nil
	})
}

// SetLooping toggles repeat-all.
func (s *Session) SetLooping(ctx context.Context, loop bool) error {
	return s.do(ctx, func() error {
		s.opts.Loop = loop
		s.eng.SetRepeat(loop)
		return nil
	})
}

// SetFit applies a fit mode; unknown values mean contain.
func (s *Session) SetFit(ctx context.Context, fit string) error {
	return s.do(ctx, func() error {
		s.eng.SetFit(media.ParseFit(fit))
		return nil
	})
}

// SetDataSaver installs or removes the video bitrate ceiling.
func (s *Session) SetDataSaver(ctx context.Context, enabled bool) error {
	return s.do(ctx, func() error {
		s.opts.DataSaver = enabled
		s.bitrate.SetDataSaver(enabled)
		return nil
	})
}

// SelectTrack pins a track by id. An empty id returns the type to default
// selection. The result is false for stale or malformed ids.
func (s *Session) SelectTrack(ctx context.Context, t media.Type, id string) (bool, error) {
	return call(ctx, s, func() (bool, error) {
		ok := s.catalog.Select(t, id)
		s.logger.Debug().
			Str(xglog.FieldEvent, "session.track_selected").
			Str(xglog.FieldTrackType, string(t)).
			Str(xglog.FieldTrackID, id).
			Bool("applied", ok).
			Msg("track selection")
		return ok, nil
	})
}

// ListTracks describes the current inventory of type t.
func (s *Session) ListTracks(ctx context.Context, t media.Type) ([]tracks.Info, error) {
	return call(ctx, s, func() ([]tracks.Info, error) {
		return s.catalog.List(t), nil
	})
}

// EnterPip asks the attached surfaces to enter picture-in-picture.
func (s *Session) EnterPip(ctx context.Context) (bool, error) {
	return call(ctx, s, func() (bool, error) {
		return s.bridge.EnterPip(ctx, s.pipRatio()), nil
	})
}

func (s *Session) pipRatio() presentation.Ratio {
	st := s.eng.Status()
	if st.VideoWidth > 0 && st.VideoHeight > 0 {
		return presentation.Ratio{Width: st.VideoWidth, Height: st.VideoHeight}
	}
	if w, h, ok := s.catalog.SelectedVideoSize(); ok {
		return presentation.Ratio{Width: w, Height: h}
	}
	return presentation.DefaultRatio
}

// Retry re-prepares the engine and resumes playback unless a pause was
// requested while in error.
func (s *Session) Retry(ctx context.Context) error {
	return s.do(ctx, func() error { return s.retry(ctx) })
}

func (s *Session) retry(ctx context.Context) error {
	st := s.machine.State()
	switch st {
	case StateIdle, StatePreparing:
		return fmt.Errorf("%w: retry in %s", ErrInvalidState, st)
	}

	if err := s.eng.Reprepare(ctx); err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "session.retry_failed").Msg("re-preparation failed")
		if st == StateError {
			s.errSummary = SummaryRetryFailed
			s.push(triggerError)
		} else {
			s.fail(SummaryRetryFailed)
		}
		return fmt.Errorf("%w: %w", ErrRetryFailed, err)
	}

	s.errSummary = ""
	s.transition(EventRetry, triggerTransition)
	if s.pending == intentPause {
		s.eng.Pause()
	} else {
		s.eng.Play()
	}
	s.pending = intentNone
	return nil
}

// Subscribe makes sink the only subscriber. The previous sink is closed.
// sink receives an immediate snapshot and then one per sample interval.
func (s *Session) Subscribe(ctx context.Context, sink Sink) error {
	return s.do(ctx, func() error {
		if s.sink != nil && s.sink != sink {
			s.sink.Close()
		}
		s.sink = sink
		s.stopTicker()
		s.ticker = time.NewTicker(s.interval)
		s.tickC = s.ticker.C
		s.push(triggerSubscribe)
		return nil
	})
}

// Unsubscribe detaches sink if it is the current subscriber.
func (s *Session) Unsubscribe(ctx context.Context, sink Sink) error {
	return s.do(ctx, func() error {
		if s.sink != sink {
			return nil
		}
		s.closeSink()
		return nil
	})
}

// Dispose stops sampling, detaches surfaces, stores the resume position and
// releases the engine. It is idempotent and returns after the loop ended.
func (s *Session) Dispose(ctx context.Context) error {
	err := s.do(ctx, func() error {
		s.dispose(ctx)
		return nil
	})
	if err != nil && !errors.Is(err, ErrDisposed) {
		return err
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
