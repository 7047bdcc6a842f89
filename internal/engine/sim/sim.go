// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sim is a deterministic in-process engine. It keeps a virtual
// position driven by an injectable clock, serves a scripted track inventory and
// plays out scripted load failures against the installed retry policy.
package sim

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/playctl/internal/engine"
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/resilience"
)

// Kind is the registry name of this engine.
const Kind = "sim"

func init() {
	engine.Register(Kind, func(context.Context) (engine.Engine, error) {
		return New(), nil
	})
}

// Script describes what the simulated media looks like.
type Script struct {
	DurationMs int64
	Groups     []media.TrackGroup
	// LoadFailures is the number of load attempts that fail before one succeeds.
	// The counter is shared across Prepare and Reprepare.
	LoadFailures int
	// FailureCode is reported when the retry policy gives up.
	FailureCode string
	// ReprepareErr makes Reprepare fail synchronously.
	ReprepareErr error
}

// DefaultScript is a ten minute item with an ABR ladder, two audio languages
// and two subtitle tracks.
func DefaultScript() Script {
	return Script{
		DurationMs: 600_000,
		Groups: []media.TrackGroup{
			{Index: 0, Type: media.TypeVideo, Tracks: []media.Track{
				{Bitrate: 400_000, Width: 426, Height: 240, FrameRate: 25},
				{Bitrate: 2_500_000, Width: 1280, Height: 720, FrameRate: 30},
				{Bitrate: 12_000_000, Width: 1920, Height: 1080, FrameRate: 60},
			}},
			{Index: 1, Type: media.TypeAudio, Tracks: []media.Track{
				{Language: "en", Codecs: "mp4a.40.2"},
				{Language: "de"},
			}},
			{Index: 2, Type: media.TypeText, Tracks: []media.Track{
				{Language: "en", Label: "English"},
				{Language: "fr", Forced: true},
			}},
		},
		FailureCode: engine.CodeSource,
	}
}

// Option customises an Engine.
type Option func(*Engine)

// WithScript replaces the default script.
func WithScript(s Script) Option {
	return func(e *Engine) { e.script = s }
}

// WithClock injects the time source used for the virtual position.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep injects the wait used between load retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

const eventBuffer = 64

// Engine implements engine.Engine.
type Engine struct {
	mu sync.Mutex

	script       Script
	failuresLeft int
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error

	items  []media.Item
	policy *resilience.LoadErrorPolicy

	state         engine.PlaybackState
	playWhenReady bool
	isPlaying     bool
	basePos       int64
	baseAt        time.Time
	speed         float64
	repeat        bool
	fit           media.FitMode
	selection     media.TrackSelection
	videoW        int
	videoH        int

	events chan engine.Event
	ctx    context.Context
	cancel context.CancelFunc
	load   context.CancelFunc
	wg     sync.WaitGroup

	released bool
}

// New builds an idle engine.
func New(opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		script:    DefaultScript(),
		now:       time.Now,
		sleep:     sleepCtx,
		state:     engine.StateIdle,
		speed:     1,
		fit:       media.FitContain,
		selection: media.DefaultTrackSelection(),
		events:    make(chan engine.Event, eventBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.failuresLeft = e.script.LoadFailures
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Prepare installs the playlist and starts loading.
func (e *Engine) Prepare(_ context.Context, items []media.Item, policy *resilience.LoadErrorPolicy) error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return engine.ErrReleased
	}
	e.items = slices.Clone(items)
	e.policy = policy
	e.mu.Unlock()

	e.startLoad()
	return nil
}

// Reprepare reloads the playlist.
func (e *Engine) Reprepare(_ context.Context) error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return engine.ErrReleased
	}
	if err := e.script.ReprepareErr; err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.startLoad()
	return nil
}

func (e *Engine) startLoad() {
	e.mu.Lock()
	if e.load != nil {
		e.load()
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.load = cancel
	e.freezeLocked()
	e.isPlaying = false
	e.state = engine.StateBuffering
	e.mu.Unlock()

	e.emit(engine.Event{Kind: engine.EventStateChanged, State: engine.StateBuffering})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runLoad(ctx)
	}()
}

func (e *Engine) runLoad(ctx context.Context) {
	attempt := 0
	for {
		e.mu.Lock()
		failing := e.failuresLeft > 0
		if failing {
			e.failuresLeft--
		}
		policy := e.policy
		e.mu.Unlock()

		if !failing {
			break
		}
		attempt++
		d := policy.RetryDelay(attempt)
		if d.Suppressed {
			e.fail(&engine.PlaybackError{Code: e.script.FailureCode})
			return
		}
		if err := e.sleep(ctx, d.Delay); err != nil {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	evts := make([]engine.Event, 0, 2)
	if len(e.items) == 0 {
		e.state = engine.StateEnded
		evts = append(evts, engine.Event{Kind: engine.EventStateChanged, State: engine.StateEnded})
	} else {
		e.state = engine.StateReady
		e.refreshVideoSizeLocked()
		evts = append(evts, engine.Event{Kind: engine.EventTracksChanged},
			engine.Event{Kind: engine.EventStateChanged, State: engine.StateReady})
		if e.playWhenReady {
			e.isPlaying = true
			e.baseAt = e.now()
			evts = append(evts, engine.Event{Kind: engine.EventIsPlayingChanged, Playing: true})
		}
	}
	e.mu.Unlock()

	e.emit(evts...)
}

func (e *Engine) fail(pe *engine.PlaybackError) {
	e.mu.Lock()
	e.freezeLocked()
	e.state = engine.StateIdle
	wasPlaying := e.isPlaying
	e.isPlaying = false
	e.mu.Unlock()

	evts := []engine.Event{{Kind: engine.EventStateChanged, State: engine.StateIdle}}
	if wasPlaying {
		evts = append(evts, engine.Event{Kind: engine.EventIsPlayingChanged, Playing: false})
	}
	evts = append(evts, engine.Event{Kind: engine.EventError, Err: pe})
	e.emit(evts...)
}

// emit delivers events unless the engine has been released.
func (e *Engine) emit(evts ...engine.Event) {
	for _, ev := range evts {
		select {
		case e.events <- ev:
		case <-e.ctx.Done():
			return
		}
	}
}

// positionLocked returns the virtual position, clamped to the duration.
func (e *Engine) positionLocked() int64 {
	pos := e.basePos
	if e.isPlaying {
		elapsed := e.now().Sub(e.baseAt)
		pos += int64(float64(elapsed.Milliseconds()) * e.speed)
	}
	if pos < 0 {
		pos = 0
	}
	if d := e.script.DurationMs; d > 0 && pos > d {
		if e.repeat {
			pos %= d
		} else {
			pos = d
		}
	}
	return pos
}

func (e *Engine) freezeLocked() {
	e.basePos = e.positionLocked()
	e.baseAt = e.now()
}

func (e *Engine) Play() {
	e.mu.Lock()
	if e.released || e.playWhenReady {
		e.mu.Unlock()
		return
	}
	e.playWhenReady = true
	evts := []engine.Event{{Kind: engine.EventPlayWhenReadyChanged, Playing: true}}
	if e.state == engine.StateReady {
		e.baseAt = e.now()
		e.isPlaying = true
		evts = append(evts, engine.Event{Kind: engine.EventIsPlayingChanged, Playing: true})
	}
	e.mu.Unlock()
	e.emit(evts...)
}

func (e *Engine) Pause() {
	e.mu.Lock()
	if e.released || !e.playWhenReady {
		e.mu.Unlock()
		return
	}
	e.freezeLocked()
	e.playWhenReady = false
	evts := []engine.Event{{Kind: engine.EventPlayWhenReadyChanged, Playing: false}}
	if e.isPlaying {
		e.isPlaying = false
		evts = append(evts, engine.Event{Kind: engine.EventIsPlayingChanged, Playing: false})
	}
	e.mu.Unlock()
	e.emit(evts...)
}

func (e *Engine) Seek(positionMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if positionMs < 0 {
		positionMs = 0
	}
	if d := e.script.DurationMs; d > 0 && positionMs > d {
		positionMs = d
	}
	e.basePos = positionMs
	e.baseAt = e.now()
}

func (e *Engine) SetSpeed(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.freezeLocked()
	e.speed = rate
}

func (e *Engine) SetRepeat(all bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeat = all
}

func (e *Engine) SetFit(mode media.FitMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fit = mode
}

// TrackGroups returns the inventory with selection flags resolved against the
// current selection parameters.
func (e *Engine) TrackGroups() []media.TrackGroup {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked()
}

func (e *Engine) resolveLocked() []media.TrackGroup {
	out := make([]media.TrackGroup, len(e.script.Groups))
	for i, g := range e.script.Groups {
		g.Tracks = slices.Clone(g.Tracks)
		for j := range g.Tracks {
			g.Tracks[j].Selected = false
		}
		out[i] = g
	}
	for _, t := range []media.Type{media.TypeVideo, media.TypeAudio, media.TypeText} {
		if e.selection.IsDisabled(t) {
			continue
		}
		if o, ok := e.selection.Override(t); ok && o.Group < len(out) &&
			out[o.Group].Type == t && o.Track < len(out[o.Group].Tracks) {
			out[o.Group].Tracks[o.Track].Selected = true
			continue
		}
		e.selectDefault(out, t)
	}
	return out
}

func (e *Engine) selectDefault(groups []media.TrackGroup, t media.Type) {
	idx := slices.IndexFunc(groups, func(g media.TrackGroup) bool { return g.Type == t && len(g.Tracks) > 0 })
	if idx < 0 {
		return
	}
	tracks := groups[idx].Tracks
	switch t {
	case media.TypeVideo:
		best, lowest := -1, 0
		for j, tr := range tracks {
			if tr.Bitrate < tracks[lowest].Bitrate {
				lowest = j
			}
			if tr.Bitrate <= e.selection.MaxVideoBitrate && (best < 0 || tr.Bitrate > tracks[best].Bitrate) {
				best = j
			}
		}
		if best < 0 {
			best = lowest
		}
		tracks[best].Selected = true
	case media.TypeAudio:
		tracks[0].Selected = true
	case media.TypeText:
		if j := slices.IndexFunc(tracks, func(tr media.Track) bool { return tr.Forced }); j >= 0 {
			tracks[j].Selected = true
		}
	}
}

func (e *Engine) refreshVideoSizeLocked() {
	for _, g := range e.resolveLocked() {
		if g.Type != media.TypeVideo {
			continue
		}
		for _, tr := range g.Tracks {
			if tr.Selected {
				e.videoW, e.videoH = tr.Width, tr.Height
				return
			}
		}
	}
}

func (e *Engine) TrackSelection() media.TrackSelection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.Clone()
}

func (e *Engine) SetTrackSelection(sel media.TrackSelection) {
	e.mu.Lock()
	e.selection = sel.Clone()
	if e.state == engine.StateReady {
		e.refreshVideoSizeLocked()
	}
	e.mu.Unlock()
	e.emit(engine.Event{Kind: engine.EventTracksChanged})
}

func (e *Engine) Status() engine.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return engine.Status{
		State:         e.state,
		PlayWhenReady: e.playWhenReady,
		IsPlaying:     e.isPlaying,
		PositionMs:    e.positionLocked(),
		DurationMs:    e.script.DurationMs,
		Speed:         e.speed,
		VideoWidth:    e.videoW,
		VideoHeight:   e.videoH,
	}
}

func (e *Engine) Events() <-chan engine.Event {
	return e.events
}

// Release stops any pending load. The events channel is left open.
func (e *Engine) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	e.isPlaying = false
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	return nil
}

// Released reports whether Release was called.
func (e *Engine) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}
