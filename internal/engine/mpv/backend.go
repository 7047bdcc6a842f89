// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build libmpv

package mpv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	gompv "github.com/gen2brain/go-mpv"
	"github.com/rs/zerolog"

	"github.com/ManuGH/playctl/internal/engine"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/resilience"
)

const eventBuffer = 64

const (
	observeCacheStall uint64 = iota + 1
	observeCoreIdle
)

type backend struct {
	mu     sync.Mutex
	client *gompv.Mpv
	logger zerolog.Logger

	items         []media.Item
	policy        *resilience.LoadErrorPolicy
	selection     media.TrackSelection
	state         engine.PlaybackState
	playWhenReady bool
	attempt       int
	retryTimer    *time.Timer

	events    chan engine.Event
	done      chan struct{}
	closeOnce sync.Once
	loopWG    sync.WaitGroup
}

func newEngine(context.Context) (engine.Engine, error) {
	client := gompv.New()
	if client == nil {
		return nil, errors.New("create libmpv instance")
	}

	setOptionString(client, "terminal", "no")
	setOptionString(client, "idle", "yes")
	setOptionString(client, "keep-open", "no")

	if err := client.Initialize(); err != nil {
		client.TerminateDestroy()
		return nil, fmt.Errorf("initialize libmpv: %w", err)
	}

	b := &backend{
		client:    client,
		logger:    xglog.WithComponent("engine.mpv"),
		selection: media.DefaultTrackSelection(),
		state:     engine.StateIdle,
		events:    make(chan engine.Event, eventBuffer),
		done:      make(chan struct{}),
	}

	_ = client.RequestEvent(gompv.EventEnd, true)
	_ = client.ObserveProperty(observeCacheStall, "paused-for-cache", gompv.FormatFlag)
	_ = client.ObserveProperty(observeCoreIdle, "core-idle", gompv.FormatFlag)
	_ = client.SetPropertyString("pause", "yes")

	b.loopWG.Add(1)
	go b.eventLoop()

	return b, nil
}

func (b *backend) Prepare(_ context.Context, items []media.Item, policy *resilience.LoadErrorPolicy) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = slices.Clone(items)
	b.policy = policy
	b.attempt = 0

	if len(items) > 0 {
		if h := items[0].Headers; len(h) > 0 {
			setOptionString(b.client, "http-header-fields", headerFields(h))
		}
		for _, it := range items {
			if it.DRM != nil {
				b.logger.Warn().Str(xglog.FieldMediaURL, it.URL).Msg("drm is not supported by the mpv engine, item will play without license")
			}
		}
		if items[0].Live {
			live := media.DefaultLiveConfig
			_ = b.client.SetPropertyString("cache-secs", fmt.Sprintf("%.0f", live.TargetOffset.Seconds()))
		}
	}
	return b.loadLocked()
}

func (b *backend) Reprepare(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
	return b.loadLocked()
}

func (b *backend) loadLocked() error {
	if b.retryTimer != nil {
		b.retryTimer.Stop()
		b.retryTimer = nil
	}
	if len(b.items) == 0 {
		b.state = engine.StateEnded
		b.pushLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateEnded})
		return nil
	}
	for i, it := range b.items {
		mode := "append"
		if i == 0 {
			mode = "replace"
		}
		if err := b.client.Command([]string{"loadfile", it.URL, mode}); err != nil {
			return fmt.Errorf("load file %q: %w", it.URL, err)
		}
	}
	b.state = engine.StateBuffering
	b.pushLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateBuffering})
	return nil
}

func (b *backend) Play() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.playWhenReady {
		return
	}
	b.playWhenReady = true
	if err := b.client.SetPropertyString("pause", "no"); err != nil {
		b.logger.Debug().Err(err).Msg("resume playback")
	}
	b.pushLocked(engine.Event{Kind: engine.EventPlayWhenReadyChanged, Playing: true})
}

func (b *backend) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.playWhenReady {
		return
	}
	b.playWhenReady = false
	if err := b.client.SetPropertyString("pause", "yes"); err != nil {
		b.logger.Debug().Err(err).Msg("pause playback")
	}
	b.pushLocked(engine.Event{Kind: engine.EventPlayWhenReadyChanged, Playing: false})
}

func (b *backend) Seek(positionMs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seconds := float64(positionMs) / 1000.0
	if err := b.client.SetProperty("time-pos", gompv.FormatDouble, seconds); err != nil {
		b.logger.Debug().Err(err).Msg("seek")
	}
}

func (b *backend) SetSpeed(rate float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.client.SetProperty("speed", gompv.FormatDouble, rate)
}

func (b *backend) SetRepeat(all bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value := "no"
	if all {
		value = "inf"
	}
	_ = b.client.SetPropertyString("loop-playlist", value)
}

func (b *backend) SetFit(mode media.FitMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keep, pan := fitProperties(mode)
	_ = b.client.SetPropertyString("keepaspect", keep)
	_ = b.client.SetProperty("panscan", gompv.FormatDouble, pan)
}

func (b *backend) inventoryLocked() inventory {
	raw, err := b.client.GetProperty("track-list", gompv.FormatString)
	if err != nil {
		return inventory{}
	}
	s, _ := raw.(string)
	inv, err := parseTrackList(s)
	if err != nil {
		b.logger.Debug().Err(err).Msg("track-list unreadable")
	}
	return inv
}

func (b *backend) TrackGroups() []media.TrackGroup {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inventoryLocked().groups
}

func (b *backend) TrackSelection() media.TrackSelection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selection.Clone()
}

func (b *backend) SetTrackSelection(sel media.TrackSelection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selection = sel.Clone()
	for prop, value := range selectionValues(b.inventoryLocked(), sel) {
		if err := b.client.SetPropertyString(prop, value); err != nil {
			b.logger.Debug().Err(err).Str("property", prop).Msg("apply track selection")
		}
	}
	_ = b.client.SetPropertyString("hls-bitrate", hlsBitrate(sel.MaxVideoBitrate))
	b.pushLocked(engine.Event{Kind: engine.EventTracksChanged})
}

func (b *backend) Status() engine.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := engine.Status{
		State:         b.state,
		PlayWhenReady: b.playWhenReady,
		IsPlaying:     b.state == engine.StateReady && b.playWhenReady,
		Speed:         1,
	}
	if ms, ok := b.readMillisLocked("time-pos"); ok {
		st.PositionMs = ms
	}
	if ms, ok := b.readMillisLocked("duration"); ok {
		st.DurationMs = ms
	}
	if v, err := b.client.GetProperty("speed", gompv.FormatDouble); err == nil {
		if f, ok := v.(float64); ok {
			st.Speed = f
		}
	}
	st.VideoWidth = b.readIntLocked("width")
	st.VideoHeight = b.readIntLocked("height")
	return st
}

func (b *backend) Events() <-chan engine.Event {
	return b.events
}

func (b *backend) Release() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		if b.retryTimer != nil {
			b.retryTimer.Stop()
		}
		client := b.client
		b.mu.Unlock()

		close(b.done)
		client.Wakeup()
		client.TerminateDestroy()
		b.loopWG.Wait()
	})
	return nil
}

func (b *backend) eventLoop() {
	defer b.loopWG.Done()

	for {
		select {
		case <-b.done:
			return
		default:
		}
		event := b.client.WaitEvent(0.5)
		if event == nil {
			continue
		}

		switch event.EventID {
		case gompv.EventShutdown:
			return
		case gompv.EventFileLoaded, gompv.EventPlaybackRestart:
			b.setState(engine.StateReady)
		case gompv.EventPropertyChange:
			prop := event.Property()
			stalled, _ := prop.Data.(bool)
			if event.ReplyUserdata == observeCacheStall {
				if stalled {
					b.setState(engine.StateBuffering)
				} else {
					b.setState(engine.StateReady)
				}
			}
		case gompv.EventEnd:
			end := event.EndFile()
			switch end.Reason {
			case gompv.EndFileEOF:
				b.setState(engine.StateEnded)
			case gompv.EndFileError:
				b.onLoadError(end.Error)
			}
		}
	}
}

func (b *backend) setState(s engine.PlaybackState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == s {
		return
	}
	wasPlaying := b.state == engine.StateReady && b.playWhenReady
	b.state = s
	if s == engine.StateReady {
		b.attempt = 0
	}
	b.pushLocked(engine.Event{Kind: engine.EventStateChanged, State: s})
	if playing := s == engine.StateReady && b.playWhenReady; playing != wasPlaying {
		b.pushLocked(engine.Event{Kind: engine.EventIsPlayingChanged, Playing: playing})
	}
}

func (b *backend) onLoadError(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempt++
	d := b.policy.RetryDelay(b.attempt)
	if d.Suppressed {
		b.state = engine.StateIdle
		b.pushLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateIdle})
		b.pushLocked(engine.Event{Kind: engine.EventError, Err: &engine.PlaybackError{Code: engine.CodeSource, Err: cause}})
		return
	}
	b.logger.Debug().Int(xglog.FieldAttempt, b.attempt).Dur("delay", d.Delay).Msg("load failed, retrying")
	b.retryTimer = time.AfterFunc(d.Delay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		select {
		case <-b.done:
			return
		default:
		}
		if err := b.loadLocked(); err != nil {
			b.logger.Warn().Err(err).Msg("reload failed")
		}
	})
}

// pushLocked never blocks; a full buffer drops the event.
func (b *backend) pushLocked(ev engine.Event) {
	select {
	case b.events <- ev:
	default:
		b.logger.Warn().Str("kind", string(ev.Kind)).Msg("engine event dropped")
	}
}

func (b *backend) readMillisLocked(property string) (int64, bool) {
	value, err := b.client.GetProperty(property, gompv.FormatDouble)
	if err != nil {
		return 0, false
	}
	seconds, ok := value.(float64)
	if !ok || math.IsNaN(seconds) || seconds < 0 {
		return 0, false
	}
	return int64(math.Round(seconds * 1000)), true
}

func (b *backend) readIntLocked(property string) int {
	value, err := b.client.GetProperty(property, gompv.FormatInt64)
	if err != nil {
		return 0
	}
	if n, ok := value.(int64); ok {
		return int(n)
	}
	return 0
}

func setOptionString(client *gompv.Mpv, name string, value string) {
	_ = client.SetOptionString(name, value)
}
