// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/playctl/internal/engine"
	"github.com/ManuGH/playctl/internal/engine/sim"
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/resume"
)

const waitFor = 2 * time.Second

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestSession(t *testing.T, cfg Config, opts ...sim.Option) (*Session, *sim.Engine) {
	t.Helper()
	eng := sim.New(append([]sim.Option{sim.WithSleep(noSleep)}, opts...)...)
	cfg.Engine = eng
	if cfg.ID == "" {
		cfg.ID = "test-session"
	}
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = 20 * time.Millisecond
	}
	s := New(cfg)
	t.Cleanup(func() { _ = s.Dispose(context.Background()) })
	return s, eng
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, waitFor, 5*time.Millisecond,
		"want state %s, have %s", want, s.State())
}

func items(urls ...string) []media.Item {
	out := make([]media.Item, 0, len(urls))
	for _, u := range urls {
		out = append(out, media.NewItem(u, nil, nil, false))
	}
	return out
}

func TestSession_ConfigurePausedAtStartPosition(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s, eng := newTestSession(t, Config{})

	opts := media.DefaultSessionOptions()
	opts.AutoPlay = false
	opts.StartAutoPlay = false
	opts.StartPositionMs = 5000
	require.NoError(t, s.Configure(ctx, items("https://cdn.example/a.m3u8"), opts))

	waitState(t, s, StateReady)
	snap := s.Snapshot()
	assert.Equal(t, int64(5000), snap.PositionMs)
	assert.Equal(t, int64(600_000), snap.DurationMs)
	assert.False(t, snap.IsPlaying)
	assert.Empty(t, snap.Error)
	assert.False(t, eng.Status().PlayWhenReady)

	require.NoError(t, s.Dispose(ctx))
}

func TestSession_ConfigureAutoPlay(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s, eng := newTestSession(t, Config{})

	opts := media.DefaultSessionOptions()
	opts.Loop = true
	require.NoError(t, s.Configure(ctx, items("", "https://cdn.example/a.m3u8"), opts))

	waitState(t, s, StatePlaying)
	assert.True(t, eng.Repeat())
	require.Len(t, eng.Items(), 1, "entries without url are skipped")

	err := s.Configure(ctx, items("https://cdn.example/b.m3u8"), opts)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, s.Pause(ctx))
	waitState(t, s, StatePaused)
	require.NoError(t, s.Play(ctx))
	waitState(t, s, StatePlaying)

	require.NoError(t, s.Dispose(ctx))
}

func TestSession_EmptyPlaylistIsNotAnError(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s, _ := newTestSession(t, Config{})

	require.NoError(t, s.Configure(ctx, items("", " "), media.DefaultSessionOptions()))
	require.Eventually(t, func() bool {
		st := s.State()
		return st == StateReady || st == StatePaused
	}, waitFor, 5*time.Millisecond)
	require.NoError(t, s.Dispose(ctx))
}

func TestSession_SubscribeReplacesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s, _ := newTestSession(t, Config{})

	first := NewChannelSink(4)
	require.NoError(t, s.Subscribe(ctx, first))
	select {
	case <-first.C():
	case <-time.After(waitFor):
		t.Fatal("no immediate snapshot on subscribe")
	}

	second := NewChannelSink(4)
	require.NoError(t, s.Subscribe(ctx, second))
	select {
	case <-first.Done():
	case <-time.After(waitFor):
		t.Fatal("replaced sink was not closed")
	}

	// ticks keep arriving while subscribed
	for i := 0; i < 3; i++ {
		select {
		case _, ok := <-second.C():
			require.True(t, ok)
		case <-time.After(waitFor):
			t.Fatal("no sampled snapshot")
		}
	}

	require.NoError(t, s.Unsubscribe(ctx, first), "stale sink is ignored")
	select {
	case <-second.Done():
		t.Fatal("unsubscribing a stale sink closed the current one")
	default:
	}

	require.NoError(t, s.Unsubscribe(ctx, second))
	<-second.Done()
	for range second.C() {
	}
	assert.False(t, second.Push(media.Snapshot{}))

	require.NoError(t, s.Dispose(ctx))
}

func TestSession_ResubscribeRestartsCadence(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	const interval = 200 * time.Millisecond
	s, _ := newTestSession(t, Config{SampleInterval: interval})

	first := NewChannelSink(4)
	require.NoError(t, s.Subscribe(ctx, first))
	<-first.C()
	time.Sleep(interval / 2)
	require.NoError(t, s.Unsubscribe(ctx, first))

	second := NewChannelSink(4)
	subscribed := time.Now()
	require.NoError(t, s.Subscribe(ctx, second))

	select {
	case <-second.C():
		assert.Less(t, time.Since(subscribed), interval/2, "push on subscribe is immediate")
	case <-time.After(waitFor):
		t.Fatal("no immediate snapshot on resubscribe")
	}
	select {
	case <-second.C():
		assert.GreaterOrEqual(t, time.Since(subscribed), interval*3/4, "cadence restarts from the new subscription")
	case <-time.After(waitFor):
		t.Fatal("no sampled snapshot after resubscribe")
	}

	require.NoError(t, s.Dispose(ctx))
}

func TestSession_DisposeIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s, eng := newTestSession(t, Config{})

	sink := NewChannelSink(1)
	require.NoError(t, s.Subscribe(ctx, sink))
	require.NoError(t, s.Configure(ctx, items("https://cdn.example/a.m3u8"), media.DefaultSessionOptions()))

	require.NoError(t, s.Dispose(ctx))
	require.NoError(t, s.Dispose(ctx))

	assert.Equal(t, StateDisposed, s.State())
	assert.True(t, eng.Released())
	<-sink.Done()
	for range sink.C() {
	}
	assert.False(t, sink.Push(media.Snapshot{}), "closed sink refuses pushes")
	time.Sleep(3 * 20 * time.Millisecond)
	_, open := <-sink.C()
	assert.False(t, open, "no tick after dispose")

	assert.ErrorIs(t, s.Play(ctx), ErrDisposed)
	assert.ErrorIs(t, s.Subscribe(ctx, NewChannelSink(1)), ErrDisposed)
	_, err := s.ListTracks(ctx, media.TypeVideo)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestSession_FatalErrorAndRetry(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s, eng := newTestSession(t, Config{})

	sink := NewChannelSink(64)
	require.NoError(t, s.Subscribe(ctx, sink))
	require.NoError(t, s.Configure(ctx, items("https://cdn.example/a.m3u8"), media.DefaultSessionOptions()))
	waitState(t, s, StatePlaying)

	eng.Fail(engine.CodeDecoder)
	waitState(t, s, StateError)

	snap := s.Snapshot()
	assert.Equal(t, engine.CodeDecoder, snap.Error)
	assert.False(t, snap.IsPlaying)
	assert.False(t, snap.IsBuffering)

	// pause intent is recorded, not forwarded
	require.NoError(t, s.Pause(ctx))
	assert.True(t, eng.Status().PlayWhenReady)

	require.NoError(t, s.Retry(ctx))
	waitState(t, s, StateReady)
	assert.False(t, eng.Status().PlayWhenReady)
	assert.Empty(t, s.Snapshot().Error)

	require.NoError(t, s.Dispose(ctx))
}

func TestSession_LoadRetriesExhausted(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	script := sim.DefaultScript()
	script.LoadFailures = 2
	s, _ := newTestSession(t, Config{}, sim.WithScript(script))

	opts := media.DefaultSessionOptions()
	opts.Playback.MaxRetryCount = 1
	require.NoError(t, s.Configure(ctx, items("https://cdn.example/a.m3u8"), opts))
	waitState(t, s, StateError)
	assert.Equal(t, engine.CodeSource, s.Snapshot().Error)

	require.NoError(t, s.Retry(ctx))
	waitState(t, s, StatePlaying)

	require.NoError(t, s.Dispose(ctx))
}

func TestSession_RetryFailures(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	script := sim.DefaultScript()
	script.ReprepareErr = errors.New("decoder gone")
	s, _ := newTestSession(t, Config{}, sim.WithScript(script))

	assert.ErrorIs(t, s.Retry(ctx), ErrInvalidState)

	require.NoError(t, s.Configure(ctx, items("https://cdn.example/a.m3u8"), media.DefaultSessionOptions()))
	waitState(t, s, StatePlaying)

	err := s.Retry(ctx)
	require.ErrorIs(t, err, ErrRetryFailed)
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, SummaryRetryFailed, s.Snapshot().Error)

	// session stays usable
	_, err = s.ListTracks(ctx, media.TypeAudio)
	require.NoError(t, err)
	require.NoError(t, s.Dispose(ctx))
}

func TestSession_RebufferTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s, eng := newTestSession(t, Config{})

	opts := media.DefaultSessionOptions()
	opts.Playback.RebufferTimeoutMs = 50
	require.NoError(t, s.Configure(ctx, items("https://cdn.example/a.m3u8"), opts))
	waitState(t, s, StatePlaying)

	eng.Stall(true)
	waitState(t, s, StateError)
	assert.Equal(t, SummaryRebufferTimeout, s.Snapshot().Error)
	assert.False(t, eng.Status().PlayWhenReady)

	require.NoError(t, s.Dispose(ctx))
}

func TestSession_RecoveredStallKeepsPlaying(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s, eng := newTestSession(t, Config{})

	opts := media.DefaultSessionOptions()
	opts.Playback.RebufferTimeoutMs = 10_000
	require.NoError(t, s.Configure(ctx, items("https://cdn.example/a.m3u8"), opts))
	waitState(t, s, StatePlaying)

	eng.Stall(true)
	waitState(t, s, StateBuffering)
	eng.Stall(false)
	waitState(t, s, StatePlaying)

	require.NoError(t, s.Dispose(ctx))
}

func TestSession_TracksAndDataSaver(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	s, eng := newTestSession(t, Config{})

	require.NoError(t, s.Configure(ctx, items("https://cdn.example/a.m3u8"), media.DefaultSessionOptions()))
	waitState(t, s, StatePlaying)

	video, err := s.ListTracks(ctx, media.TypeVideo)
	require.NoError(t, err)
	require.Len(t, video, 3)
	assert.True(t, video[2].Selected)

	require.NoError(t, s.SetDataSaver(ctx, true))
	video, err = s.ListTracks(ctx, media.TypeVideo)
	require.NoError(t, err)
	assert.True(t, video[0].Selected)

	ok, err := s.SelectTrack(ctx, media.TypeAudio, "1:1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SelectTrack(ctx, media.TypeAudio, "0:0")
	require.NoError(t, err)
	assert.False(t, ok, "group of another type")

	ok, err = s.SelectTrack(ctx, media.TypeText, "off")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, eng.TrackSelection().IsDisabled(media.TypeText))

	ok, err = s.SelectTrack(ctx, media.TypeText, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, eng.TrackSelection().IsDisabled(media.TypeText))

	require.NoError(t, s.SetFit(ctx, "bogus"))
	assert.Equal(t, media.FitContain, eng.Fit())
	require.NoError(t, s.SetFit(ctx, "cover"))
	assert.Equal(t, media.FitCover, eng.Fit())

	require.NoError(t, s.SeekTo(ctx, -10))
	assert.LessOrEqual(t, eng.Status().PositionMs, int64(1000))

	pip, err := s.EnterPip(ctx)
	require.NoError(t, err)
	assert.False(t, pip, "no surfaces attached")

	require.NoError(t, s.Dispose(ctx))
}

func TestSession_ResumeRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	store := resume.NewMemoryStore()
	url := "https://cdn.example/movie.mp4"

	s, _ := newTestSession(t, Config{Resume: store})
	opts := media.DefaultSessionOptions()
	opts.StartAutoPlay = false
	opts.StartPositionMs = 42_000
	require.NoError(t, s.Configure(ctx, items(url), opts))
	waitState(t, s, StateReady)
	require.NoError(t, s.Dispose(ctx))

	saved, err := store.Get(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, int64(42_000), saved.PositionMs)

	s2, eng2 := newTestSession(t, Config{Resume: store})
	opts = media.DefaultSessionOptions()
	opts.StartAutoPlay = false
	opts.Resume = true
	require.NoError(t, s2.Configure(ctx, items(url), opts))
	waitState(t, s2, StateReady)
	assert.Equal(t, int64(42_000), eng2.Status().PositionMs)
	require.NoError(t, s2.Dispose(ctx))
}
