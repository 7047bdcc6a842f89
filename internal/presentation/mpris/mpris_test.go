// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mpris

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quarckster/go-mpris-server/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/playctl/internal/presentation"
)

// fakeServer follows go-mpris-server: Stop fails until Listen has
// connected, and Listen blocks until a successful Stop.
type fakeServer struct {
	connect chan struct{} // closed to let Listen claim the name
	dialErr error

	mu      sync.Mutex
	claimed bool
	stops   int
	stop    chan struct{}
}

func newFakeServer() *fakeServer {
	return &fakeServer{connect: make(chan struct{}), stop: make(chan struct{}, 1)}
}

func (f *fakeServer) Listen() error {
	if f.dialErr != nil {
		return f.dialErr
	}
	<-f.connect
	f.mu.Lock()
	f.claimed = true
	f.mu.Unlock()
	<-f.stop
	return nil
}

func (f *fakeServer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if !f.claimed {
		return errors.New("server is not started")
	}
	f.claimed = false
	f.stop <- struct{}{}
	return nil
}

func (f *fakeServer) isClaimed(string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed
}

type fakeEmitter struct {
	mu        sync.Mutex
	playPause int
	seeks     []types.Microseconds
	titles    int
}

func (e *fakeEmitter) OnPlayPause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playPause++
	return nil
}

func (e *fakeEmitter) OnSeek(p types.Microseconds) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seeks = append(e.seeks, p)
	return nil
}

func (e *fakeEmitter) OnTitle() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.titles++
	return nil
}

func (e *fakeEmitter) counts() (int, int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playPause, len(e.seeks), e.titles
}

func newTestHub(srv *fakeServer, evt *fakeEmitter) *Hub {
	h := NewHub("playctl")
	h.newServer = func(*Hub) (busServer, emitter) { return srv, evt }
	h.claimed = srv.isClaimed
	h.claimTimeout = 2 * time.Second
	return h
}

func TestHub_BusName(t *testing.T) {
	assert.Equal(t, "org.mpris.MediaPlayer2.playctl", NewHub("").BusName())
	assert.Equal(t, "org.mpris.MediaPlayer2.tvbox", NewHub("tv-box").BusName())
	assert.Equal(t, "org.mpris.MediaPlayer2.playctl2", NewHub("2").BusName())
}

func TestHub_CancelBeforeClaimStopsAfterClaim(t *testing.T) {
	srv := newFakeServer()
	h := newTestHub(srv, &fakeEmitter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	close(srv.connect)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return; Listen leaked")
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, 1, srv.stops, "Stop is called exactly once, after the claim")
	assert.False(t, srv.claimed)
	assert.False(t, h.Connected())
}

func TestHub_ServesUntilCancelled(t *testing.T) {
	srv := newFakeServer()
	close(srv.connect)
	h := newTestHub(srv, &fakeEmitter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.False(t, h.Connected())
}

func TestHub_NoSessionBusIsTolerated(t *testing.T) {
	srv := newFakeServer()
	srv.dialErr = errors.New("dbus: DBUS_SESSION_BUS_ADDRESS not set")
	h := newTestHub(srv, &fakeEmitter{})

	require.NoError(t, h.Run(context.Background()))
	assert.False(t, h.Connected())

	s := h.Surface("a")
	require.NoError(t, s.Attach(context.Background(), func(presentation.Intent) {}))
	assert.ErrorIs(t, s.Publish(context.Background(), presentation.State{Playing: true}), ErrNotConnected)
	require.NoError(t, s.Detach())
}

func TestHub_ClaimTimeout(t *testing.T) {
	srv := newFakeServer()
	h := newTestHub(srv, &fakeEmitter{})
	h.claimTimeout = 30 * time.Millisecond

	require.NoError(t, h.Run(context.Background()))
	assert.False(t, h.Connected())

	close(srv.connect)
	require.Eventually(t, func() bool { return srv.isClaimed("") }, time.Second, 5*time.Millisecond)
	require.NoError(t, srv.Stop())
}

func TestHub_ActiveSessionRouting(t *testing.T) {
	h := NewHub("playctl")
	ctx := context.Background()

	var gotA, gotB []presentation.Intent
	a, b := h.Surface("a"), h.Surface("b")
	assert.Error(t, h.Play(), "no attached session")

	require.NoError(t, a.Attach(ctx, func(in presentation.Intent) { gotA = append(gotA, in) }))
	require.NoError(t, b.Attach(ctx, func(in presentation.Intent) { gotB = append(gotB, in) }))
	assert.Equal(t, "b", h.Active())

	require.NoError(t, h.PlayPause())
	assert.Equal(t, []presentation.Intent{presentation.IntentToggle}, gotB)

	// a starts playing and takes over
	_ = a.Publish(ctx, presentation.State{Playing: true, Speed: 1})
	assert.Equal(t, "a", h.Active())
	require.NoError(t, h.Pause())
	assert.Equal(t, []presentation.Intent{presentation.IntentPause}, gotA)

	require.NoError(t, a.Detach())
	assert.Equal(t, "b", h.Active())
	require.NoError(t, b.Detach())
	assert.Equal(t, "", h.Active())
}

func TestHub_ReflectsActiveState(t *testing.T) {
	h := NewHub("playctl")
	ctx := context.Background()
	s := h.Surface("abc")
	require.NoError(t, s.Attach(ctx, func(presentation.Intent) {}))

	_ = s.Publish(ctx, presentation.State{Playing: true, Speed: 1.25, PositionMs: 1500})
	status, err := h.PlaybackStatus()
	require.NoError(t, err)
	assert.Equal(t, types.PlaybackStatusPlaying, status)
	rate, _ := h.Rate()
	assert.Equal(t, 1.25, rate)
	pos, _ := h.Position()
	assert.Equal(t, int64(1_500_000), pos)

	_ = s.Publish(ctx, presentation.State{Buffering: true})
	status, _ = h.PlaybackStatus()
	assert.Equal(t, types.PlaybackStatusPaused, status)
	rate, _ = h.Rate()
	assert.Equal(t, 0.0, rate)

	md, err := h.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "playctl abc", md.Title)
}

func TestSurface_SignalsOnlyWhenActive(t *testing.T) {
	srv := newFakeServer()
	close(srv.connect)
	evt := &fakeEmitter{}
	h := newTestHub(srv, evt)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)

	a, b := h.Surface("a"), h.Surface("b")
	require.NoError(t, a.Attach(ctx, func(presentation.Intent) {}))
	require.NoError(t, b.Attach(ctx, func(presentation.Intent) {}))
	pp, seeks, titles := evt.counts()
	assert.Equal(t, 2, pp)
	assert.Equal(t, 2, titles)

	// inactive and paused: cached, not signalled
	require.NoError(t, a.Publish(ctx, presentation.State{PositionMs: 9000}))
	pp2, seeks2, _ := evt.counts()
	assert.Equal(t, pp, pp2)
	assert.Equal(t, seeks, seeks2)

	// active session jumps: seek signalled
	require.NoError(t, b.Publish(ctx, presentation.State{PositionMs: 5000}))
	_, seeks3, _ := evt.counts()
	assert.Equal(t, seeks+1, seeks3)

	cancel()
	require.NoError(t, <-done)
}

func TestHub_Capabilities(t *testing.T) {
	h := NewHub("playctl")
	canSeek, _ := h.CanSeek()
	canPlay, _ := h.CanPlay()
	assert.False(t, canSeek)
	assert.True(t, canPlay)
	assert.ErrorIs(t, h.Next(), errNotSupported)
	id, _ := h.Identity()
	assert.Equal(t, "playctl", id)
}
