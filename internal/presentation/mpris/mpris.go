// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package mpris exposes the daemon on the D-Bus session bus as one MPRIS
// media player, so desktop and lock-screen transport controls can drive the
// active session.
package mpris

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/events"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/presentation"
)

const (
	// SurfaceName labels this surface in logs and metrics.
	SurfaceName = "mpris"

	noTrackObjectPath = "/org/mpris/MediaPlayer2/TrackList/NoTrack"

	defaultClaimTimeout = 5 * time.Second
	claimPollInterval   = 20 * time.Millisecond
)

var (
	_ types.OrgMprisMediaPlayer2Adapter       = (*Hub)(nil)
	_ types.OrgMprisMediaPlayer2PlayerAdapter = (*Hub)(nil)
)

var (
	errNotSupported = errors.New("not supported")
	// ErrNotConnected is returned by Publish while the hub holds no bus name.
	ErrNotConnected = errors.New("mpris: not connected to session bus")
	// ErrClaimTimeout reports a bus name that was never claimed.
	ErrClaimTimeout = errors.New("mpris: bus name not claimed")
)

// busServer is the lifecycle of a go-mpris-server instance.
type busServer interface {
	Listen() error
	Stop() error
}

// emitter is the subset of the player event handler the hub signals.
type emitter interface {
	OnPlayPause() error
	OnSeek(position types.Microseconds) error
	OnTitle() error
}

// Hub owns the single MPRIS server of the process. Sessions attach
// surfaces to it; the most recently attached or started one is active and
// receives transport intents.
type Hub struct {
	identity string
	busName  string
	logger   zerolog.Logger

	newServer    func(h *Hub) (busServer, emitter)
	claimed      func(busName string) bool
	claimTimeout time.Duration

	mu       sync.Mutex
	attached []*Surface // activation order, active last
	evt      emitter    // nil unless the bus name is held
}

// NewHub builds a hub registering org.mpris.MediaPlayer2.<identity>.
func NewHub(identity string) *Hub {
	if identity == "" {
		identity = "playctl"
	}
	return &Hub{
		identity:     identity,
		busName:      "org.mpris.MediaPlayer2." + busElement(identity),
		logger:       xglog.WithComponent("mpris"),
		newServer:    newBusServer,
		claimed:      nameClaimed,
		claimTimeout: defaultClaimTimeout,
	}
}

// busElement keeps the characters a bus name element may carry.
func busElement(identity string) string {
	var b strings.Builder
	for _, r := range identity {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 || b.String()[0] >= '0' && b.String()[0] <= '9' {
		return "playctl" + b.String()
	}
	return b.String()
}

func newBusServer(h *Hub) (busServer, emitter) {
	srv := server.NewServer(strings.TrimPrefix(h.busName, "org.mpris.MediaPlayer2."), h, h)
	return srv, events.NewEventHandler(srv).Player
}

// nameClaimed reports whether the shared session connection owns busName.
// RequestName records the name only after the server stored its
// connection, so a positive answer orders that store before Stop.
func nameClaimed(busName string) bool {
	conn, err := dbus.SessionBus()
	if err != nil {
		return false
	}
	return slices.Contains(conn.Names(), busName)
}

// BusName is the well-known name the hub claims.
func (h *Hub) BusName() string { return h.busName }

// Run serves the bus name until ctx is done. A missing session bus or a
// claim that never completes is logged and tolerated; the surfaces then
// stay silent.
func (h *Hub) Run(ctx context.Context) error {
	srv, evt := h.newServer(h)
	listenErr := make(chan error, 1)
	go func() { listenErr <- srv.Listen() }()

	if err := h.awaitClaim(listenErr); err != nil {
		h.logger.Warn().Err(err).Str(xglog.FieldEvent, "mpris.unavailable").Msg("session bus unavailable, MPRIS disabled")
		return nil
	}

	h.mu.Lock()
	h.evt = evt
	h.mu.Unlock()
	h.logger.Info().Str(xglog.FieldEvent, "mpris.claimed").Str("bus_name", h.busName).Msg("MPRIS player registered")

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		h.disconnect()
		return err
	}

	h.disconnect()
	stopErr := srv.Stop()
	if err := <-listenErr; err != nil && stopErr == nil {
		stopErr = err
	}
	if stopErr != nil {
		h.logger.Warn().Err(stopErr).Str(xglog.FieldEvent, "mpris.stop_failed").Msg("MPRIS stop failed")
	}
	return stopErr
}

// awaitClaim blocks until Listen holds the bus name or has returned. Stop
// is only safe after the former; until then the server has no connection.
func (h *Hub) awaitClaim(listenErr <-chan error) error {
	deadline := time.NewTimer(h.claimTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(claimPollInterval)
	defer tick.Stop()
	for {
		if h.claimed(h.busName) {
			return nil
		}
		select {
		case err := <-listenErr:
			if err == nil {
				err = errors.New("mpris: server stopped before claiming")
			}
			return err
		case <-deadline.C:
			return ErrClaimTimeout
		case <-tick.C:
		}
	}
}

func (h *Hub) disconnect() {
	h.mu.Lock()
	h.evt = nil
	h.mu.Unlock()
}

// Connected reports whether the bus name is currently held.
func (h *Hub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.evt != nil
}

// Surface returns a detached surface for one session.
func (h *Hub) Surface(sessionID string) *Surface {
	return &Surface{hub: h, sessionID: sessionID}
}

// Active returns the id of the session transport controls are routed to.
func (h *Hub) Active() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s := h.activeLocked(); s != nil {
		return s.sessionID
	}
	return ""
}

func (h *Hub) activeLocked() *Surface {
	if n := len(h.attached); n > 0 {
		return h.attached[n-1]
	}
	return nil
}

// activate moves s to the top. It reports whether the active session
// changed and the emitter to signal with.
func (h *Hub) activate(s *Surface) (bool, emitter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.activeLocked()
	h.attached = slices.DeleteFunc(h.attached, func(o *Surface) bool { return o == s })
	h.attached = append(h.attached, s)
	return prev != s, h.evt
}

func (h *Hub) remove(s *Surface) (bool, emitter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	wasActive := h.activeLocked() == s
	h.attached = slices.DeleteFunc(h.attached, func(o *Surface) bool { return o == s })
	return wasActive, h.evt
}

func (h *Hub) isActive(s *Surface) (bool, emitter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activeLocked() == s, h.evt
}

func (h *Hub) current() presentation.State {
	h.mu.Lock()
	s := h.activeLocked()
	h.mu.Unlock()
	if s == nil {
		return presentation.State{}
	}
	return s.current()
}

func (h *Hub) send(in presentation.Intent) error {
	h.mu.Lock()
	s := h.activeLocked()
	h.mu.Unlock()
	if s == nil {
		return errors.New("no active session")
	}
	return s.send(in)
}

func emitAll(evt emitter) {
	_ = evt.OnTitle()
	_ = evt.OnPlayPause()
}

// OrgMprisMediaPlayer2Adapter implementation

func (h *Hub) Identity() (string, error)              { return h.identity, nil }
func (h *Hub) CanQuit() (bool, error)                 { return false, nil }
func (h *Hub) Quit() error                            { return errNotSupported }
func (h *Hub) CanRaise() (bool, error)                { return false, nil }
func (h *Hub) Raise() error                           { return errNotSupported }
func (h *Hub) HasTrackList() (bool, error)            { return false, nil }
func (h *Hub) SupportedUriSchemes() ([]string, error) { return nil, nil }
func (h *Hub) SupportedMimeTypes() ([]string, error)  { return nil, nil }

// OrgMprisMediaPlayer2PlayerAdapter implementation

func (h *Hub) Next() error     { return errNotSupported }
func (h *Hub) Previous() error { return errNotSupported }
func (h *Hub) Stop() error     { return h.send(presentation.IntentPause) }
func (h *Hub) Play() error     { return h.send(presentation.IntentPlay) }

func (h *Hub) Pause() error {
	if h.current().Playing {
		return h.send(presentation.IntentPause)
	}
	return nil
}

func (h *Hub) PlayPause() error {
	return h.send(presentation.IntentToggle)
}

func (h *Hub) Seek(types.Microseconds) error                { return errNotSupported }
func (h *Hub) SetPosition(string, types.Microseconds) error { return errNotSupported }
func (h *Hub) OpenUri(string) error                         { return errNotSupported }

func (h *Hub) PlaybackStatus() (types.PlaybackStatus, error) {
	switch h.current().Status() {
	case presentation.StatusPlaying:
		return types.PlaybackStatusPlaying, nil
	default:
		return types.PlaybackStatusPaused, nil
	}
}

func (h *Hub) Rate() (float64, error) {
	if st := h.current(); st.Playing {
		return st.Speed, nil
	}
	return 0, nil
}

func (h *Hub) SetRate(float64) error { return errNotSupported }

func (h *Hub) Metadata() (types.Metadata, error) {
	title := h.identity
	if id := h.Active(); id != "" {
		title = h.identity + " " + id
	}
	return types.Metadata{
		TrackId: dbus.ObjectPath(noTrackObjectPath),
		Title:   title,
	}, nil
}

func (h *Hub) Volume() (float64, error) { return 1, nil }
func (h *Hub) SetVolume(float64) error  { return errNotSupported }

func (h *Hub) Position() (int64, error) {
	return int64(msToMicroseconds(h.current().PositionMs)), nil
}

func (h *Hub) MinimumRate() (float64, error) { return 0, nil }
func (h *Hub) MaximumRate() (float64, error) { return 4, nil }
func (h *Hub) CanGoNext() (bool, error)      { return false, nil }
func (h *Hub) CanGoPrevious() (bool, error)  { return false, nil }
func (h *Hub) CanPlay() (bool, error)        { return true, nil }
func (h *Hub) CanPause() (bool, error)       { return true, nil }
func (h *Hub) CanSeek() (bool, error)        { return false, nil }
func (h *Hub) CanControl() (bool, error)     { return true, nil }

func msToMicroseconds(ms int64) types.Microseconds {
	return types.Microseconds(ms * 1000)
}
