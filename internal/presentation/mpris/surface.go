// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mpris

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuGH/playctl/internal/presentation"
)

var _ presentation.Surface = (*Surface)(nil)

// Surface is one session's view of the hub.
type Surface struct {
	hub       *Hub
	sessionID string

	mu      sync.Mutex
	state   presentation.State
	intents presentation.IntentHandler
}

func (s *Surface) Name() string { return SurfaceName }

// Attach makes the session the active MPRIS player.
func (s *Surface) Attach(_ context.Context, intents presentation.IntentHandler) error {
	s.mu.Lock()
	s.intents = intents
	s.mu.Unlock()
	if changed, evt := s.hub.activate(s); changed && evt != nil {
		emitAll(evt)
	}
	return nil
}

// Publish caches the state and signals property changes when the session
// is active. A session that starts playing becomes active.
func (s *Surface) Publish(_ context.Context, st presentation.State) error {
	s.mu.Lock()
	prev := s.state
	s.state = st
	attached := s.intents != nil
	s.mu.Unlock()

	var (
		active bool
		evt    emitter
	)
	if attached && st.Playing && !prev.Playing {
		var changed bool
		changed, evt = s.hub.activate(s)
		active = true
		if changed && evt != nil {
			emitAll(evt)
			return nil
		}
	} else {
		active, evt = s.hub.isActive(s)
	}
	if evt == nil {
		return ErrNotConnected
	}
	if !active {
		return nil
	}
	if prev.Status() != st.Status() {
		_ = evt.OnPlayPause()
	}
	if delta := st.PositionMs - prev.PositionMs; delta < 0 || delta > 2000 {
		_ = evt.OnSeek(msToMicroseconds(st.PositionMs))
	}
	return nil
}

// Detach hands control back to the previously active session.
func (s *Surface) Detach() error {
	s.mu.Lock()
	s.intents = nil
	s.mu.Unlock()
	if wasActive, evt := s.hub.remove(s); wasActive && evt != nil {
		emitAll(evt)
	}
	return nil
}

func (s *Surface) current() presentation.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Surface) send(in presentation.Intent) error {
	s.mu.Lock()
	h := s.intents
	s.mu.Unlock()
	if h == nil {
		return errors.New("surface detached")
	}
	h(in)
	return nil
}
