// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"github.com/ManuGH/playctl/internal/engine"
	"github.com/ManuGH/playctl/internal/fsm"
)

// State is the lifecycle state of a session.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateReady     State = "ready"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateBuffering State = "buffering"
	StateError     State = "error"
	StateDisposed  State = "disposed"
)

// Event drives lifecycle transitions.
type Event string

const (
	EventConfigure   Event = "configure"
	EventReady       Event = "ready"
	EventPlayStarted Event = "play_started"
	EventPaused      Event = "paused"
	EventBuffering   Event = "buffering"
	EventFail        Event = "fail"
	EventRetry       Event = "retry"
	EventDispose     Event = "dispose"
)

func transitions() []fsm.Transition[State, Event] {
	var t []fsm.Transition[State, Event]
	t = append(t, fsm.Fan(EventConfigure, StatePreparing, StateIdle)...)
	t = append(t, fsm.Fan(EventReady, StateReady, StatePreparing, StateBuffering)...)
	t = append(t, fsm.Fan(EventPlayStarted, StatePlaying, StateReady, StatePaused, StateBuffering)...)
	t = append(t, fsm.Fan(EventPaused, StatePaused, StateReady, StatePlaying, StateBuffering)...)
	t = append(t, fsm.Fan(EventBuffering, StateBuffering, StateReady, StatePlaying, StatePaused)...)
	t = append(t, fsm.Fan(EventFail, StateError,
		StatePreparing, StateReady, StatePlaying, StatePaused, StateBuffering)...)
	t = append(t, fsm.Fan(EventRetry, StatePreparing,
		StateError, StateReady, StatePlaying, StatePaused, StateBuffering)...)
	t = append(t, fsm.Fan(EventDispose, StateDisposed,
		StateIdle, StatePreparing, StateReady, StatePlaying, StatePaused, StateBuffering, StateError)...)
	return t
}

func newMachine() *fsm.Machine[State, Event] {
	return fsm.MustNew(StateIdle, transitions())
}

// derive maps an engine status onto the lifecycle state it implies from cur.
// ok is false when the status implies no change.
func derive(cur State, st engine.Status) (target State, ok bool) {
	switch st.State {
	case engine.StateBuffering:
		if cur == StatePreparing {
			return cur, false
		}
		return StateBuffering, true
	case engine.StateReady:
		switch {
		case st.IsPlaying:
			return StatePlaying, true
		case cur == StatePreparing, cur == StateReady:
			return StateReady, true
		case cur == StateBuffering && st.PlayWhenReady:
			return StateReady, true
		default:
			return StatePaused, true
		}
	case engine.StateEnded:
		if cur == StatePreparing {
			return StateReady, true
		}
		return StatePaused, true
	default:
		return cur, false
	}
}

func eventFor(target State) (Event, bool) {
	switch target {
	case StateReady:
		return EventReady, true
	case StatePlaying:
		return EventPlayStarted, true
	case StatePaused:
		return EventPaused, true
	case StateBuffering:
		return EventBuffering, true
	default:
		return "", false
	}
}
