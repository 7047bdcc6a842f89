// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package engine defines the port every native playback backend implements.
// A session controller depends only on the Engine interface.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/resilience"
)

// PlaybackState is the engine's own playback state.
type PlaybackState string

const (
	StateIdle      PlaybackState = "idle"
	StateBuffering PlaybackState = "buffering"
	StateReady     PlaybackState = "ready"
	StateEnded     PlaybackState = "ended"
)

// Status is a point-in-time read of the engine.
// DurationMs <= 0 means unknown. VideoWidth/VideoHeight are 0 until known.
type Status struct {
	State         PlaybackState
	PlayWhenReady bool
	IsPlaying     bool
	PositionMs    int64
	DurationMs    int64
	Speed         float64
	VideoWidth    int
	VideoHeight   int
}

// EventKind tags an engine event.
type EventKind string

const (
	EventStateChanged         EventKind = "state_changed"
	EventPlayWhenReadyChanged EventKind = "play_when_ready_changed"
	EventIsPlayingChanged     EventKind = "is_playing_changed"
	EventTracksChanged        EventKind = "tracks_changed"
	EventError                EventKind = "error"
)

// Event is pushed by the engine on its Events channel. Only the field that
// matches Kind is meaningful.
type Event struct {
	Kind    EventKind
	State   PlaybackState
	Playing bool
	Err     *PlaybackError
}

// PlaybackError is an unrecoverable playback failure.
type PlaybackError struct {
	Code string
	Err  error
}

// Common error codes.
const (
	CodeSource      = "ERROR_CODE_IO_NETWORK_CONNECTION_FAILED"
	CodeDecoder     = "ERROR_CODE_DECODING_FAILED"
	CodeDrm         = "ERROR_CODE_DRM_LICENSE_ACQUISITION_FAILED"
	CodeUnspecified = "ERROR_CODE_UNSPECIFIED"
)

func (e *PlaybackError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// Summary is the short form sent to subscribers.
func (e *PlaybackError) Summary() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return CodeUnspecified
	}
	return e.Code
}

// ErrReleased is returned by operations on a released engine.
var ErrReleased = errors.New("engine released")

// ErrNotEnabled is returned by factories for engines compiled out of the binary.
var ErrNotEnabled = errors.New("engine not enabled in this build")

// Engine is a single native player handle. Every method except Events is
// called from one owner goroutine; events may be produced on any goroutine.
type Engine interface {
	// Prepare installs the playlist and the load-error policy and starts loading.
	Prepare(ctx context.Context, items []media.Item, policy *resilience.LoadErrorPolicy) error
	// Reprepare reloads the current playlist after a failure.
	Reprepare(ctx context.Context) error

	Play()
	Pause()
	Seek(positionMs int64)
	SetSpeed(rate float64)
	SetRepeat(all bool)
	SetFit(mode media.FitMode)

	TrackGroups() []media.TrackGroup
	TrackSelection() media.TrackSelection
	SetTrackSelection(sel media.TrackSelection)

	Status() Status
	Events() <-chan Event

	// Release frees the native handle. Safe to call more than once.
	Release() error
}

// Factory creates a fresh engine for one session.
type Factory func(ctx context.Context) (Engine, error)
