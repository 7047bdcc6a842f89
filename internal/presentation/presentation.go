// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package presentation mirrors session state to OS-level and remote transport
// surfaces and forwards their play/pause intents back to the session.
package presentation

import (
	"context"
	"fmt"

	"github.com/ManuGH/playctl/internal/media"
)

// State is what a surface displays.
type State struct {
	Playing    bool    `json:"playing"`
	Buffering  bool    `json:"buffering"`
	PositionMs int64   `json:"positionMs"`
	Speed      float64 `json:"speed"`
	Error      string  `json:"error,omitempty"`
}

// Status is the coarse transport status derived from a State.
type Status string

const (
	StatusBuffering Status = "buffering"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
)

// StateFrom derives the surface state. Speed is reported as 0 unless playing.
func StateFrom(snap media.Snapshot, speed float64) State {
	st := State{
		Playing:    snap.IsPlaying,
		Buffering:  snap.IsBuffering,
		PositionMs: snap.PositionMs,
		Error:      snap.Error,
	}
	if st.Playing {
		st.Speed = speed
	}
	return st
}

// Status folds buffering over playing over paused.
func (s State) Status() Status {
	switch {
	case s.Buffering:
		return StatusBuffering
	case s.Playing:
		return StatusPlaying
	default:
		return StatusPaused
	}
}

// Intent is a transport request coming from a surface.
type Intent string

const (
	IntentPlay   Intent = "play"
	IntentPause  Intent = "pause"
	IntentToggle Intent = "toggle"
)

// ParseIntent accepts the wire names, case-sensitive.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentPlay, IntentPause, IntentToggle:
		return Intent(s), true
	default:
		return "", false
	}
}

// IntentHandler receives intents from a surface. It never blocks.
type IntentHandler func(Intent)

// Surface is one external transport-state consumer.
type Surface interface {
	Name() string
	// Attach starts the surface. intents may be invoked from any goroutine.
	Attach(ctx context.Context, intents IntentHandler) error
	Publish(ctx context.Context, st State) error
	Detach() error
}

// Ratio is a picture-in-picture aspect ratio.
type Ratio struct {
	Width  int
	Height int
}

// DefaultRatio is used when no video dimensions are known.
var DefaultRatio = Ratio{Width: 16, Height: 9}

func (r Ratio) String() string {
	return fmt.Sprintf("%d:%d", r.Width, r.Height)
}

// Valid reports whether both sides are positive.
func (r Ratio) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// PipSurface is a surface that can host picture-in-picture.
type PipSurface interface {
	Surface
	EnterPip(ctx context.Context, ratio Ratio) (bool, error)
}
