// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import "strings"

// FitMode is the video scaling mode.
type FitMode string

const (
	FitContain   FitMode = "contain"
	FitCover     FitMode = "cover"
	FitFill      FitMode = "fill"
	FitFitWidth  FitMode = "fitWidth"
	FitFitHeight FitMode = "fitHeight"
)

// ParseFit maps unknown values to FitContain.
func ParseFit(s string) FitMode {
	switch strings.TrimSpace(s) {
	case string(FitCover):
		return FitCover
	case string(FitFill):
		return FitFill
	case string(FitFitWidth):
		return FitFitWidth
	case string(FitFitHeight):
		return FitFitHeight
	default:
		return FitContain
	}
}

// PlaybackOptions parameterise load-error handling.
// MaxRetryCount < 0 means unlimited. RebufferTimeoutMs <= 0 disables the watchdog.
type PlaybackOptions struct {
	MaxRetryCount       int
	InitialRetryDelayMs int
	MaxRetryDelayMs     int
	AutoRetry           bool
	RebufferTimeoutMs   int
}

// DefaultPlaybackOptions returns the wire defaults.
func DefaultPlaybackOptions() PlaybackOptions {
	return PlaybackOptions{
		MaxRetryCount:       3,
		InitialRetryDelayMs: 1000,
		MaxRetryDelayMs:     10000,
		AutoRetry:           true,
	}
}

// SessionOptions are the configure-time options of a session.
type SessionOptions struct {
	AutoPlay        bool
	Loop            bool
	StartPositionMs int64
	StartAutoPlay   bool
	DataSaver       bool
	Resume          bool
	Playback        PlaybackOptions
}

// DefaultSessionOptions returns the wire defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		AutoPlay:      true,
		StartAutoPlay: true,
		Playback:      DefaultPlaybackOptions(),
	}
}
