// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

// Snapshot is the event payload pushed to subscribers.
type Snapshot struct {
	PositionMs  int64  `json:"positionMs"`
	DurationMs  int64  `json:"durationMs"`
	IsBuffering bool   `json:"isBuffering"`
	IsPlaying   bool   `json:"isPlaying"`
	Error       string `json:"error,omitempty"`
}

// NewSnapshot clamps position to >= 0 and maps unknown (<= 0) durations to 0.
func NewSnapshot(positionMs, durationMs int64, buffering, playing bool) Snapshot {
	if positionMs < 0 {
		positionMs = 0
	}
	if durationMs < 0 {
		durationMs = 0
	}
	return Snapshot{
		PositionMs:  positionMs,
		DurationMs:  durationMs,
		IsBuffering: buffering,
		IsPlaying:   playing,
	}
}

// WithError marks the snapshot as an error push.
func (s Snapshot) WithError(summary string) Snapshot {
	s.Error = summary
	s.IsBuffering = false
	s.IsPlaying = false
	return s
}
