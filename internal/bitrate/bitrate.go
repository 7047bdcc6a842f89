// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bitrate toggles the data-saver ceiling on an engine's video selection.
package bitrate

import (
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/tracks"
)

// DefaultCap is the data-saver ceiling in bits per second.
const DefaultCap = 800_000

// Manager owns no state beyond the cap; the engine's selection is the truth.
type Manager struct {
	src     tracks.Source
	ceiling int
}

// New returns a manager with the given ceiling; ceiling <= 0 uses DefaultCap.
func New(src tracks.Source, ceiling int) *Manager {
	if ceiling <= 0 {
		ceiling = DefaultCap
	}
	return &Manager{src: src, ceiling: ceiling}
}

// SetDataSaver installs (true) or removes (false) the ceiling. Enabling also
// drops any pinned video track so the ceiling governs selection.
func (m *Manager) SetDataSaver(enabled bool) {
	sel := m.src.TrackSelection()
	if enabled {
		sel = sel.WithoutOverride(media.TypeVideo).WithMaxVideoBitrate(m.ceiling)
	} else {
		sel = sel.WithMaxVideoBitrate(media.BitrateUnbounded)
	}
	m.src.SetTrackSelection(sel)
}

// Enabled reports whether the ceiling is currently installed.
func (m *Manager) Enabled() bool {
	return m.src.TrackSelection().MaxVideoBitrate < media.BitrateUnbounded
}

// Cap returns the configured ceiling.
func (m *Manager) Cap() int {
	return m.ceiling
}
