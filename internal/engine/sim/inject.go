// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sim

import (
	"slices"

	"github.com/ManuGH/playctl/internal/engine"
	"github.com/ManuGH/playctl/internal/media"
)

// Fail simulates an unrecoverable playback error.
func (e *Engine) Fail(code string) {
	e.fail(&engine.PlaybackError{Code: code})
}

// Stall simulates a rebuffer (true) or its recovery (false).
func (e *Engine) Stall(stalled bool) {
	e.mu.Lock()
	if e.released || e.state == engine.StateIdle {
		e.mu.Unlock()
		return
	}
	e.freezeLocked()
	var evts []engine.Event
	if stalled {
		e.state = engine.StateBuffering
		evts = append(evts, engine.Event{Kind: engine.EventStateChanged, State: engine.StateBuffering})
		if e.isPlaying {
			e.isPlaying = false
			evts = append(evts, engine.Event{Kind: engine.EventIsPlayingChanged, Playing: false})
		}
	} else {
		e.state = engine.StateReady
		evts = append(evts, engine.Event{Kind: engine.EventStateChanged, State: engine.StateReady})
		if e.playWhenReady && !e.isPlaying {
			e.isPlaying = true
			evts = append(evts, engine.Event{Kind: engine.EventIsPlayingChanged, Playing: true})
		}
	}
	e.mu.Unlock()
	e.emit(evts...)
}

// ReplaceGroups swaps the inventory, as an adaptive period change would.
func (e *Engine) ReplaceGroups(groups []media.TrackGroup) {
	e.mu.Lock()
	e.script.Groups = slices.Clone(groups)
	e.mu.Unlock()
	e.emit(engine.Event{Kind: engine.EventTracksChanged})
}

// SetVideoSize overrides the reported video size.
func (e *Engine) SetVideoSize(w, h int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.videoW, e.videoH = w, h
}

// Items returns the prepared playlist.
func (e *Engine) Items() []media.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.items)
}

// Repeat reports the repeat-all flag.
func (e *Engine) Repeat() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repeat
}

// Fit reports the current fit mode.
func (e *Engine) Fit() media.FitMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fit
}
