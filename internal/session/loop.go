// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/playctl/internal/engine"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/metrics"
	"github.com/ManuGH/playctl/internal/resilience"
	"github.com/ManuGH/playctl/internal/resume"
)

func (s *Session) run() {
	defer close(s.done)
	events := s.eng.Events()
	for {
		select {
		case cmd := <-s.cmds:
			cmd()
			if s.machine.State() == StateDisposed {
				return
			}
		case ev := <-events:
			s.onEngineEvent(ev)
		case <-s.tickC:
			s.push(triggerTick)
		case <-s.watchC:
			s.onRebufferTimeout()
		}
	}
}

func (s *Session) onEngineEvent(ev engine.Event) {
	cur := s.machine.State()
	switch cur {
	case StateIdle, StateError, StateDisposed:
		return
	}

	switch ev.Kind {
	case engine.EventError:
		summary := engine.CodeUnspecified
		if ev.Err != nil {
			summary = ev.Err.Summary()
			s.logger.Error().Err(ev.Err).Str(xglog.FieldEvent, "session.engine_error").Msg("playback failed")
		}
		s.fail(summary)
		return
	case engine.EventTracksChanged:
		return
	}

	target, ok := derive(cur, s.eng.Status())
	if !ok || target == cur {
		s.push(triggerEvent)
		return
	}
	if cur == StatePreparing && target != StateReady {
		s.transition(EventReady, triggerTransition)
	}
	if e, ok := eventFor(target); ok {
		s.transition(e, triggerTransition)
	}
}

// transition fires ev and pushes a snapshot when it was accepted.
// Rejected transitions are logged, counted and otherwise ignored.
func (s *Session) transition(ev Event, trigger string) bool {
	from := s.machine.State()
	to, err := s.machine.Fire(s.ctx, ev)
	if err != nil {
		metrics.RecordRejectedTransition(string(from))
		s.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "session.transition_rejected").
			Str(xglog.FieldOldState, string(from)).
			Str("lifecycle_event", string(ev)).
			Msg("invalid lifecycle transition ignored")
		return false
	}
	metrics.RecordTransition(string(from), string(to))
	s.logger.Debug().
		Str(xglog.FieldEvent, "session.transition").
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(to)).
		Msg("lifecycle transition")

	s.armWatchdog(to)
	if to != StateDisposed {
		s.push(trigger)
	}
	return true
}

func (s *Session) fail(summary string) {
	s.errSummary = summary
	s.pending = intentNone
	s.transition(EventFail, triggerError)
}

func (s *Session) sample() media.Snapshot {
	st := s.eng.Status()
	snap := media.NewSnapshot(st.PositionMs, st.DurationMs, st.State == engine.StateBuffering, st.IsPlaying)
	if s.machine.State() == StateError {
		snap = snap.WithError(s.errSummary)
	}
	return snap
}

// push samples, delivers to the subscriber and mirrors to the surfaces.
func (s *Session) push(trigger string) {
	snap := s.sample()
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()

	if s.sink != nil && s.sink.Push(snap) {
		metrics.IncSnapshotPushed(trigger)
	}
	s.bridge.Mirror(snap, s.eng.Status().Speed)
}

func (s *Session) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.ticker = nil
	s.tickC = nil
}

func (s *Session) closeSink() {
	s.stopTicker()
	if s.sink != nil {
		s.sink.Close()
		s.sink = nil
	}
}

func (s *Session) armWatchdog(to State) {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
		s.watchC = nil
	}
	timeout := s.opts.Playback.RebufferTimeoutMs
	if to != StateBuffering || timeout <= 0 {
		return
	}
	s.watchdog = time.NewTimer(time.Duration(timeout) * time.Millisecond)
	s.watchC = s.watchdog.C
}

func (s *Session) onRebufferTimeout() {
	s.watchdog = nil
	s.watchC = nil
	if s.machine.State() != StateBuffering {
		return
	}
	s.logger.Warn().
		Str(xglog.FieldEvent, "session.rebuffer_timeout").
		Int("timeout_ms", s.opts.Playback.RebufferTimeoutMs).
		Msg("rebuffering took too long")
	s.eng.Pause()
	s.fail(SummaryRebufferTimeout)
}

func (s *Session) dispose(ctx context.Context) {
	s.closeSink()
	s.armWatchdog(StateDisposed)
	s.bridge.Detach()
	s.saveResume(ctx)
	if err := s.eng.Release(); err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "session.release_failed").Msg("engine release failed")
	}
	s.transition(EventDispose, triggerTransition)
	s.cancel()
	s.logger.Info().Str(xglog.FieldEvent, "session.disposed").Msg("session disposed")
}

func (s *Session) saveResume(ctx context.Context) {
	if s.resume == nil || len(s.items) == 0 || s.machine.State() == StateIdle {
		return
	}
	st := s.eng.Status()
	if err := s.resume.Put(ctx, s.items[0].URL, resume.NewState(st.PositionMs, st.DurationMs, s.now())); err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "session.resume_save_failed").Msg("resume position not saved")
	}
}

func newLoadErrorPolicy(logger zerolog.Logger, opts media.PlaybackOptions) *resilience.LoadErrorPolicy {
	return resilience.NewLoadErrorPolicy(opts, func(attempt int, d resilience.Decision) {
		metrics.RecordRetryDecision(d.Suppressed)
		logger.Info().
			Str(xglog.FieldEvent, "session.load_retry").
			Int(xglog.FieldAttempt, attempt).
			Str("decision", d.String()).
			Msg("load error")
	})
}
