// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	v1 "github.com/ManuGH/playctl/internal/api/v1"
	"github.com/ManuGH/playctl/internal/control/command"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/session"
	"github.com/ManuGH/playctl/internal/telemetry"
)

// sessionView builds the read model of one session.
func sessionView(id string, state session.State, snap media.Snapshot) v1.SessionView {
	out := v1.SessionView{
		Id:    id,
		State: v1.SessionViewState(state),
		Snapshot: v1.Snapshot{
			PositionMs:  snap.PositionMs,
			DurationMs:  snap.DurationMs,
			IsBuffering: snap.IsBuffering,
			IsPlaying:   snap.IsPlaying,
		},
	}
	if snap.Error != "" {
		out.Snapshot.Error = &snap.Error
	}
	return out
}

// readArgs reads a JSON object body. An empty body yields empty args.
func readArgs(w http.ResponseWriter, r *http.Request) (command.Args, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeBadRequest(w, r, "request body too large or unreadable")
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return command.Args{}, true
	}
	if !json.Valid(raw) {
		writeBadRequest(w, r, "request body is not valid JSON")
		return nil, false
	}
	return command.ParseArgs(raw), true
}

func (s *Server) ListMethods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, v1.MethodList{Methods: s.dispatcher.Methods()})
}

func (s *Server) GetOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	doc, err := v1.SpecJSON()
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (s *Server) ListSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.reg.IDs()
	out := make([]v1.SessionView, 0, len(ids))
	for _, id := range ids {
		sess, err := s.reg.Get(id)
		if err != nil {
			continue
		}
		out = append(out, sessionView(id, sess.State(), sess.Snapshot()))
	}
	writeJSON(w, http.StatusOK, v1.SessionList{Sessions: out})
}

func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	args, ok := readArgs(w, r)
	if !ok {
		return
	}

	sess, err := s.reg.Create(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if len(args) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		if _, err := s.dispatch(ctx, sess.ID(), sess, "configure", args); err != nil {
			_ = s.reg.Dispose(context.WithoutCancel(ctx), sess.ID())
			writeError(w, r, err)
			return
		}
	}

	w.Header().Set("Location", v1.BaseURL+"/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, v1.SessionCreated{Id: sess.ID()})
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request, id v1.SessionID) {
	sess, err := s.reg.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(id, sess.State(), sess.Snapshot()))
}

func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request, id v1.SessionID) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.reg.Dispose(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InvokeCommand reads the body as an open object; the dispatcher reads
// each argument leniently.
func (s *Server) InvokeCommand(w http.ResponseWriter, r *http.Request, id v1.SessionID, method string) {
	sess, err := s.reg.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	args, ok := readArgs(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	res, err := s.dispatch(ctx, id, sess, method, args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v1.CommandResult{Result: &res})
}

// dispatch runs one command inside a span and with a session scoped logger.
func (s *Server) dispatch(ctx context.Context, id string, t command.Target, method string, args command.Args) (any, error) {
	ctx = xglog.ContextWithSessionID(ctx, id)
	ctx, span := telemetry.StartCommand(ctx, id, method)
	res, err := s.dispatcher.Dispatch(ctx, t, method, args)
	telemetry.EndCommand(span, err)

	logger := xglog.WithComponentFromContext(ctx, "api")
	evt := logger.Debug()
	if err != nil {
		evt = logger.Info().Err(err)
	}
	evt.Str(xglog.FieldEvent, "command.dispatched").
		Str(xglog.FieldCommand, method).
		Msg("command dispatched")
	return res, err
}
