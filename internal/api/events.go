// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	v1 "github.com/ManuGH/playctl/internal/api/v1"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/metrics"
	"github.com/ManuGH/playctl/internal/session"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamSessionEvents streams snapshots over a websocket. A newer
// subscriber on the same session closes this stream.
func (s *Server) StreamSessionEvents(w http.ResponseWriter, r *http.Request, id v1.SessionID) {
	sess, err := s.reg.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	metrics.EventStreamOpened()
	defer metrics.EventStreamClosed()

	sink := session.NewChannelSink(session.DefaultSinkBuffer)
	if err := sess.Subscribe(r.Context(), sink); err != nil {
		closeWith(conn, websocket.CloseGoingAway, "session unavailable")
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), writeWait)
		defer cancel()
		if err := sess.Unsubscribe(ctx, sink); err != nil && !errors.Is(err, session.ErrDisposed) {
			s.logger.Debug().Err(err).Str(xglog.FieldSessionID, id).Msg("unsubscribe failed")
		}
	}()

	logger := s.logger.With().Str(xglog.FieldSessionID, id).Logger()
	logger.Debug().Str(xglog.FieldEvent, "events.subscribed").Msg("event stream opened")

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-sink.C():
			if !ok {
				reason := "replaced by another subscriber"
				select {
				case <-sess.Done():
					reason = "session disposed"
				default:
				}
				closeWith(conn, websocket.CloseNormalClosure, reason)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				logger.Debug().Err(err).Msg("event write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerDone:
			logger.Debug().Str(xglog.FieldEvent, "events.client_closed").Msg("event stream closed by client")
			return
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
