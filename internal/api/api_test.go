// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/playctl/internal/api/middleware"
	v1 "github.com/ManuGH/playctl/internal/api/v1"
	"github.com/ManuGH/playctl/internal/control/command"
	"github.com/ManuGH/playctl/internal/engine"
	"github.com/ManuGH/playctl/internal/engine/sim"
	"github.com/ManuGH/playctl/internal/media"
	"github.com/ManuGH/playctl/internal/registry"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type fixture struct {
	srv *Server
	reg *registry.Registry
}

func newFixture(t *testing.T, maxSessions int, opts ...sim.Option) *fixture {
	t.Helper()
	reg := registry.New(registry.Options{
		Engine: func(context.Context) (engine.Engine, error) {
			return sim.New(append([]sim.Option{sim.WithSleep(noSleep)}, opts...)...), nil
		},
		SampleInterval: 20 * time.Millisecond,
		MaxSessions:    maxSessions,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Close(ctx)
	})
	srv := New(Deps{
		Registry:   reg,
		Dispatcher: command.NewDispatcher(media.DefaultSessionOptions()),
		Version:    "test",
		Stack:      middleware.StackConfig{EnableMetrics: true},
	})
	return &fixture{srv: srv, reg: reg}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) create(t *testing.T, body string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp v1.SessionCreated
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Id)
	return resp.Id
}

func (f *fixture) waitPrepared(t *testing.T, id string) {
	t.Helper()
	sess, err := f.reg.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st := string(sess.State())
		return st == "ready" || st == "paused"
	}, 2*time.Second, 5*time.Millisecond)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) v1.Error {
	t.Helper()
	var resp v1.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

const configureBody = `{"playlist":[{"url":"https://cdn.example/a.m3u8"}],"autoPlay":false,"startPositionMs":1000}`

func TestHealthz(t *testing.T) {
	f := newFixture(t, 0)
	f.create(t, "")

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status  string         `json:"status"`
		Version string         `json:"version"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.EqualValues(t, 1, body.Details["sessions"])

	rec = f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, 0)
	f.do(t, http.MethodGet, "/healthz", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "playctl_http_request_duration_seconds")
}

func TestCreateSession_EmptyBodyStaysIdle(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t, "")

	rec := f.do(t, http.MethodGet, "/api/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view v1.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, id, view.Id)
	assert.Equal(t, v1.SessionViewStateIdle, view.State)
}

func TestCreateSession_WithConfigure(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t, configureBody)

	f.waitPrepared(t, id)

	rec := f.do(t, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)
}

func TestCreateSession_MalformedBody(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodPost, "/api/v1/sessions", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, decodeError(t, rec).Error)
	assert.Equal(t, 0, f.reg.Len())
}

func TestCreateSession_LimitReached(t *testing.T) {
	f := newFixture(t, 1)
	f.create(t, "")

	rec := f.do(t, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeSessionLimit, decodeError(t, rec).Error)
}

func TestCommand_PlayAndTracks(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t, configureBody)
	f.waitPrepared(t, id)
	base := "/api/v1/sessions/" + id + "/commands/"

	rec := f.do(t, http.MethodPost, base+"play", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"result":null}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, base+"listTracks", `{"type":"video"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Result []map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.NotEmpty(t, list.Result)

	rec = f.do(t, http.MethodPost, base+"listTracks", `{"type":"bogus"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":[]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, base+"selectTrack", `{"type":"video","id":"nope"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":false}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, base+"seekTo", `{"millis":"not-a-number"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCommand_UnknownMethod(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t, "")

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/commands/setBrightness", `{"delta":0.1}`)
	require.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.JSONEq(t, `{"error":"unimplemented"}`, rec.Body.String())
}

func TestCommand_UnknownSession(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodPost, "/api/v1/sessions/missing/commands/play", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Error)
}

func TestCommand_ConfigureTwiceConflicts(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t, configureBody)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/commands/configure", configureBody)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeInvalidState, decodeError(t, rec).Error)
}

func TestCommand_RetryFailure(t *testing.T) {
	script := sim.DefaultScript()
	script.ReprepareErr = errors.New("decoder unavailable")
	f := newFixture(t, 0, sim.WithScript(script))
	id := f.create(t, configureBody)

	f.waitPrepared(t, id)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/commands/retry", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeRetryFailed, decodeError(t, rec).Error)
}

func TestCommand_RetryFromIdleIsInvalid(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t, "")

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/commands/retry", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t, 0)
	id := f.create(t, "")

	rec := f.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Eventually(t, func() bool {
		return f.do(t, http.MethodGet, "/api/v1/sessions/"+id, "").Code == http.StatusNotFound
	}, 2*time.Second, 5*time.Millisecond)

	rec = f.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethods(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodGet, "/api/v1/methods", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"setBoxFit"`)
	assert.Contains(t, rec.Body.String(), `"getSubtitleTracks"`)
}

func TestClassify(t *testing.T) {
	status, code := classify(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeInternal, code)

	status, _ = classify(engine.ErrNotEnabled)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = classify(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)
}

func dialEvents(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + id + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) media.Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var snap media.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	return snap
}

func readUntilClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce
	}
}

func TestEvents_StreamReplaceAndDispose(t *testing.T) {
	f := newFixture(t, 0)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	id := f.create(t, configureBody)

	first := dialEvents(t, ts, id)
	snap := readSnapshot(t, first)
	assert.GreaterOrEqual(t, snap.PositionMs, int64(0))

	second := dialEvents(t, ts, id)
	readSnapshot(t, second)

	ce := readUntilClose(t, first)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)

	rec := f.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	ce = readUntilClose(t, second)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
}

func TestEvents_UnknownSession(t *testing.T) {
	f := newFixture(t, 0)
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/missing/events"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
