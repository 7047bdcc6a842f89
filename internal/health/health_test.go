// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.True(t, resp.Ready)
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_VerboseRunsChecks(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(NewPingChecker("store", ok))
	m.RegisterChecker(Informational("redis", failing))

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, "connection refused", resp.Checks["redis"].Error)
}

func TestManager_Ready(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(Informational("redis", failing))
	assert.True(t, m.Ready(context.Background()).Ready, "informational failure keeps readiness")

	m.RegisterChecker(NewPingChecker("store", failing))
	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestManager_Details(t *testing.T) {
	m := NewManager("")
	n := 0
	m.SetDetail("sessions", func() any { n++; return n })

	assert.Equal(t, 1, m.Health(context.Background(), false).Details["sessions"])
	assert.Equal(t, 2, m.Ready(context.Background()).Details["sessions"])
}

func TestServeReady_StatusCodes(t *testing.T) {
	m := NewManager("v1")
	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.RegisterChecker(NewPingChecker("store", failing))
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, StatusUnhealthy, body.Checks["store"].Status)

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "liveness ignores checks unless verbose")
}

func TestWritableDirChecker(t *testing.T) {
	good := NewWritableDirChecker("data", t.TempDir())
	assert.Equal(t, StatusHealthy, good.Check(context.Background()).Status)

	bad := NewWritableDirChecker("data", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, StatusDegraded, bad.Check(context.Background()).Status)
}
