// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func table() []Transition[state, event] {
	ts := []Transition[state, event]{
		{From: "idle", Event: "start", To: "running"},
		{From: "running", Event: "stop", To: "idle"},
	}
	return append(ts, Fan[state, event]("kill", "dead", "idle", "running")...)
}

func TestMachine_Fire(t *testing.T) {
	m, err := New[state, event]("idle", table())
	require.NoError(t, err)

	to, err := m.Fire(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, state("running"), to)
	assert.Equal(t, state("running"), m.State())

	to, err = m.Fire(context.Background(), "kill")
	require.NoError(t, err)
	assert.Equal(t, state("dead"), to)
}

func TestMachine_UnknownTransitionKeepsState(t *testing.T) {
	m := MustNew[state, event]("idle", table())

	from, err := m.Fire(context.Background(), "stop")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, state("idle"), from)
	assert.Equal(t, state("idle"), m.State())
	assert.False(t, m.Can("stop"))
	assert.True(t, m.Can("start"))
}

func TestMachine_GuardRejects(t *testing.T) {
	blocked := errors.New("blocked")
	m := MustNew[state, event]("idle", []Transition[state, event]{{
		From: "idle", Event: "start", To: "running",
		Guard: func(context.Context, state, event) error { return blocked },
	}})

	_, err := m.Fire(context.Background(), "start")
	assert.ErrorIs(t, err, blocked)
	assert.Equal(t, state("idle"), m.State())
}

func TestMachine_ActionRuns(t *testing.T) {
	var seen []state
	m := MustNew[state, event]("idle", []Transition[state, event]{{
		From: "idle", Event: "start", To: "running",
		Action: func(_ context.Context, from, to state, _ event) error {
			seen = append(seen, from, to)
			return nil
		},
	}})

	_, err := m.Fire(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, []state{"idle", "running"}, seen)
}

func TestNew_DuplicateRejected(t *testing.T) {
	_, err := New[state, event]("idle", []Transition[state, event]{
		{From: "idle", Event: "start", To: "running"},
		{From: "idle", Event: "start", To: "dead"},
	})
	assert.Error(t, err)
}
