// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import "errors"

var (
	// ErrMissingHandler is returned when a manager is created without a handler.
	ErrMissingHandler = errors.New("API handler is required")

	// ErrManagerNotStarted is returned when trying to shutdown a manager that hasn't started.
	ErrManagerNotStarted = errors.New("manager not started")

	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("manager already started")

	// ErrServerStartFailed is returned when the listener cannot be bound.
	ErrServerStartFailed = errors.New("server failed to start")
)
