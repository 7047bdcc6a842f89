// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package session

import "errors"

var (
	// ErrInvalidState is returned by commands that are not valid in the current lifecycle state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrRetryFailed is returned when re-preparation fails. The session stays usable.
	ErrRetryFailed = errors.New("retry failed")
	// ErrDisposed is returned by every command after Dispose.
	ErrDisposed = errors.New("session disposed")
)

// Summaries reported in snapshots for failures raised by the session itself.
const (
	SummaryRetryFailed     = "RETRY_FAILED"
	SummaryRebufferTimeout = "REBUFFER_TIMEOUT"
	SummaryPrepareFailed   = "PREPARE_FAILED"
)
