// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldCommand   = "command"
	FieldEngine    = "engine"
	FieldSurface   = "surface"

	// Media fields
	FieldMediaURL  = "media_url"
	FieldTrackType = "track_type"
	FieldTrackID   = "track_id"
	FieldAttempt   = "attempt"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldTrigger  = "trigger"
)
