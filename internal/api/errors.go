// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	v1 "github.com/ManuGH/playctl/internal/api/v1"
	"github.com/ManuGH/playctl/internal/control/command"
	"github.com/ManuGH/playctl/internal/engine"
	xglog "github.com/ManuGH/playctl/internal/log"
	"github.com/ManuGH/playctl/internal/registry"
	"github.com/ManuGH/playctl/internal/session"
)

// Error codes returned in the "error" field of failed responses.
const (
	CodeUnimplemented     = "unimplemented"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidState      = "INVALID_STATE"
	CodeRetryFailed       = "RETRY_FAILED"
	CodeSessionLimit      = "SESSION_LIMIT"
	CodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	CodeBadRequest        = "BAD_REQUEST"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL"
)

// errorBody builds the body of a non-2xx JSON reply.
func errorBody(code, detail, requestID string) v1.Error {
	out := v1.Error{Error: code}
	if detail != "" {
		out.Detail = &detail
	}
	if requestID != "" {
		out.RequestId = &requestID
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps domain sentinels onto HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, command.ErrUnimplemented):
		return http.StatusNotImplemented, CodeUnimplemented
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, session.ErrDisposed):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, session.ErrRetryFailed):
		return http.StatusInternalServerError, CodeRetryFailed
	case errors.Is(err, registry.ErrLimitReached):
		return http.StatusTooManyRequests, CodeSessionLimit
	case errors.Is(err, engine.ErrNotEnabled):
		return http.StatusServiceUnavailable, CodeEngineUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusNotImplemented {
		writeJSON(w, status, v1.Error{Error: code})
		return
	}
	resp := errorBody(code, err.Error(), xglog.RequestIDFromContext(r.Context()))
	if status >= http.StatusInternalServerError {
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "api.request_failed").
			Str("code", code).
			Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeJSON(w, http.StatusBadRequest, errorBody(CodeBadRequest, detail, xglog.RequestIDFromContext(r.Context())))
}
