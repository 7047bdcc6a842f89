// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by playctl spans.
const (
	SessionIDKey = attribute.Key("playctl.session_id")
	CommandKey   = attribute.Key("playctl.command")
	EngineKey    = attribute.Key("playctl.engine")
	ResultKey    = attribute.Key("playctl.result")
)

// StartCommand opens a span around one dispatched command.
func StartCommand(ctx context.Context, sessionID, method string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "session.command",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(SessionIDKey.String(sessionID), CommandKey.String(method)),
	)
}

// EndCommand records the outcome and ends span.
func EndCommand(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(ResultKey.String("error"))
	} else {
		span.SetAttributes(ResultKey.String("ok"))
	}
	span.End()
}
