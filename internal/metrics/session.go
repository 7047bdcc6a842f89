// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playctl_commands_total",
		Help: "Commands dispatched to sessions by method and result",
	}, []string{"command", "result"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playctl_sessions_active",
		Help: "Number of sessions that have not been disposed",
	})

	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playctl_session_transitions_total",
		Help: "Lifecycle transitions by source and target state (to=rejected for invalid transitions)",
	}, []string{"from", "to"})

	snapshotsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playctl_snapshots_pushed_total",
		Help: "Snapshots pushed to subscribers by trigger (subscribe, tick, transition, error)",
	}, []string{"trigger"})

	retryDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playctl_load_retry_decisions_total",
		Help: "Load-error retry decisions (retry or suppressed)",
	}, []string{"decision"})

	pipRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playctl_pip_requests_total",
		Help: "Picture-in-picture requests by result",
	}, []string{"result"})

	publishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playctl_presentation_publish_failures_total",
		Help: "Failed state publications per presentation surface",
	}, []string{"surface"})
)

// Command results.
const (
	ResultOK            = "ok"
	ResultError         = "error"
	ResultUnimplemented = "unimplemented"
)

// IncCommand counts one dispatched command.
func IncCommand(command, result string) {
	commandsTotal.WithLabelValues(command, result).Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() { sessionsActive.Inc() }

// SessionDisposed decrements the active session gauge.
func SessionDisposed() { sessionsActive.Dec() }

// RecordTransition counts a lifecycle transition.
func RecordTransition(from, to string) {
	sessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordRejectedTransition counts a transition that was not in the table.
func RecordRejectedTransition(from string) {
	sessionTransitions.WithLabelValues(from, "rejected").Inc()
}

// IncSnapshotPushed counts one pushed snapshot.
func IncSnapshotPushed(trigger string) {
	snapshotsPushed.WithLabelValues(trigger).Inc()
}

// RecordRetryDecision counts a retry policy decision.
func RecordRetryDecision(suppressed bool) {
	decision := "retry"
	if suppressed {
		decision = "suppressed"
	}
	retryDecisions.WithLabelValues(decision).Inc()
}

// RecordPip counts a picture-in-picture request.
func RecordPip(entered bool) {
	result := "refused"
	if entered {
		result = "entered"
	}
	pipRequests.WithLabelValues(result).Inc()
}

// IncPublishFailure counts a failed publish to a presentation surface.
func IncPublishFailure(surface string) {
	publishFailures.WithLabelValues(surface).Inc()
}
