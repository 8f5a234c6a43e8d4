// Package metrics holds the Prometheus collectors shared by the client, the
// worker and the HTTP API. All collectors are registered with the default
// registry at init.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

var (
	clientRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lmpeek",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests settled by the correlation client",
		},
		[]string{"action", "outcome"},
	)

	clientRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lmpeek",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Time from send to settlement",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"action"},
	)

	clientPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lmpeek",
			Subsystem: "client",
			Name:      "pending_requests",
			Help:      "Requests awaiting a reply",
		},
	)

	clientUnmatchedReplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lmpeek",
			Subsystem: "client",
			Name:      "unmatched_replies_total",
			Help:      "Replies whose id had no pending request",
		},
	)

	workerUnknownActions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lmpeek",
			Subsystem: "worker",
			Name:      "unknown_actions_total",
			Help:      "Commands naming an action the worker does not handle",
		},
	)

	workerCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lmpeek",
			Subsystem: "worker",
			Name:      "commands_total",
			Help:      "Commands answered by the worker",
		},
		[]string{"action", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		clientRequestsTotal,
		clientRequestDuration,
		clientPending,
		clientUnmatchedReplies,
		workerUnknownActions,
		workerCommandsTotal,
	)
}

// RequestSent records a request entering the pending table.
func RequestSent() { clientPending.Inc() }

// RequestSettled records a request leaving the pending table.
func RequestSettled(action, outcome string, elapsed time.Duration) {
	clientPending.Dec()
	clientRequestsTotal.WithLabelValues(action, outcome).Inc()
	clientRequestDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// UnmatchedReply counts a reply that matched no pending request.
func UnmatchedReply() { clientUnmatchedReplies.Inc() }

// UnknownAction counts a command the worker could not route.
func UnknownAction() { workerUnknownActions.Inc() }

// CommandHandled counts a reply emitted by the worker.
func CommandHandled(action, outcome string) {
	if action == "" {
		action = "unspecified"
	}
	workerCommandsTotal.WithLabelValues(action, outcome).Inc()
}

// The accessors below expose collectors to tests in other packages.

func UnmatchedRepliesCounter() prometheus.Counter { return clientUnmatchedReplies }
func UnknownActionsCounter() prometheus.Counter   { return workerUnknownActions }
func PendingGauge() prometheus.Gauge              { return clientPending }

func ClientRequests(action, outcome string) prometheus.Counter {
	return clientRequestsTotal.WithLabelValues(action, outcome)
}

func WorkerCommands(action, outcome string) prometheus.Counter {
	return workerCommandsTotal.WithLabelValues(action, outcome)
}
