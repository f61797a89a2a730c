// Package metrics defines the metrics sink used by the report job.
package metrics

import "time"

// Sink records report pipeline metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the backend is unavailable, record nothing.
type Sink interface {
	// FiringStarted is called when a scheduled firing begins.
	FiringStarted()

	// FiringCompleted records the terminal result of one firing.
	// result is one of the Result* constants.
	FiringCompleted(result string, duration time.Duration)

	// DeliveryAttempt records one delivery attempt inside a firing.
	DeliveryAttempt(attempt int, outcome string, duration time.Duration)

	// RetryScheduled is called when a failed attempt is going to be retried.
	RetryScheduled()

	// NotificationShown is called when the user-facing notifier fires.
	NotificationShown()
}

// Result constants for FiringCompleted.
const (
	ResultSucceeded      = "succeeded"
	ResultFailedTerminal = "failed_terminal"
	ResultSkipped        = "skipped"
)

// Outcome constants for DeliveryAttempt.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)
