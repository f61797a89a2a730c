package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) FiringStarted()                                               {}
func (n *NoopSink) FiringCompleted(result string, duration time.Duration)        {}
func (n *NoopSink) DeliveryAttempt(attempt int, outcome string, d time.Duration) {}
func (n *NoopSink) RetryScheduled()                                              {}
func (n *NoopSink) NotificationShown()                                           {}

// Ensure NoopSink implements Sink.
var _ Sink = (*NoopSink)(nil)
