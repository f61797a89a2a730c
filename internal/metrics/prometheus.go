package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated; a metric that fails
// to register simply records into an unregistered collector.
type PrometheusSink struct {
	logger *zap.Logger

	firingsTotal       *prometheus.CounterVec
	firingDuration     prometheus.Histogram
	attemptsTotal      *prometheus.CounterVec
	attemptDuration    prometheus.Histogram
	retriesTotal       prometheus.Counter
	notificationsTotal prometheus.Counter
}

// NewPrometheusSink creates a Prometheus metrics sink registered on reg.
func NewPrometheusSink(reg prometheus.Registerer, logger *zap.Logger) *PrometheusSink {
	s := &PrometheusSink{logger: logger}

	s.firingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "screentimed_firings_total",
		Help: "Total scheduled firings by terminal result.",
	}, []string{"result"})

	s.firingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "screentimed_firing_duration_seconds",
		Help:    "Duration of one firing including retries and backoff.",
		Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300, 900},
	})

	s.attemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "screentimed_delivery_attempts_total",
		Help: "Total delivery attempts by attempt number and outcome.",
	}, []string{"attempt", "outcome"})

	s.attemptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "screentimed_delivery_attempt_duration_seconds",
		Help:    "Duration of a single delivery attempt (excludes backoff).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screentimed_delivery_retries_total",
		Help: "Total retries scheduled after failed delivery attempts.",
	})

	s.notificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screentimed_notifications_total",
		Help: "Total user-facing failure notifications shown.",
	})

	s.register(reg, s.firingsTotal, "screentimed_firings_total")
	s.register(reg, s.firingDuration, "screentimed_firing_duration_seconds")
	s.register(reg, s.attemptsTotal, "screentimed_delivery_attempts_total")
	s.register(reg, s.attemptDuration, "screentimed_delivery_attempt_duration_seconds")
	s.register(reg, s.retriesTotal, "screentimed_delivery_retries_total")
	s.register(reg, s.notificationsTotal, "screentimed_notifications_total")

	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn("failed to register metric", zap.String("metric", name), zap.Error(err))
	}
}

// FiringStarted is a no-op for Prometheus; firings are counted at completion.
func (s *PrometheusSink) FiringStarted() {}

// FiringCompleted records the terminal result of one firing.
func (s *PrometheusSink) FiringCompleted(result string, duration time.Duration) {
	s.firingsTotal.WithLabelValues(result).Inc()
	s.firingDuration.Observe(duration.Seconds())
}

// DeliveryAttempt records one delivery attempt inside a firing.
func (s *PrometheusSink) DeliveryAttempt(attempt int, outcome string, d time.Duration) {
	s.attemptsTotal.WithLabelValues(strconv.Itoa(attempt), outcome).Inc()
	s.attemptDuration.Observe(d.Seconds())
}

// RetryScheduled counts a retry of a failed attempt.
func (s *PrometheusSink) RetryScheduled() {
	s.retriesTotal.Inc()
}

// NotificationShown counts a user-facing failure notification.
func (s *PrometheusSink) NotificationShown() {
	s.notificationsTotal.Inc()
}

// Handler returns the /metrics HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Ensure PrometheusSink implements Sink.
var _ Sink = (*PrometheusSink)(nil)
