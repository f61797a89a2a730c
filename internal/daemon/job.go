// Package daemon implements the background report daemon: the retrying
// report job and the recurring daily scheduler.
package daemon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/screentimed/internal/domain"
	"github.com/eliteGoblin/screentimed/internal/metrics"
)

// FiringState is the state of one scheduled firing.
type FiringState string

const (
	StateIdle           FiringState = "idle"
	StateRunning        FiringState = "running"
	StateSucceeded      FiringState = "succeeded"
	StateRetryPending   FiringState = "retry_pending"
	StateFailedTerminal FiringState = "failed_terminal"
)

// maxRetries is how many retries a firing gets after a failed delivery.
// A firing therefore makes at most maxRetries+1 delivery attempts.
const maxRetries = 3

// defaultBackoff are the waits before each retry of the same firing.
var defaultBackoff = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
}

// configErrorMessage marks a local configuration failure coming out of the
// delivery pipeline. Configuration errors are terminal for the firing but
// retrying them is pointless and the user already sees them in settings, so
// no retry and no notification.
const configErrorMessage = "webhook not configured"

// Deliverer runs the delivery pipeline once.
type Deliverer interface {
	Deliver(ctx context.Context) domain.DeliveryOutcome
}

// FiringResult is what one firing resolved to.
type FiringResult struct {
	FiringID uuid.UUID
	State    FiringState
	Outcome  domain.DeliveryOutcome
	Attempts int // delivery attempts actually made
}

// ReportJob executes one scheduled firing of the daily report: gate checks,
// the delivery pipeline, retry classification, and the terminal-failure
// notification. Retries happen inside the firing with backoff; the next
// calendar day's firing starts its attempt count from zero.
type ReportJob struct {
	store    domain.ConfigStore
	usage    domain.UsageSource
	deliver  Deliverer
	notifier domain.Notifier
	sink     metrics.Sink
	logger   *zap.Logger

	backoff []time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewReportJob creates the firing executor.
func NewReportJob(
	store domain.ConfigStore,
	usage domain.UsageSource,
	deliver Deliverer,
	notifier domain.Notifier,
	sink metrics.Sink,
	logger *zap.Logger,
) *ReportJob {
	return &ReportJob{
		store:    store,
		usage:    usage,
		deliver:  deliver,
		notifier: notifier,
		sink:     sink,
		logger:   logger,
		backoff:  defaultBackoff,
		sleep:    sleepCtx,
	}
}

// WithBackoff overrides the retry backoff ladder (tests).
func (j *ReportJob) WithBackoff(backoff []time.Duration) *ReportJob {
	j.backoff = backoff
	return j
}

// RunFiring executes one scheduled firing to its terminal state.
func (j *ReportJob) RunFiring(ctx context.Context) FiringResult {
	firingID := uuid.New()
	start := time.Now()
	logger := j.logger.With(zap.String("firing_id", firingID.String()))

	j.sink.FiringStarted()
	result := j.runFiring(ctx, logger)
	result.FiringID = firingID

	j.sink.FiringCompleted(metricsResult(result.State, result.Attempts), time.Since(start))
	logger.Info("firing resolved",
		zap.String("state", string(result.State)),
		zap.Int("attempts", result.Attempts))

	return result
}

func (j *ReportJob) runFiring(ctx context.Context, logger *zap.Logger) FiringResult {
	// Gate: a disabled or unconfigured report is a successful no-op firing,
	// not an error. The config snapshot is re-read each firing so changes
	// made through the CLI since the last firing are honored.
	cfg, err := j.store.Settings()
	if err != nil {
		logger.Warn("failed to read settings at firing time, attempting delivery anyway", zap.Error(err))
	} else if !cfg.CanSend() {
		logger.Info("delivery disabled or webhook unset, skipping firing")
		return FiringResult{State: StateSucceeded}
	}

	// Permission gate: no usage access means no report today and no point in
	// hot-looping retries. Notify and fail this firing; tomorrow's firing is
	// the natural retry.
	if !j.usage.HasAccess() {
		logger.Warn("usage access not available")
		j.notify("Screen time report failed",
			"Usage data is not accessible. Check that screentimed may read process information.")
		return FiringResult{State: StateFailedTerminal}
	}

	var outcome domain.DeliveryOutcome

	for attempt := 0; ; attempt++ {
		attemptStart := time.Now()
		outcome = j.deliver.Deliver(ctx)

		switch outcome.Status {
		case domain.StatusSuccess, domain.StatusNotSent:
			j.sink.DeliveryAttempt(attempt+1, metrics.OutcomeSuccess, time.Since(attemptStart))
			return FiringResult{State: StateSucceeded, Outcome: outcome, Attempts: attempt + 1}

		case domain.StatusFailed:
			j.sink.DeliveryAttempt(attempt+1, metrics.OutcomeFailed, time.Since(attemptStart))

			if outcome.ErrorMessage == configErrorMessage {
				logger.Warn("webhook configuration invalid, not retrying")
				return FiringResult{State: StateFailedTerminal, Outcome: outcome, Attempts: attempt + 1}
			}

			if attempt >= maxRetries {
				j.notify("Screen time report failed", outcome.ErrorMessage)
				return FiringResult{State: StateFailedTerminal, Outcome: outcome, Attempts: attempt + 1}
			}

			j.sink.RetryScheduled()
			wait := j.backoffFor(attempt)
			logger.Warn("delivery failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait),
				zap.String("error", outcome.ErrorMessage))

			if err := j.sleep(ctx, wait); err != nil {
				// Daemon is shutting down; leave the firing unresolved.
				return FiringResult{State: StateRetryPending, Outcome: outcome, Attempts: attempt + 1}
			}
		}
	}
}

func (j *ReportJob) backoffFor(attempt int) time.Duration {
	if len(j.backoff) == 0 {
		return 0
	}
	if attempt >= len(j.backoff) {
		attempt = len(j.backoff) - 1
	}
	return j.backoff[attempt]
}

func (j *ReportJob) notify(title, message string) {
	j.sink.NotificationShown()
	if err := j.notifier.Notify(title, message); err != nil {
		j.logger.Warn("failed to show notification", zap.Error(err))
	}
}

func metricsResult(state FiringState, attempts int) string {
	switch state {
	case StateSucceeded:
		if attempts == 0 {
			return metrics.ResultSkipped
		}
		return metrics.ResultSucceeded
	case StateFailedTerminal:
		return metrics.ResultFailedTerminal
	default:
		return string(state)
	}
}

// sleepCtx sleeps for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
