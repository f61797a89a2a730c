package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/screentimed/internal/domain"
)

// Reporter implements the daily report delivery pipeline:
// read config -> fetch today's usage -> aggregate -> filter -> compose ->
// validate webhook -> send -> persist outcome.
//
// Deliver never returns a Go error for pipeline faults; every failure folds
// into a Failed outcome so the surrounding job host can classify it.
type Reporter struct {
	store    domain.ConfigStore
	usage    domain.UsageSource
	webhook  domain.WebhookClient
	composer *Composer
	clock    func() time.Time
	logger   *zap.Logger
}

// NewReporter creates the delivery pipeline.
func NewReporter(
	store domain.ConfigStore,
	usage domain.UsageSource,
	webhook domain.WebhookClient,
	composer *Composer,
	logger *zap.Logger,
) *Reporter {
	return &Reporter{
		store:    store,
		usage:    usage,
		webhook:  webhook,
		composer: composer,
		clock:    time.Now,
		logger:   logger,
	}
}

// WithClock overrides the time source (tests).
func (r *Reporter) WithClock(clock func() time.Time) *Reporter {
	r.clock = clock
	return r
}

// Deliver runs the pipeline once and returns the outcome. The outcome is
// persisted to the config store unconditionally before returning, superseding
// the previous one.
func (r *Reporter) Deliver(ctx context.Context) domain.DeliveryOutcome {
	outcome := r.run(ctx)

	if err := r.store.SetLastResult(outcome); err != nil {
		r.logger.Warn("failed to persist delivery outcome", zap.Error(err))
	}

	return outcome
}

func (r *Reporter) run(ctx context.Context) (outcome domain.DeliveryOutcome) {
	// The pipeline must never crash the job host. Anything unexpected
	// between here and the webhook call becomes a Failed outcome.
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("delivery pipeline panicked", zap.Any("panic", rec))
			outcome = domain.OutcomeFailed(fmt.Sprintf("unexpected error: %v", rec))
		}
	}()

	cfg, err := r.store.Settings()
	if err != nil {
		return domain.OutcomeFailed(fmt.Sprintf("read settings: %v", err))
	}

	if !cfg.IsWebhookConfigured() {
		return domain.OutcomeFailed("webhook not configured")
	}

	validated, err := ValidateWebhookURL(cfg.WebhookURL)
	if err != nil {
		// Malformed URL is a local configuration failure, same as absent.
		return domain.OutcomeFailed("webhook not configured")
	}

	text, err := r.composeToday(ctx, cfg)
	if err != nil {
		return domain.OutcomeFailed(err.Error())
	}

	if err := r.webhook.Send(ctx, validated, text); err != nil {
		r.logger.Warn("webhook send failed", zap.Error(err))
		return domain.OutcomeFailed(err.Error())
	}

	now := r.clock()
	r.logger.Info("daily report delivered", zap.Time("sent_at", now))
	return domain.OutcomeSuccess(now)
}

// composeToday fetches usage from local midnight to now and renders it.
func (r *Reporter) composeToday(ctx context.Context, cfg domain.ReportConfig) (string, error) {
	now := r.clock()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	records, err := r.usage.GetUsage(ctx, midnight, now)
	if err != nil {
		return "", fmt.Errorf("fetch usage: %w", err)
	}

	aggregated := Aggregate(records)
	filtered := FilterExcluded(aggregated, cfg.ExcludedApps)

	r.logger.Debug("composed usage report",
		zap.Int("apps", len(aggregated)),
		zap.Int("after_exclusions", len(filtered)))

	return r.composer.Compose(filtered, now), nil
}
