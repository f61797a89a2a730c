package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/screentimed/internal/domain"
)

// Sampler collects usage in the background until ctx is canceled.
type Sampler interface {
	Run(ctx context.Context) error
}

// DaemonConfig holds daemon loop configuration.
type DaemonConfig struct {
	// SettingsPollInterval is how often the scheduler re-reads the send time
	// from the store, so CLI changes take effect without a restart.
	SettingsPollInterval time.Duration

	// MetricsAddr exposes the Prometheus endpoint when non-empty.
	MetricsAddr string
}

// DefaultDaemonConfig returns default daemon configuration.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		SettingsPollInterval: time.Minute,
	}
}

// Daemon runs the background pieces: the usage sampler, the recurring daily
// schedule, and the optional metrics listener.
type Daemon struct {
	config    DaemonConfig
	store     domain.ConfigStore
	sampler   Sampler
	scheduler *RecurringScheduler
	job       *ReportJob
	handler   http.Handler
	logger    *zap.Logger
}

// NewDaemon creates the daemon. handler may be nil when metrics are disabled.
func NewDaemon(
	config DaemonConfig,
	store domain.ConfigStore,
	sampler Sampler,
	job *ReportJob,
	handler http.Handler,
	logger *zap.Logger,
) *Daemon {
	d := &Daemon{
		config:  config,
		store:   store,
		sampler: sampler,
		job:     job,
		handler: handler,
		logger:  logger,
	}
	d.scheduler = NewRecurringScheduler(d.fire, logger)
	return d
}

// Run starts the daemon and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon starting")

	if err := d.syncSchedule(); err != nil {
		d.logger.Error("failed to register daily schedule", zap.Error(err))
		return err
	}
	d.scheduler.Start()
	defer d.scheduler.Stop()

	samplerDone := make(chan error, 1)
	go func() {
		samplerDone <- d.sampler.Run(ctx)
	}()

	var metricsSrv *http.Server
	if d.config.MetricsAddr != "" && d.handler != nil {
		metricsSrv = d.serveMetrics()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	pollTicker := time.NewTicker(d.config.SettingsPollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			if samplerDone != nil {
				<-samplerDone
			}
			return ctx.Err()

		case err := <-samplerDone:
			// The sampler only stops on cancelation; anything else is fatal.
			if err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("sampler exited", zap.Error(err))
				return err
			}
			samplerDone = nil

		case <-pollTicker.C:
			if err := d.syncSchedule(); err != nil {
				d.logger.Warn("failed to sync schedule", zap.Error(err))
			}
		}
	}
}

// fire runs one scheduled firing in its own goroutine so a retry ladder in
// progress never blocks the cron runner.
func (d *Daemon) fire() {
	go func() {
		result := d.job.RunFiring(context.Background())
		if result.State == StateFailedTerminal {
			d.logger.Warn("daily report firing failed",
				zap.String("firing_id", result.FiringID.String()),
				zap.String("error", result.Outcome.ErrorMessage))
		}
	}()
}

// syncSchedule reads the configured send time and updates the recurring
// registration if it changed.
func (d *Daemon) syncSchedule() error {
	cfg, err := d.store.Settings()
	if err != nil {
		return err
	}

	if hour, minute, ok := d.scheduler.ScheduledTime(); ok &&
		hour == cfg.SendHour && minute == cfg.SendMinute {
		return nil
	}
	return d.scheduler.ScheduleOrUpdate(cfg.SendHour, cfg.SendMinute)
}

func (d *Daemon) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.handler)
	srv := &http.Server{Addr: d.config.MetricsAddr, Handler: mux}

	go func() {
		d.logger.Info("metrics listener started", zap.String("addr", d.config.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Warn("metrics listener failed", zap.Error(err))
		}
	}()
	return srv
}
