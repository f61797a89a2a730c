// Package main is the CLI entry point for screentimed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/screentimed/internal/config"
	"github.com/eliteGoblin/screentimed/internal/daemon"
	"github.com/eliteGoblin/screentimed/internal/domain"
	"github.com/eliteGoblin/screentimed/internal/infra"
	"github.com/eliteGoblin/screentimed/internal/metrics"
	"github.com/eliteGoblin/screentimed/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "screentimed",
	Short: "Daily screen time reports to a Slack webhook",
	Long: `screentimed samples application usage in the background and posts a
daily screen time summary to a Slack incoming webhook at a configured
local time. Reports aggregate per-app durations, drop excluded apps,
and list the top apps with the rest folded into an "Other" line.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the daemon (sampler + daily report scheduler)",
	Long: `Runs the background daemon in the foreground: samples app usage,
fires the daily report at the configured time, and retries failed
deliveries with backoff. Intended to be supervised by systemd or
launchd.`,
	RunE: runStart,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a report now",
	Long: `Composes and delivers today's report immediately, independent of the
daily schedule. With --test, posts a short test message instead so the
webhook can be verified without waiting for usage data.`,
	RunE: runSend,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current settings and the last delivery result",
	RunE:  runStatus,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage report settings",
}

var setWebhookCmd = &cobra.Command{
	Use:   "set-webhook <url>",
	Short: "Set the Slack incoming webhook URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetWebhook,
}

var setTimeCmd = &cobra.Command{
	Use:   "set-time <HH:MM>",
	Short: "Set the daily send time (local)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetTime,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable daily sending",
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(true) },
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable daily sending",
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(false) },
}

var excludeCmd = &cobra.Command{
	Use:   "exclude",
	Short: "Manage apps excluded from reports",
}

var excludeAddCmd = &cobra.Command{
	Use:   "add <app-id>",
	Short: "Exclude an app from reports",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setExcluded(args[0], true) },
}

var excludeRemoveCmd = &cobra.Command{
	Use:   "remove <app-id>",
	Short: "Stop excluding an app",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setExcluded(args[0], false) },
}

var excludeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List excluded apps",
	RunE:  runExcludeList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	configPath string
	testSend   bool
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to daemon config file")
	sendCmd.Flags().BoolVar(&testSend, "test", false, "Send a short test message instead of the report")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	configCmd.AddCommand(setWebhookCmd)
	configCmd.AddCommand(setTimeCmd)
	configCmd.AddCommand(enableCmd)
	configCmd.AddCommand(disableCmd)

	excludeCmd.AddCommand(excludeAddCmd)
	excludeCmd.AddCommand(excludeRemoveCmd)
	excludeCmd.AddCommand(excludeListCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(excludeCmd)
	rootCmd.AddCommand(versionCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, level := createLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	sampler := infra.NewUsageSampler(store, cfg.SampleInterval.Std(), logger)
	source := infra.NewSamplingUsageSource(store)
	webhook := infra.NewSlackWebhookClientWithTimeout(cfg.WebhookTimeout.Std())
	composer := usecase.NewComposer(infra.NewStaticLabelResolver())
	reporter := usecase.NewReporter(store, source, webhook, composer, logger)
	notifier := infra.NewDesktopNotifier(logger)

	var sink metrics.Sink = metrics.NewNoopSink()
	daemonCfg := daemon.DefaultDaemonConfig()
	daemonCfg.MetricsAddr = cfg.MetricsAddr

	handler := metrics.Handler(prometheus.DefaultGatherer)
	if cfg.MetricsAddr != "" {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, logger)
	}

	job := daemon.NewReportJob(store, source, reporter, notifier, sink, logger)
	d := daemon.NewDaemon(daemonCfg, store, sampler, job, handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	// The config file is hot-reloaded for the log level; other fields need
	// a restart, which the watcher points out.
	watcher := config.NewWatcher(configPath, func(next config.Config) {
		level.SetLevel(parseLogLevel(next.Log.Level))
		if next.DataDir != cfg.DataDir || next.MetricsAddr != cfg.MetricsAddr ||
			next.SampleInterval != cfg.SampleInterval {
			logger.Warn("config change requires restart to take effect")
		}
	}, logger)
	go func() { _ = watcher.Watch(ctx) }()

	err = d.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, _ := createLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if testSend {
		return sendTestMessage(ctx, store, cfg)
	}

	source := infra.NewSamplingUsageSource(store)
	webhook := infra.NewSlackWebhookClientWithTimeout(cfg.WebhookTimeout.Std())
	composer := usecase.NewComposer(infra.NewStaticLabelResolver())
	reporter := usecase.NewReporter(store, source, webhook, composer, logger)

	outcome := reporter.Deliver(ctx)
	if outcome.Status != domain.StatusSuccess {
		return fmt.Errorf("delivery failed: %s", outcome.ErrorMessage)
	}
	fmt.Println("Report sent.")
	return nil
}

func sendTestMessage(ctx context.Context, store domain.ConfigStore, cfg config.Config) error {
	settings, err := store.Settings()
	if err != nil {
		return err
	}
	url, err := usecase.ValidateWebhookURL(settings.WebhookURL)
	if err != nil {
		return fmt.Errorf("webhook not configured: run 'screentimed config set-webhook' first")
	}

	webhook := infra.NewSlackWebhookClientWithTimeout(cfg.WebhookTimeout.Std())
	if err := webhook.Send(ctx, url, ":wave: screentimed test message"); err != nil {
		return fmt.Errorf("test message failed: %w", err)
	}
	fmt.Println("Test message sent.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	settings, err := store.Settings()
	if err != nil {
		return err
	}

	fmt.Println("\n=== screentimed Status ===")

	if settings.SendEnabled {
		fmt.Println("Daily report: enabled")
	} else {
		fmt.Println("Daily report: disabled")
	}
	fmt.Printf("Send time:    %02d:%02d (local)\n", settings.SendHour, settings.SendMinute)
	fmt.Printf("Webhook:      %s\n", maskWebhook(settings.WebhookURL))

	if settings.CanSend() {
		delay := daemon.NextFireDelay(time.Now(), settings.SendHour, settings.SendMinute)
		fmt.Printf("Next report:  in %s\n", delay.Round(time.Minute))
	}

	if len(settings.ExcludedApps) > 0 {
		fmt.Printf("Excluded:     %d app(s)\n", len(settings.ExcludedApps))
	}

	last, err := store.LastResult()
	if err == nil {
		switch last.Status {
		case domain.StatusSuccess:
			sentAt := time.UnixMilli(last.SentAtMillis)
			fmt.Printf("Last send:    success at %s\n", sentAt.Format("2006-01-02 15:04"))
		case domain.StatusFailed:
			fmt.Printf("Last send:    failed (%s)\n", last.ErrorMessage)
		default:
			fmt.Println("Last send:    never")
		}
	}

	fmt.Println("==========================")
	return nil
}

func runSetWebhook(cmd *cobra.Command, args []string) error {
	url, err := usecase.ValidateWebhookURL(args[0])
	if err != nil {
		return fmt.Errorf("not a Slack incoming webhook URL (want https://hooks.slack.com/services/...)")
	}
	return withStore(func(store *infra.EncryptedStore) error {
		if err := store.SetWebhookURL(url); err != nil {
			return err
		}
		fmt.Println("Webhook saved.")
		return nil
	})
}

func runSetTime(cmd *cobra.Command, args []string) error {
	hour, minute, err := parseSendTime(args[0])
	if err != nil {
		return err
	}
	return withStore(func(store *infra.EncryptedStore) error {
		if err := store.SetSendTime(hour, minute); err != nil {
			return err
		}
		fmt.Printf("Daily report time set to %02d:%02d.\n", hour, minute)
		fmt.Println("A running daemon picks this up within a minute.")
		return nil
	})
}

func setEnabled(enabled bool) error {
	return withStore(func(store *infra.EncryptedStore) error {
		if err := store.SetSendEnabled(enabled); err != nil {
			return err
		}
		if enabled {
			fmt.Println("Daily report enabled.")
		} else {
			fmt.Println("Daily report disabled.")
		}
		return nil
	})
}

func setExcluded(appID string, excluded bool) error {
	return withStore(func(store *infra.EncryptedStore) error {
		if err := store.SetExcluded(appID, excluded); err != nil {
			return err
		}
		if excluded {
			fmt.Printf("Excluded %q from reports.\n", appID)
		} else {
			fmt.Printf("%q is no longer excluded.\n", appID)
		}
		return nil
	})
}

func runExcludeList(cmd *cobra.Command, args []string) error {
	return withStore(func(store *infra.EncryptedStore) error {
		settings, err := store.Settings()
		if err != nil {
			return err
		}
		if len(settings.ExcludedApps) == 0 {
			fmt.Println("No apps excluded.")
			return nil
		}
		fmt.Println("Excluded apps:")
		for appID := range settings.ExcludedApps {
			fmt.Printf("  - %s\n", appID)
		}
		return nil
	})
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("screentimed %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// withStore opens the store for a single CLI operation.
func withStore(fn func(store *infra.EncryptedStore) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func openStore(cfg config.Config) (*infra.EncryptedStore, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	key, err := infra.EnsureKey(infra.NewFileKeyProvider(cfg.DataDir))
	if err != nil {
		return nil, err
	}
	return infra.NewEncryptedStore(cfg.DataDir, key)
}

// parseSendTime parses "HH:MM" in 24-hour local time.
func parseSendTime(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// maskWebhook hides the secret path of a configured webhook URL.
func maskWebhook(url string) string {
	if url == "" {
		return "(not set)"
	}
	const prefix = "https://hooks.slack.com/services/"
	if strings.HasPrefix(url, prefix) {
		return prefix + "***"
	}
	return "(set)"
}

func createLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLogLevel(cfg.Level))

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Path != "" {
		zcfg.OutputPaths = []string{cfg.Path}
		zcfg.ErrorOutputPaths = []string{cfg.Path}
	} else {
		zcfg.OutputPaths = []string{"stderr"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := zcfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger, level
}

func parseLogLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
