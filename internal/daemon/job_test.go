package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/screentimed/internal/domain"
	"github.com/eliteGoblin/screentimed/internal/metrics"
)

// mockStore implements domain.ConfigStore for testing.
type mockStore struct {
	mu          sync.Mutex
	settings    domain.ReportConfig
	settingsErr error
	lastResult  domain.DeliveryOutcome
}

func (m *mockStore) Settings() (domain.ReportConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, m.settingsErr
}

func (m *mockStore) setSettings(cfg domain.ReportConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = cfg
}
func (m *mockStore) SetWebhookURL(string) error             { return nil }
func (m *mockStore) SetSendEnabled(bool) error              { return nil }
func (m *mockStore) SetSendTime(int, int) error             { return nil }
func (m *mockStore) SetExcluded(string, bool) error         { return nil }
func (m *mockStore) LastResult() (domain.DeliveryOutcome, error) {
	return m.lastResult, nil
}
func (m *mockStore) SetLastResult(o domain.DeliveryOutcome) error {
	m.lastResult = o
	return nil
}
func (m *mockStore) Close() error { return nil }

// mockUsage implements domain.UsageSource for testing.
type mockUsage struct {
	access bool
}

func (m *mockUsage) GetUsage(context.Context, time.Time, time.Time) ([]domain.UsageRecord, error) {
	return nil, nil
}
func (m *mockUsage) HasAccess() bool { return m.access }

// scriptedDeliverer returns canned outcomes in sequence.
type scriptedDeliverer struct {
	outcomes []domain.DeliveryOutcome
	calls    int
}

func (d *scriptedDeliverer) Deliver(context.Context) domain.DeliveryOutcome {
	outcome := d.outcomes[len(d.outcomes)-1]
	if d.calls < len(d.outcomes) {
		outcome = d.outcomes[d.calls]
	}
	d.calls++
	return outcome
}

// mockNotifier counts notifications.
type mockNotifier struct {
	calls    int
	messages []string
}

func (m *mockNotifier) Notify(_, message string) error {
	m.calls++
	m.messages = append(m.messages, message)
	return nil
}

const enabledWebhook = "https://hooks.slack.com/services/T00/B00/XXX"

func enabledConfig() domain.ReportConfig {
	return domain.ReportConfig{WebhookURL: enabledWebhook, SendEnabled: true}
}

func newTestJob(store *mockStore, usage *mockUsage, deliver Deliverer, notifier *mockNotifier) *ReportJob {
	job := NewReportJob(store, usage, deliver, notifier, metrics.NewNoopSink(), zap.NewNop())
	// No real waiting in tests.
	job.WithBackoff([]time.Duration{0, 0, 0})
	return job
}

func TestRunFiring_DisabledIsNoOpSuccess(t *testing.T) {
	store := &mockStore{settings: domain.ReportConfig{WebhookURL: enabledWebhook, SendEnabled: false}}
	deliver := &scriptedDeliverer{outcomes: []domain.DeliveryOutcome{domain.OutcomeFailed("x")}}
	notifier := &mockNotifier{}
	job := newTestJob(store, &mockUsage{access: true}, deliver, notifier)

	result := job.RunFiring(context.Background())

	assert.Equal(t, StateSucceeded, result.State)
	assert.Zero(t, result.Attempts)
	assert.Zero(t, deliver.calls)
	assert.Zero(t, notifier.calls)
}

func TestRunFiring_UnconfiguredIsNoOpSuccess(t *testing.T) {
	store := &mockStore{settings: domain.ReportConfig{WebhookURL: "", SendEnabled: true}}
	deliver := &scriptedDeliverer{outcomes: []domain.DeliveryOutcome{domain.OutcomeFailed("x")}}
	job := newTestJob(store, &mockUsage{access: true}, deliver, &mockNotifier{})

	result := job.RunFiring(context.Background())

	assert.Equal(t, StateSucceeded, result.State)
	assert.Zero(t, deliver.calls)
}

func TestRunFiring_PermissionGate_TerminalWithoutRetry(t *testing.T) {
	store := &mockStore{settings: enabledConfig()}
	deliver := &scriptedDeliverer{outcomes: []domain.DeliveryOutcome{domain.OutcomeSuccess(time.Now())}}
	notifier := &mockNotifier{}
	job := newTestJob(store, &mockUsage{access: false}, deliver, notifier)

	result := job.RunFiring(context.Background())

	assert.Equal(t, StateFailedTerminal, result.State)
	// No delivery attempt consumed, exactly one notification.
	assert.Zero(t, deliver.calls)
	assert.Zero(t, result.Attempts)
	assert.Equal(t, 1, notifier.calls)
	assert.Contains(t, notifier.messages[0], "Usage data")
}

func TestRunFiring_SuccessFirstAttempt(t *testing.T) {
	store := &mockStore{settings: enabledConfig()}
	deliver := &scriptedDeliverer{outcomes: []domain.DeliveryOutcome{domain.OutcomeSuccess(time.Now())}}
	notifier := &mockNotifier{}
	job := newTestJob(store, &mockUsage{access: true}, deliver, notifier)

	result := job.RunFiring(context.Background())

	assert.Equal(t, StateSucceeded, result.State)
	assert.Equal(t, 1, result.Attempts)
	assert.Zero(t, notifier.calls)
}

func TestRunFiring_SuccessOnSecondAttempt_NoThirdCallNoNotify(t *testing.T) {
	store := &mockStore{settings: enabledConfig()}
	deliver := &scriptedDeliverer{outcomes: []domain.DeliveryOutcome{
		domain.OutcomeFailed("timeout"),
		domain.OutcomeSuccess(time.Now()),
	}}
	notifier := &mockNotifier{}
	job := newTestJob(store, &mockUsage{access: true}, deliver, notifier)

	result := job.RunFiring(context.Background())

	assert.Equal(t, StateSucceeded, result.State)
	assert.Equal(t, 2, deliver.calls)
	assert.Equal(t, 2, result.Attempts)
	assert.Zero(t, notifier.calls)
}

func TestRunFiring_ExhaustedRetries_TerminalNotifiesOnce(t *testing.T) {
	store := &mockStore{settings: enabledConfig()}
	deliver := &scriptedDeliverer{outcomes: []domain.DeliveryOutcome{
		domain.OutcomeFailed("err1"),
		domain.OutcomeFailed("err2"),
		domain.OutcomeFailed("err3"),
		domain.OutcomeFailed("err4"),
	}}
	notifier := &mockNotifier{}
	job := newTestJob(store, &mockUsage{access: true}, deliver, notifier)

	result := job.RunFiring(context.Background())

	// Three failed attempts may be retried; the fourth classification is
	// terminal.
	assert.Equal(t, StateFailedTerminal, result.State)
	assert.Equal(t, 4, deliver.calls)
	assert.Equal(t, 4, result.Attempts)
	require.Equal(t, 1, notifier.calls)
	// Notification carries the last failure's message.
	assert.Equal(t, "err4", notifier.messages[0])
}

func TestRunFiring_ConfigError_NoRetryNoNotification(t *testing.T) {
	// Gate passes (snapshot says configured) but delivery sees a blanked or
	// malformed URL: a configuration error, terminal without retries and
	// without a notification.
	store := &mockStore{settings: enabledConfig()}
	deliver := &scriptedDeliverer{outcomes: []domain.DeliveryOutcome{
		domain.OutcomeFailed("webhook not configured"),
	}}
	notifier := &mockNotifier{}
	job := newTestJob(store, &mockUsage{access: true}, deliver, notifier)

	result := job.RunFiring(context.Background())

	assert.Equal(t, StateFailedTerminal, result.State)
	assert.Equal(t, 1, deliver.calls)
	assert.Zero(t, notifier.calls)
}

func TestRunFiring_SettingsReadError_StillAttemptsDelivery(t *testing.T) {
	store := &mockStore{settingsErr: assert.AnError}
	deliver := &scriptedDeliverer{outcomes: []domain.DeliveryOutcome{domain.OutcomeSuccess(time.Now())}}
	job := newTestJob(store, &mockUsage{access: true}, deliver, &mockNotifier{})

	result := job.RunFiring(context.Background())

	assert.Equal(t, StateSucceeded, result.State)
	assert.Equal(t, 1, deliver.calls)
}

func TestRunFiring_CanceledDuringBackoff_RetryPending(t *testing.T) {
	store := &mockStore{settings: enabledConfig()}
	deliver := &scriptedDeliverer{outcomes: []domain.DeliveryOutcome{domain.OutcomeFailed("err")}}
	notifier := &mockNotifier{}
	job := NewReportJob(store, &mockUsage{access: true}, deliver, notifier, metrics.NewNoopSink(), zap.NewNop())
	job.WithBackoff([]time.Duration{time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := job.RunFiring(ctx)

	assert.Equal(t, StateRetryPending, result.State)
	assert.Equal(t, 1, deliver.calls)
	assert.Zero(t, notifier.calls)
}

func TestSleepCtx(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sleepCtx(ctx, time.Hour))
}
