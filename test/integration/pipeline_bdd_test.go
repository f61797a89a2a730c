//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/screentimed/internal/daemon"
	"github.com/eliteGoblin/screentimed/internal/domain"
	"github.com/eliteGoblin/screentimed/internal/infra"
	"github.com/eliteGoblin/screentimed/internal/metrics"
	"github.com/eliteGoblin/screentimed/internal/usecase"
)

const testWebhook = "https://hooks.slack.com/services/T123/B456/abcdef"

// capturingWebhook records sent messages instead of hitting the network.
type capturingWebhook struct {
	mu    sync.Mutex
	sent  []string
	fail  int // fail this many leading calls
	calls int
}

func (c *capturingWebhook) Send(_ context.Context, _, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.fail {
		return io.ErrUnexpectedEOF
	}
	c.sent = append(c.sent, text)
	return nil
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) Notify(_, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

var _ = Describe("Report Pipeline", func() {
	var (
		store *infra.EncryptedStore
	)

	BeforeEach(func() {
		dataDir := GinkgoT().TempDir()
		key, err := infra.EnsureKey(infra.NewFileKeyProvider(dataDir))
		Expect(err).NotTo(HaveOccurred())

		store, err = infra.NewEncryptedStore(dataDir, key)
		Expect(err).NotTo(HaveOccurred())

		Expect(store.SetWebhookURL(testWebhook)).To(Succeed())
		Expect(store.SetSendEnabled(true)).To(Succeed())
	})

	AfterEach(func() {
		store.Close()
	})

	seedToday := func(appID string, minutes int) {
		now := time.Now()
		bucket := time.Date(now.Year(), now.Month(), now.Day(), 10, 0, 0, 0, time.Local)
		Expect(store.AddUsage(appID, bucket, time.Duration(minutes)*time.Minute)).To(Succeed())
	}

	newReporter := func(webhook domain.WebhookClient) *usecase.Reporter {
		source := infra.NewSamplingUsageSource(store)
		composer := usecase.NewComposer(infra.NewStaticLabelResolver())
		return usecase.NewReporter(store, source, webhook, composer, zap.NewNop())
	}

	Describe("Deliver", func() {
		Context("with usage recorded today", func() {
			It("sends a report listing apps by duration and persists success", func() {
				seedToday("chrome", 90)
				seedToday("code", 45)

				webhook := &capturingWebhook{}
				outcome := newReporter(webhook).Deliver(context.Background())

				Expect(outcome.Status).To(Equal(domain.StatusSuccess))
				Expect(webhook.sent).To(HaveLen(1))
				Expect(webhook.sent[0]).To(ContainSubstring("Screen time report"))
				Expect(webhook.sent[0]).To(ContainSubstring("Total: 135m"))
				Expect(webhook.sent[0]).To(ContainSubstring("Chrome: 90m"))
				Expect(webhook.sent[0]).To(ContainSubstring("VS Code: 45m"))

				last, err := store.LastResult()
				Expect(err).NotTo(HaveOccurred())
				Expect(last.Status).To(Equal(domain.StatusSuccess))
				Expect(last.SentAtMillis).To(BeNumerically(">", 0))
			})
		})

		Context("with an excluded app", func() {
			It("drops it from the report entirely", func() {
				seedToday("chrome", 60)
				seedToday("slack", 30)
				Expect(store.SetExcluded("slack", true)).To(Succeed())

				webhook := &capturingWebhook{}
				outcome := newReporter(webhook).Deliver(context.Background())

				Expect(outcome.Status).To(Equal(domain.StatusSuccess))
				Expect(webhook.sent[0]).NotTo(ContainSubstring("Slack"))
				Expect(webhook.sent[0]).To(ContainSubstring("Total: 60m"))
			})
		})

		Context("with no usage at all", func() {
			It("still sends a report with a zero total", func() {
				webhook := &capturingWebhook{}
				outcome := newReporter(webhook).Deliver(context.Background())

				Expect(outcome.Status).To(Equal(domain.StatusSuccess))
				Expect(webhook.sent[0]).To(ContainSubstring("Total: 0m"))
				Expect(webhook.sent[0]).To(ContainSubstring("No screen time recorded today."))
			})
		})

		Context("when the webhook URL has been cleared", func() {
			It("fails locally without attempting the network", func() {
				Expect(store.SetWebhookURL("")).To(Succeed())

				webhook := &capturingWebhook{}
				outcome := newReporter(webhook).Deliver(context.Background())

				Expect(outcome.Status).To(Equal(domain.StatusFailed))
				Expect(outcome.ErrorMessage).To(Equal("webhook not configured"))
				Expect(webhook.calls).To(BeZero())
			})
		})
	})

	Describe("Firing state machine", func() {
		newJob := func(webhook domain.WebhookClient, notifier domain.Notifier) *daemon.ReportJob {
			source := infra.NewSamplingUsageSource(store)
			reporter := newReporter(webhook)
			job := daemon.NewReportJob(store, source, reporter, notifier, metrics.NewNoopSink(), zap.NewNop())
			job.WithBackoff([]time.Duration{0, 0, 0})
			return job
		}

		Context("when delivery keeps failing", func() {
			It("retries three times, then fails terminally with one notification", func() {
				seedToday("chrome", 10)

				webhook := &capturingWebhook{fail: 10}
				notifier := &countingNotifier{}
				result := newJob(webhook, notifier).RunFiring(context.Background())

				Expect(result.State).To(Equal(daemon.StateFailedTerminal))
				Expect(result.Attempts).To(Equal(4))
				Expect(webhook.calls).To(Equal(4))
				Expect(notifier.calls).To(Equal(1))

				last, err := store.LastResult()
				Expect(err).NotTo(HaveOccurred())
				Expect(last.Status).To(Equal(domain.StatusFailed))
			})
		})

		Context("when delivery recovers on a retry", func() {
			It("stops retrying and does not notify", func() {
				seedToday("chrome", 10)

				webhook := &capturingWebhook{fail: 2}
				notifier := &countingNotifier{}
				result := newJob(webhook, notifier).RunFiring(context.Background())

				Expect(result.State).To(Equal(daemon.StateSucceeded))
				Expect(result.Attempts).To(Equal(3))
				Expect(webhook.sent).To(HaveLen(1))
				Expect(notifier.calls).To(BeZero())
			})
		})

		Context("when sending is disabled", func() {
			It("treats the firing as a successful no-op", func() {
				Expect(store.SetSendEnabled(false)).To(Succeed())

				webhook := &capturingWebhook{}
				notifier := &countingNotifier{}
				result := newJob(webhook, notifier).RunFiring(context.Background())

				Expect(result.State).To(Equal(daemon.StateSucceeded))
				Expect(webhook.calls).To(BeZero())
				Expect(notifier.calls).To(BeZero())
			})
		})
	})
})

var _ = Describe("Slack webhook client", func() {
	It("POSTs the message as a JSON text payload", func() {
		var payload map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &payload)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := infra.NewSlackWebhookClient()
		err := client.Send(context.Background(), srv.URL, "hello report")

		Expect(err).NotTo(HaveOccurred())
		Expect(payload).To(HaveKeyWithValue("text", "hello report"))
	})

	It("surfaces non-2xx responses as errors", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no_service", http.StatusNotFound)
		}))
		defer srv.Close()

		client := infra.NewSlackWebhookClient()
		err := client.Send(context.Background(), srv.URL, "hello")

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("404"))
	})
})
