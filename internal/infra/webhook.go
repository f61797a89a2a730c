package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/eliteGoblin/screentimed/internal/domain"
)

// DefaultWebhookTimeout bounds a single webhook POST.
const DefaultWebhookTimeout = 15 * time.Second

// SlackWebhookClient posts messages to a Slack Incoming Webhook.
// Slack allows roughly one message per second per webhook; a limiter keeps
// bursts (manual send racing a scheduled firing) within that budget.
type SlackWebhookClient struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

// NewSlackWebhookClient creates a webhook client with the default timeout.
func NewSlackWebhookClient() *SlackWebhookClient {
	return NewSlackWebhookClientWithTimeout(DefaultWebhookTimeout)
}

// NewSlackWebhookClientWithTimeout creates a webhook client with a custom
// per-request timeout.
func NewSlackWebhookClientWithTimeout(timeout time.Duration) *SlackWebhookClient {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &SlackWebhookClient{
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		timeout: timeout,
	}
}

type webhookPayload struct {
	Text string `json:"text"`
}

// Send posts text to the webhook. A non-2xx response is an error carrying the
// status code and a snippet of the response body (Slack returns plain-text
// causes such as "invalid_token").
func (c *SlackWebhookClient) Send(ctx context.Context, webhookURL, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(webhookPayload{Text: text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	return nil
}

// Ensure SlackWebhookClient implements domain.WebhookClient.
var _ domain.WebhookClient = (*SlackWebhookClient)(nil)
