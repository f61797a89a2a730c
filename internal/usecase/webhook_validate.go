package usecase

import (
	"errors"
	"net/url"
	"strings"
)

const (
	webhookHost       = "hooks.slack.com"
	webhookPathPrefix = "/services/"
)

// ErrInvalidWebhookURL is returned for any URL that does not look like a
// Slack Incoming Webhook endpoint. The caller treats it as a local
// configuration failure; no network call is attempted.
var ErrInvalidWebhookURL = errors.New("invalid webhook URL")

// ValidateWebhookURL checks that the URL is an HTTPS Slack webhook:
// host must equal hooks.slack.com and the path must start with /services/.
// Returns the trimmed URL on success.
func ValidateWebhookURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidWebhookURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", ErrInvalidWebhookURL
	}
	if parsed.Scheme != "https" {
		return "", ErrInvalidWebhookURL
	}
	if parsed.Host != webhookHost {
		return "", ErrInvalidWebhookURL
	}
	if !strings.HasPrefix(parsed.EscapedPath(), webhookPathPrefix) {
		return "", ErrInvalidWebhookURL
	}

	return trimmed, nil
}
