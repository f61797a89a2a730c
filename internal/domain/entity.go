// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// UsageRecord is a raw per-application usage sample as produced by the
// usage source for a time window. Multiple records may exist for the same
// application; aggregation collapses them.
type UsageRecord struct {
	AppID          string
	DurationMillis int64
}

// AppUsage is aggregated usage for one application. After aggregation there
// is exactly one entry per AppID and DurationMillis is always > 0.
type AppUsage struct {
	AppID          string
	DurationMillis int64
}

// DurationMinutes returns the usage as whole minutes, truncated toward zero.
// Anything under a full minute renders as 0.
func (u AppUsage) DurationMinutes() int {
	return int(u.DurationMillis / 60000)
}

// DefaultSendHour and DefaultSendMinute apply when no schedule has been
// configured yet (21:00 local).
const (
	DefaultSendHour   = 21
	DefaultSendMinute = 0
)

// ReportConfig holds the user's report settings. Owned by the config store;
// the pipeline re-reads a fresh snapshot at every firing so late changes
// from the CLI take effect without a restart.
type ReportConfig struct {
	WebhookURL   string
	SendEnabled  bool
	SendHour     int // 0-23, local time
	SendMinute   int // 0-59
	ExcludedApps map[string]struct{}
}

// IsWebhookConfigured reports whether a webhook URL has been set.
func (c ReportConfig) IsWebhookConfigured() bool {
	return c.WebhookURL != ""
}

// CanSend reports whether automatic delivery is possible at all:
// webhook configured and sending enabled.
func (c ReportConfig) CanSend() bool {
	return c.IsWebhookConfigured() && c.SendEnabled
}

// IsExcluded reports whether the app is in the exclusion set.
// Exact membership, no pattern matching.
func (c ReportConfig) IsExcluded(appID string) bool {
	_, ok := c.ExcludedApps[appID]
	return ok
}

// DeliveryStatus classifies the last delivery attempt.
type DeliveryStatus string

const (
	StatusNotSent DeliveryStatus = "not_sent"
	StatusSuccess DeliveryStatus = "success"
	StatusFailed  DeliveryStatus = "failed"
)

// DeliveryOutcome is the result of one delivery pipeline run. A fresh value
// is produced by every run and persisted over the previous one; no history
// is kept beyond the latest.
type DeliveryOutcome struct {
	Status       DeliveryStatus
	SentAtMillis int64  // epoch millis, set only on success
	ErrorMessage string // set only on failure
}

// OutcomeNotSent is the zero outcome before any delivery has run.
func OutcomeNotSent() DeliveryOutcome {
	return DeliveryOutcome{Status: StatusNotSent}
}

// OutcomeSuccess records a successful delivery at the given time.
func OutcomeSuccess(sentAt time.Time) DeliveryOutcome {
	return DeliveryOutcome{Status: StatusSuccess, SentAtMillis: sentAt.UnixMilli()}
}

// OutcomeFailed records a failed delivery with its cause.
func OutcomeFailed(message string) DeliveryOutcome {
	return DeliveryOutcome{Status: StatusFailed, ErrorMessage: message}
}
