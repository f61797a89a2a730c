package domain

import (
	"context"
	"time"
)

// UsageSource provides per-application usage for a time window.
// Returns an empty slice when usage access is not available.
// Implementation: sampling collector backed by gopsutil + encrypted store.
type UsageSource interface {
	// GetUsage returns raw usage records overlapping [from, to).
	GetUsage(ctx context.Context, from, to time.Time) ([]UsageRecord, error)

	// HasAccess reports whether usage data can be collected/read at all.
	HasAccess() bool
}

// ConfigStore persists report settings and the last delivery outcome.
// Every setter is an atomic upsert; Settings returns a consistent snapshot.
// Implementation: SQLCipher encrypted SQLite database.
type ConfigStore interface {
	// Settings returns the current report configuration snapshot.
	Settings() (ReportConfig, error)

	// SetWebhookURL stores the webhook target.
	SetWebhookURL(url string) error

	// SetSendEnabled toggles automatic delivery.
	SetSendEnabled(enabled bool) error

	// SetSendTime stores the daily delivery time (local wall clock).
	SetSendTime(hour, minute int) error

	// SetExcluded adds or removes an app from the exclusion set.
	SetExcluded(appID string, excluded bool) error

	// LastResult returns the most recently persisted delivery outcome.
	LastResult() (DeliveryOutcome, error)

	// SetLastResult replaces the persisted delivery outcome.
	SetLastResult(outcome DeliveryOutcome) error

	// Close releases the underlying database connection.
	Close() error
}

// WebhookClient posts a message to an already-validated webhook endpoint.
type WebhookClient interface {
	// Send posts text to the webhook. A non-2xx response is an error.
	Send(ctx context.Context, webhookURL, text string) error
}

// Notifier surfaces a user-visible alert. Used only for terminal delivery
// failures and permission problems; transient retries stay silent.
type Notifier interface {
	Notify(title, message string) error
}

// LabelResolver maps an application identifier to a display label.
// Never fails: unknown identifiers fall back to the raw identifier.
type LabelResolver interface {
	Resolve(appID string) string
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
