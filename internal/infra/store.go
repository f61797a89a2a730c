// Package infra implements infrastructure concerns (storage, sampling, webhook, notifications).
package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/screentimed/internal/domain"
)

const settingsDBName = "screentimed.db"

// Settings keys in the settings table.
const (
	keyWebhookURL       = "webhook_url"
	keySendEnabled      = "send_enabled"
	keySendHour         = "send_hour"
	keySendMinute       = "send_minute"
	keyLastSendStatus   = "last_send_status"
	keyLastSendAtMillis = "last_send_at_millis"
	keyLastSendError    = "last_send_error"
)

// EncryptedStore implements domain.ConfigStore plus the usage sample bucket
// storage backing the sampling usage source, all in one SQLCipher encrypted
// SQLite database. The webhook URL is a credential, so the whole database is
// encrypted rather than just that column.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted database in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, settingsDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify the key works before handing the store out.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS excluded_apps (
		app_id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS usage_buckets (
		app_id TEXT NOT NULL,
		bucket_start INTEGER NOT NULL,
		duration_millis INTEGER NOT NULL,
		PRIMARY KEY (app_id, bucket_start)
	);

	CREATE INDEX IF NOT EXISTS idx_usage_buckets_start ON usage_buckets (bucket_start);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.ConfigStore implementation ---

// Settings returns the current report configuration snapshot.
// Missing keys fall back to defaults (no webhook, disabled, 21:00).
func (s *EncryptedStore) Settings() (domain.ReportConfig, error) {
	cfg := domain.ReportConfig{
		SendHour:     domain.DefaultSendHour,
		SendMinute:   domain.DefaultSendMinute,
		ExcludedApps: make(map[string]struct{}),
	}

	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return cfg, fmt.Errorf("read settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return cfg, fmt.Errorf("scan setting: %w", err)
		}
		switch key {
		case keyWebhookURL:
			cfg.WebhookURL = value
		case keySendEnabled:
			cfg.SendEnabled = value == "true"
		case keySendHour:
			if h, err := strconv.Atoi(value); err == nil && h >= 0 && h <= 23 {
				cfg.SendHour = h
			}
		case keySendMinute:
			if m, err := strconv.Atoi(value); err == nil && m >= 0 && m <= 59 {
				cfg.SendMinute = m
			}
		}
	}
	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("read settings: %w", err)
	}

	excluded, err := s.db.Query(`SELECT app_id FROM excluded_apps`)
	if err != nil {
		return cfg, fmt.Errorf("read exclusions: %w", err)
	}
	defer excluded.Close()

	for excluded.Next() {
		var appID string
		if err := excluded.Scan(&appID); err != nil {
			return cfg, fmt.Errorf("scan exclusion: %w", err)
		}
		cfg.ExcludedApps[appID] = struct{}{}
	}

	return cfg, excluded.Err()
}

func (s *EncryptedStore) setSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

// SetWebhookURL stores the webhook target.
func (s *EncryptedStore) SetWebhookURL(url string) error {
	return s.setSetting(keyWebhookURL, url)
}

// SetSendEnabled toggles automatic delivery.
func (s *EncryptedStore) SetSendEnabled(enabled bool) error {
	return s.setSetting(keySendEnabled, strconv.FormatBool(enabled))
}

// SetSendTime stores the daily delivery time.
func (s *EncryptedStore) SetSendTime(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute: %d", minute)
	}
	if err := s.setSetting(keySendHour, strconv.Itoa(hour)); err != nil {
		return err
	}
	return s.setSetting(keySendMinute, strconv.Itoa(minute))
}

// SetExcluded adds or removes an app from the exclusion set.
func (s *EncryptedStore) SetExcluded(appID string, excluded bool) error {
	if excluded {
		_, err := s.db.Exec(`INSERT OR IGNORE INTO excluded_apps (app_id) VALUES (?)`, appID)
		return err
	}
	_, err := s.db.Exec(`DELETE FROM excluded_apps WHERE app_id = ?`, appID)
	return err
}

// LastResult returns the most recently persisted delivery outcome.
func (s *EncryptedStore) LastResult() (domain.DeliveryOutcome, error) {
	outcome := domain.OutcomeNotSent()

	rows, err := s.db.Query(`SELECT key, value FROM settings WHERE key IN (?, ?, ?)`,
		keyLastSendStatus, keyLastSendAtMillis, keyLastSendError)
	if err != nil {
		return outcome, fmt.Errorf("read last result: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return outcome, fmt.Errorf("scan last result: %w", err)
		}
		switch key {
		case keyLastSendStatus:
			switch value {
			case string(domain.StatusSuccess):
				outcome.Status = domain.StatusSuccess
			case string(domain.StatusFailed):
				outcome.Status = domain.StatusFailed
			default:
				outcome.Status = domain.StatusNotSent
			}
		case keyLastSendAtMillis:
			if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
				outcome.SentAtMillis = millis
			}
		case keyLastSendError:
			outcome.ErrorMessage = value
		}
	}

	return outcome, rows.Err()
}

// SetLastResult replaces the persisted delivery outcome. A success clears the
// error message; a failure clears the sent-at timestamp.
func (s *EncryptedStore) SetLastResult(outcome domain.DeliveryOutcome) error {
	if err := s.setSetting(keyLastSendStatus, string(outcome.Status)); err != nil {
		return err
	}
	if err := s.setSetting(keyLastSendAtMillis, strconv.FormatInt(outcome.SentAtMillis, 10)); err != nil {
		return err
	}
	return s.setSetting(keyLastSendError, outcome.ErrorMessage)
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	return s.db.Close()
}

// --- usage bucket storage (backs the sampling usage source) ---

// AddUsage credits duration to the app's bucket. Buckets are keyed by the
// start of the sampling slot (epoch millis); repeated credits accumulate.
func (s *EncryptedStore) AddUsage(appID string, bucketStart time.Time, duration time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO usage_buckets (app_id, bucket_start, duration_millis)
		VALUES (?, ?, ?)
		ON CONFLICT (app_id, bucket_start)
		DO UPDATE SET duration_millis = duration_millis + excluded.duration_millis`,
		appID, bucketStart.UnixMilli(), duration.Milliseconds())
	return err
}

// UsageBetween returns one record per bucket overlapping [from, to).
// Aggregation across buckets is the caller's concern.
func (s *EncryptedStore) UsageBetween(from, to time.Time) ([]domain.UsageRecord, error) {
	rows, err := s.db.Query(`
		SELECT app_id, duration_millis FROM usage_buckets
		WHERE bucket_start >= ? AND bucket_start < ?`,
		from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("read usage buckets: %w", err)
	}
	defer rows.Close()

	var records []domain.UsageRecord
	for rows.Next() {
		var r domain.UsageRecord
		if err := rows.Scan(&r.AppID, &r.DurationMillis); err != nil {
			return nil, fmt.Errorf("scan usage bucket: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// PruneUsageBefore deletes buckets older than the cutoff. The report only
// ever needs "today", so old buckets are garbage.
func (s *EncryptedStore) PruneUsageBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM usage_buckets WHERE bucket_start < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ensure EncryptedStore implements domain.ConfigStore.
var _ domain.ConfigStore = (*EncryptedStore)(nil)
