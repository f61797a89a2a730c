// Package config loads and watches the daemon's YAML configuration file.
// Report settings (webhook, send time, exclusions) live in the encrypted
// store and are edited through the CLI; this file only covers how the
// daemon itself runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the daemon configuration.
type Config struct {
	// DataDir holds the encrypted database and key file.
	DataDir string `yaml:"data_dir"`

	Log LogConfig `yaml:"log"`

	// SampleInterval is how often the usage sampler polls processes.
	SampleInterval Duration `yaml:"sample_interval"`

	// MetricsAddr exposes Prometheus metrics when non-empty, e.g.
	// "127.0.0.1:9273". Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr"`

	// WebhookTimeout bounds a single webhook POST.
	WebhookTimeout Duration `yaml:"webhook_timeout"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogConfig controls daemon logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Path is a log file path; empty logs to stderr.
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DataDir:        defaultDataDir(),
		Log:            LogConfig{Level: "info"},
		SampleInterval: Duration(30 * time.Second),
		WebhookTimeout: Duration(15 * time.Second),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".screentimed"
	}
	return filepath.Join(home, ".screentimed")
}

// Load reads the config file at path, applying defaults for anything unset.
// A missing file is not an error: defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.SampleInterval.Std() < time.Second {
		return fmt.Errorf("sample_interval %s too small, minimum 1s", c.SampleInterval.Std())
	}
	if c.WebhookTimeout.Std() <= 0 {
		return fmt.Errorf("webhook_timeout must be positive")
	}
	return nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}
