package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/http"
	"github.com/abdul-hamid-achik/testforge/packages/notify"
	"github.com/abdul-hamid-achik/testforge/packages/redact"
	"go.uber.org/zap"
)

// Config represents the testforge configuration
type Config struct {
	Timeout           int               `json:"timeout,omitempty"` // milliseconds
	MaxRedirects      int               `json:"maxRedirects,omitempty"`
	ValidateSSL       *bool             `json:"validateSSL,omitempty"`
	Proxy             string            `json:"proxy,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"` // Default headers for all requests
	Workers           int               `json:"workers,omitempty"`
	QueueSize         int               `json:"queueSize,omitempty"`
	RateLimit         float64           `json:"rateLimit,omitempty"` // requests per second, 0 = unlimited
	RedactCredentials *bool             `json:"redactCredentials,omitempty"`
	RedactHeaders     []string          `json:"redactHeaders,omitempty"` // masked on top of the defaults
	LogLevel          string            `json:"logLevel,omitempty"`
	Database          string            `json:"database,omitempty"`
	NotifyOn          string            `json:"notifyOn,omitempty"` // always, failure, success, recovery
	SlackWebhook      string            `json:"slackWebhook,omitempty"`
	NotifyWebhook     string            `json:"notifyWebhook,omitempty"`
	MetricsFile       string            `json:"metricsFile,omitempty"` // .json or Prometheus text
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetRedactCredentials returns the redaction setting, defaulting to true
func (c *Config) GetRedactCredentials() bool {
	return getBool(c.RedactCredentials, true)
}

// TimeoutDuration returns Timeout as a time.Duration
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// ClientOptions translates the request settings into http client options.
func (c *Config) ClientOptions() []http.ClientOption {
	opts := []http.ClientOption{
		http.WithValidateSSL(c.GetValidateSSL()),
	}
	if c.Timeout > 0 {
		opts = append(opts, http.WithTimeout(c.TimeoutDuration()))
	}
	if c.MaxRedirects > 0 {
		opts = append(opts, http.WithMaxRedirects(c.MaxRedirects))
	}
	if c.Proxy != "" {
		opts = append(opts, http.WithProxy(c.Proxy))
	}
	if len(c.Headers) > 0 {
		opts = append(opts, http.WithDefaultHeaders(c.Headers))
	}
	if c.RateLimit > 0 {
		opts = append(opts, http.WithRateLimit(c.RateLimit))
	}
	return opts
}

// RedactPolicy returns the snapshot redaction policy.
func (c *Config) RedactPolicy() redact.Policy {
	if !c.GetRedactCredentials() {
		return redact.Disabled()
	}
	p := redact.DefaultPolicy()
	p.Keys = append(p.Keys, c.RedactHeaders...)
	return p
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Timeout < 0:
		return fmt.Errorf("timeout must not be negative: %d", c.Timeout)
	case c.MaxRedirects < 0:
		return fmt.Errorf("maxRedirects must not be negative: %d", c.MaxRedirects)
	case c.Workers < 0:
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	case c.QueueSize < 0:
		return fmt.Errorf("queueSize must not be negative: %d", c.QueueSize)
	case c.RateLimit < 0:
		return fmt.Errorf("rateLimit must not be negative: %g", c.RateLimit)
	case c.LogLevel != "" && !logLevels[strings.ToLower(c.LogLevel)]:
		return fmt.Errorf("unknown logLevel %q", c.LogLevel)
	}
	if _, err := notify.ParseNotifyOn(c.NotifyOn); err != nil {
		return err
	}
	return nil
}

// Notifier builds the notification manager for the configured webhooks, or
// returns nil when none is set.
func (c *Config) Notifier(logger *zap.Logger) *notify.Manager {
	var notifiers []notify.Notifier
	if c.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(c.SlackWebhook))
	}
	if c.NotifyWebhook != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(c.NotifyWebhook, nil))
	}
	if len(notifiers) == 0 {
		return nil
	}
	on, _ := notify.ParseNotifyOn(c.NotifyOn)
	return notify.NewManager(on, logger, notifiers...)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".testforge.json",
	"testforge.config.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.Workers > 0 {
		result.Workers = other.Workers
	}
	if other.QueueSize > 0 {
		result.QueueSize = other.QueueSize
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.Database != "" {
		result.Database = other.Database
	}
	if other.NotifyOn != "" {
		result.NotifyOn = other.NotifyOn
	}
	if other.SlackWebhook != "" {
		result.SlackWebhook = other.SlackWebhook
	}
	if other.NotifyWebhook != "" {
		result.NotifyWebhook = other.NotifyWebhook
	}
	if other.MetricsFile != "" {
		result.MetricsFile = other.MetricsFile
	}

	// Boolean flags - only override if explicitly set in other config
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.RedactCredentials != nil {
		result.RedactCredentials = other.RedactCredentials
	}

	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}
	if len(other.RedactHeaders) > 0 {
		result.RedactHeaders = append(append([]string{}, result.RedactHeaders...), other.RedactHeaders...)
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
