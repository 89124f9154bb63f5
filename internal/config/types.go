package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Redis      RedisConfig      `json:"redis"`
	Storage    StorageConfig    `json:"storage"`
	Providers  ProvidersConfig  `json:"providers"`
	Throttle   ThrottleConfig   `json:"throttle"`
	Monitoring MonitoringConfig `json:"monitoring"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Bot        BotConfig        `json:"bot"`

	// Notifier may be omitted; the pipeline then runs on its defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// StorageConfig is the SQLite paid-request ledger.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// ProviderEndpoint is one upstream API. Order within a list is the fallback
// order: first entry is tried first.
type ProviderEndpoint struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Host    string `json:"host"` // x-rapidapi-host
	Key     string `json:"key"`  // x-rapidapi-key
	Timeout string `json:"timeout,omitempty"`
}

type ProvidersConfig struct {
	Instagram []ProviderEndpoint `json:"instagram"`
	TikTok    []ProviderEndpoint `json:"tiktok"`
}

type BucketConfig struct {
	Window string `json:"window"` // Go duration string
	Limit  int    `json:"limit"`
}

type ThrottleConfig struct {
	Messages BucketConfig `json:"messages"`
	Paid     BucketConfig `json:"paid"`
	WarnText string       `json:"warn_text,omitempty"`
}

type MonitoringConfig struct {
	IntervalSeconds  int `json:"interval_seconds"`
	MaxSubscriptions int `json:"max_subscriptions,omitempty"`

	TextAccountNotExist  string `json:"text_account_not_exist,omitempty"`
	TextAccountIsPrivate string `json:"text_account_is_private,omitempty"`
	TextEmptyResults     string `json:"text_empty_results,omitempty"`
	TextNewContent       string `json:"text_new_content,omitempty"`
}

type SchedulerConfig struct {
	Workers    int    `json:"workers,omitempty"`
	JobTimeout string `json:"job_timeout,omitempty"` // Go duration string
	Timezone   string `json:"timezone,omitempty"`    // IANA TZ
}

type BotConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	HandlerTimeout string `json:"handler_timeout,omitempty"` // Go duration string
	MaxItems       int    `json:"max_items,omitempty"`

	TextProgress         string `json:"text_progress,omitempty"`
	TextWrongInput       string `json:"text_wrong_input,omitempty"`
	TextEmptyResults     string `json:"text_empty_results,omitempty"`
	TextAccountNotExist  string `json:"text_account_not_exist,omitempty"`
	TextAccountIsPrivate string `json:"text_account_is_private,omitempty"`
	TextProviderError    string `json:"text_provider_error,omitempty"`
	TextInternal         string `json:"text_internal,omitempty"`
}

// NotifierConfig controls the async outbound pipeline.
// All durations are Go duration strings.
type NotifierConfig struct {
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

// Validate rejects configs the app could not run with. Called both at startup
// and before committing a hot reload.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if len(c.Providers.Instagram) == 0 && len(c.Providers.TikTok) == 0 {
		errs = append(errs, errors.New("providers: at least one endpoint is required"))
	}
	for i, p := range append(append([]ProviderEndpoint(nil), c.Providers.Instagram...), c.Providers.TikTok...) {
		if strings.TrimSpace(p.BaseURL) == "" {
			errs = append(errs, fmt.Errorf("providers[%d] (%s): base_url is required", i, p.Name))
		}
	}
	if c.Monitoring.IntervalSeconds < 1 {
		errs = append(errs, errors.New("monitoring.interval_seconds must be >= 1"))
	}
	for _, b := range []struct {
		name string
		b    BucketConfig
	}{{"throttle.messages", c.Throttle.Messages}, {"throttle.paid", c.Throttle.Paid}} {
		if b.b.Limit < 1 {
			errs = append(errs, fmt.Errorf("%s.limit must be >= 1", b.name))
		}
		if d, err := ParseDurationField(b.name+".window", b.b.Window); err != nil {
			errs = append(errs, err)
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s.window must be > 0", b.name))
		}
	}

	return errors.Join(errs...)
}
