// Package config holds the settings shared by every bot built on core:
// Telegram transport, logging, rate limiting, dialogue sessions and the ops
// listener.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Telegram run modes.
const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

// Session backends.
const (
	SessionsMemory = "memory"
	SessionsRedis  = "redis"
)

const (
	defaultSessionTTL   = 24 * time.Hour
	defaultSessionSweep = "@every 1m"
)

type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds of 0 means the poller default.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig is required in webhook mode only.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig drives the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// KeysOrder is a comma separated key list, or "default".
	KeysOrder string `yaml:"keys_order"`
	// DebugSample is "num/den" or "den" for high volume debug lines.
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Profile is "debug", "dev" or "prod". Debug and dev default to kv lines.
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig sets the minimum interval between two updates of one
// user. ExcludeUpdates lists update kinds that are never limited.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// SessionsConfig selects where dialogue sessions live and when idle ones expire.
type SessionsConfig struct {
	Backend   string        `yaml:"backend" envconfig:"SESSIONS_BACKEND"`
	RedisURL  string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	TTL       time.Duration `yaml:"ttl" envconfig:"SESSIONS_TTL"`
	SweepSpec string        `yaml:"sweep_spec" envconfig:"SESSIONS_SWEEP_SPEC"`
}

// OpsConfig configures the metrics and health listener. An empty Listen
// disables it.
type OpsConfig struct {
	Listen string `yaml:"listen" envconfig:"OPS_LISTEN"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Ops       OpsConfig       `yaml:"ops"`
}

// LoadFile decodes the YAML file at path into dst and then applies the
// environment variables named by dst's envconfig tags.
func LoadFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize validates cfg and fills defaults in place.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.normalizeTransport(); err != nil {
		return err
	}
	if err := cfg.RateLimit.normalize(); err != nil {
		return err
	}
	return cfg.Sessions.normalize()
}

func (c *Config) normalizeTransport() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram token is required")
	}
	mode := lower(c.Telegram.RunMode)
	switch mode {
	case "", "polling", RunModeLongpoll:
		if c.Telegram.LongPollTimeoutSeconds < 0 {
			return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
		}
		mode = RunModeLongpoll
	case RunModeWebhook:
		wh := c.Webhook
		switch {
		case strings.TrimSpace(wh.URL) == "":
			return errors.New("webhook.url is required in webhook mode")
		case strings.TrimSpace(wh.Listen) == "":
			return errors.New("webhook.listen is required in webhook mode")
		case wh.Port <= 0:
			return errors.New("webhook.port must be > 0 in webhook mode")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", c.Telegram.RunMode)
	}
	c.Telegram.RunMode = mode
	return nil
}

func (r *RateLimitConfig) normalize() error {
	kept := r.ExcludeUpdates[:0]
	for _, v := range r.ExcludeUpdates {
		switch kind := lower(v); kind {
		case "":
		case UpdateCallback, UpdateMessage, UpdateInlineQuery:
			kept = append(kept, kind)
		default:
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
	}
	r.ExcludeUpdates = kept
	if r.IntervalMS < 0 {
		return errors.New("rate_limit.interval_ms must be >= 0")
	}
	return nil
}

func (s *SessionsConfig) normalize() error {
	switch s.Backend = lower(s.Backend); s.Backend {
	case "":
		s.Backend = SessionsMemory
	case SessionsMemory:
	case SessionsRedis:
		if strings.TrimSpace(s.RedisURL) == "" {
			return errors.New("sessions.redis_url is required when sessions.backend is 'redis'")
		}
	default:
		return fmt.Errorf("invalid sessions.backend %q; allowed: memory, redis", s.Backend)
	}
	if s.TTL < 0 {
		return errors.New("sessions.ttl must be >= 0")
	}
	if s.TTL == 0 {
		s.TTL = defaultSessionTTL
	}
	if strings.TrimSpace(s.SweepSpec) == "" {
		s.SweepSpec = defaultSessionSweep
	}
	return nil
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
