package config

import (
	"fmt"
	"time"

	appredis "github.com/Proton-105/mintwatch/pkg/redis"
)

// Config holds runtime configuration for the mintwatch service.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Redis       appredis.Config   `mapstructure:"redis" validate:"required"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Cron        CronConfig        `mapstructure:"cron" validate:"required"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Expiry      ExpiryConfig      `mapstructure:"expiry"`
	Notifier    NotifierConfig    `mapstructure:"notifier" validate:"required"`
	Alert       AlertConfig       `mapstructure:"alert"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Cache       CacheConfig       `mapstructure:"cache"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return ":" + s.Port
}

// DatabaseConfig describes the PostgreSQL connection.
type DatabaseConfig struct {
	Host         string `mapstructure:"host" validate:"required"`
	Port         string `mapstructure:"port" validate:"required"`
	User         string `mapstructure:"user" validate:"required"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name" validate:"required"`
	SSLMode      string `mapstructure:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		sslMode,
	)
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig toggles error reporting.
type SentryConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	DSN        string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// CronConfig holds the shared secret callers of the expiry check must present.
type CronConfig struct {
	Secret string `mapstructure:"secret" validate:"required,min=8"`
}

// JobsConfig configures the background scheduler and worker.
type JobsConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	ExpiryCron  string         `mapstructure:"expiry_cron"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// ExpiryConfig bounds a single expiry run.
type ExpiryConfig struct {
	UserConcurrency   int           `mapstructure:"user_concurrency" validate:"gte=0"`
	RecordConcurrency int           `mapstructure:"record_concurrency" validate:"gte=0"`
	Deadline          time.Duration `mapstructure:"deadline"`
}

// NotifierConfig selects and tunes the SMS provider.
type NotifierConfig struct {
	Provider    string        `mapstructure:"provider" validate:"required,oneof=twilio log"`
	Language    string        `mapstructure:"language"`
	MaxParallel int           `mapstructure:"max_parallel" validate:"gte=0"`
	Twilio      TwilioConfig  `mapstructure:"twilio"`
	Retry       RetryConfig   `mapstructure:"retry" validate:"required"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

// TwilioConfig holds Twilio REST credentials.
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

// RetryConfig is the per-contact delivery retry policy. There is no built-in default.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"required,gte=1,lte=10"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"required"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"required"`
	Multiplier     float64       `mapstructure:"multiplier" validate:"required,gte=1"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"required"`
}

// BreakerConfig tunes the provider circuit breaker; zero values fall back to defaults.
type BreakerConfig struct {
	ErrorThreshold      float64       `mapstructure:"error_threshold" validate:"gte=0,lte=1"`
	MinRequests         int           `mapstructure:"min_requests"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxRequests int           `mapstructure:"half_open_max_requests"`
}

// AlertConfig configures the operator Telegram channel.
type AlertConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	TelegramToken string `mapstructure:"telegram_token" validate:"required_if=Enabled true"`
	ChatID        int64  `mapstructure:"chat_id" validate:"required_if=Enabled true"`

	// MinInterval drops alerts sent sooner than this after the previous one.
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// RateLimitRule is a limit within a window such as "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig describes HTTP rate limits.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	PerUser   RateLimitRule `mapstructure:"per_user"`
	Whitelist []string      `mapstructure:"whitelist"`
}

// IdempotencyConfig controls delivery receipt retention.
type IdempotencyConfig struct {
	ReceiptTTL      time.Duration `mapstructure:"receipt_ttl"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// CacheConfig controls the user profile cache.
type CacheConfig struct {
	UserTTL time.Duration `mapstructure:"user_ttl"`
}
