// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for the SMTP email channel.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// SMSConfig provides settings for the SMS gateway channel.
type SMSConfig interface {
	GetSMSGatewayURL() string
	GetSMSGatewayKey() string
}

// WhatsAppConfig provides settings for the WhatsApp gateway channel.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// DispatchConfig provides tuning knobs for campaign dispatch.
type DispatchConfig interface {
	GetDispatchBatchSize() int
	GetChannelConcurrency() int
}

// RetryConfig provides tuning knobs for the retry coordinator.
type RetryConfig interface {
	GetRetryBackoffBase() time.Duration
	GetRetryBackoffMax() time.Duration
	GetRetryPassInterval() time.Duration
}

// WebhookConfig provides settings for the webhook ingress and reconciler.
type WebhookConfig interface {
	GetWebhookIngressToken() string
	GetWebhookLookupAttempts() int
	GetWebhookReplayInterval() time.Duration
}

// RoutingConfig provides settings for lead routing.
type RoutingConfig interface {
	GetDefaultPoolID() string
	GetReassignmentSweepInterval() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env            string
	HTTPAddr       string
	DatabaseURL    string
	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	SMSGatewayURL string
	SMSGatewayKey string

	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string

	DispatchBatchSize  int
	ChannelConcurrency int

	RetryBackoffBase  time.Duration
	RetryBackoffMax   time.Duration
	RetryPassInterval time.Duration

	WebhookIngressToken   string
	WebhookLookupAttempts int
	WebhookReplayInterval time.Duration

	DefaultPoolID             string
	ReassignmentSweepInterval time.Duration
}

// Load reads configuration from the environment (and .env when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")
	smtpHost := getEnv("SMTP_HOST", "")

	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),

		EmailEnabled:     emailEnabled && smtpHost != "",
		SMTPHost:         smtpHost,
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "LeadFlow"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		SMSGatewayURL: getEnv("SMS_GATEWAY_URL", ""),
		SMSGatewayKey: getEnv("SMS_GATEWAY_KEY", ""),

		WhatsAppURL:      getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:      getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID: getEnv("WHATSAPP_DEVICE_ID", ""),

		DispatchBatchSize:  getIntEnv("DISPATCH_BATCH_SIZE", 50),
		ChannelConcurrency: getIntEnv("CHANNEL_CONCURRENCY", 5),

		RetryBackoffBase:  mustDuration(getEnv("RETRY_BACKOFF_BASE", "30s")),
		RetryBackoffMax:   mustDuration(getEnv("RETRY_BACKOFF_MAX", "1h")),
		RetryPassInterval: mustDuration(getEnv("RETRY_PASS_INTERVAL", "1m")),

		WebhookIngressToken:   getEnv("WEBHOOK_INGRESS_TOKEN", ""),
		WebhookLookupAttempts: getIntEnv("WEBHOOK_LOOKUP_ATTEMPTS", 5),
		WebhookReplayInterval: mustDuration(getEnv("WEBHOOK_REPLAY_INTERVAL", "30s")),

		DefaultPoolID:             getEnv("DEFAULT_POOL_ID", ""),
		ReassignmentSweepInterval: mustDuration(getEnv("REASSIGNMENT_SWEEP_INTERVAL", "15m")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if emailEnabled && cfg.SMTPHost != "" && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.DispatchBatchSize < 1 {
		return nil, fmt.Errorf("DISPATCH_BATCH_SIZE must be positive")
	}

	return cfg, nil
}

// Interface implementations.

func (c *Config) GetDatabaseURL() string    { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string       { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool     { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string  { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool   { return c.CORSAllowCreds }
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetEmailEnabled() bool      { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string        { return c.SMTPHost }
func (c *Config) GetSMTPPort() int           { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string    { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string    { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string   { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetSMSGatewayURL() string    { return c.SMSGatewayURL }
func (c *Config) GetSMSGatewayKey() string    { return c.SMSGatewayKey }
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

func (c *Config) GetDispatchBatchSize() int  { return c.DispatchBatchSize }
func (c *Config) GetChannelConcurrency() int { return c.ChannelConcurrency }

func (c *Config) GetRetryBackoffBase() time.Duration  { return c.RetryBackoffBase }
func (c *Config) GetRetryBackoffMax() time.Duration   { return c.RetryBackoffMax }
func (c *Config) GetRetryPassInterval() time.Duration { return c.RetryPassInterval }

func (c *Config) GetWebhookIngressToken() string          { return c.WebhookIngressToken }
func (c *Config) GetWebhookLookupAttempts() int           { return c.WebhookLookupAttempts }
func (c *Config) GetWebhookReplayInterval() time.Duration { return c.WebhookReplayInterval }

func (c *Config) GetDefaultPoolID() string { return c.DefaultPoolID }
func (c *Config) GetReassignmentSweepInterval() time.Duration {
	return c.ReassignmentSweepInterval
}

// Helpers.

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
