// Package config provides gateway configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/marketplace-gateway/pkg/commsutil"
)

const logPrefix = "config:LoadConfig"

// Config holds marketplace-gateway configuration.
type Config struct {
	// COMMS: event adapter over NATS at COMMSURL.
	COMMSEnabled bool   `envconfig:"COMMS_ENABLED" default:"true"`
	COMMSURL     string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName    string `envconfig:"SERVICE_NAME" default:"marketplace-gateway"`

	InvokeSubject       string `envconfig:"INVOKE_SUBJECT" default:"marketplace.invoke"`
	PaymentEventSubject string `envconfig:"PAYMENT_EVENT_SUBJECT" default:"marketplace.payments"`

	// Per-activation deadline on the event adapter.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// HTTP adapter (HTTP_ADDR preferred, e.g. "0.0.0.0:3000")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"3000"`
	HTTPMaxBodyBytes   int64         `envconfig:"HTTP_MAX_BODY_BYTES" default:"1048576"`
	HTTPRateLimit      float64       `envconfig:"HTTP_RATE_LIMIT" default:"0"`
	HTTPRateBurst      int           `envconfig:"HTTP_RATE_BURST" default:"20"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Database is optional; without it billing effects are only logged.
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	DatabaseEnsure bool   `envconfig:"DATABASE_ENSURE" default:"false"`
	RunMigrations  bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath  string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// Secrets
	AdminServiceToken   string `envconfig:"ADMIN_SERVICE_TOKEN"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	WebhookTolerance       time.Duration `envconfig:"WEBHOOK_TOLERANCE" default:"5m"`
	WebhookRecordUnhandled bool          `envconfig:"WEBHOOK_RECORD_UNHANDLED" default:"false"`

	OAuthTimeout time.Duration `envconfig:"OAUTH_TIMEOUT" default:"10s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Validate checks the configuration used by every command that builds the gateway.
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.OAuthTimeout <= 0 {
		return fmt.Errorf("%s - OAUTH_TIMEOUT must be positive", logPrefix)
	}
	if c.WebhookTolerance <= 0 {
		return fmt.Errorf("%s - WEBHOOK_TOLERANCE must be positive", logPrefix)
	}
	if c.COMMSEnabled {
		if c.COMMSURL == "" {
			return fmt.Errorf("%s - COMMS_URL is required when COMMS_ENABLED", logPrefix)
		}
		if !commsutil.ValidSubject(c.InvokeSubject) {
			return fmt.Errorf("%s - INVOKE_SUBJECT %q is not a valid subject", logPrefix, c.InvokeSubject)
		}
		if !commsutil.ValidSubject(c.PaymentEventSubject) {
			return fmt.Errorf("%s - PAYMENT_EVENT_SUBJECT %q is not a valid subject", logPrefix, c.PaymentEventSubject)
		}
	}
	if (c.RunMigrations || c.DatabaseEnsure) && c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required when RUN_MIGRATIONS or DATABASE_ENSURE is set", logPrefix)
	}
	return nil
}

// ValidateForServe checks required config when running the HTTP and event adapters.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.HTTPAddr == "" && (c.HTTPPort <= 0 || c.HTTPPort > 65535) {
		return fmt.Errorf("%s - HTTP_PORT must be between 1 and 65535", logPrefix)
	}
	if c.HTTPMaxBodyBytes <= 0 {
		return fmt.Errorf("%s - HTTP_MAX_BODY_BYTES must be positive", logPrefix)
	}
	if c.HTTPRateLimit < 0 {
		return fmt.Errorf("%s - HTTP_RATE_LIMIT must not be negative", logPrefix)
	}
	if c.HTTPRateLimit > 0 && c.HTTPRateBurst <= 0 {
		return fmt.Errorf("%s - HTTP_RATE_BURST must be positive when HTTP_RATE_LIMIT is set", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// Warnings lists settings that are valid but leave features inert.
func (c *Config) Warnings() []string {
	var w []string
	if c.AdminServiceToken == "" {
		w = append(w, "ADMIN_SERVICE_TOKEN is empty; admin commands will reject every call")
	}
	if c.StripeWebhookSecret == "" {
		w = append(w, "STRIPE_WEBHOOK_SECRET is empty; stripe_webhook will fail verification")
	}
	if c.DatabaseURL == "" {
		w = append(w, "DATABASE_URL is empty; billing effects are logged only")
	}
	return w
}
