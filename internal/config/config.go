package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Port                             string `mapstructure:"PORT"`
	GinMode                          string `mapstructure:"GIN_MODE"`
	FirebaseProjectID                string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`
	StoreBackend                     string `mapstructure:"STORE_BACKEND"` // "firestore" or "memory"
	ClientURL                        string `mapstructure:"CLIENT_URL"`
	DomainURL                        string `mapstructure:"DOMAIN_URL"`

	PaystackSecretKey    string        `mapstructure:"PAYSTACK_SECRET_KEY"`
	PaystackAPIBase      string        `mapstructure:"PAYSTACK_API_BASE"`
	Currency             string        `mapstructure:"CURRENCY"`
	ProviderTimeout      time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	AdminSharePercent    float64       `mapstructure:"ADMIN_SHARE_PERCENT"`
	SellerPlatformFeePct float64       `mapstructure:"SELLER_PLATFORM_FEE_PERCENT"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	BillingSchedule       string `mapstructure:"BILLING_SCHEDULE"`
	BillingTimezone       string `mapstructure:"BILLING_TIMEZONE"`
	BillingMaxConcurrency int    `mapstructure:"BILLING_MAX_CONCURRENCY"`

	RedisAddress  string `mapstructure:"REDIS_ADDRESS"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	RabbitMQQueueName string `mapstructure:"RABBITMQ_QUEUE_NAME"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPSender   string `mapstructure:"SMTP_SENDER"`
}

var envKeys = []string{
	"PORT", "GIN_MODE", "FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS",
	"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64", "STORE_BACKEND", "CLIENT_URL", "DOMAIN_URL",
	"PAYSTACK_SECRET_KEY", "PAYSTACK_API_BASE", "CURRENCY", "PROVIDER_TIMEOUT",
	"ADMIN_SHARE_PERCENT", "SELLER_PLATFORM_FEE_PERCENT",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET",
	"BILLING_SCHEDULE", "BILLING_TIMEZONE", "BILLING_MAX_CONCURRENCY",
	"REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB",
	"RABBITMQ_URL", "RABBITMQ_QUEUE_NAME",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_SENDER",
}

// LoadConfig loads configuration from environment variables using Viper.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("STORE_BACKEND", "firestore")
	v.SetDefault("PAYSTACK_API_BASE", "https://api.paystack.co")
	v.SetDefault("CURRENCY", "ZAR")
	v.SetDefault("PROVIDER_TIMEOUT", 30*time.Second)
	v.SetDefault("ADMIN_SHARE_PERCENT", 8.0)
	v.SetDefault("SELLER_PLATFORM_FEE_PERCENT", 9.0)
	v.SetDefault("BILLING_SCHEDULE", "0 0 1 * *")
	v.SetDefault("BILLING_TIMEZONE", "UTC")
	v.SetDefault("BILLING_MAX_CONCURRENCY", 16)
	v.SetDefault("RABBITMQ_QUEUE_NAME", "billing-events")

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("failed to unmarshal config: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "firestore":
		if c.FirebaseProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID is required")
		}
	case "memory":
	default:
		return errors.New("STORE_BACKEND must be either 'firestore' or 'memory'")
	}
	if c.PaystackSecretKey == "" {
		return errors.New("PAYSTACK_SECRET_KEY is required")
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}
	if c.BillingMaxConcurrency <= 0 {
		return errors.New("BILLING_MAX_CONCURRENCY must be positive")
	}
	if c.AdminSharePercent < 0 || c.AdminSharePercent > 100 {
		return errors.New("ADMIN_SHARE_PERCENT must be between 0 and 100")
	}
	return nil
}

// IsRelease reports whether gin runs in release mode.
func (c *Config) IsRelease() bool {
	return strings.EqualFold(c.GinMode, "release")
}

// StripeEnabled reports whether the Stripe integration is configured.
func (c *Config) StripeEnabled() bool {
	return c.StripeSecretKey != ""
}

// MailEnabled reports whether an SMTP relay is configured.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}
