// Package config turns the environment into one typed Config value that is
// built at start-up and handed to the services.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/ReelPass/internal/pkg/env"
)

const (
	RoundingNearest = "nearest"
	RoundingFloor   = "floor"
)

type Config struct {
	AppHost string
	AppPort string

	Currency         string
	WelcomeBonus     int64
	PriceRounding    string
	PurchaseLockTTL  time.Duration
	PlaybackURLTTL   time.Duration
	JWTSecret        string
	AMQPURL          string
	EventsExchange   string
	APIRateLimit     int
	APIRateWindow    time.Duration
	OpenAPIDocPath   string
	Gateway          GatewayConfig
	Reconcile        ReconcileConfig
	DatabaseDriver   string
	MigrationsSource string
}

type GatewayConfig struct {
	Provider      string
	BaseURL       string
	APIKey        string
	WebhookSecret string
	CallbackURL   string
	Timeout       time.Duration
	VerifyRetries int
	VerifyBackoff time.Duration
}

type ReconcileConfig struct {
	Interval  time.Duration
	MinAge    time.Duration
	BatchSize int
}

// Load reads the configuration from the environment. env.SetupEnvFile must
// have run before.
func Load() (*Config, error) {
	cfg := &Config{
		AppHost:         env.GetEnv("APP_HOST", "localhost"),
		AppPort:         env.GetEnv("APP_PORT", "4000"),
		Currency:        strings.ToUpper(strings.TrimSpace(env.GetEnv("LEDGER_CURRENCY", "USD"))),
		WelcomeBonus:    env.GetEnvInt64("WELCOME_BONUS_MINOR", 0),
		PriceRounding:   strings.ToLower(strings.TrimSpace(env.GetEnv("PRICE_ROUNDING", RoundingNearest))),
		PurchaseLockTTL: env.GetEnvDuration("PURCHASE_LOCK_TTL", 10*time.Second),
		PlaybackURLTTL:  env.GetEnvDuration("PLAYBACK_URL_TTL", 15*time.Minute),
		JWTSecret:       env.GetEnv("JWT_SECRET", ""),
		AMQPURL:         env.GetEnv("AMQP_URL", ""),
		EventsExchange:  env.GetEnv("EVENTS_EXCHANGE", "reelpass.events"),
		APIRateLimit:    env.GetEnvInt("API_RATE_LIMIT", 60),
		APIRateWindow:   env.GetEnvDuration("API_RATE_WINDOW", time.Minute),
		OpenAPIDocPath:  env.GetEnv("OPENAPI_DOC_PATH", "./public/docs/v1/openapi.yml"),
		Gateway: GatewayConfig{
			Provider:      strings.ToLower(env.GetEnv("GATEWAY_PROVIDER", "gateway")),
			BaseURL:       strings.TrimRight(env.GetEnv("GATEWAY_BASE_URL", ""), "/"),
			APIKey:        env.GetEnv("GATEWAY_API_KEY", ""),
			WebhookSecret: env.GetEnv("GATEWAY_WEBHOOK_SECRET", ""),
			CallbackURL:   env.GetEnv("GATEWAY_CALLBACK_URL", ""),
			Timeout:       env.GetEnvDuration("GATEWAY_TIMEOUT", 15*time.Second),
			VerifyRetries: env.GetEnvInt("GATEWAY_VERIFY_RETRIES", 3),
			VerifyBackoff: env.GetEnvDuration("GATEWAY_VERIFY_BACKOFF", 500*time.Millisecond),
		},
		Reconcile: ReconcileConfig{
			Interval:  env.GetEnvDuration("RECONCILE_INTERVAL", time.Minute),
			MinAge:    env.GetEnvDuration("RECONCILE_MIN_AGE", 10*time.Minute),
			BatchSize: env.GetEnvInt("RECONCILE_BATCH_SIZE", 50),
		},
		DatabaseDriver:   strings.ToLower(env.GetEnv("DB_DRIVER", "mysql")),
		MigrationsSource: env.GetEnv("MIGRATIONS_SOURCE", "file://migrations"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the ledger cannot operate with.
func (c *Config) Validate() error {
	if len(c.Currency) < 3 {
		return fmt.Errorf("LEDGER_CURRENCY %q is not a currency code", c.Currency)
	}
	if c.WelcomeBonus < 0 {
		return errors.New("WELCOME_BONUS_MINOR must not be negative")
	}
	switch c.PriceRounding {
	case RoundingNearest, RoundingFloor:
	default:
		return fmt.Errorf("PRICE_ROUNDING must be %q or %q, got %q", RoundingNearest, RoundingFloor, c.PriceRounding)
	}
	switch c.DatabaseDriver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("DB_DRIVER %q is not supported", c.DatabaseDriver)
	}
	if c.Gateway.VerifyRetries < 1 {
		c.Gateway.VerifyRetries = 1
	}
	return nil
}
