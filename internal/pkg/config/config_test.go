package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReelPass/internal/pkg/env"
)

func TestLoadDefaults(t *testing.T) {
	env.Env = map[string]string{}
	t.Cleanup(func() { env.Env = nil })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, RoundingNearest, cfg.PriceRounding)
	assert.Equal(t, int64(0), cfg.WelcomeBonus)
	assert.Equal(t, 3, cfg.Gateway.VerifyRetries)
	assert.Equal(t, 10*time.Minute, cfg.Reconcile.MinAge)
}

func TestLoadOverrides(t *testing.T) {
	env.Env = map[string]string{
		"LEDGER_CURRENCY":     "eur",
		"WELCOME_BONUS_MINOR": "250",
		"PRICE_ROUNDING":      "FLOOR",
		"GATEWAY_BASE_URL":    "https://pay.example.com/",
		"DB_DRIVER":           "memory",
	}
	t.Cleanup(func() { env.Env = nil })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, int64(250), cfg.WelcomeBonus)
	assert.Equal(t, RoundingFloor, cfg.PriceRounding)
	assert.Equal(t, "https://pay.example.com", cfg.Gateway.BaseURL)
	assert.Equal(t, "memory", cfg.DatabaseDriver)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		mut  func(c *Config)
	}{
		{name: "currency", mut: func(c *Config) { c.Currency = "X" }},
		{name: "bonus", mut: func(c *Config) { c.WelcomeBonus = -1 }},
		{name: "rounding", mut: func(c *Config) { c.PriceRounding = "ceil" }},
		{name: "driver", mut: func(c *Config) { c.DatabaseDriver = "sqlite" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Currency: "USD", PriceRounding: RoundingNearest, DatabaseDriver: "mysql"}
			tt.mut(c)
			assert.Error(t, c.Validate())
		})
	}
}
