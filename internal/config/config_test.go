// internal/config/config_test.go
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		RPCURL:         "https://api.mainnet-beta.solana.com",
		WebSocketURL:   "wss://api.mainnet-beta.solana.com",
		ProgramID:      "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
		TrackedWallet:  "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Policy:         "fixed",
		TakeProfitBps:  3500,
		StopLossBps:    -2500,
		TickMs:         1000,
		PollIntervalMs: 2000,
		PollLimit:      25,
		FetchRetries:   5,
		SlippageBps:    500,
		ComputeUnits:   120_000,
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc_url", func(c *Config) { c.RPCURL = "" }},
		{"rpc_url wrong scheme", func(c *Config) { c.RPCURL = "ftp://host" }},
		{"websocket wrong scheme", func(c *Config) { c.WebSocketURL = "http://host" }},
		{"missing program_id", func(c *Config) { c.ProgramID = "" }},
		{"malformed program_id", func(c *Config) { c.ProgramID = "not-base58!" }},
		{"malformed tracked_wallet", func(c *Config) { c.TrackedWallet = "xyz" }},
		{"live without key", func(c *Config) { c.Live = true; c.PrivateKey = "" }},
		{"fixed policy without take profit", func(c *Config) { c.TakeProfitBps = 0 }},
		{"fixed policy with positive stop loss", func(c *Config) { c.StopLossBps = 100 }},
		{"unknown policy", func(c *Config) { c.Policy = "martingale" }},
		{"trailing out of range", func(c *Config) { c.Policy = "trailing"; c.TrailingBps = 10_000 }},
		{"zero tick", func(c *Config) { c.TickMs = 0 }},
		{"negative min hold", func(c *Config) { c.MinHoldMs = -1 }},
		{"zero poll interval", func(c *Config) { c.PollIntervalMs = 0 }},
		{"zero poll limit", func(c *Config) { c.PollLimit = 0 }},
		{"zero fetch retries", func(c *Config) { c.FetchRetries = 0 }},
		{"slippage out of range", func(c *Config) { c.SlippageBps = 10_000 }},
		{"zero compute units", func(c *Config) { c.ComputeUnits = 0 }},
		{"auto_buy without amount", func(c *Config) { c.AutoBuy = true; c.BuyAmountSOL = 0 }},
		{"bundle endpoint without tip account", func(c *Config) { c.BundleEndpoint = "https://relay" }},
		{"malformed bundle tip account", func(c *Config) {
			c.BundleEndpoint = "https://relay"
			c.BundleTipAccount = "nope"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_TrailingPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Policy = "trailing"
	cfg.TrailingBps = 3000
	cfg.TakeProfitBps = 0 // not required under trailing
	cfg.StopLossBps = 0
	assert.NoError(t, Validate(cfg))
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{TickMs: 1500, MinHoldMs: 3000, PollIntervalMs: 2000, FetchBackoffMs: 500, BuyCooldownMs: 5000, ShutdownGraceSec: 10}
	assert.Equal(t, "1.5s", cfg.TickInterval().String())
	assert.Equal(t, "3s", cfg.MinHold().String())
	assert.Equal(t, "2s", cfg.PollInterval().String())
	assert.Equal(t, "500ms", cfg.FetchBackoff().String())
	assert.Equal(t, "5s", cfg.BuyCooldown().String())
	assert.Equal(t, "10s", cfg.ShutdownGrace().String())
}
