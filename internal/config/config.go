// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

type Config struct {
	RPCURL       string `mapstructure:"rpc_url"`
	WebSocketURL string `mapstructure:"websocket_url"`

	// Program and wallet under observation.
	ProgramID     string `mapstructure:"program_id"`
	TrackedWallet string `mapstructure:"tracked_wallet"`
	PrivateKey    string `mapstructure:"private_key"`

	// Detection.
	PollIntervalMs int  `mapstructure:"poll_interval_ms"`
	PollLimit      int  `mapstructure:"poll_limit"`
	ForcePolling   bool `mapstructure:"force_polling"`
	FetchRetries   int  `mapstructure:"fetch_retries"`
	FetchBackoffMs int  `mapstructure:"fetch_backoff_ms"`

	// Exit policy.
	Policy        string `mapstructure:"policy"` // "fixed" or "trailing"
	TakeProfitBps int64  `mapstructure:"take_profit_bps"`
	StopLossBps   int64  `mapstructure:"stop_loss_bps"` // negative, e.g. -2500
	TrailingBps   int64  `mapstructure:"trailing_bps"`
	MinHoldMs     int    `mapstructure:"min_hold_ms"`
	TickMs        int    `mapstructure:"tick_ms"`

	// Simulation-only auxiliary exits.
	Live             bool  `mapstructure:"live"`
	MaxHoldMs        int   `mapstructure:"max_hold_ms"`
	FlatWindowMs     int   `mapstructure:"flat_window_ms"`
	FlatThresholdBps int64 `mapstructure:"flat_threshold_bps"`
	NoFlowWindowMs   int   `mapstructure:"no_flow_window_ms"`
	NoFlowFloor      int64 `mapstructure:"no_flow_floor_lamports"`

	// Submission.
	SlippageBps       int64   `mapstructure:"slippage_bps"`
	ComputeUnits      uint32  `mapstructure:"compute_units"`
	PriorityFeeSOL    float64 `mapstructure:"priority_fee_sol"`
	BundleEndpoint    string  `mapstructure:"bundle_endpoint"`
	BundleTipAccount  string  `mapstructure:"bundle_tip_account"`
	BundleTipLamports uint64  `mapstructure:"bundle_tip_lamports"`

	// Entries.
	AutoBuy        bool    `mapstructure:"auto_buy"`
	BuyAmountSOL   float64 `mapstructure:"buy_amount_sol"`
	BuyCooldownMs  int     `mapstructure:"buy_cooldown_ms"`
	MaxCreatorUses int     `mapstructure:"max_creator_uses"`

	// Process control.
	PostgresURL      string `mapstructure:"postgres_url"`
	AutoShutdownMin  int    `mapstructure:"auto_shutdown_minutes"`
	ShutdownGraceSec int    `mapstructure:"shutdown_grace_seconds"`
	DebugLogging     bool   `mapstructure:"debug_logging"`
	LogFile          string `mapstructure:"log_file"`
}

const (
	DefaultPollIntervalMs = 2000
	DefaultPollLimit      = 25
	DefaultFetchRetries   = 5
	DefaultFetchBackoffMs = 500
	DefaultTickMs         = 1000
	DefaultMinHoldMs      = 3000
	DefaultComputeUnits   = 120_000
	DefaultSlippageBps    = 500
	DefaultBuyCooldownMs  = 5000
	DefaultGraceSec       = 10
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"poll_interval_ms":       DefaultPollIntervalMs,
		"poll_limit":             DefaultPollLimit,
		"fetch_retries":          DefaultFetchRetries,
		"fetch_backoff_ms":       DefaultFetchBackoffMs,
		"tick_ms":                DefaultTickMs,
		"min_hold_ms":            DefaultMinHoldMs,
		"compute_units":          DefaultComputeUnits,
		"slippage_bps":           DefaultSlippageBps,
		"buy_cooldown_ms":        DefaultBuyCooldownMs,
		"shutdown_grace_seconds": DefaultGraceSec,
		"policy":                 "fixed",
		"log_file":               "logs/pumpsentry.log",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("PUMPSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Secrets are taken from the environment when present so the config
	// file never has to carry them.
	if env := v.GetString("PRIVATE_KEY"); env != "" {
		cfg.PrivateKey = env
	}
	if env := v.GetString("POSTGRES_URL"); env != "" {
		cfg.PostgresURL = env
	}

	return &cfg, Validate(&cfg)
}

// Validate is fatal at startup: the process must not run on a config it
// cannot honor.
func Validate(cfg *Config) error {
	if cfg.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if err := validateURL(cfg.RPCURL, "http"); err != nil {
		return fmt.Errorf("invalid rpc_url: %w", err)
	}
	if cfg.WebSocketURL != "" {
		if err := validateURL(cfg.WebSocketURL, "ws"); err != nil {
			return fmt.Errorf("invalid websocket_url: %w", err)
		}
	}
	if cfg.ProgramID == "" {
		return errors.New("program_id is required")
	}
	if _, err := solana.PublicKeyFromBase58(cfg.ProgramID); err != nil {
		return fmt.Errorf("invalid program_id: %w", err)
	}
	if cfg.TrackedWallet != "" {
		if _, err := solana.PublicKeyFromBase58(cfg.TrackedWallet); err != nil {
			return fmt.Errorf("invalid tracked_wallet: %w", err)
		}
	}
	if cfg.Live && cfg.PrivateKey == "" {
		return errors.New("private_key is required in live mode")
	}
	switch cfg.Policy {
	case "fixed":
		if cfg.TakeProfitBps <= 0 {
			return errors.New("take_profit_bps must be positive for the fixed policy")
		}
		if cfg.StopLossBps >= 0 {
			return errors.New("stop_loss_bps must be negative for the fixed policy")
		}
	case "trailing":
		if cfg.TrailingBps <= 0 || cfg.TrailingBps >= 10_000 {
			return errors.New("trailing_bps must be in (0, 10000)")
		}
	default:
		return fmt.Errorf("unknown policy %q", cfg.Policy)
	}
	if cfg.TickMs <= 0 {
		return errors.New("invalid tick_ms")
	}
	if cfg.MinHoldMs < 0 {
		return errors.New("invalid min_hold_ms")
	}
	if cfg.PollIntervalMs <= 0 {
		return errors.New("invalid poll_interval_ms")
	}
	if cfg.PollLimit <= 0 {
		return errors.New("invalid poll_limit")
	}
	if cfg.FetchRetries <= 0 {
		return errors.New("invalid fetch_retries")
	}
	if cfg.SlippageBps < 0 || cfg.SlippageBps >= 10_000 {
		return errors.New("slippage_bps must be in [0, 10000)")
	}
	if cfg.ComputeUnits == 0 {
		return errors.New("compute_units must be positive")
	}
	if cfg.AutoBuy && cfg.BuyAmountSOL <= 0 {
		return errors.New("buy_amount_sol must be positive when auto_buy is enabled")
	}
	if cfg.BundleEndpoint != "" {
		if err := validateURL(cfg.BundleEndpoint, "http"); err != nil {
			return fmt.Errorf("invalid bundle_endpoint: %w", err)
		}
		if cfg.BundleTipAccount == "" {
			return errors.New("bundle_tip_account is required when bundle_endpoint is set")
		}
		if _, err := solana.PublicKeyFromBase58(cfg.BundleTipAccount); err != nil {
			return fmt.Errorf("invalid bundle_tip_account: %w", err)
		}
	}
	return nil
}

func (c *Config) TickInterval() time.Duration { return time.Duration(c.TickMs) * time.Millisecond }
func (c *Config) MinHold() time.Duration      { return time.Duration(c.MinHoldMs) * time.Millisecond }
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
func (c *Config) FetchBackoff() time.Duration {
	return time.Duration(c.FetchBackoffMs) * time.Millisecond
}
func (c *Config) BuyCooldown() time.Duration { return time.Duration(c.BuyCooldownMs) * time.Millisecond }
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSec) * time.Second
}

func validateURL(raw, scheme string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, scheme) {
		return fmt.Errorf("URL scheme must start with %q", scheme)
	}
	return nil
}
