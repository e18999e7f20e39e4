// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

type Config struct {
	WebsocketURL         string   `mapstructure:"websocket_url"`
	FollowWallets        []string `mapstructure:"follow_wallets"`
	PrivateKey           string   `mapstructure:"private_key"`
	PostgresURL          string   `mapstructure:"postgres_url"`
	HeliusURL            string   `mapstructure:"helius_url"`
	HeliusKey            string   `mapstructure:"helius_key"`
	ZeroslotURL          string   `mapstructure:"zeroslot_url"`
	ZeroslotKey          string   `mapstructure:"zeroslot_key"`
	OrderSolAmount       float64  `mapstructure:"order_sol_amount"`
	SlippagePercent      float64  `mapstructure:"slippage_percent"`
	PositionClosePercent float64  `mapstructure:"position_close_percent"`
	SimulateMode         bool     `mapstructure:"simulate_mode"`
	DebugLogging         bool     `mapstructure:"debug_logging"`
}

const (
	DefaultSlippagePercent      = 10.0
	DefaultPositionClosePercent = 1.0
)

// LoadConfig reads the optional config file and overlays COPYBOT_* environment
// variables on top.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("slippage_percent", DefaultSlippagePercent)
	v.SetDefault("position_close_percent", DefaultPositionClosePercent)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.WebsocketURL == "" {
		return errors.New("missing websocket_url in configuration")
	}
	if err := validateURL(cfg.WebsocketURL, "ws"); err != nil {
		return errors.New("invalid websocket URL protocol")
	}
	if cfg.PrivateKey == "" {
		return errors.New("missing private_key in configuration")
	}
	if _, err := solana.PrivateKeyFromBase58(cfg.PrivateKey); err != nil {
		return errors.New("invalid private_key")
	}
	if cfg.PostgresURL == "" {
		return errors.New("missing postgres_url in configuration")
	}
	if cfg.HeliusURL == "" {
		return errors.New("missing helius_url in configuration")
	}
	if err := validateURL(cfg.HeliusURL, "http"); err != nil {
		return errors.New("invalid helius URL protocol")
	}
	if cfg.ZeroslotURL == "" && !cfg.SimulateMode {
		return errors.New("missing zeroslot_url in configuration")
	}
	if cfg.ZeroslotURL != "" {
		if err := validateURL(cfg.ZeroslotURL, "http"); err != nil {
			return errors.New("invalid zeroslot URL protocol")
		}
	}

	for _, wallet := range cfg.FollowWallets {
		if _, err := solana.PublicKeyFromBase58(wallet); err != nil {
			return fmt.Errorf("invalid follow wallet %q", wallet)
		}
	}

	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.OrderSolAmount <= 0 {
		return errors.New("invalid order_sol_amount")
	}
	if cfg.SlippagePercent < 0 {
		return errors.New("invalid slippage_percent")
	}
	// Percent units: a position is considered closed when less than this
	// share of it remains.
	if cfg.PositionClosePercent <= 0 || cfg.PositionClosePercent >= 100 {
		return errors.New("invalid position_close_percent")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("COPYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"WEBSOCKET_URL", "PRIVATE_KEY", "POSTGRES_URL",
		"HELIUS_URL", "HELIUS_KEY", "ZEROSLOT_URL", "ZEROSLOT_KEY",
	} {
		if value := v.GetString(key); value != "" {
			setString(cfg, key, value)
		}
	}

	if wallets := v.GetString("FOLLOW_WALLETS"); wallets != "" {
		var clean []string
		for _, wallet := range strings.Split(wallets, ",") {
			if trimmed := strings.TrimSpace(wallet); trimmed != "" {
				clean = append(clean, trimmed)
			}
		}
		if len(clean) > 0 {
			cfg.FollowWallets = clean
		}
	}

	if v.IsSet("SIMULATE_MODE") {
		cfg.SimulateMode = v.GetBool("SIMULATE_MODE")
	}
	if v.IsSet("ORDER_SOL_AMOUNT") && v.GetFloat64("ORDER_SOL_AMOUNT") > 0 {
		cfg.OrderSolAmount = v.GetFloat64("ORDER_SOL_AMOUNT")
	}
	if v.IsSet("SLIPPAGE_PERCENT") {
		cfg.SlippagePercent = v.GetFloat64("SLIPPAGE_PERCENT")
	}
	if v.IsSet("POSITION_CLOSE_PERCENT") {
		cfg.PositionClosePercent = v.GetFloat64("POSITION_CLOSE_PERCENT")
	}
}

func setString(cfg *Config, key, value string) {
	switch key {
	case "WEBSOCKET_URL":
		cfg.WebsocketURL = value
	case "PRIVATE_KEY":
		cfg.PrivateKey = value
	case "POSTGRES_URL":
		cfg.PostgresURL = value
	case "HELIUS_URL":
		cfg.HeliusURL = value
	case "HELIUS_KEY":
		cfg.HeliusKey = value
	case "ZEROSLOT_URL":
		cfg.ZeroslotURL = value
	case "ZEROSLOT_KEY":
		cfg.ZeroslotKey = value
	}
}
