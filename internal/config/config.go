package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

const (
	defaultAppName         = "Avanomad"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultSessionTTL      = time.Hour
	defaultSweepInterval   = time.Minute
	defaultReplayTTL       = 5 * time.Minute
	defaultCallTimeout     = 15 * time.Second
	defaultSalt            = "avanomad-avalanche-wallet"
	defaultBootstrapPIN    = "0000"
	defaultTokenSymbol     = "USDC.e"
	defaultFiatCurrency    = "NGN"
	defaultTokenDecimals   = 6
	defaultWithdrawalBank  = "mock-bank"
	defaultRateLimit       = 30
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

var defaultTokens = map[string]string{
	"USDC.e": "0xA7D7079b0FEaD91F3e65f86E8915Cb59c1a4C664",
	"USDT.e": "0xc7198437980c041c805A1EDcbA50c1Ce5db95118",
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration

	SessionTTL    time.Duration
	SweepInterval time.Duration
	ReplayTTL     time.Duration
	CallTimeout   time.Duration

	WalletSalt     string
	BootstrapPIN   string
	TokenSymbol    string
	FiatCurrency   string
	ChainRPCURL    string
	TokenAddresses map[string]common.Address
	TokenDecimals  int32
	WithdrawalBank string
	RateLimit      int
}

// Load reads an optional .env file, then configuration values from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv populates a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		WalletSalt:     getEnv("WALLET_GENERATION_SALT", defaultSalt),
		BootstrapPIN:   getEnv("BOOTSTRAP_PIN", defaultBootstrapPIN),
		TokenSymbol:    getEnv("TOKEN_SYMBOL", defaultTokenSymbol),
		FiatCurrency:   getEnv("FIAT_CURRENCY", defaultFiatCurrency),
		ChainRPCURL:    os.Getenv("CHAIN_RPC_URL"),
		WithdrawalBank: getEnv("WITHDRAWAL_BANK", defaultWithdrawalBank),
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", defaultSessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = getDuration("SESSION_SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.ReplayTTL, err = getDuration("REPLAY_TTL", defaultReplayTTL); err != nil {
		return Config{}, err
	}
	if cfg.CallTimeout, err = getDuration("CALL_TIMEOUT", defaultCallTimeout); err != nil {
		return Config{}, err
	}

	decimals, err := getInt("TOKEN_DECIMALS", defaultTokenDecimals)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenDecimals = int32(decimals)
	if cfg.RateLimit, err = getInt("RATE_LIMIT_PER_MINUTE", defaultRateLimit); err != nil {
		return Config{}, err
	}

	if cfg.TokenAddresses, err = parseTokens(os.Getenv("TOKEN_ADDRESSES")); err != nil {
		return Config{}, err
	}
	if _, ok := cfg.TokenAddresses[cfg.TokenSymbol]; !ok && cfg.ChainRPCURL != "" {
		return Config{}, fmt.Errorf("TOKEN_ADDRESSES has no contract for %s", cfg.TokenSymbol)
	}

	if len(cfg.BootstrapPIN) != 4 {
		return Config{}, fmt.Errorf("BOOTSTRAP_PIN must be 4 digits")
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether in-memory fallbacks are allowed.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// parseTokens reads SYMBOL=0xADDR pairs separated by commas. Empty input selects the default contracts.
func parseTokens(raw string) (map[string]common.Address, error) {
	out := make(map[string]common.Address)
	if strings.TrimSpace(raw) == "" {
		for symbol, addr := range defaultTokens {
			out[symbol] = common.HexToAddress(addr)
		}
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		symbol, addr, ok := strings.Cut(strings.TrimSpace(pair), "=")
		symbol, addr = strings.TrimSpace(symbol), strings.TrimSpace(addr)
		if !ok || symbol == "" || !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid TOKEN_ADDRESSES entry %q", pair)
		}
		out[symbol] = common.HexToAddress(addr)
	}
	return out, nil
}
