package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Instrument
	Symbol string

	// Mode
	DryRun  bool
	Debug   bool
	Relaxed bool // relaxed entry triggers, roughly triples trade frequency

	// Venue endpoints
	RestURL      string
	PublicWSURL  string
	PrivateWSURL string

	// API Credentials
	APIKey     string
	APISecret  string
	Passphrase string

	// Strategy
	EMAFastPeriod  int
	EMASlowPeriod  int
	Slippage       float64 // IOC limit offset, 0.002 = 0.2%
	FlowWindow     time.Duration
	MinTrades      int     // min trades in flow window for breakout
	MinNetNotional float64 // min net buy notional for breakout
	WhaleThreshold float64 // notional above which a trade is a whale print

	// Risk
	TradeCooldown time.Duration
	MaxLossPct    float64 // drawdown fraction of initial balance that halts trading
	RiskRatio     float64 // fraction of balance committed per trade
	Leverage      float64
	FixedSize     float64 // fallback order size when balance query fails

	// Reconciliation
	CalibrationInterval time.Duration

	// Observability
	MetricsAddr string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Instrument
		Symbol: getEnv("SYMBOL", "BTC-USDT-SWAP"),

		// Mode
		DryRun:  getEnvBool("DRY_RUN", true),
		Debug:   getEnvBool("DEBUG", false),
		Relaxed: getEnvBool("RELAXED_MODE", false),

		// Venue endpoints
		RestURL:      getEnv("VENUE_REST_URL", "https://www.okx.com"),
		PublicWSURL:  getEnv("VENUE_PUBLIC_WS_URL", "wss://ws.okx.com:8443/ws/v5/public"),
		PrivateWSURL: getEnv("VENUE_PRIVATE_WS_URL", "wss://ws.okx.com:8443/ws/v5/private"),

		// API Credentials
		APIKey:     os.Getenv("VENUE_API_KEY"),
		APISecret:  os.Getenv("VENUE_API_SECRET"),
		Passphrase: os.Getenv("VENUE_PASSPHRASE"),

		// Strategy
		EMAFastPeriod:  getEnvInt("EMA_FAST_PERIOD", 9),
		EMASlowPeriod:  getEnvInt("EMA_SLOW_PERIOD", 21),
		Slippage:       getEnvFloat("SLIPPAGE", 0.002),
		FlowWindow:     getEnvDuration("FLOW_WINDOW", 3*time.Second),
		MinTrades:      getEnvInt("MIN_TRADES", 20),
		MinNetNotional: getEnvFloat("MIN_NET_NOTIONAL", 10000),
		WhaleThreshold: getEnvFloat("WHALE_THRESHOLD", 5000),

		// Risk
		TradeCooldown: getEnvDuration("TRADE_COOLDOWN", 60*time.Second),
		MaxLossPct:    getEnvFloat("MAX_LOSS_PCT", 0.03),
		RiskRatio:     getEnvFloat("RISK_RATIO", 0.2),
		Leverage:      getEnvFloat("LEVERAGE", 10),
		FixedSize:     getEnvFloat("FIXED_SIZE", 1),

		// Reconciliation
		CalibrationInterval: getEnvDuration("CALIBRATION_INTERVAL", 60*time.Second),

		// Observability
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// Validate required fields
	if !cfg.DryRun {
		if cfg.APIKey == "" || cfg.APISecret == "" || cfg.Passphrase == "" {
			return nil, fmt.Errorf("VENUE_API_KEY, VENUE_API_SECRET and VENUE_PASSPHRASE are required for live trading")
		}
	}
	if cfg.EMAFastPeriod <= 0 || cfg.EMASlowPeriod <= 0 {
		return nil, fmt.Errorf("EMA periods must be positive")
	}
	if cfg.RiskRatio <= 0 || cfg.RiskRatio > 1 {
		return nil, fmt.Errorf("RISK_RATIO must be in (0, 1]")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
