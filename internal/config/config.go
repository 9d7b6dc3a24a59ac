// Package config loads process configuration from the environment, with
// getEnv* helpers falling back to sane defaults when a variable is unset.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full process configuration surface.
type Config struct {
	Debug bool

	MarketData MarketDataConfig
	Market     MarketHoursConfig
	Risk       RiskDefaults
	Scheduler  SchedulerConfig
	Broker     BrokerConfig
	Database   DatabaseConfig
	Telegram   TelegramConfig
}

// MarketDataConfig controls the broker adapter variant and subscription set.
type MarketDataConfig struct {
	Mode    string // STUB | PAPER; the LIVE adapter is selected by Broker.LiveTradingOn, not by Mode
	Symbols []string
}

// MarketHoursConfig controls the §4.6 check 7 gate.
type MarketHoursConfig struct {
	CheckEnabled    bool
	AllowedSessions []string // subset of REGULAR, PRE_MARKET, AFTER_HOURS_CLOSING, AFTER_HOURS
	PublicHolidays  []string // "2006-01-02" dates
}

// RiskDefaults seeds the GLOBAL-scope RiskRule, built in memory at every
// startup.
type RiskDefaults struct {
	MaxPositionValuePerSymbol  decimal.Decimal
	MaxOpenOrders              int
	MaxOrdersPerMinute         int
	DailyLossLimit             decimal.Decimal
	ConsecutiveOrderFailures   int
	ShortingAllowed            bool
}

// SchedulerConfig controls C10 and the outbox publisher cadence.
type SchedulerConfig struct {
	StrategyExecutionEnabled bool
	StrategyExecutionCron    string
	OutboxFixedDelay         time.Duration
	EvalTimeout              time.Duration
	WorkerPoolSize           int
}

// BrokerConfig controls C1's token lifecycle and retry policy.
type BrokerConfig struct {
	TokenRefreshLead time.Duration
	LiveTradingOn    bool // compile/config-time gate; must default false
}

// DatabaseConfig selects the gorm driver.
type DatabaseConfig struct {
	Driver string // "postgres" | "sqlite"
	DSN    string
}

// TelegramConfig controls the optional outbox alert consumer.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// Load reads configuration from the environment, applying a .env file if
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Debug: getEnvBool("DEBUG", false),
		MarketData: MarketDataConfig{
			Mode:    getEnv("MARKET_DATA_MODE", "STUB"),
			Symbols: getEnvList("MARKET_DATA_SYMBOLS", []string{"AAPL", "MSFT"}),
		},
		Market: MarketHoursConfig{
			CheckEnabled:    getEnvBool("MARKET_CHECK_ENABLED", true),
			AllowedSessions: getEnvList("MARKET_ALLOWED_SESSIONS", []string{"REGULAR"}),
			PublicHolidays:  getEnvList("MARKET_PUBLIC_HOLIDAYS", nil),
		},
		Risk: RiskDefaults{
			MaxPositionValuePerSymbol: getEnvDecimal("RISK_GLOBAL_MAX_POSITION_VALUE", decimal.NewFromInt(1_000_000)),
			MaxOpenOrders:             getEnvInt("RISK_GLOBAL_MAX_OPEN_ORDERS", 20),
			MaxOrdersPerMinute:        getEnvInt("RISK_GLOBAL_MAX_ORDERS_PER_MINUTE", 10),
			DailyLossLimit:            getEnvDecimal("RISK_GLOBAL_DAILY_LOSS_LIMIT", decimal.NewFromInt(50_000)),
			ConsecutiveOrderFailures:  getEnvInt("RISK_GLOBAL_CONSECUTIVE_FAILURES", 5),
			ShortingAllowed:           getEnvBool("RISK_SHORTING_ALLOWED", false),
		},
		Scheduler: SchedulerConfig{
			StrategyExecutionEnabled: getEnvBool("SCHEDULER_STRATEGY_EXECUTION_ENABLED", true),
			StrategyExecutionCron:    getEnv("SCHEDULER_STRATEGY_EXECUTION_CRON", "* * * * *"),
			OutboxFixedDelay:         getEnvDuration("SCHEDULER_OUTBOX_PUBLISHER_FIXED_DELAY", 2*time.Second),
			EvalTimeout:              getEnvDuration("SCHEDULER_EVAL_TIMEOUT", 30*time.Second),
			WorkerPoolSize:           getEnvInt("SCHEDULER_WORKER_POOL_SIZE", 8),
		},
		Broker: BrokerConfig{
			TokenRefreshLead: getEnvDuration("BROKER_TOKEN_REFRESH_LEAD", 300_000*time.Millisecond),
			LiveTradingOn:    getEnvBool("BROKER_LIVE_TRADING_ENABLED", false),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "sqlite"),
			DSN:    getEnv("DATABASE_DSN", "tradingcore.db"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return fallback
}
