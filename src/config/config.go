package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	ShutdownTimeout time.Duration

	LogLevel              string
	LogFile               string
	LogFormat             string
	RequestLoggingEnabled bool

	RateLimitEnabled bool
	RateLimitMax     int
	RateLimitWindow  time.Duration

	// MaxInFlight sheds requests beyond this many concurrent ones; 0 disables.
	MaxInFlight     int
	MaintenanceMode bool

	// LedgerDSN selects the SQLite ledger; empty keeps balances in memory.
	LedgerDSN string
	// DevMode registers the stub oracle setter and the faucet.
	DevMode bool

	BookCapacity       int
	EventQueueCapacity int

	// Warnings collects values that were ignored, for logging once the
	// logger exists.
	Warnings []string
}

func Default() Config {
	return Config{
		Port:                  "8080",
		ShutdownTimeout:       10 * time.Second,
		LogLevel:              "info",
		RequestLoggingEnabled: true,
		RateLimitEnabled:      true,
		RateLimitMax:          100,
		RateLimitWindow:       time.Second,
		BookCapacity:          1024,
		EventQueueCapacity:    600,
	}
}

// Load reads envPath (or ./.env when empty) if it exists, then overrides
// the defaults with environment variables.
func Load(envPath string) Config {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LedgerDSN = getEnv("LEDGER_DSN", cfg.LedgerDSN)

	cfg.RequestLoggingEnabled = os.Getenv("REQUEST_LOGGING_DISABLED") != "1"
	cfg.RateLimitEnabled = os.Getenv("RATE_LIMIT_DISABLED") != "1"
	cfg.DevMode = os.Getenv("DEV_MODE") == "1" || os.Getenv("DEV_MODE") == "true"
	cfg.MaintenanceMode = os.Getenv("MAINTENANCE_MODE") == "1"

	cfg.ShutdownTimeout = cfg.duration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.RateLimitWindow = cfg.duration("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	cfg.RateLimitMax = cfg.positiveInt("RATE_LIMIT_MAX", cfg.RateLimitMax)
	cfg.MaxInFlight = cfg.positiveInt("MAX_CONCURRENT_REQUESTS", cfg.MaxInFlight)
	cfg.BookCapacity = cfg.positiveInt("DEFAULT_BOOK_CAPACITY", cfg.BookCapacity)
	cfg.EventQueueCapacity = cfg.positiveInt("DEFAULT_EVENT_QUEUE_CAPACITY", cfg.EventQueueCapacity)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) duration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a positive duration, using %s", key, raw, def))
		return def
	}
	return parsed
}

func (c *Config) positiveInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a positive integer, using %d", key, raw, def))
		return def
	}
	return parsed
}
