package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// MonitorIntervalSeconds is the fixed tick interval of the monitor loop.
	MonitorIntervalSeconds uint64
	// MonitorWorkers bounds how many positions are evaluated concurrently per tick.
	MonitorWorkers uint64
	// PositionTimeoutSeconds is the per-position evaluation deadline within a tick.
	PositionTimeoutSeconds uint64

	// MarketDataURL is the base URL of the market data service.
	MarketDataURL string
	// ExitIntentWebhookURL receives emitted exit intents. Empty disables the
	// webhook; intents are then only logged and counted.
	ExitIntentWebhookURL string

	// DefaultStrategyName is the strategy evaluated for positions that do not
	// name one.
	DefaultStrategyName string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	MonitorIntervalSeconds, err = getEnvAsUint64("MONITOR_INTERVAL_SECONDS")
	if err != nil {
		return err
	}
	if MonitorIntervalSeconds == 0 {
		return errors.New("MONITOR_INTERVAL_SECONDS must be positive")
	}

	MonitorWorkers, err = getEnvAsUint64("MONITOR_WORKERS")
	if err != nil {
		return err
	}
	if MonitorWorkers == 0 {
		return errors.New("MONITOR_WORKERS must be positive")
	}

	PositionTimeoutSeconds, err = getEnvAsUint64("POSITION_TIMEOUT_SECONDS")
	if err != nil {
		return err
	}
	if PositionTimeoutSeconds == 0 {
		return errors.New("POSITION_TIMEOUT_SECONDS must be positive")
	}

	MarketDataURL, err = getEnv("MARKET_DATA_URL")
	if err != nil {
		return err
	}

	// Optional: no webhook means intents are logged only.
	ExitIntentWebhookURL = os.Getenv("EXIT_INTENT_WEBHOOK_URL")

	DefaultStrategyName = os.Getenv("DEFAULT_STRATEGY")
	if DefaultStrategyName == "" {
		DefaultStrategyName = "balanced"
	}

	log.Debug().
		Uint64("MonitorIntervalSeconds", MonitorIntervalSeconds).
		Uint64("MonitorWorkers", MonitorWorkers).
		Str("MarketDataURL", MarketDataURL).
		Str("DefaultStrategy", DefaultStrategyName).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}
