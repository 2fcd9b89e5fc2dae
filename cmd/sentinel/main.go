package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/solyield/sentinel/internal/config"
	"github.com/solyield/sentinel/internal/logger"
	"github.com/solyield/sentinel/internal/marketdata"
	"github.com/solyield/sentinel/internal/monitor"
	"github.com/solyield/sentinel/internal/store"
	"github.com/solyield/sentinel/internal/web"
)

// main is the entry point for the sentinel position engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Sentinel Position Engine Starting...")

	// Initialize Database Connection
	dbCfg := store.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := store.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.CloseDB()
	if err := store.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Seed built-in strategy presets on first boot. Existing strategies are
	// never touched; operator edits live on as newer versions.
	seedPresetStrategies()

	// Exit intents leave through the webhook when one is configured,
	// otherwise they are only logged and counted.
	var notifier monitor.IntentNotifier
	if config.ExitIntentWebhookURL != "" {
		notifier = monitor.NewWebhookNotifier(config.ExitIntentWebhookURL)
		log.Info().Str("url", config.ExitIntentWebhookURL).Msg("Exit intents will be delivered via webhook")
	} else {
		notifier = monitor.LogNotifier{}
		log.Warn().Msg("EXIT_INTENT_WEBHOOK_URL not set, exit intents will only be logged")
	}

	// Both the web layer (entry evaluation) and the monitor read pool data
	// through the same client.
	quoter := marketdata.NewClient(config.MarketDataURL)

	// --- Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, notifier, quoter)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting sentinel API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 2. Create Monitor Instance with Dependency Injection ---
	log.Info().Msg("Creating monitor instance with dependency injection...")

	monitorConfig := monitor.Config{
		Quoter:          quoter,
		Notifier:        notifier,
		Interval:        time.Duration(config.MonitorIntervalSeconds) * time.Second,
		Workers:         int(config.MonitorWorkers),
		PositionTimeout: time.Duration(config.PositionTimeoutSeconds) * time.Second,
		DefaultStrategy: config.DefaultStrategyName,
	}

	monitorInstance, err := monitor.New(monitorConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create monitor instance")
	}

	log.Info().Msg("Monitor instance created successfully")

	// --- 3. Start Monitor Main Loop ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitorInstance.RunLoop(ctx)

	log.Info().Msg("Sentinel shut down")
}

// seedPresetStrategies inserts each built-in preset that has no version yet.
func seedPresetStrategies() {
	for _, preset := range config.PresetStrategies() {
		_, err := store.LoadActiveStrategy(preset.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrStrategyNotFound) {
			log.Fatal().Err(err).Str("strategy", preset.Name).Msg("Failed to check for existing strategy")
		}
		if _, err := store.SaveStrategy(preset); err != nil {
			log.Fatal().Err(err).Str("strategy", preset.Name).Msg("Failed to seed preset strategy")
		}
		log.Info().Str("strategy", preset.Name).Msg("Seeded preset strategy")
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
