// ./internal/store/db.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY,
			user_wallet VARCHAR(64) NOT NULL,
			pool_address VARCHAR(64) NOT NULL,
			protocol VARCHAR(16) NOT NULL,
			token_a_symbol VARCHAR(32) NOT NULL DEFAULT '',
			token_b_symbol VARCHAR(32) NOT NULL DEFAULT '',
			token_a_mint VARCHAR(64) NOT NULL DEFAULT '',
			token_b_mint VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(16) NOT NULL DEFAULT 'ACTIVE',
			frozen BOOLEAN NOT NULL DEFAULT FALSE,
			strategy_name VARCHAR(64) NOT NULL DEFAULT 'balanced',

			entry_timestamp TIMESTAMPTZ NOT NULL,
			entry_price_a DECIMAL(38, 18) NOT NULL,
			entry_price_b DECIMAL(38, 18) NOT NULL,
			entry_amount_a DECIMAL(38, 18) NOT NULL,
			entry_amount_b DECIMAL(38, 18) NOT NULL,
			entry_value_usd DECIMAL(38, 18) NOT NULL,
			entry_lp_tokens DECIMAL(38, 18) NOT NULL DEFAULT 0,
			entry_tx_hash VARCHAR(128) NOT NULL,
			entry_risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			entry_apy DOUBLE PRECISION NOT NULL DEFAULT 0,
			fee_tier DOUBLE PRECISION NOT NULL DEFAULT 0,
			gas_spent_usd DECIMAL(38, 18) NOT NULL DEFAULT 0,

			exit_timestamp TIMESTAMPTZ,
			exit_price_a DECIMAL(38, 18),
			exit_price_b DECIMAL(38, 18),
			exit_amount_a DECIMAL(38, 18),
			exit_amount_b DECIMAL(38, 18),
			exit_value_usd DECIMAL(38, 18),
			exit_tx_hash VARCHAR(128),
			exit_reason VARCHAR(32),
			realized_pnl_usd DECIMAL(38, 18),

			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,

			-- Exit fields are all-or-nothing with the terminal status.
			CONSTRAINT chk_positions_exit_all_or_nothing CHECK (
				(status = 'ACTIVE' AND exit_timestamp IS NULL AND exit_tx_hash IS NULL AND exit_reason IS NULL)
				OR
				(status IN ('CLOSED', 'LIQUIDATED') AND exit_timestamp IS NOT NULL AND exit_tx_hash IS NOT NULL AND exit_reason IS NOT NULL)
			)
		);
		CREATE INDEX IF NOT EXISTS idx_positions_wallet ON positions(user_wallet);
		CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
		CREATE INDEX IF NOT EXISTS idx_positions_pool ON positions(pool_address);

		CREATE TABLE IF NOT EXISTS position_snapshots (
			snapshot_id BIGSERIAL PRIMARY KEY,
			position_id UUID NOT NULL REFERENCES positions(id),
			tick_number INTEGER NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL,

			price_a DECIMAL(38, 18) NOT NULL,
			price_b DECIMAL(38, 18) NOT NULL,
			amount_a DECIMAL(38, 18) NOT NULL,
			amount_b DECIMAL(38, 18) NOT NULL,
			value_usd DECIMAL(38, 18) NOT NULL,
			value_if_held_usd DECIMAL(38, 18) NOT NULL,
			il_percent DECIMAL(38, 18) NOT NULL,
			il_usd DECIMAL(38, 18) NOT NULL,
			fees_earned_usd DECIMAL(38, 18) NOT NULL,
			net_pnl_usd DECIMAL(38, 18) NOT NULL,
			net_pnl_percent DECIMAL(38, 18) NOT NULL,

			pool_tvl_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			pool_volume_24h_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
			pool_apy DOUBLE PRECISION NOT NULL DEFAULT 0,
			undefined BOOLEAN NOT NULL DEFAULT FALSE,

			CONSTRAINT uq_position_snapshots_position_time UNIQUE (position_id, snapshot_timestamp)
		);
		CREATE INDEX IF NOT EXISTS idx_position_snapshots_position ON position_snapshots(position_id, snapshot_timestamp DESC);

		CREATE TABLE IF NOT EXISTS risk_analyses (
			analysis_id BIGSERIAL PRIMARY KEY,
			pool_address VARCHAR(64) NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL,
			overall_score DOUBLE PRECISION NOT NULL,
			rating VARCHAR(16) NOT NULL,
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			liquidity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			concentration_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			token_signal_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume_velocity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			age_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			degen_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			rug_risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			il_risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			volatility_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
			sustainability_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			red_flags TEXT[],

			CONSTRAINT uq_risk_analyses_pool_time UNIQUE (pool_address, computed_at)
		);
		CREATE INDEX IF NOT EXISTS idx_risk_analyses_pool ON risk_analyses(pool_address, computed_at DESC);

		CREATE TABLE IF NOT EXISTS strategies (
			strategy_id SERIAL PRIMARY KEY,
			name VARCHAR(64) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			entry_rules JSONB NOT NULL,
			exit_rules JSONB NOT NULL,
			sizing JSONB NOT NULL,
			limits JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT uq_strategies_name_version UNIQUE (name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_strategies_name_active ON strategies(name, is_active, activated_at DESC);

		-- Tick counter table for persistent global tick tracking
		CREATE TABLE IF NOT EXISTS tick_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_tick INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO tick_counter (id, current_tick)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
