// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool. It stays nil when persistence is disabled.
var DB *sql.DB

var ErrDBNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
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
		return ErrDBNotInitialized
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS portfolio_plans (
			plan_id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			risk_tolerance VARCHAR(16) NOT NULL,
			policy VARCHAR(64) NOT NULL,
			amount_usd DECIMAL(20, 2) NOT NULL,
			expected_apy DECIMAL(10, 4) NOT NULL,
			weighted_risk_score DECIMAL(10, 4) NOT NULL,
			risk_level VARCHAR(32) NOT NULL,
			confidence DECIMAL(10, 4) NOT NULL,
			protocols TEXT[],
			plan JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_portfolio_plans_created ON portfolio_plans(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_portfolio_plans_risk_level ON portfolio_plans(risk_level);

		CREATE TABLE IF NOT EXISTS metric_snapshots (
			row_id SERIAL PRIMARY KEY,
			refresh_id UUID NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			protocol_id VARCHAR(32) NOT NULL,
			apy DECIMAL(10, 4) NOT NULL,
			tvl_usd DECIMAL(24, 2) NOT NULL,
			risk_score DECIMAL(10, 4) NOT NULL,
			source VARCHAR(16) NOT NULL,
			tokens TEXT[]
		);
		CREATE INDEX IF NOT EXISTS idx_metric_snapshots_fetched ON metric_snapshots(fetched_at DESC);
		CREATE INDEX IF NOT EXISTS idx_metric_snapshots_protocol ON metric_snapshots(protocol_id, fetched_at DESC);

		CREATE TABLE IF NOT EXISTS yield_updates (
			update_id SERIAL PRIMARY KEY,
			cycle_id UUID NOT NULL,
			update_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			apy_bps BIGINT NOT NULL,
			previous_bps BIGINT NOT NULL,
			source VARCHAR(64) NOT NULL,
			status VARCHAR(16) NOT NULL,
			tx_hash VARCHAR(66),
			message TEXT,
			live_protocols INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_yield_updates_timestamp ON yield_updates(update_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_yield_updates_status ON yield_updates(status);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table owned by the service.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	dropTablesQuery := `
		DROP TABLE IF EXISTS portfolio_plans CASCADE;
		DROP TABLE IF EXISTS metric_snapshots CASCADE;
		DROP TABLE IF EXISTS yield_updates CASCADE;
	`
	if _, err := DB.Exec(dropTablesQuery); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return ErrDBNotInitialized
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

// clampLimit applies the listing bounds shared by every query.
func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10
	}
	return limit
}
