// Package store persists users, subscriptions, alerts and screening
// schedules in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"trading-advisor-bot/config"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates the connection pool and verifies connectivity.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations creates or updates the schema.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			chat_id BIGINT PRIMARY KEY,
			username VARCHAR(100),
			tier VARCHAR(10) NOT NULL DEFAULT 'free',
			enabled BOOLEAN NOT NULL DEFAULT true,
			tier_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_enabled ON users(enabled)`,

		`CREATE TABLE IF NOT EXISTS user_preferences (
			chat_id BIGINT NOT NULL REFERENCES users(chat_id) ON DELETE CASCADE,
			key VARCHAR(50) NOT NULL,
			value VARCHAR(200) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chat_id, key)
		)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id SERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL REFERENCES users(chat_id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(5) NOT NULL DEFAULT '4h',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (chat_id, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_chat ON subscriptions(chat_id)`,

		`CREATE TABLE IF NOT EXISTS subscription_history (
			id SERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			action VARCHAR(12) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS price_alerts (
			id SERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL REFERENCES users(chat_id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			target_price DECIMAL(20, 8) NOT NULL,
			triggered BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			triggered_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_alerts_pending ON price_alerts(triggered) WHERE triggered = false`,

		`CREATE TABLE IF NOT EXISTS screening_schedules (
			id SERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL REFERENCES users(chat_id) ON DELETE CASCADE,
			timeframe VARCHAR(5) NOT NULL,
			interval_minutes INTEGER NOT NULL,
			min_score DECIMAL(5, 2) NOT NULL DEFAULT 60,
			enabled BOOLEAN NOT NULL DEFAULT true,
			last_run TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (chat_id, timeframe)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_screening_schedules_enabled ON screening_schedules(enabled)`,

		`CREATE TABLE IF NOT EXISTS user_features (
			chat_id BIGINT NOT NULL REFERENCES users(chat_id) ON DELETE CASCADE,
			feature VARCHAR(50) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chat_id, feature)
		)`,

		`CREATE TABLE IF NOT EXISTS signal_history (
			id SERIAL PRIMARY KEY,
			plan_id VARCHAR(40) NOT NULL,
			chat_id BIGINT NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(5) NOT NULL,
			signal VARCHAR(10) NOT NULL,
			confidence DECIMAL(4, 3) NOT NULL DEFAULT 0,
			entry_price DECIMAL(20, 8),
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			current_price DECIMAL(20, 8) NOT NULL,
			scalp BOOLEAN NOT NULL DEFAULT false,
			outcome VARCHAR(10) NOT NULL DEFAULT 'pending',
			actual_outcome DECIMAL(10, 4),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_history_chat ON signal_history(chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_history_symbol ON signal_history(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_history_outcome ON signal_history(outcome)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("statements", len(migrations)).Msg("migrations complete")
	return nil
}
