package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Migration is one versioned schema change
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "create sources, trading_pairs and candlesticks",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS sources (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				type TEXT NOT NULL,
				description TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS trading_pairs (
				id BIGSERIAL PRIMARY KEY,
				symbol TEXT NOT NULL,
				"interval" TEXT NOT NULL,
				source_id BIGINT NOT NULL REFERENCES sources(id),
				type TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (symbol, "interval", source_id)
			)`,
			`CREATE TABLE IF NOT EXISTS candlesticks (
				trading_pair_id BIGINT NOT NULL REFERENCES trading_pairs(id) ON DELETE CASCADE,
				open_time BIGINT NOT NULL,
				close_time BIGINT NOT NULL,
				timestamp TIMESTAMPTZ NOT NULL,
				open NUMERIC NOT NULL,
				high NUMERIC NOT NULL,
				low NUMERIC NOT NULL,
				close NUMERIC NOT NULL,
				volume NUMERIC NOT NULL,
				number_of_trades BIGINT NOT NULL CHECK (number_of_trades >= 0),
				PRIMARY KEY (trading_pair_id, open_time)
			)`,
		},
	},
	{
		Version:     2,
		Description: "index candlesticks by timestamp and pairs by symbol",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_candlesticks_pair_timestamp ON candlesticks (trading_pair_id, timestamp)`,
			`CREATE INDEX IF NOT EXISTS idx_trading_pairs_symbol ON trading_pairs (symbol, source_id)`,
		},
	},
}

// Migrate applies every migration newer than the recorded schema version
func Migrate(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.GetContext(ctx, &current, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range pendingMigrations(current) {
		if err := applyMigration(ctx, db, m); err != nil {
			logger.Error("Migration failed",
				zap.Int("version", m.Version),
				zap.String("description", m.Description),
				zap.Error(err))
			return err
		}
		logger.Info("Applied migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description))
	}

	return nil
}

func pendingMigrations(current int) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending
}

func applyMigration(ctx context.Context, db *sqlx.DB, m Migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}

	return tx.Commit()
}
