package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yourorg/candlestick-service/internal/config"
)

// Connect opens the Postgres pool through the pgx driver and applies pool limits
func Connect(ctx context.Context, dbConfig config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	return db, nil
}
