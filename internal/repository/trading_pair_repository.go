package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
)

// TradingPairRepository handles database operations for sources and trading pairs
type TradingPairRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewTradingPairRepository creates a new trading pair repository
func NewTradingPairRepository(db *sqlx.DB, logger *zap.Logger) *TradingPairRepository {
	return &TradingPairRepository{
		db:     db,
		logger: logger,
	}
}

// GetOrCreateTradingPair upserts the source and the trading pair in one transaction and
// returns the pair id. Concurrent callers resolve to the same row through the unique constraints.
func (r *TradingPairRepository) GetOrCreateTradingPair(
	ctx context.Context,
	symbol string,
	interval string,
	source model.Source,
	assetType string,
) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return 0, err
	}
	defer tx.Rollback()

	var sourceID int64
	err = tx.GetContext(ctx, &sourceID, `
		INSERT INTO sources (name, type, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, source.Name, source.Type, source.Description)
	if err != nil {
		r.logger.Error("Failed to upsert source",
			zap.Error(err),
			zap.String("source", source.Name))
		return 0, fmt.Errorf("failed to upsert source %q: %w", source.Name, err)
	}

	var pairID int64
	err = tx.GetContext(ctx, &pairID, `
		INSERT INTO trading_pairs (symbol, "interval", source_id, type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, "interval", source_id) DO UPDATE SET symbol = EXCLUDED.symbol
		RETURNING id
	`, symbol, interval, sourceID, assetType)
	if err != nil {
		r.logger.Error("Failed to upsert trading pair",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("interval", interval))
		return 0, fmt.Errorf("failed to upsert trading pair %s/%s: %w", symbol, interval, err)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return 0, err
	}

	return pairID, nil
}

// AvailableIntervals returns the intervals of a symbol that have at least one stored candle
func (r *TradingPairRepository) AvailableIntervals(ctx context.Context, symbol, sourceName string) ([]string, error) {
	query := `
		SELECT tp."interval"
		FROM trading_pairs tp
		JOIN sources s ON s.id = tp.source_id
		WHERE tp.symbol = $1 AND s.name = $2
		  AND EXISTS (SELECT 1 FROM candlesticks c WHERE c.trading_pair_id = tp.id)
		ORDER BY tp."interval"
	`

	intervals := []string{}
	if err := r.db.SelectContext(ctx, &intervals, query, symbol, sourceName); err != nil {
		r.logger.Error("Failed to get available intervals",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("source", sourceName))
		return nil, err
	}

	return intervals, nil
}

// ListTradingPairs returns the trading pairs of a source, optionally filtered by symbols
func (r *TradingPairRepository) ListTradingPairs(ctx context.Context, sourceName string, symbols []string) ([]model.TradingPair, error) {
	query := `
		SELECT tp.id, tp.symbol, tp."interval", tp.source_id, s.name AS source_name, tp.type, tp.created_at
		FROM trading_pairs tp
		JOIN sources s ON s.id = tp.source_id
		WHERE ($1 = '' OR s.name = $1)
	`
	args := []interface{}{sourceName}

	if len(symbols) > 0 {
		query += " AND tp.symbol = ANY($2)"
		args = append(args, pq.Array(symbols))
	}

	query += ` ORDER BY tp.symbol, tp."interval"`

	pairs := []model.TradingPair{}
	if err := r.db.SelectContext(ctx, &pairs, query, args...); err != nil {
		r.logger.Error("Failed to list trading pairs",
			zap.Error(err),
			zap.String("source", sourceName))
		return nil, err
	}

	return pairs, nil
}
