package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgtype"
	shopspring "github.com/jackc/pgtype/ext/shopspring-numeric"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
)

const stagingTable = "candlesticks_staging"

var stagingColumns = []string{
	"open_time", "close_time", "open", "high", "low", "close", "volume", "number_of_trades",
}

// CandlestickRepository handles database operations for candlesticks
type CandlestickRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCandlestickRepository creates a new candlestick repository
func NewCandlestickRepository(db *sqlx.DB, logger *zap.Logger) *CandlestickRepository {
	return &CandlestickRepository{
		db:     db,
		logger: logger,
	}
}

// LastCloseTime returns the greatest stored close time of a trading pair
func (r *CandlestickRepository) LastCloseTime(ctx context.Context, tradingPairID int64) (int64, bool, error) {
	var last sql.NullInt64
	err := r.db.GetContext(ctx, &last,
		`SELECT MAX(close_time) FROM candlesticks WHERE trading_pair_id = $1`, tradingPairID)
	if err != nil {
		r.logger.Error("Failed to get last close time",
			zap.Error(err),
			zap.Int64("trading_pair_id", tradingPairID))
		return 0, false, err
	}

	return last.Int64, last.Valid, nil
}

// BulkAppend copies candles into a staging table and moves them into candlesticks,
// skipping open times that already exist. The whole batch commits or rolls back together.
func (r *CandlestickRepository) BulkAppend(ctx context.Context, tradingPairID int64, candles []model.Candlestick) (int64, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		r.logger.Error("Failed to acquire connection", zap.Error(err))
		return 0, err
	}
	defer conn.Close()

	var inserted int64
	err = conn.Raw(func(driverConn interface{}) error {
		pgxConn := driverConn.(*stdlib.Conn).Conn()

		tx, err := pgxConn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx, `
			CREATE TEMP TABLE `+stagingTable+` (
				open_time BIGINT NOT NULL,
				close_time BIGINT NOT NULL,
				open NUMERIC NOT NULL,
				high NUMERIC NOT NULL,
				low NUMERIC NOT NULL,
				close NUMERIC NOT NULL,
				volume NUMERIC NOT NULL,
				number_of_trades BIGINT NOT NULL
			) ON COMMIT DROP
		`)
		if err != nil {
			return fmt.Errorf("failed to create staging table: %w", err)
		}

		rows := make([][]interface{}, len(candles))
		for i, c := range candles {
			rows[i] = []interface{}{
				c.OpenTime,
				c.CloseTime,
				numeric(c.Open),
				numeric(c.High),
				numeric(c.Low),
				numeric(c.Close),
				numeric(c.Volume),
				c.NumberOfTrades,
			}
		}

		copied, err := tx.CopyFrom(ctx, pgx.Identifier{stagingTable}, stagingColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy candlesticks: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO candlesticks (
				trading_pair_id, open_time, close_time, timestamp,
				open, high, low, close, volume, number_of_trades
			)
			SELECT $1, open_time, close_time, to_timestamp(open_time / 1000.0),
				open, high, low, close, volume, number_of_trades
			FROM `+stagingTable+`
			ORDER BY open_time
			ON CONFLICT (trading_pair_id, open_time) DO NOTHING
		`, tradingPairID)
		if err != nil {
			return fmt.Errorf("failed to insert candlesticks: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit candlesticks: %w", err)
		}

		inserted = tag.RowsAffected()
		r.logger.Debug("Bulk appended candlesticks",
			zap.Int64("trading_pair_id", tradingPairID),
			zap.Int64("copied", copied),
			zap.Int64("inserted", inserted))
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to bulk append candlesticks",
			zap.Error(err),
			zap.Int64("trading_pair_id", tradingPairID),
			zap.Int("count", len(candles)))
		return 0, err
	}

	return inserted, nil
}

// GetCandlesticks returns the stored candles matching q ordered by open time
func (r *CandlestickRepository) GetCandlesticks(ctx context.Context, q model.CandlestickQuery) ([]model.Candlestick, error) {
	query := `
		SELECT c.trading_pair_id, c.open_time, c.close_time, c.open, c.high, c.low, c.close,
			c.volume, c.number_of_trades
		FROM candlesticks c
		JOIN trading_pairs tp ON tp.id = c.trading_pair_id
		JOIN sources s ON s.id = tp.source_id
		WHERE tp.symbol = $1 AND tp."interval" = $2 AND s.name = $3
	`

	args := []interface{}{q.Symbol, q.Interval, q.Source}
	argCount := 4

	if q.From != nil {
		query += fmt.Sprintf(" AND c.open_time >= $%d", argCount)
		args = append(args, *q.From)
		argCount++
	}

	if q.To != nil {
		query += fmt.Sprintf(" AND c.open_time <= $%d", argCount)
		args = append(args, *q.To)
	}

	query += " ORDER BY c.open_time"

	candles := []model.Candlestick{}
	if err := r.db.SelectContext(ctx, &candles, query, args...); err != nil {
		r.logger.Error("Failed to get candlesticks",
			zap.Error(err),
			zap.String("symbol", q.Symbol),
			zap.String("interval", q.Interval))
		return nil, err
	}

	return candles, nil
}

// CountCandlesticks returns the number of stored candles of a trading pair
func (r *CandlestickRepository) CountCandlesticks(ctx context.Context, tradingPairID int64) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM candlesticks WHERE trading_pair_id = $1`, tradingPairID)
	if err != nil {
		r.logger.Error("Failed to count candlesticks",
			zap.Error(err),
			zap.Int64("trading_pair_id", tradingPairID))
		return 0, err
	}

	return count, nil
}

func numeric(d decimal.Decimal) *shopspring.Numeric {
	return &shopspring.Numeric{Decimal: d, Status: pgtype.Present}
}
