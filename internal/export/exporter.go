package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/service"
)

// Supported export formats
const (
	FormatParquet = "parquet"
	FormatJSON    = "json"
)

// CandlestickQuerier returns candles at a requested interval
type CandlestickQuerier interface {
	GetCandlesticks(ctx context.Context, symbol, target string, opts service.QueryOptions) ([]model.Candlestick, error)
}

// Request selects the candles of one snapshot
type Request struct {
	Symbol   string
	Interval string
	Source   string
	From     *int64
	To       *int64
	Format   string
}

// Result describes a written snapshot
type Result struct {
	Key      string
	Location string
	Format   string
	Rows     int
}

// parquetRow keeps prices as decimal strings so no precision is lost
type parquetRow struct {
	OpenTime       int64  `parquet:"open_time"`
	CloseTime      int64  `parquet:"close_time"`
	Open           string `parquet:"open"`
	High           string `parquet:"high"`
	Low            string `parquet:"low"`
	Close          string `parquet:"close"`
	Volume         string `parquet:"volume"`
	NumberOfTrades int64  `parquet:"number_of_trades"`
}

// Exporter writes aggregated candle snapshots to storage
type Exporter struct {
	querier       CandlestickQuerier
	storage       Storage
	defaultFormat string
	now           func() time.Time
	logger        *zap.Logger
}

// NewExporter creates a new exporter
func NewExporter(querier CandlestickQuerier, storage Storage, defaultFormat string, logger *zap.Logger) *Exporter {
	if defaultFormat == "" {
		defaultFormat = FormatParquet
	}
	return &Exporter{
		querier:       querier,
		storage:       storage,
		defaultFormat: defaultFormat,
		now:           time.Now,
		logger:        logger,
	}
}

// Export aggregates the requested candles and stores them as one snapshot
func (e *Exporter) Export(ctx context.Context, req Request) (*Result, error) {
	format := req.Format
	if format == "" {
		format = e.defaultFormat
	}

	candles, err := e.querier.GetCandlesticks(ctx, req.Symbol, req.Interval, service.QueryOptions{
		Source: req.Source,
		From:   req.From,
		To:     req.To,
	})
	if err != nil {
		return nil, err
	}

	var (
		buf         bytes.Buffer
		contentType string
	)
	switch format {
	case FormatParquet:
		if err := parquet.Write(&buf, toParquetRows(candles)); err != nil {
			return nil, fmt.Errorf("failed to encode parquet: %w", err)
		}
		contentType = "application/vnd.apache.parquet"
	case FormatJSON:
		if err := json.NewEncoder(&buf).Encode(model.ToResponse(candles)); err != nil {
			return nil, fmt.Errorf("failed to encode json: %w", err)
		}
		contentType = "application/json"
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}

	source := req.Source
	if source == "" {
		source = "default"
	}
	key := fmt.Sprintf("%s/%s/%s/%s-%s.%s",
		strings.ToLower(source),
		strings.ToUpper(req.Symbol),
		req.Interval,
		e.now().UTC().Format("20060102T150405Z"),
		uuid.NewString()[:8],
		format)

	location, err := e.storage.Put(ctx, key, &buf, contentType)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Exported candlesticks",
		zap.String("symbol", req.Symbol),
		zap.String("interval", req.Interval),
		zap.String("format", format),
		zap.Int("rows", len(candles)),
		zap.String("location", location))

	return &Result{
		Key:      key,
		Location: location,
		Format:   format,
		Rows:     len(candles),
	}, nil
}

func toParquetRows(candles []model.Candlestick) []parquetRow {
	rows := make([]parquetRow, len(candles))
	for i, c := range candles {
		rows[i] = parquetRow{
			OpenTime:       c.OpenTime,
			CloseTime:      c.CloseTime,
			Open:           c.Open.String(),
			High:           c.High.String(),
			Low:            c.Low.String(),
			Close:          c.Close.String(),
			Volume:         c.Volume.String(),
			NumberOfTrades: c.NumberOfTrades,
		}
	}
	return rows
}
