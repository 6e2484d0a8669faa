package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/timeframe"
)

// TradingPairReader lists stored trading pairs and their populated intervals
type TradingPairReader interface {
	AvailableIntervals(ctx context.Context, symbol, sourceName string) ([]string, error)
	ListTradingPairs(ctx context.Context, sourceName string, symbols []string) ([]model.TradingPair, error)
}

// CandlestickReader reads stored candlesticks
type CandlestickReader interface {
	GetCandlesticks(ctx context.Context, q model.CandlestickQuery) ([]model.Candlestick, error)
}

// QueryOptions narrows a candlestick query. From and To are epoch ms open times.
type QueryOptions struct {
	Source string
	From   *int64
	To     *int64
}

// CandlestickService answers candlestick queries at arbitrary intervals
type CandlestickService struct {
	pairReader    TradingPairReader
	candleReader  CandlestickReader
	defaultSource string
	logger        *zap.Logger
}

// NewCandlestickService creates a new candlestick service
func NewCandlestickService(
	pairReader TradingPairReader,
	candleReader CandlestickReader,
	defaultSource string,
	logger *zap.Logger,
) *CandlestickService {
	return &CandlestickService{
		pairReader:    pairReader,
		candleReader:  candleReader,
		defaultSource: defaultSource,
		logger:        logger,
	}
}

// GetCandlesticks returns candles of symbol at the target interval, built from the
// coarsest stored interval that is not coarser than the target
func (s *CandlestickService) GetCandlesticks(ctx context.Context, symbol, target string, opts QueryOptions) ([]model.Candlestick, error) {
	iv, err := timeframe.Parse(target)
	if err != nil {
		return nil, err
	}
	if iv.Milliseconds() == 0 {
		return nil, fmt.Errorf("%w: %q has zero width", timeframe.ErrInvalidInterval, target)
	}
	if opts.From != nil && opts.To != nil && *opts.From > *opts.To {
		return nil, fmt.Errorf("start %d is after end %d", *opts.From, *opts.To)
	}

	symbol = strings.ToUpper(symbol)
	source := opts.Source
	if source == "" {
		source = s.defaultSource
	}

	available, err := s.pairReader.AvailableIntervals(ctx, symbol, source)
	if err != nil {
		return nil, fmt.Errorf("failed to get available intervals: %w", err)
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("%w: no data stored for %s on %s", timeframe.ErrNoSuitableInterval, symbol, source)
	}

	chosen, err := timeframe.SelectSourceInterval(available, target)
	if err != nil {
		return nil, err
	}

	// widen the window to whole target buckets
	width := iv.Milliseconds()
	query := model.CandlestickQuery{Symbol: symbol, Interval: chosen, Source: source}
	if opts.From != nil {
		from := timeframe.BucketStart(*opts.From, width)
		query.From = &from
	}
	if opts.To != nil {
		to := timeframe.BucketStart(*opts.To, width) + width - 1
		query.To = &to
	}

	candles, err := s.candleReader.GetCandlesticks(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get candlesticks: %w", err)
	}

	aggregated, err := timeframe.Aggregate(candles, iv)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Aggregated candlesticks",
		zap.String("symbol", symbol),
		zap.String("source", source),
		zap.String("stored_interval", chosen),
		zap.String("target_interval", target),
		zap.Int("stored", len(candles)),
		zap.Int("aggregated", len(aggregated)))

	return aggregated, nil
}

// AvailableIntervals returns the populated intervals of a symbol
func (s *CandlestickService) AvailableIntervals(ctx context.Context, symbol, source string) ([]string, error) {
	if source == "" {
		source = s.defaultSource
	}
	return s.pairReader.AvailableIntervals(ctx, strings.ToUpper(symbol), source)
}

// ListTradingPairs returns the trading pairs of a source
func (s *CandlestickService) ListTradingPairs(ctx context.Context, source string, symbols []string) ([]model.TradingPair, error) {
	if source == "" {
		source = s.defaultSource
	}
	for i := range symbols {
		symbols[i] = strings.ToUpper(symbols[i])
	}
	return s.pairReader.ListTradingPairs(ctx, source, symbols)
}
