package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/timeframe"
)

const (
	// KlinesPageSize is the number of bars requested per page
	KlinesPageSize = 500

	callsBeforePause = 3
	pauseDuration    = time.Second
)

// KlineSource returns up to limit bars opening at or after startTime (epoch ms), ascending
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, startTime int64, limit int) ([]model.Candlestick, error)
}

// FetchStats describes one fetch loop
type FetchStats struct {
	Pages         int
	Fetched       int
	EmptyProbes   int
	Listed        bool
	FirstOpenTime int64
	LastOpenTime  int64
}

// KlineFetcher walks the paginated kline endpoint from a start timestamp up to now
type KlineFetcher struct {
	source   KlineSource
	pageSize int
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
}

// NewKlineFetcher creates a new kline fetcher
func NewKlineFetcher(source KlineSource, logger *zap.Logger) *KlineFetcher {
	return &KlineFetcher{
		source:   source,
		pageSize: KlinesPageSize,
		now:      time.Now,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// Fetch streams pages starting at startMs to emit, in ascending open time order.
//
// While the symbol has not returned any bar yet the cursor advances one interval
// per empty page, so a start date before the listing date is probed forward until
// the first bar appears or the cursor passes now. Once listed, the cursor moves to
// the last open time plus one interval and the loop ends on the first short page.
func (f *KlineFetcher) Fetch(
	ctx context.Context,
	symbol string,
	interval string,
	startMs int64,
	emit func([]model.Candlestick) error,
) (FetchStats, error) {
	return f.fetch(ctx, symbol, interval, startMs, false, emit)
}

// Resume is Fetch for a symbol already known to be listed: there is no probing,
// an empty or short page means the stored data has caught up.
func (f *KlineFetcher) Resume(
	ctx context.Context,
	symbol string,
	interval string,
	startMs int64,
	emit func([]model.Candlestick) error,
) (FetchStats, error) {
	return f.fetch(ctx, symbol, interval, startMs, true, emit)
}

func (f *KlineFetcher) fetch(
	ctx context.Context,
	symbol string,
	interval string,
	startMs int64,
	listed bool,
	emit func([]model.Candlestick) error,
) (FetchStats, error) {
	stats := FetchStats{Listed: listed}

	iv, err := timeframe.Parse(interval)
	if err != nil {
		return stats, err
	}
	width := iv.Milliseconds()
	if width <= 0 {
		return stats, fmt.Errorf("%w: interval %q has zero width", timeframe.ErrInvalidInterval, interval)
	}

	cursor := startMs
	for {
		if !stats.Listed && cursor > f.now().UnixMilli() {
			f.logger.Info("No data returned up to now, symbol not listed",
				zap.String("symbol", symbol),
				zap.String("interval", interval),
				zap.Int64("startTime", startMs),
				zap.Int("emptyPages", stats.EmptyProbes))
			break
		}

		if stats.Pages > 0 && stats.Pages%callsBeforePause == 0 {
			if err := f.sleep(ctx, pauseDuration); err != nil {
				return stats, err
			}
		}

		page, err := f.source.GetKlines(ctx, symbol, interval, cursor, f.pageSize)
		stats.Pages++
		if err != nil {
			return stats, fmt.Errorf("failed to fetch klines for %s/%s at %d: %w", symbol, interval, cursor, err)
		}

		if len(page) == 0 && !stats.Listed {
			stats.EmptyProbes++
			cursor += width
			continue
		}

		if len(page) > 0 {
			if stats.Fetched == 0 {
				stats.FirstOpenTime = page[0].OpenTime
			}
			if !stats.Listed {
				stats.Listed = true
				if stats.EmptyProbes > 0 {
					f.logger.Info("Symbol listed after start date",
						zap.String("symbol", symbol),
						zap.String("interval", interval),
						zap.Int64("firstOpenTime", page[0].OpenTime),
						zap.Int("emptyPages", stats.EmptyProbes))
				}
			}

			if err := emit(page); err != nil {
				return stats, err
			}
			stats.Fetched += len(page)
			stats.LastOpenTime = page[len(page)-1].OpenTime
			cursor = stats.LastOpenTime + width
		}

		if len(page) < f.pageSize {
			break
		}
	}

	return stats, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
