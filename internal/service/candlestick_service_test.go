package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/repository"
	"github.com/yourorg/candlestick-service/internal/timeframe"
)

func seedStore(t *testing.T, store *repository.MemoryStore, symbol, interval string, width int64, closes []string) {
	t.Helper()
	ctx := context.Background()
	id, err := store.GetOrCreateTradingPair(ctx, symbol, interval, testSource, "crypto")
	require.NoError(t, err)

	candles := make([]model.Candlestick, len(closes))
	for i, c := range closes {
		price := decimal.RequireFromString(c)
		openTime := baseTime + int64(i)*width
		candles[i] = model.Candlestick{
			OpenTime:       openTime,
			CloseTime:      openTime + width - 1,
			Open:           price.Sub(decimal.NewFromInt(1)),
			High:           price.Add(decimal.NewFromInt(1)),
			Low:            price.Sub(decimal.NewFromInt(2)),
			Close:          price,
			Volume:         decimal.NewFromInt(1),
			NumberOfTrades: 2,
		}
	}
	_, err = store.BulkAppend(ctx, id, candles)
	require.NoError(t, err)
}

func newTestCandlestickService(store *repository.MemoryStore) *CandlestickService {
	return NewCandlestickService(store, store, testSource.Name, zap.NewNop())
}

func TestGetCandlesticks_RollsUpFromFinestSuitableInterval(t *testing.T) {
	store := repository.NewMemoryStore()
	seedStore(t, store, "BTCUSDT", "1m", minuteMs, []string{"10", "11", "9", "12", "10"})
	svc := newTestCandlestickService(store)

	candles, err := svc.GetCandlesticks(context.Background(), "btcusdt", "5m", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, baseTime, c.OpenTime)
	assert.True(t, decimal.NewFromInt(9).Equal(c.Open), c.Open.String())
	assert.True(t, decimal.NewFromInt(10).Equal(c.Close))
	assert.True(t, decimal.NewFromInt(13).Equal(c.High))
	assert.True(t, decimal.NewFromInt(7).Equal(c.Low))
	assert.True(t, decimal.NewFromInt(5).Equal(c.Volume))
	assert.Equal(t, int64(10), c.NumberOfTrades)
}

func TestGetCandlesticks_SelectsCoarsestStoredAtOrBelowTarget(t *testing.T) {
	store := repository.NewMemoryStore()
	seedStore(t, store, "ETHUSDT", "1m", minuteMs, []string{"1", "2", "3"})
	seedStore(t, store, "ETHUSDT", "5m", 5*minuteMs, []string{"100", "200", "300"})
	seedStore(t, store, "ETHUSDT", "1h", 60*minuteMs, []string{"1000"})
	svc := newTestCandlestickService(store)

	candles, err := svc.GetCandlesticks(context.Background(), "ETHUSDT", "15m", QueryOptions{})
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.True(t, decimal.NewFromInt(300).Equal(candles[0].Close))
	assert.True(t, decimal.NewFromInt(3).Equal(candles[0].Volume))
}

func TestGetCandlesticks_Errors(t *testing.T) {
	store := repository.NewMemoryStore()
	seedStore(t, store, "BTCUSDT", "5m", 5*minuteMs, []string{"1"})
	svc := newTestCandlestickService(store)
	ctx := context.Background()

	_, err := svc.GetCandlesticks(ctx, "BTCUSDT", "5x", QueryOptions{})
	assert.ErrorIs(t, err, timeframe.ErrInvalidInterval)

	_, err = svc.GetCandlesticks(ctx, "BTCUSDT", "0m", QueryOptions{})
	assert.ErrorIs(t, err, timeframe.ErrInvalidInterval)

	_, err = svc.GetCandlesticks(ctx, "BTCUSDT", "1m", QueryOptions{})
	assert.ErrorIs(t, err, timeframe.ErrNoSuitableInterval)

	_, err = svc.GetCandlesticks(ctx, "DOGEUSDT", "1h", QueryOptions{})
	assert.ErrorIs(t, err, timeframe.ErrNoSuitableInterval)

	_, err = svc.GetCandlesticks(ctx, "BTCUSDT", "1h", QueryOptions{Source: "Kraken"})
	assert.ErrorIs(t, err, timeframe.ErrNoSuitableInterval)
}

func TestGetCandlesticks_WindowCoversWholeBuckets(t *testing.T) {
	store := repository.NewMemoryStore()
	closes := make([]string, 30)
	for i := range closes {
		closes[i] = "1"
	}
	seedStore(t, store, "BTCUSDT", "1m", minuteMs, closes)
	svc := newTestCandlestickService(store)

	from := baseTime + 7*minuteMs
	to := baseTime + 16*minuteMs
	candles, err := svc.GetCandlesticks(context.Background(), "BTCUSDT", "5m", QueryOptions{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, baseTime+5*minuteMs, candles[0].OpenTime)
	assert.Equal(t, baseTime+15*minuteMs, candles[2].OpenTime)
	for _, c := range candles {
		assert.True(t, decimal.NewFromInt(5).Equal(c.Volume))
	}

	_, err = svc.GetCandlesticks(context.Background(), "BTCUSDT", "5m", QueryOptions{From: &to, To: &from})
	assert.Error(t, err)
}

func TestAvailableIntervalsAndPairs(t *testing.T) {
	store := repository.NewMemoryStore()
	seedStore(t, store, "BTCUSDT", "1m", minuteMs, []string{"1"})
	seedStore(t, store, "BTCUSDT", "1h", 60*minuteMs, []string{"1"})
	seedStore(t, store, "ETHUSDT", "1h", 60*minuteMs, []string{"1"})
	svc := newTestCandlestickService(store)
	ctx := context.Background()

	intervals, err := svc.AvailableIntervals(ctx, "btcusdt", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1h", "1m"}, intervals)

	pairs, err := svc.ListTradingPairs(ctx, "", []string{"ethusdt"})
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "ETHUSDT", pairs[0].Symbol)
}
