package timeframe

import (
	"fmt"
	"sort"

	"github.com/yourorg/candlestick-service/internal/model"
)

// BucketStart returns the start of the origin-aligned bucket containing openTime
func BucketStart(openTime, widthMs int64) int64 {
	b := openTime / widthMs
	if openTime%widthMs != 0 && openTime < 0 {
		b--
	}
	return b * widthMs
}

// Aggregate rolls candles up into buckets of the target width. Buckets
// without any candle are omitted; the result is ordered by open time.
func Aggregate(candles []model.Candlestick, target Interval) ([]model.Candlestick, error) {
	width := target.Milliseconds()
	if width <= 0 {
		return nil, fmt.Errorf("%w: %q has zero width", ErrInvalidInterval, target.String())
	}
	if len(candles) == 0 {
		return []model.Candlestick{}, nil
	}

	if !sort.SliceIsSorted(candles, func(i, j int) bool { return candles[i].OpenTime < candles[j].OpenTime }) {
		sorted := make([]model.Candlestick, len(candles))
		copy(sorted, candles)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OpenTime < sorted[j].OpenTime })
		candles = sorted
	}

	result := make([]model.Candlestick, 0, len(candles))
	var current *model.Candlestick

	for _, c := range candles {
		start := BucketStart(c.OpenTime, width)
		if current == nil || current.OpenTime != start {
			result = append(result, model.Candlestick{
				TradingPairID:  c.TradingPairID,
				OpenTime:       start,
				CloseTime:      start + width - 1,
				Open:           c.Open,
				High:           c.High,
				Low:            c.Low,
				Close:          c.Close,
				Volume:         c.Volume,
				NumberOfTrades: c.NumberOfTrades,
			})
			current = &result[len(result)-1]
			continue
		}

		if c.High.GreaterThan(current.High) {
			current.High = c.High
		}
		if c.Low.LessThan(current.Low) {
			current.Low = c.Low
		}
		current.Close = c.Close
		current.Volume = current.Volume.Add(c.Volume)
		current.NumberOfTrades += c.NumberOfTrades
	}

	return result, nil
}

// FindGaps reports every break in contiguity between consecutive candles,
// i.e. where close_time + 1 of one candle is not the next open_time.
// widthMs is used for candles whose close time was not populated.
func FindGaps(candles []model.Candlestick, widthMs int64) []model.Gap {
	var gaps []model.Gap
	for i := 1; i < len(candles); i++ {
		prevClose := candles[i-1].CloseTime
		if prevClose == 0 {
			prevClose = candles[i-1].OpenTime + widthMs - 1
		}
		if prevClose+1 < candles[i].OpenTime {
			gaps = append(gaps, model.Gap{Start: prevClose + 1, End: candles[i].OpenTime - 1})
		}
	}
	return gaps
}
