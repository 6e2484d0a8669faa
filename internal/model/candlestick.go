package model

import (
	"github.com/shopspring/decimal"
)

// Candlestick is one OHLCV bar of a trading pair. Times are epoch milliseconds (UTC).
type Candlestick struct {
	TradingPairID  int64           `json:"trading_pair_id,omitempty" db:"trading_pair_id"`
	OpenTime       int64           `json:"open_time" db:"open_time"`
	CloseTime      int64           `json:"close_time" db:"close_time"`
	Open           decimal.Decimal `json:"open" db:"open"`
	High           decimal.Decimal `json:"high" db:"high"`
	Low            decimal.Decimal `json:"low" db:"low"`
	Close          decimal.Decimal `json:"close" db:"close"`
	Volume         decimal.Decimal `json:"volume" db:"volume"`
	NumberOfTrades int64           `json:"number_of_trades" db:"number_of_trades"`
}

// CandlestickResponse is the shape returned by the query endpoint
type CandlestickResponse struct {
	OpenTime       int64           `json:"open_time"`
	Open           decimal.Decimal `json:"open"`
	High           decimal.Decimal `json:"high"`
	Low            decimal.Decimal `json:"low"`
	Close          decimal.Decimal `json:"close"`
	Volume         decimal.Decimal `json:"volume"`
	NumberOfTrades int64           `json:"number_of_trades"`
}

// ToResponse converts stored or aggregated candles to the API shape
func ToResponse(candles []Candlestick) []CandlestickResponse {
	resp := make([]CandlestickResponse, len(candles))
	for i, c := range candles {
		resp[i] = CandlestickResponse{
			OpenTime:       c.OpenTime,
			Open:           c.Open,
			High:           c.High,
			Low:            c.Low,
			Close:          c.Close,
			Volume:         c.Volume,
			NumberOfTrades: c.NumberOfTrades,
		}
	}
	return resp
}

// CandlestickQuery selects stored candles of one symbol/interval/source.
// From and To bound open_time inclusively when set.
type CandlestickQuery struct {
	Symbol   string
	Interval string
	Source   string
	From     *int64
	To       *int64
}

// Gap is a missing open_time range [Start, End] between two stored candles
type Gap struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}
