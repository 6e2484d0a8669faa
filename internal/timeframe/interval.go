// Package timeframe parses candle intervals and re-buckets stored candles
// into coarser intervals.
package timeframe

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

var (
	// ErrInvalidInterval is returned for strings that are not <digits><unit>
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrNoSuitableInterval is returned when no stored interval is fine enough for a target
	ErrNoSuitableInterval = errors.New("no suitable interval")
)

var intervalPattern = regexp.MustCompile(`^(\d+)([mhdw])$`)

var minutesPerUnit = map[string]int64{
	"m": 1,
	"h": 60,
	"d": 60 * 24,
	"w": 60 * 24 * 7,
}

// Interval is a parsed candle width such as 5m or 1h
type Interval struct {
	label   string
	count   int64
	unit    string
	minutes int64
}

// Parse validates an interval label. Units are case-sensitive: "1M" is a
// month on Binance and is not accepted. "0m" parses and has zero width.
func Parse(s string) (Interval, error) {
	match := intervalPattern.FindStringSubmatch(s)
	if match == nil {
		return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}

	count, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %q: %v", ErrInvalidInterval, s, err)
	}
	perUnit := minutesPerUnit[match[2]]
	if count > math.MaxInt64/perUnit/int64(time.Minute/time.Millisecond) {
		return Interval{}, fmt.Errorf("%w: %q is too large", ErrInvalidInterval, s)
	}

	return Interval{
		label:   s,
		count:   count,
		unit:    match[2],
		minutes: count * perUnit,
	}, nil
}

// MustParse is like Parse but panics on error
func MustParse(s string) Interval {
	iv, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return iv
}

func (i Interval) String() string { return i.label }

// Minutes returns the interval width in minutes
func (i Interval) Minutes() int64 { return i.minutes }

// Milliseconds returns the interval width in milliseconds
func (i Interval) Milliseconds() int64 { return i.minutes * int64(time.Minute/time.Millisecond) }

// Duration returns the interval width as a time.Duration
func (i Interval) Duration() time.Duration { return time.Duration(i.minutes) * time.Minute }

// CloseTime returns the close time of the candle opening at openTime
func (i Interval) CloseTime(openTime int64) int64 {
	return openTime + i.Milliseconds() - 1
}
