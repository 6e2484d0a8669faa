package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/candlestick-service/internal/model"
)

// fakeSeries is a contiguous run of bars opening at listedAt + k*width while open time < until.
// With emptyBeforeListing set, requests starting before listedAt return an empty page.
type fakeSeries struct {
	listedAt           int64
	until              int64
	width              int64
	emptyBeforeListing bool
}

type fakeKlineSource struct {
	mu     sync.Mutex
	series map[string]fakeSeries
	errs   map[string]error
	calls  map[string][]int64
}

func newFakeKlineSource() *fakeKlineSource {
	return &fakeKlineSource{
		series: make(map[string]fakeSeries),
		errs:   make(map[string]error),
		calls:  make(map[string][]int64),
	}
}

func (f *fakeKlineSource) add(symbol string, s fakeSeries) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series[symbol] = s
}

func (f *fakeKlineSource) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

func (f *fakeKlineSource) startTimes(symbol string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls[symbol]...)
}

func (f *fakeKlineSource) GetKlines(_ context.Context, symbol, _ string, startTime int64, limit int) ([]model.Candlestick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[symbol] = append(f.calls[symbol], startTime)
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}

	s, ok := f.series[symbol]
	if !ok {
		return []model.Candlestick{}, nil
	}

	if s.emptyBeforeListing && startTime < s.listedAt {
		return []model.Candlestick{}, nil
	}

	first := s.listedAt
	if startTime > s.listedAt {
		steps := (startTime - s.listedAt + s.width - 1) / s.width
		first = s.listedAt + steps*s.width
	}

	page := make([]model.Candlestick, 0, limit)
	for t := first; t < s.until && len(page) < limit; t += s.width {
		page = append(page, fakeBar(t, s.width))
	}
	return page, nil
}

func fakeBar(openTime, width int64) model.Candlestick {
	base := decimal.NewFromInt(openTime / width % 1000)
	return model.Candlestick{
		OpenTime:       openTime,
		CloseTime:      openTime + width - 1,
		Open:           base,
		High:           base.Add(decimal.NewFromInt(2)),
		Low:            base.Sub(decimal.NewFromInt(1)),
		Close:          base.Add(decimal.NewFromInt(1)),
		Volume:         decimal.RequireFromString("0.5"),
		NumberOfTrades: 3,
	}
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waits)
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}
