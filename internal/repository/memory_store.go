package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourorg/candlestick-service/internal/model"
)

type pairKey struct {
	symbol   string
	interval string
	sourceID int64
}

// MemoryStore keeps sources, trading pairs and candlesticks in process memory.
// It follows the same conflict rules as the Postgres repositories.
type MemoryStore struct {
	mu         sync.RWMutex
	sources    map[string]model.Source
	pairs      map[int64]model.TradingPair
	pairIndex  map[pairKey]int64
	candles    map[int64]map[int64]model.Candlestick
	nextSource int64
	nextPair   int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources:   make(map[string]model.Source),
		pairs:     make(map[int64]model.TradingPair),
		pairIndex: make(map[pairKey]int64),
		candles:   make(map[int64]map[int64]model.Candlestick),
	}
}

// GetOrCreateTradingPair returns the id of the pair, creating the source and pair when absent
func (m *MemoryStore) GetOrCreateTradingPair(_ context.Context, symbol, interval string, source model.Source, assetType string) (int64, error) {
	if symbol == "" || interval == "" || source.Name == "" {
		return 0, fmt.Errorf("symbol, interval and source name are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[source.Name]
	if !ok {
		m.nextSource++
		src = source
		src.ID = m.nextSource
		m.sources[source.Name] = src
	}

	key := pairKey{symbol: symbol, interval: interval, sourceID: src.ID}
	if id, ok := m.pairIndex[key]; ok {
		return id, nil
	}

	m.nextPair++
	m.pairs[m.nextPair] = model.TradingPair{
		ID:         m.nextPair,
		Symbol:     symbol,
		Interval:   interval,
		SourceID:   src.ID,
		SourceName: src.Name,
		Type:       assetType,
		CreatedAt:  time.Now().UTC(),
	}
	m.pairIndex[key] = m.nextPair
	return m.nextPair, nil
}

// LastCloseTime returns the greatest stored close time of a pair
func (m *MemoryStore) LastCloseTime(_ context.Context, tradingPairID int64) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last int64
	found := false
	for _, c := range m.candles[tradingPairID] {
		if !found || c.CloseTime > last {
			last = c.CloseTime
			found = true
		}
	}
	return last, found, nil
}

// BulkAppend stores candles, ignoring open times that already exist
func (m *MemoryStore) BulkAppend(_ context.Context, tradingPairID int64, candles []model.Candlestick) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pairs[tradingPairID]; !ok {
		return 0, fmt.Errorf("trading pair %d does not exist", tradingPairID)
	}

	stored, ok := m.candles[tradingPairID]
	if !ok {
		stored = make(map[int64]model.Candlestick)
		m.candles[tradingPairID] = stored
	}

	var inserted int64
	for _, c := range candles {
		if _, exists := stored[c.OpenTime]; exists {
			continue
		}
		c.TradingPairID = tradingPairID
		stored[c.OpenTime] = c
		inserted++
	}
	return inserted, nil
}

// AvailableIntervals returns the intervals of a symbol that have stored candles
func (m *MemoryStore) AvailableIntervals(_ context.Context, symbol, sourceName string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	intervals := []string{}
	for id, p := range m.pairs {
		if p.Symbol != symbol || p.SourceName != sourceName || len(m.candles[id]) == 0 {
			continue
		}
		intervals = append(intervals, p.Interval)
	}
	sort.Strings(intervals)
	return intervals, nil
}

// GetCandlesticks returns the stored candles matching q in ascending open time order
func (m *MemoryStore) GetCandlesticks(_ context.Context, q model.CandlestickQuery) ([]model.Candlestick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src, ok := m.sources[q.Source]
	if !ok {
		return []model.Candlestick{}, nil
	}
	id, ok := m.pairIndex[pairKey{symbol: q.Symbol, interval: q.Interval, sourceID: src.ID}]
	if !ok {
		return []model.Candlestick{}, nil
	}

	result := make([]model.Candlestick, 0, len(m.candles[id]))
	for _, c := range m.candles[id] {
		if q.From != nil && c.OpenTime < *q.From {
			continue
		}
		if q.To != nil && c.OpenTime > *q.To {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenTime < result[j].OpenTime })
	return result, nil
}

// ListTradingPairs returns the pairs of a source, optionally restricted to symbols
func (m *MemoryStore) ListTradingPairs(_ context.Context, sourceName string, symbols []string) ([]model.TradingPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	pairs := []model.TradingPair{}
	for _, p := range m.pairs {
		if sourceName != "" && p.SourceName != sourceName {
			continue
		}
		if len(wanted) > 0 && !wanted[p.Symbol] {
			continue
		}
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Symbol != pairs[j].Symbol {
			return pairs[i].Symbol < pairs[j].Symbol
		}
		return pairs[i].Interval < pairs[j].Interval
	})
	return pairs, nil
}

// CountCandlesticks returns the number of stored candles of a pair
func (m *MemoryStore) CountCandlesticks(_ context.Context, tradingPairID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.candles[tradingPairID])), nil
}
