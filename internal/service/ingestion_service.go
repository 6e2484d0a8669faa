package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/timeframe"
)

var (
	// ErrSourceUnavailable is reported when the exchange status endpoint signals maintenance
	ErrSourceUnavailable = errors.New("data source unavailable")
	// ErrRunInProgress is returned when an ingestion run is triggered while another is active
	ErrRunInProgress = errors.New("ingestion run already in progress")
)

// TradingPairStore resolves trading pair identities
type TradingPairStore interface {
	GetOrCreateTradingPair(ctx context.Context, symbol, interval string, source model.Source, assetType string) (int64, error)
}

// CandlestickStore persists bars of a trading pair
type CandlestickStore interface {
	LastCloseTime(ctx context.Context, tradingPairID int64) (int64, bool, error)
	BulkAppend(ctx context.Context, tradingPairID int64, candles []model.Candlestick) (int64, error)
}

// StatusChecker reports whether the upstream exchange is accepting requests
type StatusChecker interface {
	GetSystemStatus(ctx context.Context) (*model.SystemStatus, error)
}

// EventPublisher announces persisted ingestion results
type EventPublisher interface {
	PublishIngestion(ctx context.Context, event model.IngestionEvent) error
}

// IngestionConfig holds the settings of an ingestion service
type IngestionConfig struct {
	Source      model.Source
	AssetType   string
	Pairs       []model.PairConfig
	Concurrency int
}

// IngestionService backfills configured trading pairs into the candlestick store
type IngestionService struct {
	pairStore   TradingPairStore
	candleStore CandlestickStore
	fetcher     *KlineFetcher
	status      StatusChecker
	publisher   EventPublisher
	cfg         IngestionConfig
	now         func() time.Time
	running     atomic.Bool
	wg          sync.WaitGroup
	logger      *zap.Logger
}

// NewIngestionService creates a new ingestion service.
// status and publisher may be nil.
func NewIngestionService(
	pairStore TradingPairStore,
	candleStore CandlestickStore,
	fetcher *KlineFetcher,
	status StatusChecker,
	publisher EventPublisher,
	cfg IngestionConfig,
	logger *zap.Logger,
) *IngestionService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.AssetType == "" {
		cfg.AssetType = "crypto"
	}

	return &IngestionService{
		pairStore:   pairStore,
		candleStore: candleStore,
		fetcher:     fetcher,
		status:      status,
		publisher:   publisher,
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
	}
}

// Pairs returns the configured pairs
func (s *IngestionService) Pairs() []model.PairConfig {
	return s.cfg.Pairs
}

// ResumePoint returns the open time (epoch ms) from which a pair should be fetched:
// the stored last close time + 1, or initialStart when nothing is stored yet
func (s *IngestionService) ResumePoint(ctx context.Context, tradingPairID int64, initialStart time.Time) (int64, error) {
	resumeFrom, _, err := s.resumePoint(ctx, tradingPairID, initialStart)
	return resumeFrom, err
}

func (s *IngestionService) resumePoint(ctx context.Context, tradingPairID int64, initialStart time.Time) (int64, bool, error) {
	lastClose, ok, err := s.candleStore.LastCloseTime(ctx, tradingPairID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to get last close time: %w", err)
	}
	if !ok {
		return initialStart.UnixMilli(), false, nil
	}
	return lastClose + 1, true, nil
}

// Run ingests every configured pair once
func (s *IngestionService) Run(ctx context.Context) []model.IngestionResult {
	return s.RunAll(ctx, s.cfg.Pairs)
}

// RunAll ingests the given pairs under a new run id. A failing pair never stops the others.
func (s *IngestionService) RunAll(ctx context.Context, pairs []model.PairConfig) []model.IngestionResult {
	return s.runPairs(ctx, uuid.NewString(), pairs)
}

// TriggerAsync starts a run of the configured pairs in the background.
// ctx must outlive the caller's request; onDone, if set, runs after the last pair.
func (s *IngestionService) TriggerAsync(ctx context.Context, onDone func(context.Context, []model.IngestionResult)) (*model.IngestionRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}

	run := &model.IngestionRun{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
		Pairs:     len(s.cfg.Pairs),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		results := s.runPairs(ctx, run.RunID, s.cfg.Pairs)
		if onDone != nil {
			onDone(ctx, results)
		}
	}()

	return run, nil
}

// Running reports whether a background run is active
func (s *IngestionService) Running() bool {
	return s.running.Load()
}

// Wait blocks until a background run started by TriggerAsync has finished
func (s *IngestionService) Wait() {
	s.wg.Wait()
}

func (s *IngestionService) runPairs(ctx context.Context, runID string, pairs []model.PairConfig) []model.IngestionResult {
	started := s.now()
	s.logger.Info("Starting ingestion run",
		zap.String("run_id", runID),
		zap.Int("pairs", len(pairs)),
		zap.Int("concurrency", s.cfg.Concurrency))

	results := make([]model.IngestionResult, len(pairs))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			results[i] = s.IngestPair(ctx, runID, pair)
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[string]int)
	for _, r := range results {
		counts[r.Status]++
	}
	s.logger.Info("Ingestion run finished",
		zap.String("run_id", runID),
		zap.Duration("duration", s.now().Sub(started)),
		zap.Int(model.IngestionCompleted, counts[model.IngestionCompleted]),
		zap.Int(model.IngestionNoNewData, counts[model.IngestionNoNewData]),
		zap.Int(model.IngestionSkipped, counts[model.IngestionSkipped]),
		zap.Int(model.IngestionFailed, counts[model.IngestionFailed]))

	return results
}

// IngestPair fetches and stores every new closed bar of one configured pair
func (s *IngestionService) IngestPair(ctx context.Context, runID string, pair model.PairConfig) model.IngestionResult {
	started := s.now()
	result := model.IngestionResult{
		RunID:    runID,
		Symbol:   pair.Symbol,
		Interval: pair.Interval,
	}
	logger := s.logger.With(
		zap.String("run_id", runID),
		zap.String("symbol", pair.Symbol),
		zap.String("interval", pair.Interval))

	fail := func(status string, err error) model.IngestionResult {
		result.Status = status
		result.Error = err.Error()
		result.Duration = s.now().Sub(started)
		if status == model.IngestionSkipped {
			logger.Warn("Skipping pair", zap.Error(err))
		} else {
			logger.Error("Failed to ingest pair", zap.Error(err))
		}
		return result
	}

	if s.status != nil {
		status, err := s.status.GetSystemStatus(ctx)
		if err != nil {
			return fail(model.IngestionFailed, fmt.Errorf("failed to check system status: %w", err))
		}
		if !status.Available() {
			return fail(model.IngestionSkipped, fmt.Errorf("%w: %s", ErrSourceUnavailable, status.Msg))
		}
	}

	iv, err := timeframe.Parse(pair.Interval)
	if err != nil {
		return fail(model.IngestionFailed, err)
	}
	initialStart, err := pair.StartTime()
	if err != nil {
		return fail(model.IngestionFailed, err)
	}

	pairID, err := s.pairStore.GetOrCreateTradingPair(ctx, pair.Symbol, pair.Interval, s.cfg.Source, s.cfg.AssetType)
	if err != nil {
		return fail(model.IngestionFailed, fmt.Errorf("failed to get or create trading pair: %w", err))
	}
	result.TradingPairID = pairID

	resumeFrom, hasData, err := s.resumePoint(ctx, pairID, initialStart)
	if err != nil {
		return fail(model.IngestionFailed, err)
	}
	result.ResumeFrom = resumeFrom

	fetch := s.fetcher.Fetch
	if hasData {
		fetch = s.fetcher.Resume
	}

	nowMs := s.now().UnixMilli()
	var candles []model.Candlestick
	stats, err := fetch(ctx, pair.Symbol, pair.Interval, resumeFrom, func(page []model.Candlestick) error {
		for _, c := range page {
			// the current bar is still forming
			if c.CloseTime >= nowMs {
				continue
			}
			c.TradingPairID = pairID
			candles = append(candles, c)
		}
		return nil
	})
	result.Pages = stats.Pages
	result.Fetched = stats.Fetched
	if err != nil {
		return fail(model.IngestionFailed, err)
	}

	if len(candles) == 0 {
		result.Status = model.IngestionNoNewData
		result.Duration = s.now().Sub(started)
		logger.Info("No new data for pair", zap.Int64("resume_from", resumeFrom))
		return result
	}

	if gaps := timeframe.FindGaps(candles, iv.Milliseconds()); len(gaps) > 0 {
		logger.Warn("Gaps detected in fetched klines",
			zap.Int("gaps", len(gaps)),
			zap.Int64("first_gap_start", gaps[0].Start),
			zap.Int64("first_gap_end", gaps[0].End))
	}

	inserted, err := s.candleStore.BulkAppend(ctx, pairID, candles)
	if err != nil {
		return fail(model.IngestionFailed, fmt.Errorf("failed to store candlesticks: %w", err))
	}
	result.Inserted = inserted
	result.Skipped = int64(len(candles)) - inserted
	result.Status = model.IngestionCompleted
	result.Duration = s.now().Sub(started)

	logger.Info("Pair ingested",
		zap.Int64("trading_pair_id", pairID),
		zap.Int64("resume_from", resumeFrom),
		zap.Int("pages", stats.Pages),
		zap.Int64("inserted", inserted),
		zap.Int64("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))

	if s.publisher != nil {
		event := model.IngestionEvent{
			RunID:         runID,
			Source:        s.cfg.Source.Name,
			Symbol:        pair.Symbol,
			Interval:      pair.Interval,
			TradingPairID: pairID,
			Inserted:      inserted,
			FromOpenTime:  candles[0].OpenTime,
			ToOpenTime:    candles[len(candles)-1].OpenTime,
			IngestedAt:    s.now().UTC(),
		}
		if err := s.publisher.PublishIngestion(ctx, event); err != nil {
			logger.Warn("Failed to publish ingestion event", zap.Error(err))
		}
	}

	return result
}
