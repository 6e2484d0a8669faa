package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/repository"
	"github.com/yourorg/candlestick-service/internal/timeframe"
)

var errGapsFound = errors.New("gaps found")

type verifyOptions struct {
	source  *string
	symbols *string
	strict  *bool
}

func bindVerifyFlags(fs *flag.FlagSet) verifyOptions {
	return verifyOptions{
		source:  fs.String("source", "", "source name, default from query.defaultSource"),
		symbols: fs.String("symbols", "", "comma separated symbols, default all"),
		strict:  fs.Bool("strict", false, "exit non-zero when gaps are found"),
	}
}

// verifyStore is the read side needed to check stored series
type verifyStore interface {
	ListTradingPairs(ctx context.Context, sourceName string, symbols []string) ([]model.TradingPair, error)
	GetCandlesticks(ctx context.Context, q model.CandlestickQuery) ([]model.Candlestick, error)
}

// pairReport is the verification outcome of one trading pair
type pairReport struct {
	Pair  model.TradingPair
	Count int
	Gaps  []model.Gap
}

func runVerify(ctx context.Context, deps *toolDeps, opts verifyOptions) error {
	source := *opts.source
	if source == "" {
		source = deps.cfg.Query.DefaultSource
	}

	reports, err := verifyPairs(ctx, verifyStoreOf(deps), source, splitSymbols(*opts.symbols))
	if err != nil {
		return err
	}

	gapped := 0
	for _, r := range reports {
		fields := []zap.Field{
			zap.String("symbol", r.Pair.Symbol),
			zap.String("interval", r.Pair.Interval),
			zap.Int("candles", r.Count),
			zap.Int("gaps", len(r.Gaps)),
		}
		if len(r.Gaps) == 0 {
			deps.logger.Info("Series contiguous", fields...)
			continue
		}
		gapped++
		deps.logger.Warn("Series has gaps", fields...)
		for _, g := range r.Gaps {
			deps.logger.Warn("Gap",
				zap.String("symbol", r.Pair.Symbol),
				zap.String("interval", r.Pair.Interval),
				zap.Time("from", time.UnixMilli(g.Start).UTC()),
				zap.Time("to", time.UnixMilli(g.End).UTC()))
		}
	}

	deps.logger.Info("Verification finished", zap.Int("pairs", len(reports)), zap.Int("with_gaps", gapped))
	if gapped > 0 && *opts.strict {
		return fmt.Errorf("%w in %d of %d pairs", errGapsFound, gapped, len(reports))
	}
	return nil
}

func verifyPairs(ctx context.Context, store verifyStore, source string, symbols []string) ([]pairReport, error) {
	pairs, err := store.ListTradingPairs(ctx, source, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to list trading pairs: %w", err)
	}

	reports := make([]pairReport, 0, len(pairs))
	for _, p := range pairs {
		iv, err := timeframe.Parse(p.Interval)
		if err != nil {
			return nil, fmt.Errorf("trading pair %d: %w", p.ID, err)
		}

		candles, err := store.GetCandlesticks(ctx, model.CandlestickQuery{
			Symbol:   p.Symbol,
			Interval: p.Interval,
			Source:   p.SourceName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s/%s: %w", p.Symbol, p.Interval, err)
		}

		reports = append(reports, pairReport{
			Pair:  p,
			Count: len(candles),
			Gaps:  timeframe.FindGaps(candles, iv.Milliseconds()),
		})
	}
	return reports, nil
}

func splitSymbols(raw string) []string {
	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	return symbols
}

// repoStore joins the two repositories behind verifyStore
type repoStore struct {
	*repository.TradingPairRepository
	*repository.CandlestickRepository
}

func verifyStoreOf(deps *toolDeps) verifyStore {
	return repoStore{deps.tradingPairRepo, deps.candlestickRepo}
}
