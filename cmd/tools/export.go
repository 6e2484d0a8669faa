package main

import (
	"context"
	"errors"
	"flag"

	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/export"
	"github.com/yourorg/candlestick-service/internal/service"
)

type exportOptions struct {
	symbol   *string
	interval *string
	source   *string
	format   *string
	from     *int64
	to       *int64
}

func bindExportFlags(fs *flag.FlagSet) exportOptions {
	return exportOptions{
		symbol:   fs.String("symbol", "", "symbol to export (required)"),
		interval: fs.String("interval", "", "target interval, e.g. 15m (required)"),
		source:   fs.String("source", "", "source name, default from query.defaultSource"),
		format:   fs.String("format", "", "parquet or json, default from export.format"),
		from:     fs.Int64("from", -1, "first open time in epoch ms"),
		to:       fs.Int64("to", -1, "last open time in epoch ms"),
	}
}

func runExport(ctx context.Context, deps *toolDeps, opts exportOptions) error {
	if *opts.symbol == "" || *opts.interval == "" {
		return errors.New("-symbol and -interval are required")
	}

	storage, err := export.NewStorage(deps.cfg.Export.Storage)
	if err != nil {
		return err
	}

	candlestickService := service.NewCandlestickService(
		deps.tradingPairRepo, deps.candlestickRepo, deps.cfg.Query.DefaultSource, deps.logger)
	exporter := export.NewExporter(candlestickService, storage, deps.cfg.Export.Format, deps.logger)

	source := *opts.source
	if source == "" {
		source = deps.cfg.Query.DefaultSource
	}

	req := export.Request{
		Symbol:   *opts.symbol,
		Interval: *opts.interval,
		Source:   source,
		Format:   *opts.format,
	}
	if *opts.from >= 0 {
		req.From = opts.from
	}
	if *opts.to >= 0 {
		req.To = opts.to
	}

	result, err := exporter.Export(ctx, req)
	if err != nil {
		return err
	}

	deps.logger.Info("Export written",
		zap.String("location", result.Location),
		zap.String("format", result.Format),
		zap.Int("rows", result.Rows))
	return nil
}
