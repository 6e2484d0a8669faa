package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/client"
	"github.com/yourorg/candlestick-service/internal/config"
	"github.com/yourorg/candlestick-service/internal/kafka"
	"github.com/yourorg/candlestick-service/internal/logging"
	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/repository"
	"github.com/yourorg/candlestick-service/internal/service"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup happens before exit
func run() int {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	dryRun := flag.Bool("dry-run", false, "fetch into memory without touching the database")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dryRun {
		cfg.Loader.DryRun = true
	}

	// Set up logger
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.Loader.Pairs) == 0 {
		logger.Fatal("No trading pairs configured under loader.pairs")
	}

	var (
		pairStore   service.TradingPairStore
		candleStore service.CandlestickStore
		publisher   service.EventPublisher
	)

	if cfg.Loader.DryRun {
		logger.Info("Dry run: candles are kept in memory only")
		memory := repository.NewMemoryStore()
		pairStore, candleStore = memory, memory
	} else {
		db, err := repository.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := repository.Migrate(ctx, db, logger); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}

		pairStore = repository.NewTradingPairRepository(db, logger)
		candleStore = repository.NewCandlestickRepository(db, logger)

		if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
			producer := kafka.NewProducer(brokers, "candlestick-loader", cfg.Kafka.Topic, logger)
			defer producer.Close()
			publisher = producer
		}
	}

	binanceClient := client.NewBinanceClient(client.BinanceConfig{
		BaseURL:           cfg.Binance.BaseURL,
		APIKey:            cfg.Binance.APIKey,
		Timeout:           cfg.Binance.Timeout,
		RequestsPerSecond: cfg.Binance.RequestsPerSecond,
		MaxRetries:        cfg.Binance.MaxRetries,
		InitialBackoff:    cfg.Binance.InitialBackoff,
		MaxBackoff:        cfg.Binance.MaxBackoff,
	}, logger)

	ingestionService := service.NewIngestionService(
		pairStore,
		candleStore,
		service.NewKlineFetcher(binanceClient, logger),
		binanceClient,
		publisher,
		service.IngestionConfig{
			Source:      cfg.Source.Model(),
			AssetType:   cfg.Source.AssetType,
			Pairs:       cfg.Loader.Pairs,
			Concurrency: cfg.Loader.Concurrency,
		},
		logger,
	)

	results := ingestionService.Run(ctx)

	failed := 0
	for _, r := range results {
		fields := []zap.Field{
			zap.String("symbol", r.Symbol),
			zap.String("interval", r.Interval),
			zap.String("status", r.Status),
			zap.Int64("inserted", r.Inserted),
			zap.Int64("skipped", r.Skipped),
			zap.Int("pages", r.Pages),
			zap.Duration("duration", r.Duration),
		}
		if r.Status == model.IngestionFailed {
			failed++
			logger.Error("Pair failed", append(fields, zap.String("error", r.Error))...)
			continue
		}
		logger.Info("Pair done", fields...)
	}

	if failed > 0 {
		logger.Error("Ingestion finished with failures", zap.Int("failed", failed), zap.Int("pairs", len(results)))
		return 1
	}
	logger.Info("Ingestion finished", zap.Int("pairs", len(results)))
	return 0
}
