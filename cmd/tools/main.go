package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/config"
	"github.com/yourorg/candlestick-service/internal/logging"
	"github.com/yourorg/candlestick-service/internal/repository"
)

const usage = `usage: tools <command> [flags]

commands:
  verify   report gaps in the stored candles of every trading pair
  export   write candles of one symbol to Parquet or JSON storage
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	os.Exit(run(os.Args[1], os.Args[2:]))
}

func run(command string, args []string) int {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "config/config.yaml", "path to the configuration file")

	var cmd func(ctx context.Context, deps *toolDeps) error
	switch command {
	case "verify":
		opts := bindVerifyFlags(fs)
		cmd = func(ctx context.Context, deps *toolDeps) error { return runVerify(ctx, deps, opts) }
	case "export":
		opts := bindExportFlags(fs)
		cmd = func(ctx context.Context, deps *toolDeps) error { return runExport(ctx, deps, opts) }
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	_ = fs.Parse(args)

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	// Set up logger
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := repository.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return 1
	}
	defer db.Close()

	deps := &toolDeps{
		cfg:             cfg,
		tradingPairRepo: repository.NewTradingPairRepository(db, logger),
		candlestickRepo: repository.NewCandlestickRepository(db, logger),
		logger:          logger,
	}

	if err := cmd(ctx, deps); err != nil {
		logger.Error("Command failed", zap.String("command", command), zap.Error(err))
		return 1
	}
	return 0
}

type toolDeps struct {
	cfg             *config.Config
	tradingPairRepo *repository.TradingPairRepository
	candlestickRepo *repository.CandlestickRepository
	logger          *zap.Logger
}
