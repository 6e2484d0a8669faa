package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/client"
	"github.com/yourorg/candlestick-service/internal/config"
	"github.com/yourorg/candlestick-service/internal/handler"
	"github.com/yourorg/candlestick-service/internal/kafka"
	"github.com/yourorg/candlestick-service/internal/logging"
	"github.com/yourorg/candlestick-service/internal/middleware"
	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/repository"
	"github.com/yourorg/candlestick-service/internal/service"
)

const cachePrefix = "candlesticks"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := repository.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db, logger); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Initialize repositories
	tradingPairRepo := repository.NewTradingPairRepository(db, logger)
	candlestickRepo := repository.NewCandlestickRepository(db, logger)

	// Optional Redis response cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Invalid Redis URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, serving without cache", zap.Error(err))
		}
	}

	// Optional ingestion events
	var publisher service.EventPublisher
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		producer := kafka.NewProducer(brokers, "candlestick-service", cfg.Kafka.Topic, logger)
		defer producer.Close()
		publisher = producer
	}

	// Initialize clients
	binanceClient := client.NewBinanceClient(client.BinanceConfig{
		BaseURL:           cfg.Binance.BaseURL,
		APIKey:            cfg.Binance.APIKey,
		Timeout:           cfg.Binance.Timeout,
		RequestsPerSecond: cfg.Binance.RequestsPerSecond,
		MaxRetries:        cfg.Binance.MaxRetries,
		InitialBackoff:    cfg.Binance.InitialBackoff,
		MaxBackoff:        cfg.Binance.MaxBackoff,
	}, logger)

	// Initialize services
	ingestionService := service.NewIngestionService(
		tradingPairRepo,
		candlestickRepo,
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
	candlestickService := service.NewCandlestickService(tradingPairRepo, candlestickRepo, cfg.Query.DefaultSource, logger)

	// Initialize handlers
	candlestickHandler := handler.NewCandlestickHandler(candlestickService, logger)
	ingestionHandler := handler.NewIngestionHandler(ingestionService, ctx, func(ctx context.Context, results []model.IngestionResult) {
		flushAfterIngestion(ctx, redisClient, results, logger)
	}, logger)

	router := setupRouter(candlestickHandler, ingestionHandler, db, redisClient, logger, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// ctx is cancelled, so an active run stops at its next page or pause
	ingestionService.Wait()

	logger.Info("Server exited properly")
}

func flushAfterIngestion(ctx context.Context, redisClient *redis.Client, results []model.IngestionResult, logger *zap.Logger) {
	inserted := int64(0)
	for _, r := range results {
		inserted += r.Inserted
	}
	if inserted == 0 || redisClient == nil {
		return
	}

	// the run context may already be cancelled on shutdown
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	removed, err := middleware.FlushCache(flushCtx, redisClient, cachePrefix)
	if err != nil {
		logger.Warn("Failed to flush response cache", zap.Error(err))
		return
	}
	logger.Info("Flushed response cache", zap.Int("keys", removed), zap.Int64("inserted", inserted))
}

func setupRouter(
	candlestickHandler *handler.CandlestickHandler,
	ingestionHandler *handler.IngestionHandler,
	db *sqlx.DB,
	redisClient *redis.Client,
	logger *zap.Logger,
	cfg *config.Config,
) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	// Health check
	router.GET("/check", handler.Check)
	router.GET("/health", handler.Health(db))

	// API routes
	v1 := router.Group("/api/v1")
	{
		query := v1.Group("")
		if cfg.Server.RateLimit.Enabled {
			query.Use(middleware.RateLimit(cfg.Server.RateLimit.RequestsPerMinute, cfg.Server.RateLimit.BurstSize))
		}
		query.Use(middleware.RedisCache(redisClient, middleware.CacheConfig{
			Enabled:   cfg.Redis.Enabled,
			TTL:       cfg.Redis.TTL,
			PrefixKey: cachePrefix,
		}, logger))
		{
			query.GET("/candlesticks/:symbol/:interval", candlestickHandler.GetCandlesticks)
			query.GET("/symbols/:symbol/intervals", candlestickHandler.GetAvailableIntervals)
			query.GET("/trading-pairs", candlestickHandler.ListTradingPairs)
		}

		// Service-to-service routes (requires service key)
		svc := v1.Group("/service")
		svc.Use(middleware.ServiceAuthMiddleware(cfg.ServiceKey, logger))
		{
			svc.POST("/ingestions", ingestionHandler.TriggerIngestion)
			svc.GET("/ingestions/status", ingestionHandler.GetIngestionStatus)
		}
	}

	return router
}
