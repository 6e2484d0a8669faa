package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/timeframe"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Binance    BinanceConfig
	Source     SourceConfig
	Loader     LoaderConfig
	Query      QueryConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Export     ExportConfig
	Logging    LoggingConfig
	ServiceKey string
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port         string `validate:"required"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    RateLimitConfig
}

// RateLimitConfig holds per-client request limits for the query API
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int `validate:"min=0"`
	BurstSize         int `validate:"min=0"`
}

// DatabaseConfig holds database specific configuration
type DatabaseConfig struct {
	Host            string `validate:"required"`
	Port            string `validate:"required"`
	User            string
	Password        string
	DBName          string `validate:"required"`
	SSLMode         string `validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int    `validate:"min=1"`
	MaxIdleConns    int    `validate:"min=0"`
	ConnMaxLifetime time.Duration
}

// DSN returns the connection string for the pgx driver
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// BinanceConfig holds the exchange client configuration
type BinanceConfig struct {
	BaseURL           string  `validate:"required,url"`
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64 `validate:"min=0"`
	MaxRetries        int     `validate:"min=0"`
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// SourceConfig describes the data source rows are stored under
type SourceConfig struct {
	Name        string `validate:"required"`
	Type        string `validate:"required"`
	Description string
	AssetType   string `validate:"required"`
}

// Model returns the source as stored
func (s SourceConfig) Model() model.Source {
	src := model.Source{Name: s.Name, Type: s.Type}
	if s.Description != "" {
		desc := s.Description
		src.Description = &desc
	}
	return src
}

// LoaderConfig holds the pairs to ingest
type LoaderConfig struct {
	Pairs       []model.PairConfig `validate:"dive"`
	Concurrency int                `validate:"min=1"`
	DryRun      bool
}

// QueryConfig holds query API configuration
type QueryConfig struct {
	DefaultSource string `validate:"required"`
}

// RedisConfig holds response cache configuration
type RedisConfig struct {
	Enabled bool
	URL     string `validate:"required_if=Enabled true"`
	TTL     time.Duration
}

// KafkaConfig holds event publishing configuration. Publishing is off without brokers.
type KafkaConfig struct {
	Brokers string
	Topic   string `validate:"required"`
}

// BrokerList returns the configured brokers
func (k KafkaConfig) BrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ExportConfig holds snapshot export configuration
type ExportConfig struct {
	Format  string `validate:"oneof=parquet json"`
	Storage StorageConfig
}

// StorageConfig holds export storage configuration
type StorageConfig struct {
	Type  string `validate:"oneof=local s3"`
	Local LocalStorageConfig
	S3    S3StorageConfig
}

// LocalStorageConfig holds local storage configuration
type LocalStorageConfig struct {
	BasePath string
}

// S3StorageConfig holds AWS S3 configuration
type S3StorageConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	AccessKey string
	SecretKey string
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
	File   LogFileConfig
}

// LogFileConfig holds the rotating log file configuration
type LogFileConfig struct {
	Enabled    bool
	Path       string `validate:"required_if=Enabled true"`
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// LoadConfig loads the configuration from file and environment variables.
// An empty path uses defaults and the environment only.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override, e.g. DATABASE_HOST for database.host
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and every configured pair
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Loader.Pairs))
	for i := range c.Loader.Pairs {
		pair := &c.Loader.Pairs[i]
		pair.Symbol = strings.ToUpper(strings.TrimSpace(pair.Symbol))

		iv, err := timeframe.Parse(pair.Interval)
		if err != nil {
			return fmt.Errorf("invalid config: pair %s: %w", pair.Symbol, err)
		}
		if iv.Minutes() == 0 {
			return fmt.Errorf("invalid config: pair %s: %w: zero width", pair.Symbol, timeframe.ErrInvalidInterval)
		}
		if _, err := pair.StartTime(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		key := pair.Symbol + "/" + pair.Interval
		if seen[key] {
			return fmt.Errorf("invalid config: pair %s is configured twice", key)
		}
		seen[key] = true
	}

	return nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.idleTimeout", "120s")
	v.SetDefault("server.rateLimit.enabled", true)
	v.SetDefault("server.rateLimit.requestsPerMinute", 600)
	v.SetDefault("server.rateLimit.burstSize", 50)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "candlesticks")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", "30m")

	// Binance defaults
	v.SetDefault("binance.baseURL", "https://api.binance.com")
	v.SetDefault("binance.apiKey", "")
	v.SetDefault("binance.timeout", "30s")
	v.SetDefault("binance.requestsPerSecond", 0)
	v.SetDefault("binance.maxRetries", 5)
	v.SetDefault("binance.initialBackoff", "500ms")
	v.SetDefault("binance.maxBackoff", "30s")

	// Source defaults
	v.SetDefault("source.name", "Binance")
	v.SetDefault("source.type", "exchange")
	v.SetDefault("source.description", "")
	v.SetDefault("source.assetType", "crypto")

	// Loader defaults
	v.SetDefault("loader.concurrency", 1)
	v.SetDefault("loader.dryRun", false)

	// Query defaults
	v.SetDefault("query.defaultSource", "Binance")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.ttl", "1m")

	// Kafka defaults
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "candlesticks.ingested")

	// Export defaults
	v.SetDefault("export.format", "parquet")
	v.SetDefault("export.storage.type", "local")
	v.SetDefault("export.storage.local.basePath", "./exports")
	v.SetDefault("export.storage.s3.region", "us-east-1")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/candlestick-service.log")
	v.SetDefault("logging.file.maxSizeMB", 1)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAgeDays", 0)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("serviceKey", "")
}
