package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/candlestick-service/internal/timeframe"
)

const sampleConfig = `
server:
  port: "9090"
database:
  host: db
  dbName: market
binance:
  maxRetries: 3
loader:
  concurrency: 2
  pairs:
    - symbol: btcusdt
      interval: 1m
      startDate: "2021-01-01"
    - symbol: ETHUSDT
      interval: 1h
      startDate: "2020-06-01T00:00:00Z"
logging:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 600, cfg.Server.RateLimit.RequestsPerMinute)
	assert.Equal(t, 50, cfg.Server.RateLimit.BurstSize)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, "market", cfg.Database.DBName)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, 3, cfg.Binance.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Binance.Timeout)
	assert.Equal(t, "Binance", cfg.Source.Name)
	assert.Equal(t, "crypto", cfg.Source.AssetType)
	assert.Equal(t, 2, cfg.Loader.Concurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 1, cfg.Logging.File.MaxSizeMB)
	assert.Equal(t, 3, cfg.Logging.File.MaxBackups)

	require.Len(t, cfg.Loader.Pairs, 2)
	assert.Equal(t, "BTCUSDT", cfg.Loader.Pairs[0].Symbol)
	assert.Equal(t, "1m", cfg.Loader.Pairs[0].Interval)
	start, err := cfg.Loader.Pairs[1].StartTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("DATABASE_HOST", "postgres.internal")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "postgres.internal", cfg.Database.Host)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.BrokerList())
}

func TestLoadConfig_DefaultsOnly(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Loader.Pairs)
	assert.Empty(t, cfg.Kafka.BrokerList())
	assert.Equal(t, "parquet", cfg.Export.Format)
	assert.Contains(t, cfg.Database.DSN(), "dbname=candlesticks")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadPairs(t *testing.T) {
	tests := []struct {
		name  string
		pairs string
		isErr error
	}{
		{
			name: "malformed interval",
			pairs: `
    - symbol: BTCUSDT
      interval: 5x
      startDate: "2021-01-01"`,
			isErr: timeframe.ErrInvalidInterval,
		},
		{
			name: "zero interval",
			pairs: `
    - symbol: BTCUSDT
      interval: 0m
      startDate: "2021-01-01"`,
			isErr: timeframe.ErrInvalidInterval,
		},
		{
			name: "bad start date",
			pairs: `
    - symbol: BTCUSDT
      interval: 1m
      startDate: "01/01/2021"`,
		},
		{
			name: "missing symbol",
			pairs: `
    - interval: 1m
      startDate: "2021-01-01"`,
		},
		{
			name: "duplicate pair",
			pairs: `
    - symbol: BTCUSDT
      interval: 1m
      startDate: "2021-01-01"
    - symbol: btcusdt
      interval: 1m
      startDate: "2022-01-01"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, "loader:\n  pairs:"+tt.pairs+"\n"))
			require.Error(t, err)
			if tt.isErr != nil {
				assert.ErrorIs(t, err, tt.isErr)
			}
		})
	}
}

func TestValidate_RejectsBadEnums(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "logging:\n  level: verbose\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "export:\n  storage:\n    type: gcs\n"))
	assert.Error(t, err)
}

func TestSourceModel(t *testing.T) {
	src := SourceConfig{Name: "Binance", Type: "exchange"}.Model()
	assert.Nil(t, src.Description)

	src = SourceConfig{Name: "Binance", Type: "exchange", Description: "spot"}.Model()
	require.NotNil(t, src.Description)
	assert.Equal(t, "spot", *src.Description)
}
