package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/config"
	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/service"
)

type stubQuerier struct {
	candles []model.Candlestick
	err     error
	got     service.QueryOptions
}

func (q *stubQuerier) GetCandlesticks(_ context.Context, _, _ string, opts service.QueryOptions) ([]model.Candlestick, error) {
	q.got = opts
	return q.candles, q.err
}

type memoryStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStorage) Put(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return "mem://" + key, nil
}

func sampleCandles() []model.Candlestick {
	return []model.Candlestick{
		{
			OpenTime: 1609459200000, CloseTime: 1609459499999,
			Open: decimal.RequireFromString("28923.63"), High: decimal.RequireFromString("29031.34"),
			Low: decimal.RequireFromString("28690.17"), Close: decimal.RequireFromString("28995.13"),
			Volume: decimal.RequireFromString("2311.81144"), NumberOfTrades: 58389,
		},
		{
			OpenTime: 1609459500000, CloseTime: 1609459799999,
			Open: decimal.RequireFromString("28995.13"), High: decimal.RequireFromString("29470.00"),
			Low: decimal.RequireFromString("28960.35"), Close: decimal.RequireFromString("29409.99"),
			Volume: decimal.RequireFromString("5403.06847"), NumberOfTrades: 103896,
		},
	}
}

func TestExport_Parquet(t *testing.T) {
	querier := &stubQuerier{candles: sampleCandles()}
	storage := newMemoryStorage()
	exporter := NewExporter(querier, storage, FormatParquet, zap.NewNop())

	from := int64(1609459200000)
	result, err := exporter.Export(context.Background(), Request{
		Symbol: "btcusdt", Interval: "5m", Source: "Binance", From: &from,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, FormatParquet, result.Format)
	assert.Contains(t, result.Key, "binance/BTCUSDT/5m/")
	assert.Equal(t, "mem://"+result.Key, result.Location)
	assert.Equal(t, "Binance", querier.got.Source)
	assert.Equal(t, &from, querier.got.From)

	data := storage.objects[result.Key]
	rows, err := parquet.Read[parquetRow](bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1609459200000), rows[0].OpenTime)
	assert.Equal(t, "28923.63", rows[0].Open)
	assert.Equal(t, "2311.81144", rows[0].Volume)
	assert.Equal(t, int64(103896), rows[1].NumberOfTrades)
}

func TestExport_JSON(t *testing.T) {
	storage := newMemoryStorage()
	exporter := NewExporter(&stubQuerier{candles: sampleCandles()}, storage, FormatParquet, zap.NewNop())

	result, err := exporter.Export(context.Background(), Request{Symbol: "BTCUSDT", Interval: "5m", Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, "application/json", storage.types[result.Key])

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(storage.objects[result.Key], &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "29409.99", decoded[1]["close"])
	assert.Equal(t, float64(1609459500000), decoded[1]["open_time"])
}

func TestExport_Errors(t *testing.T) {
	boom := errors.New("no suitable interval")
	exporter := NewExporter(&stubQuerier{err: boom}, newMemoryStorage(), "", zap.NewNop())

	_, err := exporter.Export(context.Background(), Request{Symbol: "BTCUSDT", Interval: "5m"})
	assert.ErrorIs(t, err, boom)

	exporter = NewExporter(&stubQuerier{}, newMemoryStorage(), "", zap.NewNop())
	_, err = exporter.Export(context.Background(), Request{Symbol: "BTCUSDT", Interval: "5m", Format: "csv"})
	assert.Error(t, err)
}

func TestLocalStorage_Put(t *testing.T) {
	base := t.TempDir()
	storage, err := NewStorage(config.StorageConfig{Type: "local", Local: config.LocalStorageConfig{BasePath: base}})
	require.NoError(t, err)

	location, err := storage.Put(context.Background(), "binance/BTCUSDT/1h/snap.json", bytes.NewBufferString(`[]`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "binance", "BTCUSDT", "1h", "snap.json"), location)

	content, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(content))

	_, err = storage.Put(context.Background(), "../escape.json", bytes.NewBufferString(`[]`), "application/json")
	assert.Error(t, err)
}

func TestNewStorage_Invalid(t *testing.T) {
	_, err := NewStorage(config.StorageConfig{Type: "gcs"})
	assert.Error(t, err)

	_, err = NewStorage(config.StorageConfig{Type: "s3"})
	assert.Error(t, err)
}

func TestS3Storage_ObjectKey(t *testing.T) {
	s, err := NewS3Storage(config.S3StorageConfig{Bucket: "snapshots", Region: "us-east-1", Prefix: "candles"})
	require.NoError(t, err)
	assert.Equal(t, "candles/binance/BTCUSDT/1h/a.parquet", s.objectKey("binance/BTCUSDT/1h/a.parquet"))

	s.prefix = ""
	assert.Equal(t, "a.parquet", s.objectKey("a.parquet"))
}
