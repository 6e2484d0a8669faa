package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const klinesPayload = `[
  [1609459200000,"28923.63","29031.34","28690.17","28995.13","2311.81144",1609459259999,"66768830.34",58389,"1215.37","35102.54","0"],
  [1609459260000,"28995.13","29470.00","28960.35","29409.99","5403.06847",1609459319999,"158446191.58",103896,"3160.04","92658.25","0"]
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) *BinanceClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewBinanceClient(BinanceConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, zap.NewNop())
}

func TestGetKlines_DecodesCandles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		assert.Equal(t, "1609459200000", r.URL.Query().Get("startTime"))
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(klinesPayload))
	})

	candles, err := c.GetKlines(context.Background(), "BTCUSDT", "1m", 1609459200000, 500)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, int64(1609459200000), first.OpenTime)
	assert.Equal(t, int64(1609459259999), first.CloseTime)
	assert.True(t, decimal.RequireFromString("28923.63").Equal(first.Open))
	assert.True(t, decimal.RequireFromString("29031.34").Equal(first.High))
	assert.True(t, decimal.RequireFromString("28690.17").Equal(first.Low))
	assert.True(t, decimal.RequireFromString("28995.13").Equal(first.Close))
	assert.True(t, decimal.RequireFromString("2311.81144").Equal(first.Volume))
	assert.Equal(t, int64(58389), first.NumberOfTrades)
	assert.Equal(t, int64(1609459260000), candles[1].OpenTime)
}

func TestGetKlines_EmptyPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	candles, err := c.GetKlines(context.Background(), "NEWUSDT", "1h", 0, 500)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestGetKlines_InvalidInterval(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := c.GetKlines(context.Background(), "BTCUSDT", "1x", 0, 500)
	require.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestGetKlines_MalformedKline(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"short tuple", `[[1609459200000,"1","2","0.5","1.5"]]`},
		{"numeric price", `[[1609459200000,1,"2","0.5","1.5","10",1609459259999,"0",3]]`},
		{"bad decimal", `[[1609459200000,"abc","2","0.5","1.5","10",1609459259999,"0",3]]`},
		{"not an array", `{"code":-1121,"msg":"Invalid symbol."}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.GetKlines(context.Background(), "BTCUSDT", "1m", 0, 500)
			assert.Error(t, err)
		})
	}
}

func TestGetKlines_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(klinesPayload))
	})

	candles, err := c.GetKlines(context.Background(), "BTCUSDT", "1m", 0, 500)
	require.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetKlines_RetriesRateLimit(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.GetKlines(context.Background(), "BTCUSDT", "1m", 0, 500)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetKlines_TransientAfterRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.GetKlines(context.Background(), "BTCUSDT", "1m", 0, 500)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransientFetch))
	// one attempt plus MaxRetries
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetKlines_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := c.GetKlines(context.Background(), "NOPE", "1m", 0, 500)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTransientFetch))
	assert.Contains(t, err.Error(), "Invalid symbol")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetKlines_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetKlines(ctx, "BTCUSDT", "1m", 0, 500)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTransientFetch))
}

func TestGetSystemStatus(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		available bool
	}{
		{"normal", `{"status":0,"msg":"normal"}`, true},
		{"maintenance", `{"status":1,"msg":"system maintenance"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/sapi/v1/system/status", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			status, err := c.GetSystemStatus(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.available, status.Available())
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
}
