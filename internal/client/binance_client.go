package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/timeframe"
)

const (
	BinanceAPIBaseURL = "https://api.binance.com"
	MaxKlinesLimit    = 1000
)

// ErrTransientFetch is returned when a request keeps failing after all retries
var ErrTransientFetch = errors.New("transient fetch error")

// BinanceConfig configures the Binance REST client
type BinanceConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// BinanceClient handles communication with the Binance API
type BinanceClient struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *zap.Logger
}

// NewBinanceClient creates a new Binance API client
func NewBinanceClient(cfg BinanceConfig, logger *zap.Logger) *BinanceClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BinanceAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	return &BinanceClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:        rate.NewLimiter(limit, 1),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		logger:         logger,
	}
}

// GetSystemStatus retrieves the exchange maintenance status
func (c *BinanceClient) GetSystemStatus(ctx context.Context) (*model.SystemStatus, error) {
	body, err := c.get(ctx, "/sapi/v1/system/status", nil)
	if err != nil {
		return nil, err
	}

	var status model.SystemStatus
	if err := json.Unmarshal(body, &status); err != nil {
		c.logger.Error("Failed to decode Binance system status", zap.Error(err))
		return nil, fmt.Errorf("failed to decode system status: %w", err)
	}

	return &status, nil
}

// GetKlines retrieves up to limit candlesticks opening at or after startTime (epoch ms)
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, startTime int64, limit int) ([]model.Candlestick, error) {
	iv, err := timeframe.Parse(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxKlinesLimit {
		limit = MaxKlinesLimit
	}

	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("interval", interval)
	params.Add("limit", strconv.Itoa(limit))
	params.Add("startTime", strconv.FormatInt(startTime, 10))

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		c.logger.Error("Failed to fetch klines from Binance",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Int64("startTime", startTime))
		return nil, err
	}

	candles, err := decodeKlines(body, iv)
	if err != nil {
		c.logger.Error("Failed to decode Binance klines",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, err
	}

	c.logger.Debug("Fetched klines",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int64("startTime", startTime),
		zap.Int("count", len(candles)))

	return candles, nil
}

// get performs a GET with rate limiting and retries transient failures
func (c *BinanceClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = c.maxBackoff
	policy.MaxElapsedTime = 0

	var body []byte
	permanentFailure := false
	permanent := func(err error) error {
		permanentFailure = true
		return backoff.Permanent(err)
	}

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return permanent(ctx.Err())
			}
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = respBody
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
			if wait := parseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
				c.logger.Warn("Binance rate limit hit, waiting",
					zap.Int("statusCode", resp.StatusCode),
					zap.Duration("retryAfter", wait))
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return permanent(ctx.Err())
				}
			}
			return fmt.Errorf("Binance API returned status code %d: %s", resp.StatusCode, string(respBody))
		case resp.StatusCode >= 500:
			return fmt.Errorf("Binance API returned status code %d: %s", resp.StatusCode, string(respBody))
		default:
			c.logger.Error("Binance API error response",
				zap.Int("statusCode", resp.StatusCode),
				zap.String("response", string(respBody)))
			return permanent(fmt.Errorf("Binance API returned status code %d: %s", resp.StatusCode, string(respBody)))
		}
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Binance request failed, retrying after backoff",
			zap.Error(err),
			zap.String("path", path),
			zap.Duration("backoff", wait))
	}

	var retryPolicy backoff.BackOff = backoff.WithMaxRetries(policy, uint64(max(c.maxRetries, 0)))
	err := backoff.RetryNotify(operation, backoff.WithContext(retryPolicy, ctx), notify)
	if err != nil {
		if permanentFailure || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrTransientFetch, path, err)
	}

	return body, nil
}

// decodeKlines converts Binance's positional kline arrays into candlesticks:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, trades, ...]
func decodeKlines(body []byte, iv timeframe.Interval) ([]model.Candlestick, error) {
	var rawKlines [][]json.RawMessage
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("failed to decode klines: %w", err)
	}

	candles := make([]model.Candlestick, 0, len(rawKlines))
	for i, raw := range rawKlines {
		if len(raw) < 9 {
			return nil, fmt.Errorf("kline %d has %d fields, expected at least 9", i, len(raw))
		}

		var openTime, trades int64
		if err := json.Unmarshal(raw[0], &openTime); err != nil {
			return nil, fmt.Errorf("kline %d: invalid open time: %w", i, err)
		}
		if err := json.Unmarshal(raw[8], &trades); err != nil {
			return nil, fmt.Errorf("kline %d: invalid number of trades: %w", i, err)
		}

		var prices [5]decimal.Decimal
		for j := range prices {
			var s string
			if err := json.Unmarshal(raw[j+1], &s); err != nil {
				return nil, fmt.Errorf("kline %d: field %d is not a decimal string: %w", i, j+1, err)
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("kline %d: field %d: %w", i, j+1, err)
			}
			prices[j] = d
		}

		candles = append(candles, model.Candlestick{
			OpenTime:       openTime,
			CloseTime:      iv.CloseTime(openTime),
			Open:           prices[0],
			High:           prices[1],
			Low:            prices[2],
			Close:          prices[3],
			Volume:         prices[4],
			NumberOfTrades: trades,
		})
	}

	return candles, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
