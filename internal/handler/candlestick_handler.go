package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/service"
	"github.com/yourorg/candlestick-service/internal/timeframe"
	"github.com/yourorg/candlestick-service/internal/utils"
)

// CandlestickHandler handles candlestick query HTTP requests
type CandlestickHandler struct {
	candlestickService *service.CandlestickService
	logger             *zap.Logger
}

// NewCandlestickHandler creates a new candlestick handler
func NewCandlestickHandler(candlestickService *service.CandlestickService, logger *zap.Logger) *CandlestickHandler {
	return &CandlestickHandler{
		candlestickService: candlestickService,
		logger:             logger,
	}
}

// GetCandlesticks returns candles of a symbol aggregated to the requested interval
// GET /api/v1/candlesticks/:symbol/:interval
func (h *CandlestickHandler) GetCandlesticks(c *gin.Context) {
	symbol := c.Param("symbol")
	interval := c.Param("interval")

	// Reject malformed intervals before touching the store
	if _, err := timeframe.Parse(interval); err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	from, err := utils.ParseOptionalInt64Query(c, "start")
	if err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	to, err := utils.ParseOptionalInt64Query(c, "end")
	if err != nil {
		utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if from != nil && to != nil && *from > *to {
		utils.SendErrorResponse(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	candles, err := h.candlestickService.GetCandlesticks(c.Request.Context(), symbol, interval, service.QueryOptions{
		Source: c.Query("source"),
		From:   from,
		To:     to,
	})
	if err != nil {
		switch {
		case errors.Is(err, timeframe.ErrInvalidInterval):
			utils.SendErrorResponse(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, timeframe.ErrNoSuitableInterval):
			utils.SendErrorResponse(c, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("Failed to get candlesticks",
				zap.Error(err),
				zap.String("symbol", symbol),
				zap.String("interval", interval))
			utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve candlesticks")
		}
		return
	}

	c.JSON(http.StatusOK, model.ToResponse(candles))
}

// GetAvailableIntervals returns the stored intervals of a symbol
// GET /api/v1/symbols/:symbol/intervals
func (h *CandlestickHandler) GetAvailableIntervals(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	intervals, err := h.candlestickService.AvailableIntervals(c.Request.Context(), symbol, c.Query("source"))
	if err != nil {
		h.logger.Error("Failed to get available intervals", zap.Error(err), zap.String("symbol", symbol))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve intervals")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"intervals": intervals,
	})
}

// ListTradingPairs returns the stored trading pairs of a source
// GET /api/v1/trading-pairs
func (h *CandlestickHandler) ListTradingPairs(c *gin.Context) {
	var symbols []string
	if raw := c.Query("symbols"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
	}

	pairs, err := h.candlestickService.ListTradingPairs(c.Request.Context(), c.Query("source"), symbols)
	if err != nil {
		h.logger.Error("Failed to list trading pairs", zap.Error(err))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve trading pairs")
		return
	}

	c.JSON(http.StatusOK, pairs)
}
