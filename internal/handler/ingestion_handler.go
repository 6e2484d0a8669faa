package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
	"github.com/yourorg/candlestick-service/internal/service"
	"github.com/yourorg/candlestick-service/internal/utils"
)

// IngestionHandler handles ingestion trigger requests from other services
type IngestionHandler struct {
	ingestionService *service.IngestionService
	baseCtx          context.Context
	onDone           func(context.Context, []model.IngestionResult)
	logger           *zap.Logger
}

// NewIngestionHandler creates a new ingestion handler. Runs use baseCtx, which
// should be cancelled on shutdown; onDone runs after each completed run.
func NewIngestionHandler(
	ingestionService *service.IngestionService,
	baseCtx context.Context,
	onDone func(context.Context, []model.IngestionResult),
	logger *zap.Logger,
) *IngestionHandler {
	return &IngestionHandler{
		ingestionService: ingestionService,
		baseCtx:          baseCtx,
		onDone:           onDone,
		logger:           logger,
	}
}

// TriggerIngestion starts an asynchronous run of the configured pairs
// POST /api/v1/service/ingestions
func (h *IngestionHandler) TriggerIngestion(c *gin.Context) {
	if len(h.ingestionService.Pairs()) == 0 {
		utils.SendErrorResponse(c, http.StatusUnprocessableEntity, "No trading pairs configured")
		return
	}

	run, err := h.ingestionService.TriggerAsync(h.baseCtx, h.onDone)
	if err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			utils.SendErrorResponse(c, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("Failed to start ingestion run", zap.Error(err))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to start ingestion run")
		return
	}

	h.logger.Info("Ingestion run triggered",
		zap.String("run_id", run.RunID),
		zap.Int("pairs", run.Pairs))

	c.JSON(http.StatusAccepted, run)
}

// GetIngestionStatus reports whether a run is active
// GET /api/v1/service/ingestions/status
func (h *IngestionHandler) GetIngestionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running": h.ingestionService.Running(),
		"pairs":   h.ingestionService.Pairs(),
	})
}
