package worker

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/response"
)

// Handler exposes the sweep trigger.
type Handler struct {
	sweeper *Sweeper
	logger  *zap.Logger
}

// NewHandler creates a sweep handler.
func NewHandler(sweeper *Sweeper, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sweeper: sweeper, logger: logger}
}

// Retry runs one sweep. POST /internal/transcripts/retry
func (h *Handler) Retry(c *gin.Context) {
	// A scheduler that hangs up mid-sweep should not abort the in-flight items.
	res, err := h.sweeper.Sweep(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, ErrSweepRunning) {
		response.Conflict(c, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("sweep failed", zap.Error(err))
		response.Internal(c, "sweep failed")
		return
	}
	response.OK(c, res)
}
