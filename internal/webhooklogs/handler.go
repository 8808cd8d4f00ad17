package webhooklogs

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/response"
)

// Lister reads the activity log.
type Lister interface {
	List(ctx context.Context, f Filter) ([]models.WebhookLogEntry, error)
}

// Handler serves the webhook activity log to administrators.
type Handler struct {
	repo   Lister
	logger *zap.Logger
}

// NewHandler creates a webhook logs handler.
func NewHandler(repo Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /webhook-logs?status=&type=&site=&limit=.
func (h *Handler) List(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", models.WebhookStatusSuccess, models.WebhookStatusWarning, models.WebhookStatusError:
	default:
		response.BadRequest(c, "status must be success, warning or error")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := h.repo.List(c.Request.Context(), Filter{
		Status:      status,
		WebhookType: c.Query("type"),
		SiteURL:     models.NormalizeSiteURL(c.Query("site")),
		Limit:       limit,
	})
	if err != nil {
		h.logger.Error("list webhook logs failed", zap.Error(err))
		response.Internal(c, "failed to load webhook logs")
		return
	}
	response.OK(c, logs)
}
