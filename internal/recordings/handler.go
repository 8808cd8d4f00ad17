package recordings

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/middleware"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/response"
)

// Reader is the read side of the recordings store.
type Reader interface {
	Get(ctx context.Context, id string) (*models.Recording, error)
	List(ctx context.Context, f ListFilter) ([]models.Recording, error)
}

// Presigner issues time-limited download URLs for stored artifacts.
type Presigner interface {
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
}

// Handler serves the recording admin endpoints.
type Handler struct {
	repo   Reader
	gate   *Gate
	blobs  Presigner
	logger *zap.Logger
}

// NewHandler creates a recordings handler. blobs may be nil when no artifact store is configured.
func NewHandler(repo Reader, gate *Gate, blobs Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, gate: gate, blobs: blobs, logger: logger}
}

// IDsRequest is the approve/deny body.
type IDsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// List handles GET /recordings?status=pending|approved|denied&site=&limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", models.ApprovalPending, models.ApprovalApproved, models.ApprovalDenied:
	default:
		response.BadRequest(c, "status must be pending, approved or denied")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, err := h.repo.List(c.Request.Context(), ListFilter{
		Approval: status,
		SiteURL:  models.NormalizeSiteURL(c.Query("site")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	rec, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, rec)
}

// GenerateDownloadURL handles GET /recordings/:id/download-url?artifact=recording|transcript.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	if h.blobs == nil {
		response.ServiceUnavailable(c, "artifact store not configured")
		return
	}
	rec, ok := h.load(c)
	if !ok {
		return
	}
	key := rec.MediaKey
	if c.Query("artifact") == "transcript" {
		key = rec.TranscriptKey
	}
	if key == "" {
		response.BadRequest(c, "artifact not stored")
		return
	}
	expire := h.blobs.PresignExpire()
	url, err := h.blobs.PresignGet(c.Request.Context(), key, expire)
	if err != nil {
		h.logger.Error("presign download failed", zap.Error(err), zap.String("recording_id", rec.ID))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}

// Approve handles POST /recordings/approve.
func (h *Handler) Approve(c *gin.Context) {
	h.decide(c, h.gate.Approve, "approve")
}

// Deny handles POST /recordings/deny.
func (h *Handler) Deny(c *gin.Context) {
	h.decide(c, h.gate.Deny, "deny")
}

func (h *Handler) decide(c *gin.Context, fn func(context.Context, []string) (*BatchResult, error), action string) {
	var body IDsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := fn(c.Request.Context(), body.IDs)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.logger.Info("recording decision",
		zap.String("action", action),
		zap.String("by", c.GetString(middleware.ContextUserEmail)),
		zap.Int("count", res.Count),
	)
	response.OK(c, res)
}

func (h *Handler) load(c *gin.Context) (*models.Recording, bool) {
	id := c.Param("id")
	rec, err := h.repo.Get(c.Request.Context(), id)
	if errors.Is(err, apperrors.ErrNotFound) {
		response.NotFound(c, "recording not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get recording failed", zap.Error(err), zap.String("recording_id", id))
		response.Internal(c, "failed to load recording")
		return nil, false
	}
	return rec, true
}
