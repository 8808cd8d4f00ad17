package ingest

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/response"
)

const maxWebhookBody = 1 << 20

// HandlerOptions configures the webhook endpoints.
type HandlerOptions struct {
	Secret         string        // empty disables signature checks
	Budget         time.Duration // how long a delivery waits for processing before being acknowledged
	ProcessTimeout time.Duration // upper bound on background processing
}

// Handler serves the inbound webhook endpoints. Deliveries that pass validation are
// always acknowledged with 200 so the platform does not redeliver.
type Handler struct {
	worker *Worker
	opts   HandlerOptions
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewHandler creates a webhook handler.
func NewHandler(worker *Worker, opts HandlerOptions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Budget <= 0 {
		opts.Budget = 25 * time.Second
	}
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = 15 * time.Minute
	}
	return &Handler{worker: worker, opts: opts, logger: logger}
}

// Recordings handles POST /webhooks/recordings.
func (h *Handler) Recordings(c *gin.Context) {
	h.handle(c, models.WebhookTypeRecordings, h.worker.ProcessRecordingWebhook)
}

// Transcripts handles POST /webhooks/transcripts.
func (h *Handler) Transcripts(c *gin.Context) {
	h.handle(c, models.WebhookTypeTranscripts, h.worker.ProcessTranscriptWebhook)
}

// Wait blocks until background processing started by this handler has finished.
func (h *Handler) Wait() { h.wg.Wait() }

func (h *Handler) handle(c *gin.Context, webhookType string, process func(context.Context, *WebhookPayload) Outcome) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if h.opts.Secret != "" && !VerifySignature(h.opts.Secret, raw, c.GetHeader(SignatureHeader)) {
		h.logger.Warn("webhook signature mismatch", zap.String("type", webhookType), zap.String("client_ip", c.ClientIP()))
		h.worker.LogRejected(c.Request.Context(), webhookType, "signature mismatch")
		response.Unauthorized(c, "invalid signature")
		return
	}
	p, err := h.worker.Decode(c.Request.Context(), webhookType, raw)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// c is recycled by gin once the handler returns, so the goroutine must not touch it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.opts.ProcessTimeout)
	done := make(chan Outcome, 1)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()
		done <- process(ctx, p)
	}()

	timer := time.NewTimer(h.opts.Budget)
	defer timer.Stop()
	select {
	case out := <-done:
		response.OK(c, out)
	case <-timer.C:
		h.logger.Info("webhook budget exceeded, acknowledging", zap.String("type", webhookType), zap.String("artifact_id", p.Data.ID))
		response.OK(c, gin.H{"status": "accepted"})
	}
}
