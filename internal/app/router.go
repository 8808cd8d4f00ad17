package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/auth"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/ingest"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/middleware"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/realtime"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/recordings"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/webhooklogs"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/worker"
)

// Server is the HTTP surface plus the webhook handler whose background work must
// be drained on shutdown.
type Server struct {
	Router   *gin.Engine
	webhooks *ingest.Handler
}

// NewServer builds the router.
func (a *App) NewServer() *Server {
	cfg, logger := a.Config, a.Logger

	webhooks := ingest.NewHandler(a.Ingest, ingest.HandlerOptions{
		Secret:         cfg.Pipeline.WebhookSecret,
		Budget:         cfg.Pipeline.WebhookBudget,
		ProcessTimeout: cfg.Pipeline.ProcessTimeout,
	}, logger)
	sweep := worker.NewHandler(a.Sweeper, logger)
	recordingHandler := recordings.NewHandler(a.Recordings, a.Gate, a.Blobs, logger)
	logsHandler := webhooklogs.NewHandler(a.WebhookLogs, logger)

	if cfg.Pipeline.SweepSecret == "" {
		logger.Warn("CRON_SECRET is empty: the transcript retry endpoint rejects every request")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", a.health)

	// Platform webhooks: no JWT; signature checked in the handler when configured.
	router.POST("/webhooks/recordings", webhooks.Recordings)
	router.POST("/webhooks/transcripts", webhooks.Transcripts)

	router.POST("/internal/transcripts/retry", middleware.BearerSecret(cfg.Pipeline.SweepSecret), sweep.Retry)

	router.GET("/events", realtime.ServeSSE(a.Hub, logger))
	router.GET("/ws/events", realtime.ServeWS(a.Hub, logger))

	api := router.Group("")
	api.Use(middleware.JWT(a.JWT), middleware.RequireRole(auth.RoleAdmin, auth.RoleApprover))
	{
		api.GET("/recordings", recordingHandler.List)
		api.GET("/recordings/:id", recordingHandler.Get)
		api.GET("/recordings/:id/download-url", recordingHandler.GenerateDownloadURL)
		api.POST("/recordings/approve", recordingHandler.Approve)
		api.POST("/recordings/deny", recordingHandler.Deny)
		api.GET("/webhook-logs", logsHandler.List)
	}

	return &Server{Router: router, webhooks: webhooks}
}

// Drain waits up to d for webhook processing still running after its acknowledgement.
func (s *Server) Drain(d time.Duration, logger *zap.Logger) {
	if !waitTimeout(s.webhooks.Wait, d) {
		logger.Warn("webhook processing still running at shutdown", zap.Duration("waited", d))
	}
}
