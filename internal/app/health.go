package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/response"
)

const healthTimeout = 2 * time.Second

// health reports store reachability. GET /health
func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := gin.H{"status": "ok", "subscribers": a.Hub.Count()}
	healthy := true
	if a.Pool != nil {
		if err := a.Pool.Ping(ctx); err != nil {
			a.Logger.Warn("health: database unreachable", zap.Error(err))
			status["database"] = "down"
			healthy = false
		} else {
			status["database"] = "up"
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Logger.Warn("health: redis unreachable", zap.Error(err))
			status["redis"] = "down"
			healthy = false
		} else {
			status["redis"] = "up"
		}
	}
	if !healthy {
		response.ServiceUnavailable(c, "dependency unavailable")
		return
	}
	response.OK(c, status)
}
