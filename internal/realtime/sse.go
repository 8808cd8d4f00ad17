package realtime

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

// ServeSSE handles GET /events. The stream opens with a connected event, then carries
// every published event and the hub's keepalive pings as `data: <json>\n\n` frames.
func ServeSSE(hub *Hub, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		w := c.Writer
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		sub := hub.Subscribe()
		defer hub.Unsubscribe(sub)

		if err := writeFrame(w, models.NewEvent(models.EventConnected, map[string]string{"subscriber_id": sub.ID})); err != nil {
			return
		}
		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Done():
				return
			case ev := <-sub.Events():
				if err := writeFrame(w, ev); err != nil {
					logger.Debug("sse write failed", zap.String("subscriber_id", sub.ID), zap.Error(err))
					return
				}
			}
		}
	}
}

func writeFrame(w gin.ResponseWriter, ev models.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := writeData(w, raw); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeData(w io.Writer, raw []byte) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", raw)
	return err
}
