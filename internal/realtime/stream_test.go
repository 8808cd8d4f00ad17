package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

func newStreamServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/events", ServeSSE(hub, nil))
	r.GET("/ws/events", ServeWS(hub, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func readSSEEvent(t *testing.T, rd *bufio.Reader) models.Event {
	t.Helper()
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		return ev
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestServeSSE(t *testing.T) {
	hub := NewHub(HubOptions{}, nil)
	srv := newStreamServer(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	assert.Equal(t, models.EventConnected, readSSEEvent(t, rd).Type)

	hub.Publish(models.NewEvent(models.EventRecordingCreated, map[string]string{"id": "r1"}))
	ev := readSSEEvent(t, rd)
	assert.Equal(t, models.EventRecordingCreated, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())

	cancel()
	waitForSubscribers(t, hub, 0)
}

func TestServeWS(t *testing.T) {
	hub := NewHub(HubOptions{}, nil)
	srv := newStreamServer(t, hub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventConnected, ev.Type)

	waitForSubscribers(t, hub, 1)
	hub.Publish(models.NewEvent(models.EventTranscriptUpdated, nil))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventTranscriptUpdated, ev.Type)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, hub, 0)
}
