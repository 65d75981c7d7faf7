package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frycast/internal/models"
)

func (h *harness) serve(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h.server.Router)
	t.Cleanup(ts.Close)
	// runs before ts.Close so blocked subscribers return
	t.Cleanup(h.feed.Close)
	return ts
}

// readEvent reads one SSE frame, returning its non-empty lines
func readEvent(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(lines) > 0 {
				return lines
			}
			continue
		}
		lines = append(lines, line)
	}
}

func TestStreamSSE(t *testing.T) {
	h := newHarness(t, "")
	first := h.tick(t)
	ts := h.serve(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/analytics/live", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	r := bufio.NewReader(resp.Body)

	// newest point is replayed on connect
	event := readEvent(t, r)
	require.Len(t, event, 3)
	assert.Equal(t, "id: 1", event[0])
	assert.Equal(t, "event: analytics", event[1])
	var point models.MetricPoint
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(event[2], "data: ")), &point))
	assert.Equal(t, first.ID, point.ID)

	assert.Equal(t, []string{": keep-alive"}, readEvent(t, r))
	expected := `
# HELP frycast_live_subscribers Connected live stream subscribers by transport
# TYPE frycast_live_subscribers gauge
frycast_live_subscribers{transport="sse"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "frycast_live_subscribers"))

	h.tick(t)
	for {
		event = readEvent(t, r)
		if event[0] != ": keep-alive" {
			break
		}
	}
	assert.Equal(t, "id: 2", event[0])
}

func TestStreamSSE_ResumesAfterLastID(t *testing.T) {
	h := newHarness(t, "")
	h.tick(t)
	h.tick(t)
	h.tick(t)
	ts := h.serve(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/analytics/live?last_id=1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	assert.Equal(t, "id: 2", readEvent(t, r)[0])
	assert.Equal(t, "id: 3", readEvent(t, r)[0])
}

func TestStreamSSE_BadLastID(t *testing.T) {
	h := newHarness(t, "")
	w := h.do(t, http.MethodGet, "/api/analytics/live?last_id=-4", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func dialLive(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/analytics/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamWebSocket(t *testing.T) {
	h := newHarness(t, "")
	h.tick(t)
	ts := h.serve(t)

	conn := dialLive(t, ts, "")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var point models.MetricPoint
	require.NoError(t, conn.ReadJSON(&point))
	assert.Equal(t, uint(1), point.ID)

	h.tick(t)
	require.NoError(t, conn.ReadJSON(&point))
	assert.Equal(t, uint(2), point.ID)
	assert.Equal(t, models.StreamInitializing, point.StreamStatus)
}

func TestStreamWebSocket_ClosesOnShutdown(t *testing.T) {
	h := newHarness(t, "")
	ts := h.serve(t)

	conn := dialLive(t, ts, "?last_id=0")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	h.feed.Close()

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err.Error())
}
