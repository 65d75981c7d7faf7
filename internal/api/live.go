package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"frycast/internal/broadcast"
)

const (
	transportSSE       = "sse"
	transportWebSocket = "websocket"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxClientFrame = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// resumeID picks where a subscriber starts. An explicit last_id (or Last-Event-ID on
// reconnect) resumes after that point; otherwise the newest point is replayed first.
func (s *Server) resumeID(c *gin.Context) (uint, error) {
	raw := c.Query("last_id")
	if raw == "" {
		raw = c.GetHeader("Last-Event-ID")
	}
	if raw == "" {
		latest := s.feed.LatestID()
		if latest > 0 {
			latest--
		}
		return latest, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("last_id must be a non-negative integer")
	}
	return uint(id), nil
}

func (s *Server) subscriberConnected(transport string) {
	if s.metrics != nil {
		s.metrics.SubscriberConnected(transport)
	}
}

func (s *Server) subscriberDisconnected(transport string) {
	if s.metrics != nil {
		s.metrics.SubscriberDisconnected(transport)
	}
}

// StreamSSE streams metric points as server-sent events
func (s *Server) StreamSSE(c *gin.Context) {
	afterID, err := s.resumeID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscriber := uuid.NewString()
	logger := s.logger.With().Str("subscriber", subscriber).Str("transport", transportSSE).Logger()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	s.subscriberConnected(transportSSE)
	defer s.subscriberDisconnected(transportSSE)
	logger.Info().Uint("after_id", afterID).Msg("live subscriber connected")

	ctx := c.Request.Context()
	for {
		point, ok, err := s.feed.Next(ctx, afterID, s.keepAlive)
		if err != nil {
			if !errors.Is(err, broadcast.ErrClosed) && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("live stream ended")
			}
			logger.Info().Msg("live subscriber disconnected")
			return
		}

		if !ok {
			if _, err := fmt.Fprint(c.Writer, ": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
			continue
		}

		payload, err := json.Marshal(point)
		if err != nil {
			logger.Error().Err(err).Uint("id", point.ID).Msg("failed to encode point")
			afterID = point.ID
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "id: %d\nevent: analytics\ndata: %s\n\n", point.ID, payload); err != nil {
			return
		}
		c.Writer.Flush()
		afterID = point.ID
	}
}

// StreamWebSocket streams metric points as JSON text frames
func (s *Server) StreamWebSocket(c *gin.Context) {
	afterID, err := s.resumeID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	subscriber := uuid.NewString()
	logger := s.logger.With().Str("subscriber", subscriber).Str("transport", transportWebSocket).Logger()

	s.subscriberConnected(transportWebSocket)
	defer s.subscriberDisconnected(transportWebSocket)
	logger.Info().Uint("after_id", afterID).Msg("live subscriber connected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go readPump(conn, cancel)
	s.writePump(ctx, conn, afterID)

	conn.Close()
	logger.Info().Msg("live subscriber disconnected")
}

// readPump discards client frames and keeps the read deadline alive on pong. It
// cancels the stream when the client goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxClientFrame)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, afterID uint) {
	for {
		point, ok, err := s.feed.Next(ctx, afterID, s.keepAlive)
		if err != nil {
			if errors.Is(err, broadcast.ErrClosed) {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			}
			return
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if !ok {
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(point); err != nil {
			return
		}
		afterID = point.ID
	}
}
