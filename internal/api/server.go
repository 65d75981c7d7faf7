package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"frycast/internal/analytics"
	"frycast/internal/broadcast"
	"frycast/internal/engine"
	"frycast/internal/evaluation"
	"frycast/internal/models"
	"frycast/internal/monitoring"
)

// Planner is the engine surface the API drives
type Planner interface {
	Generate(snapshot models.Snapshot) models.Recommendation
	Latest() (models.Recommendation, bool)
	Options() engine.Options
	Profile() models.BusinessProfile
	Configure(profile models.BusinessProfile) (models.BusinessProfile, error)
	Reset() (models.BusinessProfile, error)
	ApplyFeedback(key string, action models.FeedbackAction, resolve engine.FeedbackFunc) (engine.FeedbackState, error)
	FeedbackStates() map[string]engine.FeedbackState
	Pending() map[string][]engine.CookLot
}

// Store is the durable analytics surface
type Store interface {
	History(q analytics.HistoryQuery) ([]models.MetricPoint, error)
	RecordFeedback(in analytics.FeedbackInput) (models.RecommendationRecord, error)
	FeedbackSummary(windowMinutes, limit int) (evaluation.Summary, error)
}

// Feed is the live point stream
type Feed interface {
	Next(ctx context.Context, afterID uint, timeout time.Duration) (models.MetricPoint, bool, error)
	LatestID() uint
	Recent(n int) []models.MetricPoint
	LatestSnapshot() (models.Snapshot, bool)
	LatestRecommendation() (models.Recommendation, bool)
}

// Snapshots accepts pushes from the video pipeline and serves the latest one
type Snapshots interface {
	Push(snapshot models.Snapshot) (models.Snapshot, error)
	Snapshot() models.Snapshot
	Age() (time.Duration, bool)
}

// Options wires a Server
type Options struct {
	Planner     Planner
	Store       Store
	Feed        Feed
	Snapshots   Snapshots
	Monitor     *monitoring.Monitor
	Metrics     *monitoring.MetricsCollector
	JWTSecret   string
	CORSOrigins []string
	// KeepAlive bounds how long a live subscriber waits before a keep-alive
	KeepAlive time.Duration
}

// Server is the HTTP surface of the planner
type Server struct {
	Router    *gin.Engine
	planner   Planner
	store     Store
	feed      Feed
	snapshots Snapshots
	monitor   *monitoring.Monitor
	metrics   *monitoring.MetricsCollector
	keepAlive time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// NewServer creates a server with every route registered
func NewServer(opts Options, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors(opts.CORSOrigins))

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = broadcast.DefaultWait
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = monitoring.NewMonitor()
	}

	s := &Server{
		Router:    router,
		planner:   opts.Planner,
		store:     opts.Store,
		feed:      opts.Feed,
		snapshots: opts.Snapshots,
		monitor:   monitor,
		metrics:   opts.Metrics,
		keepAlive: keepAlive,
		now:       time.Now,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes(AuthMiddleware(opts.JWTSecret))
	return s
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(guard gin.HandlerFunc) {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.Router.Group("/api")
	{
		api.GET("/metrics", s.GetMetrics)
		api.POST("/snapshots", guard, s.PostSnapshot)
		api.GET("/recommendations", s.GetRecommendations)
		api.GET("/readiness", s.GetReadiness)
		api.GET("/status", s.GetStatus)

		api.GET("/analytics/history", s.GetHistory)
		api.GET("/analytics/live", s.StreamSSE)
		api.GET("/analytics/ws", s.StreamWebSocket)

		api.POST("/feedback", guard, s.PostFeedback)
		api.GET("/feedback/summary", s.GetFeedbackSummary)

		api.GET("/business-profile", s.GetBusinessProfile)
		api.POST("/business-profile", guard, s.UpdateBusinessProfile)
		api.POST("/business-profile/reset", guard, s.ResetBusinessProfile)
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// live streams are logged by their handlers
		if strings.HasPrefix(c.FullPath(), "/api/analytics/live") || strings.HasPrefix(c.FullPath(), "/api/analytics/ws") {
			return
		}
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func cors(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
