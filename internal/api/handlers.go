package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"frycast/internal/analytics"
	"frycast/internal/engine"
	"frycast/internal/ingest"
	"frycast/internal/models"
)

const (
	maxNoteLength = 500
	// newest points shown by the status endpoint
	statusRecentPoints = 10
)

var errInvalidFeedback = errors.New("invalid feedback")

// GetMetrics returns the latest sampled snapshot, or the intake's when nothing was sampled yet
func (s *Server) GetMetrics(c *gin.Context) {
	if snapshot, ok := s.feed.LatestSnapshot(); ok {
		c.JSON(http.StatusOK, snapshot)
		return
	}
	c.JSON(http.StatusOK, s.snapshots.Snapshot())
}

// PostSnapshot accepts a business snapshot from the video pipeline
func (s *Server) PostSnapshot(c *gin.Context) {
	var snapshot models.Snapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted, err := s.snapshots.Push(snapshot)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidSnapshot) {
			s.monitor.RecordError("intake", err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.monitor.RecordMetric("last_snapshot_at", accepted.Timestamp.Format(time.RFC3339))
	s.monitor.RecordMetric("snapshot_stream_status", string(accepted.StreamStatus))
	c.JSON(http.StatusAccepted, accepted)
}

// GetRecommendations returns the latest published recommendation. Before the first
// sample it falls back to the planner's last decision, and plans directly from the
// intake's snapshot only when there is none.
func (s *Server) GetRecommendations(c *gin.Context) {
	if rec, ok := s.feed.LatestRecommendation(); ok {
		c.JSON(http.StatusOK, rec)
		return
	}
	if rec, ok := s.planner.Latest(); ok {
		c.JSON(http.StatusOK, rec)
		return
	}
	c.JSON(http.StatusOK, s.planner.Generate(s.snapshots.Snapshot()))
}

// GetReadiness scores whether the live planner can be trusted
func (s *Server) GetReadiness(c *gin.Context) {
	now := s.now()
	snapshot := s.snapshots.Snapshot()
	if age, ok := s.snapshots.Age(); ok {
		snapshot.Timestamp = now.Add(-age)
	}
	c.JSON(http.StatusOK, ScoreReadiness(snapshot, s.planner.Profile(), now))
}

// GetStatus returns the runtime monitor counters along with the planner's feedback
// multipliers, in-flight cook lots and the newest live points
func (s *Server) GetStatus(c *gin.Context) {
	opts := s.planner.Options()
	c.JSON(http.StatusOK, gin.H{
		"metrics":               s.monitor.GetMetrics(),
		"latest_id":             s.feed.LatestID(),
		"recent":                s.feed.Recent(statusRecentPoints),
		"feedback":              s.planner.FeedbackStates(),
		"pending_lots":          s.planner.Pending(),
		"forecast_horizon_min":  opts.HorizonMin,
		"decision_interval_sec": opts.DecisionInterval.Seconds(),
	})
}

// GetHistory returns stored metric points over a bounded window
func (s *Server) GetHistory(c *gin.Context) {
	var q analytics.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q = q.Normalize()

	points, err := s.store.History(q)
	if err != nil {
		s.logger.Error().Err(err).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if points == nil {
		points = []models.MetricPoint{}
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp":      s.now().UTC(),
		"window_minutes": q.WindowMinutes,
		"bucket_sec":     q.BucketSeconds,
		"count":          len(points),
		"points":         points,
	})
}

type feedbackRequest struct {
	Item             string `json:"item" binding:"required"`
	Action           string `json:"action" binding:"required"`
	RecommendedUnits *int   `json:"recommended_units"`
	ChosenUnits      *int   `json:"chosen_units"`
	Note             string `json:"note"`
}

// PostFeedback records an operator accept, override or ignore and feeds it back
// into the item's multiplier
func (s *Server) PostFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, ok := models.ParseFeedbackAction(req.Action)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "action must be accept, override or ignore"})
		return
	}
	if utf8.RuneCountInString(req.Note) > maxNoteLength {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "note must be at most 500 characters"})
		return
	}

	var record models.RecommendationRecord
	state, err := s.planner.ApplyFeedback(req.Item, action, func(fc engine.FeedbackContext) (int, int, error) {
		recommended, chosen, err := feedbackUnits(req, action, fc)
		if err != nil {
			return 0, 0, err
		}
		record, err = s.store.RecordFeedback(analytics.FeedbackInput{
			Item:               fc.Item,
			Action:             action,
			RecommendedUnits:   recommended,
			ChosenUnits:        chosen,
			Note:               req.Note,
			HorizonMin:         fc.HorizonMin,
			ProjectedCustomers: fc.Projected,
			QueueState:         fc.QueueState,
			AvgTicketUSD:       fc.AvgTicketUSD,
			FeedbackMultiplier: fc.Feedback.Multiplier,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("failed to record feedback: %w", err)
		}
		return record.RecommendedUnits, record.ChosenUnits, nil
	})
	if err != nil {
		s.feedbackError(c, req.Item, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveFeedback(record.ItemKey, action, state.Multiplier)
	}

	c.JSON(http.StatusCreated, gin.H{
		"record":   record,
		"feedback": state,
	})
}

// feedbackUnits fills in the units the operator left out. Recommended defaults to the
// live recommendation, then the baseline; accept chooses the recommendation and ignore
// the baseline.
func feedbackUnits(req feedbackRequest, action models.FeedbackAction, fc engine.FeedbackContext) (int, int, error) {
	recommended := fc.Item.BaselineUnits()
	if fc.Latest != nil {
		recommended = fc.Latest.RecommendedUnits
	}
	if req.RecommendedUnits != nil {
		recommended = *req.RecommendedUnits
	}

	var chosen int
	switch {
	case req.ChosenUnits != nil:
		chosen = *req.ChosenUnits
	case action == models.ActionAccept:
		chosen = recommended
	case action == models.ActionIgnore:
		chosen = fc.Item.BaselineUnits()
	default:
		return 0, 0, fmt.Errorf("%w: chosen_units is required for override", errInvalidFeedback)
	}
	if chosen < 0 || recommended < 0 {
		return 0, 0, fmt.Errorf("%w: units must not be negative", errInvalidFeedback)
	}
	return recommended, chosen, nil
}

func (s *Server) feedbackError(c *gin.Context, item string, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownItem):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errInvalidFeedback):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.logger.Error().Err(err).Str("item", item).Msg("feedback failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetFeedbackSummary aggregates adoption and realized outcomes
func (s *Server) GetFeedbackSummary(c *gin.Context) {
	minutes, err := queryInt(c, "minutes", analytics.DefaultSummaryMinutes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := queryInt(c, "limit", analytics.DefaultSummaryLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := s.store.FeedbackSummary(minutes, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("feedback summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetBusinessProfile returns the applied profile
func (s *Server) GetBusinessProfile(c *gin.Context) {
	c.JSON(http.StatusOK, s.planner.Profile())
}

// UpdateBusinessProfile validates and applies a new profile
func (s *Server) UpdateBusinessProfile(c *gin.Context) {
	var profile models.BusinessProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	applied, err := s.planner.Configure(profile)
	if err != nil {
		if errors.Is(err, models.ErrInvalidProfile) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.profileApplied(applied)
	c.JSON(http.StatusOK, applied)
}

// ResetBusinessProfile restores the sample profile
func (s *Server) ResetBusinessProfile(c *gin.Context) {
	applied, err := s.planner.Reset()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.profileApplied(applied)
	c.JSON(http.StatusOK, applied)
}

func (s *Server) profileApplied(profile models.BusinessProfile) {
	if s.metrics != nil {
		s.metrics.ResetItems()
	}
	s.monitor.RecordMetric("business_name", profile.BusinessName)
	s.monitor.RecordMetric("menu_items", len(profile.MenuItems))
	s.monitor.RecordMetric("profile_applied_at", s.now().UTC().Format(time.RFC3339))
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}
