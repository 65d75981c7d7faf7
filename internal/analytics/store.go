package analytics

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"

	"frycast/internal/evaluation"
	"frycast/internal/models"
)

// History and summary bounds
const (
	DefaultHistoryMinutes = 60
	MaxHistoryMinutes     = 1440
	DefaultHistoryLimit   = 3600
	MinHistoryLimit       = 60
	MaxHistoryLimit       = 20000
	MaxBucketSeconds      = 120

	DefaultSummaryMinutes = 1440
	MinSummaryMinutes     = 5
	MaxSummaryMinutes     = 10080
	DefaultSummaryLimit   = 200
	MinSummaryLimit       = 10
	MaxSummaryLimit       = 2000
)

// SweepObserver is notified after every evaluator sweep that changed something
type SweepObserver interface {
	ObserveSweep(result evaluation.SweepResult)
}

// SweepObserverFunc adapts a function to SweepObserver
type SweepObserverFunc func(result evaluation.SweepResult)

// ObserveSweep calls f(result)
func (f SweepObserverFunc) ObserveSweep(result evaluation.SweepResult) { f(result) }

// Store owns the durable analytics tables. A single lock serializes every read and
// write, and every feedback read or write runs an evaluator sweep first.
type Store struct {
	mu        sync.Mutex
	db        *gorm.DB
	evaluator *evaluation.Evaluator
	observers []SweepObserver
	now       func() time.Time
	logger    zerolog.Logger
}

// NewStore creates a store on an already migrated database
func NewStore(db *gorm.DB, logger zerolog.Logger, observers ...SweepObserver) *Store {
	return &Store{
		db:        db,
		evaluator: evaluation.NewEvaluator(logger),
		observers: observers,
		now:       time.Now,
		logger:    logger.With().Str("component", "analytics_store").Logger(),
	}
}

// AppendMetric inserts point and sets its id
func (s *Store) AppendMetric(point *models.MetricPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	point.Timestamp = point.Timestamp.UTC()
	if err := s.db.Create(point).Error; err != nil {
		return fmt.Errorf("failed to append metric point: %w", err)
	}
	return nil
}

// LoadRecent returns up to limit of the newest points in ascending id order
func (s *Store) LoadRecent(limit int) ([]models.MetricPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var points []models.MetricPoint
	if err := s.db.Order("id desc").Limit(max(1, limit)).Find(&points).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent metric points: %w", err)
	}
	slices.Reverse(points)
	return points, nil
}

// HistoryQuery selects a window of metric points, optionally bucketed
type HistoryQuery struct {
	WindowMinutes int `form:"minutes"`
	Limit         int `form:"limit"`
	BucketSeconds int `form:"bucket_sec"`
}

// Normalize fills defaults and clamps every field into its accepted range
func (q HistoryQuery) Normalize() HistoryQuery {
	if q.WindowMinutes <= 0 {
		q.WindowMinutes = DefaultHistoryMinutes
	}
	q.WindowMinutes = min(q.WindowMinutes, MaxHistoryMinutes)
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	q.Limit = min(max(q.Limit, MinHistoryLimit), MaxHistoryLimit)
	q.BucketSeconds = min(max(q.BucketSeconds, 1), MaxBucketSeconds)
	return q
}

// History returns metric points newer than the window in ascending order, averaged
// into buckets when BucketSeconds is above one
func (s *Store) History(q HistoryQuery) ([]models.MetricPoint, error) {
	q = q.Normalize()

	s.mu.Lock()
	since := s.now().UTC().Add(-time.Duration(q.WindowMinutes) * time.Minute)
	var points []models.MetricPoint
	err := s.db.Where("timestamp >= ?", since).Order("id desc").Limit(q.Limit).Find(&points).Error
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	slices.Reverse(points)
	if q.BucketSeconds > 1 {
		points = Bucket(points, q.BucketSeconds)
	}
	return points, nil
}

// Bucket averages numeric fields per bucket of width seconds and keeps the latest
// categorical values. Each bucket takes its start time and its newest id.
func Bucket(points []models.MetricPoint, seconds int) []models.MetricPoint {
	if seconds <= 1 || len(points) == 0 {
		return points
	}

	type acc struct {
		point                                              models.MetricPoint
		n                                                  float64
		customers, wait, trend, confidence, fps, projected float64
		revenue, reduction                                 float64
	}

	width := int64(seconds)
	var out []models.MetricPoint
	var cur *acc
	var curKey int64
	flush := func() {
		if cur == nil {
			return
		}
		p := cur.point
		p.TotalCustomers = models.Round(cur.customers/cur.n, 2)
		p.WaitMinutes = models.Round(cur.wait/cur.n, 2)
		p.Trend = models.Round(cur.trend/cur.n, 3)
		p.Confidence = models.Round(cur.confidence/cur.n, 3)
		p.ProcessingFPS = models.Round(cur.fps/cur.n, 2)
		p.ProjectedCustomers = models.Round(cur.projected/cur.n, 2)
		p.RevenueProtectedUSD = models.Round(cur.revenue/cur.n, 2)
		p.WaitReductionMin = models.Round(cur.reduction/cur.n, 2)
		out = append(out, p)
	}

	for _, p := range points {
		epoch := p.Timestamp.Unix()
		key := epoch - epoch%width
		if cur == nil || key != curKey {
			flush()
			cur = &acc{}
			curKey = key
			cur.point.Timestamp = time.Unix(key, 0).UTC()
		}
		cur.n++
		cur.customers += p.TotalCustomers
		cur.wait += p.WaitMinutes
		cur.trend += p.Trend
		cur.confidence += p.Confidence
		cur.fps += p.ProcessingFPS
		cur.projected += p.ProjectedCustomers
		cur.revenue += p.RevenueProtectedUSD
		cur.reduction += p.WaitReductionMin
		cur.point.ID = max(cur.point.ID, p.ID)
		cur.point.StreamStatus = p.StreamStatus
		cur.point.QueueState = p.QueueState
	}
	flush()
	return out
}

// FeedbackInput is an operator action together with the planning context it was taken in
type FeedbackInput struct {
	Item               models.ItemProfile
	Action             models.FeedbackAction
	RecommendedUnits   int
	ChosenUnits        int
	Note               string
	HorizonMin         float64
	ProjectedCustomers float64
	QueueState         models.QueueState
	AvgTicketUSD       float64
	FeedbackMultiplier float64
}

// newRecord bounds the input and derives the expected savings against the baseline
func newRecord(in FeedbackInput, now time.Time) models.RecommendationRecord {
	maxUnits := max(1, in.Item.MaxUnitSize)
	clampUnits := func(v int) int { return min(max(v, 0), maxUnits) }

	recommended := clampUnits(in.RecommendedUnits)
	chosen := clampUnits(in.ChosenUnits)
	baseline := clampUnits(in.Item.BaselineUnits())
	wasteAvoided, costSaved := evaluation.ExpectedSavings(baseline, chosen, in.Item.UnitCostUSD)

	var note *string
	if trimmed := strings.TrimSpace(in.Note); trimmed != "" {
		note = &trimmed
	}
	queue := in.QueueState
	if queue == "" {
		queue = models.QueueUnavailable
	}
	multiplier := in.FeedbackMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}

	return models.RecommendationRecord{
		Timestamp:                 now.UTC(),
		ItemKey:                   in.Item.Key,
		ItemLabel:                 in.Item.Label,
		Action:                    in.Action,
		Note:                      note,
		RecommendedUnits:          recommended,
		ChosenUnits:               chosen,
		BaselineUnits:             baseline,
		MaxUnitSize:               maxUnits,
		UnitCostUSD:               max(0, in.Item.UnitCostUSD),
		UnitsPerOrder:             max(0.01, in.Item.UnitsPerOrder),
		ForecastHorizonMin:        max(0.5, in.HorizonMin),
		ProjectedCustomers:        models.Round(max(0, in.ProjectedCustomers), 2),
		QueueState:                queue,
		AvgTicketUSD:              max(0, in.AvgTicketUSD),
		FeedbackMultiplier:        models.Round(multiplier, 4),
		ExpectedCostSavedUSD:      costSaved,
		ExpectedWasteAvoidedUnits: wasteAvoided,
		RecordOutcome:             models.RecordOutcome{OutcomeStatus: models.OutcomePending},
	}
}

// RecordFeedback evaluates any due outcomes and then inserts the feedback record
func (s *Store) RecordFeedback(in FeedbackInput) (models.RecommendationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, err := s.sweepLocked(now); err != nil {
		return models.RecommendationRecord{}, err
	}

	record := newRecord(in, now)
	if err := s.db.Create(&record).Error; err != nil {
		return models.RecommendationRecord{}, fmt.Errorf("failed to store feedback: %w", err)
	}
	s.logger.Info().
		Uint("id", record.ID).
		Str("item", record.ItemKey).
		Str("action", string(record.Action)).
		Int("chosen_units", record.ChosenUnits).
		Msg("feedback recorded")
	return record, nil
}

// FeedbackSummary evaluates any due outcomes and aggregates the newest records in the window
func (s *Store) FeedbackSummary(windowMinutes, limit int) (evaluation.Summary, error) {
	if windowMinutes <= 0 {
		windowMinutes = DefaultSummaryMinutes
	}
	windowMinutes = min(max(windowMinutes, MinSummaryMinutes), MaxSummaryMinutes)
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	limit = min(max(limit, MinSummaryLimit), MaxSummaryLimit)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, err := s.sweepLocked(now); err != nil {
		return evaluation.Summary{}, err
	}

	since := now.UTC().Add(-time.Duration(windowMinutes) * time.Minute)
	var records []models.RecommendationRecord
	err := s.db.Where("timestamp >= ?", since).Order("id desc").Limit(limit).Find(&records).Error
	if err != nil {
		return evaluation.Summary{}, fmt.Errorf("failed to load feedback: %w", err)
	}
	return evaluation.Summarize(records, windowMinutes, now), nil
}

// Sweep runs the outcome evaluator on its own
func (s *Store) Sweep() (evaluation.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// sweepLocked must be called with s.mu held
func (s *Store) sweepLocked(now time.Time) (evaluation.SweepResult, error) {
	result, err := s.evaluator.Sweep(s.db, now)
	if err != nil {
		return result, err
	}
	if result.Evaluated+result.Insufficient > 0 {
		for _, o := range s.observers {
			o.ObserveSweep(result)
		}
	}
	return result, nil
}
