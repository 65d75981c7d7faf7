package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"frycast/internal/forecast"
	"frycast/internal/models"
)

// ErrUnknownItem is returned when an item key is not in the current catalog
var ErrUnknownItem = errors.New("unknown item")

const (
	defaultHorizonMin       = 8.0
	defaultDropCadenceMin   = 4.0
	defaultAvgTicketUSD     = 10.5
	defaultDecisionInterval = 30 * time.Second
	minDecisionInterval     = 5 * time.Second
	fallbackConfidence      = 0.45
)

// Options configures the planning policy. A zero CookTime derives the cook time
// from the drop cadence.
type Options struct {
	HorizonMin       float64
	DropCadenceMin   float64
	DecisionInterval time.Duration
	CookTime         time.Duration
	AvgTicketUSD     float64
	UrgencyMedium    float64
	UrgencyHigh      float64
	Policy           forecast.Policy
}

// DefaultOptions returns the demo planning policy
func DefaultOptions() Options {
	return Options{
		HorizonMin:       defaultHorizonMin,
		DropCadenceMin:   defaultDropCadenceMin,
		DecisionInterval: defaultDecisionInterval,
		AvgTicketUSD:     defaultAvgTicketUSD,
		UrgencyMedium:    0.25,
		UrgencyHigh:      0.5,
		Policy:           forecast.DefaultPolicy(),
	}
}

func (o Options) normalized() Options {
	if o.HorizonMin <= 0 {
		o.HorizonMin = defaultHorizonMin
	}
	if o.DropCadenceMin <= 0 {
		o.DropCadenceMin = defaultDropCadenceMin
	}
	if o.DecisionInterval == 0 {
		o.DecisionInterval = defaultDecisionInterval
	}
	o.DecisionInterval = max(minDecisionInterval, o.DecisionInterval)
	if o.CookTime > 0 {
		o.CookTime = max(minCookTime, o.CookTime)
	}
	if o.AvgTicketUSD <= 0 {
		o.AvgTicketUSD = defaultAvgTicketUSD
	}
	th := forecast.NewThresholds(o.UrgencyMedium, o.UrgencyHigh)
	o.UrgencyMedium, o.UrgencyHigh = th.Medium, th.High

	defaults := forecast.DefaultPolicy()
	if o.Policy.HistorySize < 2 {
		o.Policy.HistorySize = defaults.HistorySize
	}
	if o.Policy.StabilizerWindow < 1 {
		o.Policy.StabilizerWindow = defaults.StabilizerWindow
	}
	if o.Policy.TrendBoost == (forecast.ByQueue{}) {
		o.Policy.TrendBoost = defaults.TrendBoost
	}
	if o.Policy.SafetyRatio == (forecast.ByQueue{}) {
		o.Policy.SafetyRatio = defaults.SafetyRatio
	}
	if o.Policy.SurgeThreshold == 0 && o.Policy.FallThreshold == 0 {
		o.Policy.SurgeThreshold = defaults.SurgeThreshold
		o.Policy.FallThreshold = defaults.FallThreshold
	}
	return o
}

// Engine turns business snapshots into fry-drop recommendations. A single mutex
// covers each advance and plan cycle so feedback never observes a half-updated tick.
// commitMu orders feedback commits against Configure and is always taken before mu.
type Engine struct {
	mu         sync.Mutex
	commitMu   sync.Mutex
	opts       Options
	thresholds forecast.Thresholds
	catalog    atomic.Pointer[catalog]
	trend      *forecast.Estimator
	inventory  map[string]*inventory
	feedback   map[string]*FeedbackState
	lastUnits  map[string]int
	clock      decisionClock
	latest     *models.Recommendation
	now        func() time.Time
	logger     zerolog.Logger
}

// New creates an engine with profile applied
func New(opts Options, profile models.BusinessProfile, logger zerolog.Logger) (*Engine, error) {
	opts = opts.normalized()
	e := &Engine{
		opts:       opts,
		thresholds: forecast.NewThresholds(opts.UrgencyMedium, opts.UrgencyHigh),
		trend:      forecast.NewEstimator(opts.Policy.HistorySize, opts.Policy.StabilizerWindow),
		feedback:   make(map[string]*FeedbackState),
		clock:      decisionClock{interval: opts.DecisionInterval},
		now:        time.Now,
		logger:     logger.With().Str("component", "engine").Logger(),
	}
	if _, err := e.Configure(profile); err != nil {
		return nil, fmt.Errorf("failed to apply business profile: %w", err)
	}
	return e, nil
}

// Options returns the normalized planning policy
func (e *Engine) Options() Options {
	return e.opts
}

// Latest returns a copy of the last generated recommendation
func (e *Engine) Latest() (models.Recommendation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.latest == nil {
		return models.Recommendation{}, false
	}
	return cloneRecommendation(*e.latest), true
}

// Pending returns the in-flight cook lots per item
func (e *Engine) Pending() map[string][]CookLot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string][]CookLot, len(e.inventory))
	for key, inv := range e.inventory {
		out[key] = inv.pending()
	}
	return out
}

// Generate runs one advance and plan cycle for snapshot. Unhealthy snapshots take the
// fallback path: no trend, confidence pinned low and no impact estimate.
func (e *Engine) Generate(snapshot models.Snapshot) models.Recommendation {
	now := snapshot.Timestamp
	if now.IsZero() {
		now = e.now()
	}
	now = now.UTC()
	current := max(0, snapshot.Aggregates.TotalCustomers)
	healthy := snapshot.StreamStatus.Healthy()

	e.mu.Lock()
	defer e.mu.Unlock()

	cat := e.catalog.Load()
	f := models.Forecast{
		HorizonMin:       models.Round(e.opts.HorizonMin, 1),
		QueueState:       models.QueueUnavailable,
		CurrentCustomers: models.Round(current, 1),
		Confidence:       fallbackConfidence,
	}
	projected := current
	stabilized := current
	trend := 0.0
	if healthy {
		e.trend.Observe(now, current)
		trend = e.trend.TrendPerMinute()
		f.QueueState = e.opts.Policy.QueueState(trend)
		stabilized = e.trend.StabilizedLoad(current)
		projected = e.opts.Policy.Project(stabilized, trend, e.opts.HorizonMin, f.QueueState)
		f.Confidence = forecast.Confidence(e.trend.Len(), snapshot.Performance.ProcessingFPS)
	}
	f.TrendCustomersPerMin = models.Round(trend, 2)
	f.StabilizedCustomers = models.Round(stabilized, 1)
	f.ProjectedCustomers = models.Round(projected, 1)

	cadence := cat.profile.DropCadenceMin
	window := max(cadence, e.opts.DecisionInterval.Minutes())
	f.DecisionWindowMinutes = models.Round(window, 1)
	cutoff := now.Add(time.Duration(window * float64(time.Minute)))
	safety := e.opts.Policy.SafetyRatio.For(f.QueueState)
	intervalSec := int(math.Round(e.opts.DecisionInterval.Seconds()))

	due, remaining := e.clock.isDue(now)
	if due {
		remaining = intervalSec
	}

	items := make([]models.ItemRecommendation, 0, len(cat.items()))
	var wasteUnits, costSaved float64
	for _, item := range cat.items() {
		inv := e.inventoryFor(item)
		inv.advance(now, projected, cadence, item.UnitsPerOrder, item.MaxUnitSize)
		fb := e.feedbackFor(item.Key)

		windowDemand := demandRate(projected, cadence, item.UnitsPerOrder) * window
		supply := inv.ready + float64(inv.fryerUnits(cutoff))
		shortfall := forecast.ShortfallRatio(windowDemand*(1+safety), supply)

		units := e.lastUnits[item.Key]
		capped := false
		if due {
			units, capped = targetUnits(projected, item.UnitsPerOrder, fb.Multiplier, item.MaxUnitSize)
			inv.commit(units, now.Add(cat.cookTime))
			e.lastUnits[item.Key] = units
		}

		baseline := item.BaselineUnits()
		saved := max(0, baseline-units)
		wasteUnits += float64(saved)
		costSaved += float64(saved) * item.UnitCostUSD

		ready := int(math.Round(inv.ready))
		fryer := inv.fryerUnits(time.Time{})
		items = append(items, models.ItemRecommendation{
			Item:                      item.Key,
			Label:                     item.Label,
			RecommendedUnits:          units,
			BaselineUnits:             baseline,
			MaxUnitSize:               item.MaxUnitSize,
			UnitLabel:                 item.Units(),
			DeltaUnits:                units - baseline,
			ForecastWindowDemandUnits: models.Round(windowDemand, 1),
			ReadyInventoryUnits:       ready,
			FryerInventoryUnits:       fryer,
			ShortfallRatio:            models.Round(shortfall, 2),
			Urgency:                   e.thresholds.Classify(shortfall),
			FeedbackMultiplier:        models.Round(fb.Multiplier, 3),
			FeedbackEvents:            fb.Events,
			DecisionLocked:            !due,
			NextDecisionInSec:         remaining,
			Capped:                    capped,
			Reason: Rationale{
				Due:          due,
				Fallback:     !healthy,
				Capped:       capped,
				Units:        units,
				MaxUnits:     item.MaxUnitSize,
				Ready:        ready,
				Fryer:        fryer,
				WindowDemand: windowDemand,
				WindowMin:    window,
				IntervalSec:  intervalSec,
				RemainingSec: remaining,
				UnitLabel:    item.Units(),
			}.String(),
		})
	}
	if due {
		e.clock.mark(now)
		e.logger.Debug().
			Str("queue_state", string(f.QueueState)).
			Float64("projected_customers", f.ProjectedCustomers).
			Int("items", len(items)).
			Msg("decision tick")
	}

	impact := models.Impact{CurrentWaitTimeMin: models.Round(snapshot.Aggregates.EstimatedWaitTimeMin, 1)}
	if healthy {
		impact = estimateImpact(projected, wasteUnits, costSaved, cat.profile.AvgTicketUSD, snapshot.Aggregates.EstimatedWaitTimeMin)
	}

	rec := models.Recommendation{
		Timestamp: now,
		Business: models.BusinessSummary{
			Name:         cat.profile.BusinessName,
			Type:         cat.profile.BusinessType,
			Location:     cat.profile.Location,
			ServiceModel: cat.profile.ServiceModel,
		},
		Forecast:        f,
		Recommendations: items,
		Impact:          impact,
		Assumptions: models.Assumptions{
			DropCadenceMin:      models.Round(cadence, 1),
			DecisionIntervalSec: intervalSec,
			CookTimeSec:         int(math.Round(cat.cookTime.Seconds())),
			AvgTicketUSD:        models.RoundUSD(cat.profile.AvgTicketUSD),
			UrgencyMediumRatio:  e.thresholds.Medium,
			UrgencyHighRatio:    e.thresholds.High,
			Notes:               policyNotes(intervalSec, healthy, snapshot.StreamError),
		},
	}
	e.latest = &rec
	return cloneRecommendation(rec)
}

// inventoryFor must be called with e.mu held
func (e *Engine) inventoryFor(item models.ItemProfile) *inventory {
	inv, ok := e.inventory[item.Key]
	if !ok {
		inv = newInventory(item.BaselineUnits())
		e.inventory[item.Key] = inv
	}
	return inv
}

// targetUnits sizes a drop from the projected load, rounding half up and capping at maxUnits
func targetUnits(projected, unitsPerOrder, multiplier float64, maxUnits int) (int, bool) {
	raw := max(0, projected) * unitsPerOrder * multiplier
	units := int(math.Floor(raw + 0.5))
	if units > maxUnits {
		return maxUnits, true
	}
	return units, false
}

func policyNotes(intervalSec int, healthy bool, streamError string) []string {
	notes := []string{
		"Recommendations cover the next cook cycle.",
		fmt.Sprintf("Quantities refresh every %ds and each refresh is treated as an immediate fryer drop.", intervalSec),
		"Ready and in-fryer inventory are tracked per menu item.",
		"Impact figures are directional estimates for decision support.",
	}
	if !healthy {
		notes = append(notes, "Live stream unavailable; trend extrapolation is disabled.")
		if streamError != "" {
			notes = append(notes, "Stream issue: "+streamError)
		}
	}
	return notes
}

func cloneRecommendation(rec models.Recommendation) models.Recommendation {
	rec.Recommendations = append([]models.ItemRecommendation(nil), rec.Recommendations...)
	rec.Assumptions.Notes = append([]string(nil), rec.Assumptions.Notes...)
	return rec
}
