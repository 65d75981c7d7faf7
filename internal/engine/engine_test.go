package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frycast/internal/models"
)

func newTestEngine(t *testing.T, profile models.BusinessProfile) *Engine {
	t.Helper()
	e, err := New(DefaultOptions(), profile, zerolog.Nop())
	require.NoError(t, err)
	return e
}

func okSnapshot(ts time.Time, customers float64) models.Snapshot {
	return models.Snapshot{
		Timestamp:    ts,
		StreamStatus: models.StreamOK,
		Aggregates:   models.Aggregates{TotalCustomers: customers, EstimatedWaitTimeMin: 2.5},
		Performance:  models.Performance{ProcessingFPS: 15},
	}
}

func units(recommended, chosen int) FeedbackFunc {
	return func(FeedbackContext) (int, int, error) {
		return recommended, chosen, nil
	}
}

// feedbackContext captures the context ApplyFeedback hands out without applying anything
func feedbackContext(e *Engine, key string) (FeedbackContext, error) {
	var fc FeedbackContext
	_, err := e.ApplyFeedback(key, models.ActionAccept, func(got FeedbackContext) (int, int, error) {
		fc = got
		return 0, 0, errSkip
	})
	if errors.Is(err, errSkip) {
		err = nil
	}
	return fc, err
}

var errSkip = errors.New("skip")

func singleItemProfile(unitsPerOrder float64, maxUnits int) models.BusinessProfile {
	return models.BusinessProfile{
		BusinessName:   "Test Fry",
		BusinessType:   "Fast Food",
		Location:       "Test",
		ServiceModel:   "Counter",
		DropCadenceMin: 4,
		AvgTicketUSD:   10,
		MenuItems: []models.ItemProfile{
			{Label: "Fries", UnitsPerOrder: unitsPerOrder, BatchSize: 2, MaxUnitSize: maxUnits, BaselineDropUnits: 4, UnitCostUSD: 0.5},
		},
	}
}

func TestTargetUnits(t *testing.T) {
	units, capped := targetUnits(21, 0.5, 1, 10)
	assert.Equal(t, 10, units)
	assert.True(t, capped)

	units, capped = targetUnits(21, 0.5, 1, 20)
	assert.Equal(t, 11, units)
	assert.False(t, capped)

	units, _ = targetUnits(-4, 0.5, 1, 20)
	assert.Equal(t, 0, units)
}

func TestGenerate_RoundsHalfUpThenCaps(t *testing.T) {
	e := newTestEngine(t, singleItemProfile(0.5, 10))

	rec := e.Generate(okSnapshot(t0, 21))

	require.Len(t, rec.Recommendations, 1)
	item := rec.Recommendations[0]
	assert.Equal(t, "fries", item.Item)
	assert.Equal(t, 10, item.RecommendedUnits)
	assert.True(t, item.Capped)
	assert.Contains(t, item.Reason, "Capped at 10 units")
	assert.Equal(t, 6, item.DeltaUnits)
	assert.Equal(t, 10, item.FryerInventoryUnits)
}

func TestGenerate_DecisionLock(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))

	first := e.Generate(okSnapshot(t0, 10))
	second := e.Generate(okSnapshot(t0.Add(time.Second), 30))

	require.Len(t, second.Recommendations, len(first.Recommendations))
	for i := range first.Recommendations {
		assert.Equal(t, first.Recommendations[i].RecommendedUnits, second.Recommendations[i].RecommendedUnits)
		assert.False(t, first.Recommendations[i].DecisionLocked)
		assert.True(t, second.Recommendations[i].DecisionLocked)
		assert.Equal(t, 29, second.Recommendations[i].NextDecisionInSec)
	}

	// the locked tick must not commit another lot
	for key, lots := range e.Pending() {
		assert.LessOrEqual(t, len(lots), 1, key)
	}
}

func TestGenerate_FutureDatedSnapshotDoesNotFreezeDecisions(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))

	e.Generate(okSnapshot(t0.Add(24*time.Hour), 10))
	first := e.Generate(okSnapshot(t0, 10))
	later := e.Generate(okSnapshot(t0.Add(time.Minute), 40))

	for i := range later.Recommendations {
		assert.False(t, first.Recommendations[i].DecisionLocked)
		assert.False(t, later.Recommendations[i].DecisionLocked)
		assert.Greater(t, later.Recommendations[i].RecommendedUnits, first.Recommendations[i].RecommendedUnits)
	}
	assert.Greater(t, later.Forecast.TrendCustomersPerMin, 0.0)
}

func TestGenerate_SurgingTrend(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))

	e.Generate(okSnapshot(t0, 5))
	rec := e.Generate(okSnapshot(t0.Add(60*time.Second), 9))

	assert.Equal(t, 4.0, rec.Forecast.TrendCustomersPerMin)
	assert.Equal(t, models.QueueSurging, rec.Forecast.QueueState)
	assert.Greater(t, rec.Forecast.ProjectedCustomers, rec.Forecast.CurrentCustomers)
	assert.Equal(t, 4.0, rec.Forecast.DecisionWindowMinutes)

	above := false
	for _, item := range rec.Recommendations {
		if item.RecommendedUnits > item.BaselineUnits {
			above = true
		}
	}
	assert.True(t, above, "expected at least one item above baseline")

	fillets, ok := rec.Item("fillets")
	require.True(t, ok)
	assert.Equal(t, 21, fillets.RecommendedUnits)
	assert.Greater(t, rec.Impact.EstimatedRevenueProtectedUSD, 0.0)
}

func TestGenerate_FallbackPath(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))

	rec := e.Generate(models.Snapshot{
		Timestamp:    t0,
		StreamStatus: models.StreamError,
		StreamError:  "rtsp timeout",
		Aggregates:   models.Aggregates{TotalCustomers: 12, EstimatedWaitTimeMin: 4.2},
	})

	assert.Equal(t, models.QueueUnavailable, rec.Forecast.QueueState)
	assert.Equal(t, 0.45, rec.Forecast.Confidence)
	assert.Zero(t, rec.Forecast.TrendCustomersPerMin)
	assert.Equal(t, 12.0, rec.Forecast.ProjectedCustomers)
	assert.Equal(t, models.Impact{CurrentWaitTimeMin: 4.2}, rec.Impact)
	assert.Contains(t, rec.Assumptions.Notes, "Stream issue: rtsp timeout")
	assert.Zero(t, e.trend.Len())

	fries, ok := rec.Item("fries")
	require.True(t, ok)
	assert.Equal(t, 9, fries.RecommendedUnits)
	assert.Contains(t, fries.Reason, "Live stream unavailable")
}

func TestGenerate_ShortfallDrivesUrgency(t *testing.T) {
	profile := singleItemProfile(1, 40)
	profile.MenuItems[0].BaselineDropUnits = 0
	e := newTestEngine(t, profile)

	rec := e.Generate(okSnapshot(t0, 20))

	item := rec.Recommendations[0]
	assert.Equal(t, 0, item.ReadyInventoryUnits)
	assert.Equal(t, 1.0, item.ShortfallRatio)
	assert.Equal(t, models.UrgencyHigh, item.Urgency)
	assert.Equal(t, 20.0, item.ForecastWindowDemandUnits)
}

func TestApplyFeedback_Bounds(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))

	var state FeedbackState
	var err error
	for i := 0; i < 200; i++ {
		state, err = e.ApplyFeedback("fries", models.ActionOverride, units(1, 100))
		require.NoError(t, err)
		assert.LessOrEqual(t, state.Multiplier, MaxMultiplier)
	}
	assert.Equal(t, MaxMultiplier, state.Multiplier)
	assert.Equal(t, 200, state.Events)

	for i := 0; i < 200; i++ {
		state, err = e.ApplyFeedback("nuggets", models.ActionIgnore, units(20, 0))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, state.Multiplier, MinMultiplier)
	}
	assert.Equal(t, MinMultiplier, state.Multiplier)

	prev := state.Multiplier
	for i := 0; i < 100; i++ {
		state, err = e.ApplyFeedback("nuggets", models.ActionAccept, units(10, 0))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, state.Multiplier, prev)
		assert.LessOrEqual(t, state.Multiplier, 1.0)
		prev = state.Multiplier
	}
	assert.InDelta(t, 1.0, state.Multiplier, 1e-6)
}

func TestNextMultiplier(t *testing.T) {
	assert.InDelta(t, 1.054, NextMultiplier(1, models.ActionOverride, 10, 13), 1e-9)
	assert.InDelta(t, 1.0, NextMultiplier(1, models.ActionAccept, 10, 0), 1e-9)
	// ignore with zero recommended uses a floor of one
	assert.InDelta(t, 0.82+0.18*0.65, NextMultiplier(1, models.ActionIgnore, 0, 0), 1e-9)
}

func TestApplyFeedback_UnknownItem(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))
	before := e.FeedbackStates()

	_, err := e.ApplyFeedback("onion_rings", models.ActionAccept, units(4, 4))
	assert.ErrorIs(t, err, ErrUnknownItem)

	called := false
	_, err = e.ApplyFeedback("onion_rings", models.ActionAccept, func(FeedbackContext) (int, int, error) {
		called = true
		return 1, 1, nil
	})
	assert.ErrorIs(t, err, ErrUnknownItem)
	assert.False(t, called)
	assert.Equal(t, before, e.FeedbackStates())
}

func TestApplyFeedback_ResolveErrorLeavesState(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))

	_, err := e.ApplyFeedback("fries", models.ActionOverride, func(FeedbackContext) (int, int, error) {
		return 0, 0, errors.New("database is locked")
	})
	require.EqualError(t, err, "database is locked")

	state := e.FeedbackStates()["fries"]
	assert.Zero(t, state.Events)
	assert.Equal(t, 1.0, state.Multiplier)
}

func TestApplyFeedback_HoldsOffConfigureButNotTicks(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))
	short := models.SampleBusinessProfile(4, 10.5)
	short.MenuItems = short.MenuItems[:2]

	configured := make(chan error, 1)
	state, err := e.ApplyFeedback("fries", models.ActionOverride, func(fc FeedbackContext) (int, int, error) {
		// planning carries on while the record is written
		rec := e.Generate(okSnapshot(t0, 10))
		assert.Len(t, rec.Recommendations, 4)

		go func() {
			_, err := e.Configure(short)
			configured <- err
		}()
		select {
		case err := <-configured:
			t.Error("menu replaced while feedback was in flight")
			configured <- err
		case <-time.After(50 * time.Millisecond):
		}
		assert.Equal(t, "fries", fc.Item.Key)
		return 10, 13, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, state.Events)

	require.NoError(t, <-configured)
	_, err = e.ApplyFeedback("fries", models.ActionAccept, units(4, 4))
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestApplyFeedback_ShiftsFutureTargets(t *testing.T) {
	e := newTestEngine(t, singleItemProfile(0.5, 40))
	base := e.Generate(okSnapshot(t0, 20)).Recommendations[0].RecommendedUnits

	for i := 0; i < 10; i++ {
		_, err := e.ApplyFeedback("fries", models.ActionOverride, units(10, 13))
		require.NoError(t, err)
	}
	next := e.Generate(okSnapshot(t0.Add(time.Minute), 20)).Recommendations[0]

	assert.Greater(t, next.RecommendedUnits, base)
	assert.Equal(t, 10, next.FeedbackEvents)
	assert.Greater(t, next.FeedbackMultiplier, 1.0)
}

func TestFeedbackContext(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))

	fc, err := feedbackContext(e, "fries")
	require.NoError(t, err)
	assert.Nil(t, fc.Latest)
	assert.Equal(t, 8.0, fc.HorizonMin)
	assert.Equal(t, 10.5, fc.AvgTicketUSD)

	e.Generate(okSnapshot(t0, 10))
	fc, err = feedbackContext(e, "fries")
	require.NoError(t, err)
	require.NotNil(t, fc.Latest)
	assert.Equal(t, "fries", fc.Latest.Item)
	assert.Equal(t, models.QueueSteady, fc.QueueState)
	assert.Equal(t, 1.0, fc.Feedback.Multiplier)
}

func TestConfigure_KeepsFeedbackForSurvivingKeys(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))
	e.Generate(okSnapshot(t0, 10))

	kept, err := e.ApplyFeedback("fillets", models.ActionOverride, units(10, 13))
	require.NoError(t, err)

	profile := models.SampleBusinessProfile(3, 12)
	profile.MenuItems = []models.ItemProfile{
		profile.MenuItems[0],
		{Label: "Spicy Wings", UnitsPerOrder: 0.4, BatchSize: 6, MaxUnitSize: 18, BaselineDropUnits: 6, UnitCostUSD: 0.8},
	}
	applied, err := e.Configure(profile)
	require.NoError(t, err)
	require.Len(t, applied.MenuItems, 2)
	assert.Equal(t, "spicy_wings", applied.MenuItems[1].Key)
	assert.Equal(t, "units", applied.MenuItems[1].UnitLabel)

	states := e.FeedbackStates()
	assert.Equal(t, kept, states["fillets"])
	assert.Equal(t, 1.0, states["spicy_wings"].Multiplier)
	assert.NotContains(t, states, "nuggets")

	_, ok := e.Latest()
	assert.False(t, ok)
	for _, lots := range e.Pending() {
		assert.Empty(t, lots)
	}

	_, err = e.ApplyFeedback("nuggets", models.ActionAccept, units(4, 4))
	assert.ErrorIs(t, err, ErrUnknownItem)

	rec := e.Generate(okSnapshot(t0.Add(time.Second), 10))
	assert.False(t, rec.Recommendations[0].DecisionLocked)
	assert.Equal(t, 180, rec.Assumptions.CookTimeSec)
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))

	full := models.SampleBusinessProfile(3, 12)
	short := models.SampleBusinessProfile(5, 9)
	short.MenuItems = short.MenuItems[:2]

	const rounds = 200
	var wg sync.WaitGroup
	run := func(fn func(i int)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				fn(i)
			}
		}()
	}

	for g := 0; g < 3; g++ {
		run(func(i int) {
			rec := e.Generate(okSnapshot(t0.Add(time.Duration(i)*time.Second), float64(i%40)))
			for _, item := range rec.Recommendations {
				assert.GreaterOrEqual(t, item.FeedbackMultiplier, MinMultiplier)
				assert.LessOrEqual(t, item.FeedbackMultiplier, MaxMultiplier)
			}
		})
	}
	actions := []models.FeedbackAction{models.ActionOverride, models.ActionIgnore, models.ActionAccept}
	for g := 0; g < 3; g++ {
		run(func(i int) {
			state, err := e.ApplyFeedback("fillets", actions[i%len(actions)], units(10, i%30))
			if assert.NoError(t, err) {
				assert.GreaterOrEqual(t, state.Multiplier, MinMultiplier)
				assert.LessOrEqual(t, state.Multiplier, MaxMultiplier)
			}
			// fries drops out of the short menu
			if _, err := e.ApplyFeedback("fries", models.ActionOverride, units(10, 20)); err != nil {
				assert.ErrorIs(t, err, ErrUnknownItem)
			}
		})
	}
	run(func(i int) {
		if _, err := feedbackContext(e, "nuggets"); err != nil {
			t.Errorf("feedback context: %v", err)
		}
		e.Latest()
		e.Pending()
	})
	run(func(i int) {
		profile := full
		if i%2 == 1 {
			profile = short
		}
		if _, err := e.Configure(profile); err != nil {
			t.Errorf("configure: %v", err)
		}
	})
	run(func(i int) {
		p := e.Profile()
		assert.NoError(t, models.ValidateBusinessProfile(&p))
		assert.Contains(t, []int{2, 4}, len(p.MenuItems))
	})
	wg.Wait()

	for key, state := range e.FeedbackStates() {
		assert.GreaterOrEqual(t, state.Multiplier, MinMultiplier, key)
		assert.LessOrEqual(t, state.Multiplier, MaxMultiplier, key)
	}
}

func TestConfigure_InvalidProfileLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(t, models.SampleBusinessProfile(4, 10.5))
	before := e.Profile()

	bad := models.SampleBusinessProfile(4, 10.5)
	bad.BusinessName = "  "
	_, err := e.Configure(bad)
	assert.ErrorIs(t, err, models.ErrInvalidProfile)

	bad = models.SampleBusinessProfile(4, 10.5)
	bad.MenuItems[0].BatchSize = 50
	_, err = e.Configure(bad)
	assert.ErrorIs(t, err, models.ErrInvalidProfile)

	assert.Equal(t, before, e.Profile())
}

func TestReset(t *testing.T) {
	e := newTestEngine(t, singleItemProfile(0.5, 10))

	profile, err := e.Reset()
	require.NoError(t, err)
	assert.Equal(t, "Steel City Chicken", profile.BusinessName)
	assert.Len(t, profile.MenuItems, 4)
	assert.Equal(t, 4.0, profile.DropCadenceMin)
}

func TestNew_NormalizesOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.DecisionInterval = time.Second
	opts.CookTime = 5 * time.Second
	opts.UrgencyMedium = 0.9
	opts.UrgencyHigh = 0.2

	e, err := New(opts, models.SampleBusinessProfile(4, 10.5), zerolog.Nop())
	require.NoError(t, err)

	got := e.Options()
	assert.Equal(t, 5*time.Second, got.DecisionInterval)
	assert.Equal(t, 30*time.Second, got.CookTime)
	assert.Equal(t, 0.2, got.UrgencyMedium)
	assert.Equal(t, 0.9, got.UrgencyHigh)
}
