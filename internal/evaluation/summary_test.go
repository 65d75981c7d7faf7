package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"frycast/internal/models"
)

func ptr(v float64) *float64 { return &v }

func TestSummarize(t *testing.T) {
	records := []models.RecommendationRecord{
		{
			Action:                    models.ActionAccept,
			ExpectedCostSavedUSD:      2,
			ExpectedWasteAvoidedUnits: 4,
			RecordOutcome: models.RecordOutcome{
				OutcomeStatus:           models.OutcomeEvaluated,
				ForecastErrorCustomers:  ptr(3),
				RealizedCostDeltaUSD:    ptr(1.5),
				RealizedWasteDeltaUnits: ptr(3),
				RealizedRevenueDeltaUSD: ptr(-10),
			},
		},
		{
			Action:                    models.ActionOverride,
			ExpectedCostSavedUSD:      2,
			ExpectedWasteAvoidedUnits: 2,
			RecordOutcome: models.RecordOutcome{
				OutcomeStatus:           models.OutcomeEvaluated,
				ForecastErrorCustomers:  ptr(-1),
				RealizedCostDeltaUSD:    ptr(0.5),
				RealizedWasteDeltaUnits: ptr(1),
				RealizedRevenueDeltaUSD: ptr(0),
			},
		},
		{Action: models.ActionIgnore, RecordOutcome: models.RecordOutcome{OutcomeStatus: models.OutcomePending}},
		{Action: models.ActionAccept, RecordOutcome: models.RecordOutcome{OutcomeStatus: models.OutcomeInsufficientData}},
	}

	s := Summarize(records, 1440, t0)

	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 1440, s.WindowMinutes)
	assert.Equal(t, Adoption{Accepted: 2, Overridden: 1, Ignored: 1, Adopted: 3, AdoptionRate: 0.75}, s.Adoption)
	assert.Equal(t, Outcomes{
		Evaluated:                 2,
		Pending:                   1,
		InsufficientData:          1,
		ExpectedCostSavedUSD:      4,
		RealizedCostDeltaUSD:      2,
		ExpectedWasteAvoidedUnits: 6,
		RealizedWasteDeltaUnits:   4,
		RealizedRevenueDeltaUSD:   -10,
		RealizedVsExpectedRatio:   0.5,
	}, s.Outcomes)
	assert.Equal(t, PredictionImpact{ForecastMAECustomers: 2, ForecastBiasCustomers: 1, Direction: models.CalibrationUnder}, s.PredictionImpact)
	assert.Len(t, s.Events, 4)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 60, t0)

	assert.Zero(t, s.Count)
	assert.Zero(t, s.Adoption.AdoptionRate)
	assert.Zero(t, s.Outcomes.RealizedVsExpectedRatio)
	assert.Equal(t, models.CalibrationWell, s.PredictionImpact.Direction)
	assert.NotNil(t, s.Events)
}

func TestCalibration(t *testing.T) {
	assert.Equal(t, models.CalibrationWell, Calibration(0.2))
	assert.Equal(t, models.CalibrationWell, Calibration(-0.2))
	assert.Equal(t, models.CalibrationUnder, Calibration(0.21))
	assert.Equal(t, models.CalibrationOver, Calibration(-0.5))
}

func TestExpectedSavings(t *testing.T) {
	units, cost := ExpectedSavings(16, 10, 0.92)
	assert.Equal(t, 6.0, units)
	assert.Equal(t, 5.52, cost)

	units, cost = ExpectedSavings(8, 12, 0.92)
	assert.Zero(t, units)
	assert.Zero(t, cost)
}
