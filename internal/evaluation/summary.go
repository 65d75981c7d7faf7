package evaluation

import (
	"math"
	"time"

	"frycast/internal/models"
)

// biasTolerance is the |bias| in customers above which the forecast is labelled biased
const biasTolerance = 0.2

// Summary aggregates operator adoption and realized outcomes over a window
type Summary struct {
	Timestamp        time.Time                     `json:"timestamp"`
	WindowMinutes    int                           `json:"window_minutes"`
	Count            int                           `json:"count"`
	Adoption         Adoption                      `json:"adoption"`
	Outcomes         Outcomes                      `json:"outcomes"`
	PredictionImpact PredictionImpact              `json:"prediction_impact"`
	Events           []models.RecommendationRecord `json:"events"`
}

// Adoption counts operator actions
type Adoption struct {
	Accepted     int     `json:"accepted"`
	Overridden   int     `json:"overridden"`
	Ignored      int     `json:"ignored"`
	Adopted      int     `json:"adopted"`
	AdoptionRate float64 `json:"adoption_rate"`
}

// Outcomes compares expected and realized savings
type Outcomes struct {
	Evaluated                 int     `json:"evaluated"`
	Pending                   int     `json:"pending"`
	InsufficientData          int     `json:"insufficient_data"`
	ExpectedCostSavedUSD      float64 `json:"expected_cost_saved_usd"`
	RealizedCostDeltaUSD      float64 `json:"realized_cost_delta_usd"`
	ExpectedWasteAvoidedUnits float64 `json:"expected_waste_avoided_units"`
	RealizedWasteDeltaUnits   float64 `json:"realized_waste_delta_units"`
	RealizedRevenueDeltaUSD   float64 `json:"realized_revenue_delta_usd"`
	RealizedVsExpectedRatio   float64 `json:"realized_vs_expected_ratio"`
}

// PredictionImpact reports forecast error over evaluated records
type PredictionImpact struct {
	ForecastMAECustomers  float64 `json:"forecast_mae_customers"`
	ForecastBiasCustomers float64 `json:"forecast_bias_customers"`
	Direction             string  `json:"direction"`
}

// Summarize aggregates records, newest first as returned by the store
func Summarize(records []models.RecommendationRecord, windowMinutes int, now time.Time) Summary {
	s := Summary{
		Timestamp:     now.UTC(),
		WindowMinutes: windowMinutes,
		Count:         len(records),
		Events:        records,
	}
	if s.Events == nil {
		s.Events = []models.RecommendationRecord{}
	}

	var expectedCost, expectedWaste, realizedCost, realizedWaste, realizedRevenue float64
	var errSum, absErrSum float64
	var errCount int
	for i := range records {
		r := &records[i]
		switch r.Action {
		case models.ActionAccept:
			s.Adoption.Accepted++
		case models.ActionOverride:
			s.Adoption.Overridden++
		case models.ActionIgnore:
			s.Adoption.Ignored++
		}
		expectedCost += r.ExpectedCostSavedUSD
		expectedWaste += r.ExpectedWasteAvoidedUnits

		switch r.OutcomeStatus {
		case models.OutcomeEvaluated:
			s.Outcomes.Evaluated++
			realizedCost += deref(r.RealizedCostDeltaUSD)
			realizedWaste += deref(r.RealizedWasteDeltaUnits)
			realizedRevenue += deref(r.RealizedRevenueDeltaUSD)
			if r.ForecastErrorCustomers != nil {
				errSum += *r.ForecastErrorCustomers
				absErrSum += math.Abs(*r.ForecastErrorCustomers)
				errCount++
			}
		case models.OutcomeInsufficientData:
			s.Outcomes.InsufficientData++
		default:
			s.Outcomes.Pending++
		}
	}

	s.Adoption.Adopted = s.Adoption.Accepted + s.Adoption.Overridden
	if s.Count > 0 {
		s.Adoption.AdoptionRate = models.Round(float64(s.Adoption.Adopted)/float64(s.Count), 4)
	}

	s.Outcomes.ExpectedCostSavedUSD = models.RoundUSD(expectedCost)
	s.Outcomes.RealizedCostDeltaUSD = models.RoundUSD(realizedCost)
	s.Outcomes.ExpectedWasteAvoidedUnits = models.Round(expectedWaste, 2)
	s.Outcomes.RealizedWasteDeltaUnits = models.Round(realizedWaste, 2)
	s.Outcomes.RealizedRevenueDeltaUSD = models.RoundUSD(realizedRevenue)
	if math.Abs(expectedCost) > 1e-6 {
		s.Outcomes.RealizedVsExpectedRatio = models.Round(realizedCost/expectedCost, 3)
	}

	var bias float64
	if errCount > 0 {
		bias = errSum / float64(errCount)
		s.PredictionImpact.ForecastMAECustomers = models.Round(absErrSum/float64(errCount), 3)
		s.PredictionImpact.ForecastBiasCustomers = models.Round(bias, 3)
	}
	s.PredictionImpact.Direction = Calibration(bias)
	return s
}

// Calibration labels a mean forecast error. Positive bias means actual load
// exceeded the forecast.
func Calibration(bias float64) string {
	switch {
	case bias > biasTolerance:
		return models.CalibrationUnder
	case bias < -biasTolerance:
		return models.CalibrationOver
	default:
		return models.CalibrationWell
	}
}

// ExpectedSavings returns the waste avoided and cost saved the operator's choice
// implies against the baseline policy
func ExpectedSavings(baseline, chosen int, unitCostUSD float64) (float64, float64) {
	units := float64(max(0, baseline-chosen))
	return units, models.RoundUSD(units * max(0, unitCostUSD))
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
