package evaluation

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/rs/zerolog"

	"frycast/internal/models"
)

// DefaultBatchSize caps how many pending records one sweep inspects
const DefaultBatchSize = 1000

// Evaluator reconciles pending feedback records against the customer volume that was
// actually observed over each record's forecast horizon. Outcomes are terminal: a record
// leaves pending exactly once and is never revisited.
type Evaluator struct {
	batchSize int
	logger    zerolog.Logger
}

// SweepResult counts what one sweep did
type SweepResult struct {
	Scanned      int `json:"scanned"`
	Evaluated    int `json:"evaluated"`
	Insufficient int `json:"insufficient_data"`
}

// NewEvaluator creates an evaluator with the default batch size
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		batchSize: DefaultBatchSize,
		logger:    logger.With().Str("component", "evaluator").Logger(),
	}
}

// Sweep evaluates every pending record whose horizon has elapsed at now.
// The caller is responsible for serializing access to db.
func (e *Evaluator) Sweep(db *gorm.DB, now time.Time) (SweepResult, error) {
	var result SweepResult
	now = now.UTC()

	var pending []models.RecommendationRecord
	err := db.Where("outcome_status = ? AND timestamp <= ?", models.OutcomePending, now).
		Order("timestamp asc, id asc").
		Limit(e.batchSize).
		Find(&pending).Error
	if err != nil {
		return result, fmt.Errorf("failed to load pending feedback: %w", err)
	}
	result.Scanned = len(pending)

	for i := range pending {
		record := &pending[i]
		end := record.HorizonEnd()
		if now.Before(end) {
			continue
		}

		actual, samples, err := averageCustomers(db, record.Timestamp, end)
		if err != nil {
			return result, err
		}

		var outcome models.RecordOutcome
		if samples == 0 {
			outcome = models.RecordOutcome{OutcomeStatus: models.OutcomeInsufficientData}
		} else {
			outcome = Outcome(record, actual)
		}
		outcome.EvaluatedAt = &now

		applied, err := markEvaluated(db, record.ID, outcome)
		if err != nil {
			return result, err
		}
		if !applied {
			continue
		}
		if outcome.OutcomeStatus == models.OutcomeEvaluated {
			result.Evaluated++
		} else {
			result.Insufficient++
		}
	}

	if result.Evaluated+result.Insufficient > 0 {
		e.logger.Debug().
			Int("scanned", result.Scanned).
			Int("evaluated", result.Evaluated).
			Int("insufficient_data", result.Insufficient).
			Msg("outcome sweep")
	}
	return result, nil
}

// Outcome computes the realized figures for record given the observed average load
func Outcome(record *models.RecommendationRecord, actualCustomers float64) models.RecordOutcome {
	unitsPerOrder := max(0.01, record.UnitsPerOrder)
	required := max(0, int(math.Round(actualCustomers*unitsPerOrder)))
	baseline := max(0, record.BaselineUnits)
	chosen := max(0, record.ChosenUnits)

	wasteDelta := float64(max(0, baseline-required) - max(0, chosen-required))
	shortfallDelta := float64(max(0, required-baseline) - max(0, required-chosen))

	actual := models.Round(actualCustomers, 2)
	forecastError := models.Round(actualCustomers-record.ProjectedCustomers, 2)
	costDelta := models.RoundUSD(wasteDelta * max(0, record.UnitCostUSD))
	revenueDelta := models.RoundUSD(shortfallDelta / unitsPerOrder * max(0, record.AvgTicketUSD))

	return models.RecordOutcome{
		OutcomeStatus:           models.OutcomeEvaluated,
		ActualCustomers:         &actual,
		ForecastErrorCustomers:  &forecastError,
		RealizedWasteDeltaUnits: &wasteDelta,
		RealizedCostDeltaUSD:    &costDelta,
		RealizedRevenueDeltaUSD: &revenueDelta,
	}
}

// averageCustomers averages total customers over [start, end] using only samples
// taken while the stream was healthy or degraded
func averageCustomers(db *gorm.DB, start, end time.Time) (float64, int, error) {
	var avg sql.NullFloat64
	var count int
	row := db.Table(models.MetricPoint{}.TableName()).
		Select("AVG(total_customers), COUNT(*)").
		Where("timestamp >= ? AND timestamp <= ? AND stream_status IN (?)",
			start.UTC(), end.UTC(), []string{string(models.StreamOK), string(models.StreamDegraded)}).
		Row()
	if err := row.Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to average realized customers: %w", err)
	}
	return avg.Float64, count, nil
}

// markEvaluated writes the outcome only if the record is still pending
func markEvaluated(db *gorm.DB, id uint, outcome models.RecordOutcome) (bool, error) {
	res := db.Model(&models.RecommendationRecord{}).
		Where("id = ? AND outcome_status = ?", id, models.OutcomePending).
		Updates(map[string]interface{}{
			"outcome_status":             outcome.OutcomeStatus,
			"evaluated_at":               outcome.EvaluatedAt,
			"actual_customers":           outcome.ActualCustomers,
			"forecast_error_customers":   outcome.ForecastErrorCustomers,
			"realized_waste_delta_units": outcome.RealizedWasteDeltaUnits,
			"realized_cost_delta_usd":    outcome.RealizedCostDeltaUSD,
			"realized_revenue_delta_usd": outcome.RealizedRevenueDeltaUSD,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to store outcome for feedback %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
