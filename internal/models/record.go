package models

import "time"

// RecommendationRecord is the durable row written when an operator acts on a planning
// decision. The outcome columns start pending and are filled exactly once by the evaluator.
type RecommendationRecord struct {
	ID                        uint           `gorm:"primary_key" json:"id"`
	Timestamp                 time.Time      `gorm:"column:timestamp;not null;index" json:"timestamp"`
	ItemKey                   string         `gorm:"column:item_key;not null" json:"item_key"`
	ItemLabel                 string         `gorm:"column:item_label;not null" json:"item_label"`
	Action                    FeedbackAction `gorm:"column:action;not null" json:"action"`
	Note                      *string        `gorm:"column:note" json:"note"`
	RecommendedUnits          int            `gorm:"column:recommended_units;not null" json:"recommended_units"`
	ChosenUnits               int            `gorm:"column:chosen_units;not null" json:"chosen_units"`
	BaselineUnits             int            `gorm:"column:baseline_units;not null" json:"baseline_units"`
	MaxUnitSize               int            `gorm:"column:max_unit_size;not null" json:"max_unit_size"`
	UnitCostUSD               float64        `gorm:"column:unit_cost_usd;not null" json:"unit_cost_usd"`
	UnitsPerOrder             float64        `gorm:"column:units_per_order;not null" json:"units_per_order"`
	ForecastHorizonMin        float64        `gorm:"column:forecast_horizon_min;not null" json:"forecast_horizon_min"`
	ProjectedCustomers        float64        `gorm:"column:projected_customers;not null" json:"projected_customers"`
	QueueState                QueueState     `gorm:"column:queue_state;not null" json:"queue_state"`
	AvgTicketUSD              float64        `gorm:"column:avg_ticket_usd;not null" json:"avg_ticket_usd"`
	FeedbackMultiplier        float64        `gorm:"column:feedback_multiplier;not null;default:1" json:"feedback_multiplier"`
	ExpectedCostSavedUSD      float64        `gorm:"column:expected_cost_saved_usd;not null" json:"expected_cost_saved_usd"`
	ExpectedWasteAvoidedUnits float64        `gorm:"column:expected_waste_avoided_units;not null" json:"expected_waste_avoided_units"`
	CreatedAt                 time.Time      `json:"-"`
	RecordOutcome
}

// RecordOutcome holds the retrospective evaluation of a record
type RecordOutcome struct {
	OutcomeStatus           OutcomeStatus `gorm:"column:outcome_status;not null;default:'pending';index" json:"outcome_status"`
	EvaluatedAt             *time.Time    `gorm:"column:evaluated_at" json:"evaluated_at"`
	ActualCustomers         *float64      `gorm:"column:actual_customers" json:"actual_customers"`
	ForecastErrorCustomers  *float64      `gorm:"column:forecast_error_customers" json:"forecast_error_customers"`
	RealizedWasteDeltaUnits *float64      `gorm:"column:realized_waste_delta_units" json:"realized_waste_delta_units"`
	RealizedCostDeltaUSD    *float64      `gorm:"column:realized_cost_delta_usd" json:"realized_cost_delta_usd"`
	RealizedRevenueDeltaUSD *float64      `gorm:"column:realized_revenue_delta_usd" json:"realized_revenue_delta_usd"`
}

// TableName keeps the table name stable across renames of the struct
func (RecommendationRecord) TableName() string { return "recommendation_feedback" }

// HorizonEnd returns the time at which the record becomes eligible for evaluation
func (r *RecommendationRecord) HorizonEnd() time.Time {
	horizon := r.ForecastHorizonMin
	if horizon < 0.5 {
		horizon = 0.5
	}
	return r.Timestamp.Add(time.Duration(horizon * float64(time.Minute)))
}

// MetricPoint is one sampling tick. ID is the monotonically increasing cursor for streaming.
type MetricPoint struct {
	ID                  uint         `gorm:"primary_key" json:"id"`
	Timestamp           time.Time    `gorm:"column:timestamp;not null;index" json:"timestamp"`
	StreamStatus        StreamStatus `gorm:"column:stream_status;not null" json:"stream_status"`
	TotalCustomers      float64      `gorm:"column:total_customers;not null" json:"total_customers"`
	WaitMinutes         float64      `gorm:"column:wait_minutes;not null" json:"wait_minutes"`
	Trend               float64      `gorm:"column:trend;not null" json:"trend"`
	Confidence          float64      `gorm:"column:confidence;not null" json:"confidence"`
	ProcessingFPS       float64      `gorm:"column:processing_fps;not null" json:"processing_fps"`
	QueueState          QueueState   `gorm:"column:queue_state;not null" json:"queue_state"`
	ProjectedCustomers  float64      `gorm:"column:projected_customers;not null" json:"projected_customers"`
	RevenueProtectedUSD float64      `gorm:"column:revenue_protected_usd;not null" json:"revenue_protected_usd"`
	WaitReductionMin    float64      `gorm:"column:wait_reduction_min;not null" json:"wait_reduction_min"`
}

// TableName keeps the table name stable across renames of the struct
func (MetricPoint) TableName() string { return "analytics_samples" }

// NewMetricPoint summarizes a snapshot and the recommendation made from it
func NewMetricPoint(snapshot Snapshot, rec Recommendation) MetricPoint {
	ts := snapshot.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	status := snapshot.StreamStatus
	if status == "" {
		status = StreamInitializing
	}
	return MetricPoint{
		Timestamp:           ts.UTC(),
		StreamStatus:        status,
		TotalCustomers:      snapshot.Aggregates.TotalCustomers,
		WaitMinutes:         snapshot.Aggregates.EstimatedWaitTimeMin,
		Trend:               rec.Forecast.TrendCustomersPerMin,
		Confidence:          rec.Forecast.Confidence,
		ProcessingFPS:       snapshot.Performance.ProcessingFPS,
		QueueState:          rec.Forecast.QueueState,
		ProjectedCustomers:  rec.Forecast.ProjectedCustomers,
		RevenueProtectedUSD: rec.Impact.EstimatedRevenueProtectedUSD,
		WaitReductionMin:    rec.Impact.EstimatedWaitReductionMin,
	}
}
