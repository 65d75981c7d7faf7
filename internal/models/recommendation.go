package models

import "time"

// Recommendation is the payload produced by one planner cycle
type Recommendation struct {
	Timestamp       time.Time            `json:"timestamp"`
	Business        BusinessSummary      `json:"business"`
	Forecast        Forecast             `json:"forecast"`
	Recommendations []ItemRecommendation `json:"recommendations"`
	Impact          Impact               `json:"impact"`
	Assumptions     Assumptions          `json:"assumptions"`
}

// BusinessSummary identifies the store the recommendation was made for
type BusinessSummary struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Location     string `json:"location"`
	ServiceModel string `json:"service_model"`
}

// Forecast is the demand outlook for the horizon
type Forecast struct {
	HorizonMin            float64    `json:"horizon_min"`
	QueueState            QueueState `json:"queue_state"`
	TrendCustomersPerMin  float64    `json:"trend_customers_per_min"`
	CurrentCustomers      float64    `json:"current_customers"`
	StabilizedCustomers   float64    `json:"stabilized_customers"`
	ProjectedCustomers    float64    `json:"projected_customers"`
	Confidence            float64    `json:"confidence"`
	DecisionWindowMinutes float64    `json:"decision_window_min"`
}

// ItemRecommendation is the per-item drop recommendation
type ItemRecommendation struct {
	Item                      string  `json:"item"`
	Label                     string  `json:"label"`
	RecommendedUnits          int     `json:"recommended_units"`
	BaselineUnits             int     `json:"baseline_units"`
	MaxUnitSize               int     `json:"max_unit_size"`
	UnitLabel                 string  `json:"unit_label"`
	DeltaUnits                int     `json:"delta_units"`
	ForecastWindowDemandUnits float64 `json:"forecast_window_demand_units"`
	ReadyInventoryUnits       int     `json:"ready_inventory_units"`
	FryerInventoryUnits       int     `json:"fryer_inventory_units"`
	ShortfallRatio            float64 `json:"shortfall_ratio"`
	Urgency                   Urgency `json:"urgency"`
	FeedbackMultiplier        float64 `json:"feedback_multiplier"`
	FeedbackEvents            int     `json:"feedback_events"`
	DecisionLocked            bool    `json:"decision_locked"`
	NextDecisionInSec         int     `json:"next_decision_in_sec"`
	Capped                    bool    `json:"capped"`
	Reason                    string  `json:"reason"`
}

// Impact is the decision-support estimate for the cycle. It is not a causal model.
type Impact struct {
	EstimatedWaitReductionMin    float64 `json:"estimated_wait_reduction_min"`
	EstimatedWasteAvoidedUnits   float64 `json:"estimated_waste_avoided_units"`
	EstimatedCostSavedUSD        float64 `json:"estimated_cost_saved_usd"`
	EstimatedRevenueProtectedUSD float64 `json:"estimated_revenue_protected_usd"`
	CurrentWaitTimeMin           float64 `json:"current_wait_time_min"`
}

// Assumptions documents the policy the recommendation was made under
type Assumptions struct {
	DropCadenceMin      float64  `json:"drop_cadence_min"`
	DecisionIntervalSec int      `json:"decision_interval_sec"`
	CookTimeSec         int      `json:"cook_time_sec"`
	AvgTicketUSD        float64  `json:"avg_ticket_usd"`
	UrgencyMediumRatio  float64  `json:"urgency_medium_ratio"`
	UrgencyHighRatio    float64  `json:"urgency_high_ratio"`
	Notes               []string `json:"notes"`
}

// Item returns the recommendation for key, if present
func (r *Recommendation) Item(key string) (ItemRecommendation, bool) {
	for _, item := range r.Recommendations {
		if item.Item == key {
			return item, true
		}
	}
	return ItemRecommendation{}, false
}
