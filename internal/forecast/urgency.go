package forecast

import "frycast/internal/models"

// Thresholds maps a shortfall ratio to an urgency level
type Thresholds struct {
	Medium float64
	High   float64
}

// NewThresholds clamps both ratios to [0,1] and swaps them when high < medium
func NewThresholds(medium, high float64) Thresholds {
	medium = Clamp(medium, 0, 1)
	high = Clamp(high, 0, 1)
	if high < medium {
		medium, high = high, medium
	}
	return Thresholds{Medium: medium, High: high}
}

// Classify returns the urgency for ratio
func (t Thresholds) Classify(ratio float64) models.Urgency {
	switch {
	case ratio >= t.High:
		return models.UrgencyHigh
	case ratio >= t.Medium:
		return models.UrgencyMedium
	default:
		return models.UrgencyLow
	}
}

// ShortfallRatio returns the fraction of demand not covered by supply
func ShortfallRatio(demand, supply float64) float64 {
	if demand <= 0 {
		return 0
	}
	return Clamp((demand-supply)/demand, 0, 1)
}
