package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRationale(t *testing.T) {
	tests := []struct {
		name string
		in   Rationale
		want string
	}{
		{
			name: "drop",
			in:   Rationale{Due: true, Units: 12, Ready: 3, Fryer: 12, WindowDemand: 9.3, WindowMin: 4, UnitLabel: "cups"},
			want: "Ready 3 cups, in fryer 12 cups. Forecast 9.3 cups over the next 4.0 min; drop 12 cups now.",
		},
		{
			name: "covered",
			in:   Rationale{Due: true, Ready: 20, Fryer: 0, WindowDemand: 6, WindowMin: 4, UnitLabel: "fillets"},
			want: "Ready 20 fillets, in fryer 0 fillets. No drop needed for 6.0 fillets forecast over the next 4.0 min.",
		},
		{
			name: "locked",
			in:   Rationale{Due: false, Capped: true, Ready: 5, Fryer: 8, IntervalSec: 30, RemainingSec: 12, UnitLabel: "strips"},
			want: "Holding the 30s decision; next refresh in 12s. Ready 5 strips, in fryer 8 strips.",
		},
		{
			name: "capped fallback",
			in:   Rationale{Due: true, Fallback: true, Capped: true, Units: 10, MaxUnits: 10, WindowDemand: 42, WindowMin: 4, UnitLabel: "units"},
			want: "Live stream unavailable; planning from the raw customer count. Ready 0 units, in fryer 0 units. " +
				"Forecast 42.0 units over the next 4.0 min; drop 10 units now. Capped at 10 units by the configured max unit size.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.String())
		})
	}
}

func TestEstimateImpact(t *testing.T) {
	impact := estimateImpact(36.5, 0, 0, 10.5, 3.24)

	// full queue pressure gives 1.5 min and a 3.75% lift
	assert.Equal(t, 1.5, impact.EstimatedWaitReductionMin)
	assert.Equal(t, 14.37, impact.EstimatedRevenueProtectedUSD)
	assert.Equal(t, 3.2, impact.CurrentWaitTimeMin)

	low := estimateImpact(0, 0, 0, 10.5, 0)
	assert.Equal(t, 0.2, low.EstimatedWaitReductionMin)
	assert.Zero(t, low.EstimatedRevenueProtectedUSD)

	high := estimateImpact(100, 40, 18.4, 10.5, 0)
	assert.Equal(t, 3.2, high.EstimatedWaitReductionMin)
	assert.Equal(t, 40.0, high.EstimatedWasteAvoidedUnits)
	assert.Equal(t, 18.4, high.EstimatedCostSavedUSD)
	assert.Equal(t, 84.0, high.EstimatedRevenueProtectedUSD)
}
