package engine

import (
	"frycast/internal/forecast"
	"frycast/internal/models"
)

// estimateImpact blends waste avoided and queue pressure into wait-reduction and
// revenue figures. It is a bounded decision-support heuristic, monotonic in its inputs.
func estimateImpact(projected, wasteUnits, costSaved, avgTicketUSD, currentWait float64) models.Impact {
	queuePressure := forecast.Clamp(projected/24, 0, 1)
	waitReduction := forecast.Clamp(wasteUnits/8+1.5*queuePressure, 0.2, 3.2)
	lift := forecast.Clamp(waitReduction*0.025, 0, 0.16)

	return models.Impact{
		EstimatedWaitReductionMin:    models.Round(waitReduction, 1),
		EstimatedWasteAvoidedUnits:   models.Round(wasteUnits, 1),
		EstimatedCostSavedUSD:        models.RoundUSD(costSaved),
		EstimatedRevenueProtectedUSD: models.RoundUSD(projected * lift * avgTicketUSD),
		CurrentWaitTimeMin:           models.Round(currentWait, 1),
	}
}
