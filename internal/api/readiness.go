package api

import (
	"fmt"
	"strings"
	"time"

	"frycast/internal/models"
)

// Check outcomes
const (
	CheckPass = "pass"
	CheckWarn = "warn"
	CheckFail = "fail"
)

// Readiness statuses
const (
	ReadinessReady    = "ready"
	ReadinessDegraded = "degraded"
	ReadinessBlocked  = "blocked"
)

// ReadinessCheck is one scored check
type ReadinessCheck struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
	Detail string `json:"detail"`
	Points int    `json:"points"`
}

// ReadinessSummary echoes the inputs the checks were scored on
type ReadinessSummary struct {
	StreamStatus  models.StreamStatus `json:"stream_status"`
	DataAgeSec    float64             `json:"data_age_sec"`
	ProcessingFPS float64             `json:"processing_fps"`
	BusinessName  string              `json:"business_name"`
	MenuItemCount int                 `json:"menu_item_count"`
}

// Readiness reports whether the live planner can be trusted right now
type Readiness struct {
	Timestamp time.Time        `json:"timestamp"`
	Score     int              `json:"score"`
	Status    string           `json:"status"`
	Blockers  []string         `json:"blockers"`
	Summary   ReadinessSummary `json:"summary"`
	Checks    []ReadinessCheck `json:"checks"`
}

func (r *Readiness) add(id, label, status, detail string, points int) {
	r.Checks = append(r.Checks, ReadinessCheck{ID: id, Label: label, Status: status, Detail: detail, Points: points})
	r.Score += points
	if status == CheckFail {
		r.Blockers = append(r.Blockers, label)
	}
}

// ScoreReadiness scores the latest snapshot and the applied profile
func ScoreReadiness(snapshot models.Snapshot, profile models.BusinessProfile, now time.Time) Readiness {
	age := max(0, now.Sub(snapshot.Timestamp).Seconds())
	fps := snapshot.Performance.ProcessingFPS
	name := strings.TrimSpace(profile.BusinessName)
	items := len(profile.MenuItems)
	cadence := profile.DropCadenceMin

	r := Readiness{
		Timestamp: now.UTC(),
		Blockers:  []string{},
		Summary: ReadinessSummary{
			StreamStatus:  snapshot.StreamStatus,
			DataAgeSec:    models.Round(age, 1),
			ProcessingFPS: models.Round(fps, 1),
			BusinessName:  name,
			MenuItemCount: items,
		},
	}
	if r.Summary.BusinessName == "" {
		r.Summary.BusinessName = "Unconfigured"
	}

	const streams = "Live Camera Streams"
	switch snapshot.StreamStatus {
	case models.StreamOK:
		r.add("streams", streams, CheckPass, "Camera feeds are live.", 35)
	case models.StreamDegraded:
		r.add("streams", streams, CheckWarn, "Camera feeds are degraded; results are directional but less robust.", 20)
	default:
		r.add("streams", streams, CheckFail, "No live camera feed is healthy right now.", 2)
	}

	const freshness = "Telemetry Freshness"
	switch {
	case age <= 3:
		r.add("freshness", freshness, CheckPass, fmt.Sprintf("Latest telemetry is fresh (%.1fs old).", age), 20)
	case age <= 8:
		r.add("freshness", freshness, CheckWarn, fmt.Sprintf("Telemetry is slightly delayed (%.1fs old).", age), 10)
	default:
		r.add("freshness", freshness, CheckFail, fmt.Sprintf("Telemetry is stale (%.1fs old).", age), 0)
	}

	const throughput = "Inference Throughput"
	switch {
	case fps >= 10:
		r.add("throughput", throughput, CheckPass, fmt.Sprintf("Inference is running at %.1f FPS.", fps), 20)
	case fps >= 5:
		r.add("throughput", throughput, CheckWarn, fmt.Sprintf("Inference is usable but slower than ideal at %.1f FPS.", fps), 12)
	default:
		r.add("throughput", throughput, CheckFail, fmt.Sprintf("Inference throughput is low at %.1f FPS.", fps), 4)
	}

	const business = "Business Configuration"
	switch {
	case name != "" && items >= 3 && profile.AvgTicketUSD > 0:
		r.add("business_profile", business, CheckPass, fmt.Sprintf("Business profile '%s' has %d menu items configured.", name, items), 15)
	case items >= 1:
		r.add("business_profile", business, CheckWarn, "Business profile is present but limited; add more menu coverage for stronger recommendations.", 8)
	default:
		r.add("business_profile", business, CheckFail, "Business profile is incomplete.", 0)
	}

	const cadenceLabel = "Recommendation Cadence"
	switch {
	case cadence >= 0.5 && cadence <= 15:
		r.add("cadence", cadenceLabel, CheckPass, fmt.Sprintf("Recommendation cadence is tuned to %.1f minutes.", cadence), 10)
	case cadence > 0:
		r.add("cadence", cadenceLabel, CheckWarn, fmt.Sprintf("Cadence is set to %.1f minutes; verify this matches kitchen rhythm.", cadence), 5)
	default:
		r.add("cadence", cadenceLabel, CheckFail, "Cadence is not configured.", 0)
	}

	r.Score = min(100, max(0, r.Score))
	switch {
	case len(r.Blockers) == 0 && r.Score >= 80:
		r.Status = ReadinessReady
	case r.Score >= 55:
		r.Status = ReadinessDegraded
	default:
		r.Status = ReadinessBlocked
	}
	return r
}
