package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"frycast/internal/models"
)

func TestScoreReadiness(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	sample := models.SampleBusinessProfile(4, 10.5)

	snapshot := func(status models.StreamStatus, age time.Duration, fps float64) models.Snapshot {
		return models.Snapshot{
			Timestamp:    now.Add(-age),
			StreamStatus: status,
			Performance:  models.Performance{ProcessingFPS: fps},
		}
	}

	tests := []struct {
		name     string
		snapshot models.Snapshot
		profile  func() models.BusinessProfile
		score    int
		status   string
		blockers []string
	}{
		{
			name:     "everything healthy",
			snapshot: snapshot(models.StreamOK, time.Second, 15),
			score:    100,
			status:   ReadinessReady,
			blockers: []string{},
		},
		{
			name:     "degraded but usable",
			snapshot: snapshot(models.StreamDegraded, 5*time.Second, 6),
			score:    20 + 10 + 12 + 15 + 10,
			status:   ReadinessDegraded,
			blockers: []string{},
		},
		{
			name:     "stream down",
			snapshot: snapshot(models.StreamError, 30*time.Second, 0),
			score:    2 + 0 + 4 + 15 + 10,
			status:   ReadinessBlocked,
			blockers: []string{"Live Camera Streams", "Telemetry Freshness", "Inference Throughput"},
		},
		{
			name:     "healthy feed with a blocker stays below ready",
			snapshot: snapshot(models.StreamOK, time.Second, 2),
			score:    35 + 20 + 4 + 15 + 10,
			status:   ReadinessDegraded,
			blockers: []string{"Inference Throughput"},
		},
		{
			name:     "thin menu and slow cadence only warn",
			snapshot: snapshot(models.StreamOK, 0, 12),
			profile: func() models.BusinessProfile {
				p := sample
				p.MenuItems = p.MenuItems[:1]
				p.DropCadenceMin = 30
				return p
			},
			score:    35 + 20 + 20 + 8 + 5,
			status:   ReadinessReady,
			blockers: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := sample
			if tt.profile != nil {
				profile = tt.profile()
			}
			r := ScoreReadiness(tt.snapshot, profile, now)
			assert.Equal(t, tt.score, r.Score)
			assert.Equal(t, tt.status, r.Status)
			assert.Equal(t, tt.blockers, r.Blockers)
			assert.Len(t, r.Checks, 5)
		})
	}
}

func TestScoreReadiness_UnconfiguredName(t *testing.T) {
	now := time.Now()
	profile := models.SampleBusinessProfile(4, 10.5)
	profile.BusinessName = "  "

	r := ScoreReadiness(models.InitializingSnapshot(now), profile, now)
	assert.Equal(t, "Unconfigured", r.Summary.BusinessName)
	assert.Equal(t, CheckWarn, r.Checks[3].Status)
	assert.Equal(t, 0.0, r.Summary.DataAgeSec)
}

func TestScoreReadiness_FutureTimestampIsFresh(t *testing.T) {
	now := time.Now()
	s := models.Snapshot{Timestamp: now.Add(time.Minute), StreamStatus: models.StreamOK}

	r := ScoreReadiness(s, models.SampleBusinessProfile(4, 10.5), now)
	assert.Equal(t, CheckPass, r.Checks[1].Status)
}
