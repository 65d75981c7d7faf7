package ingest

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"frycast/internal/models"
)

// ErrInvalidSnapshot is returned when a pushed snapshot fails validation
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// DefaultStaleAfter is how long a snapshot is trusted without a newer one
const DefaultStaleAfter = 10 * time.Second

// Holder keeps the latest snapshot pushed by the video pipeline and serves it to the
// sampling loop. A holder that has never received a snapshot reports initializing;
// one whose snapshot has gone stale reports an error status.
type Holder struct {
	mu         sync.RWMutex
	latest     *models.Snapshot
	receivedAt time.Time
	staleAfter time.Duration
	now        func() time.Time
}

// NewHolder creates a holder
func NewHolder(staleAfter time.Duration) *Holder {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Holder{
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Validate normalizes snapshot in place. Statuses are parsed and an absent total is
// derived from the camera counts.
func Validate(snapshot *models.Snapshot) error {
	values := map[string]float64{
		"aggregates.total_customers":         snapshot.Aggregates.TotalCustomers,
		"aggregates.estimated_wait_time_min": snapshot.Aggregates.EstimatedWaitTimeMin,
		"aggregates.avg_service_time_sec":    snapshot.Aggregates.AvgServiceTimeSec,
		"drive_thru.est_passengers":          snapshot.DriveThru.EstPassengers,
		"performance.processing_fps":         snapshot.Performance.ProcessingFPS,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidSnapshot, name)
		}
	}
	if snapshot.DriveThru.CarCount < 0 || snapshot.InStore.PersonCount < 0 {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidSnapshot)
	}

	snapshot.StreamStatus = models.ParseStreamStatus(string(snapshot.StreamStatus))
	if snapshot.Aggregates.TotalCustomers == 0 {
		snapshot.Aggregates.TotalCustomers = snapshot.DriveThru.EstPassengers + float64(snapshot.InStore.PersonCount)
	}
	return nil
}

// Push validates and stores snapshot as the latest. The snapshot is stamped with its
// arrival time: the planner clocks decisions, inventory and trend history off it, and
// the pipeline's own clock may run ahead of or behind the server's.
func (h *Holder) Push(snapshot models.Snapshot) (models.Snapshot, error) {
	if err := Validate(&snapshot); err != nil {
		return models.Snapshot{}, err
	}
	now := h.now()
	snapshot.Timestamp = now.UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &snapshot
	h.receivedAt = now
	return snapshot, nil
}

// Snapshot returns the latest snapshot, or a stand-in when none is fresh
func (h *Holder) Snapshot() models.Snapshot {
	now := h.now()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.latest == nil {
		return models.InitializingSnapshot(now)
	}
	age := now.Sub(h.receivedAt)
	if age > h.staleAfter {
		stale := *h.latest
		stale.Timestamp = now.UTC()
		stale.StreamStatus = models.StreamError
		stale.StreamError = fmt.Sprintf("no snapshot received for %ds", int(age.Seconds()))
		stale.Performance.ProcessingFPS = 0
		return stale
	}
	return *h.latest
}

// Age returns how long ago the latest snapshot arrived and whether there is one
func (h *Holder) Age() (time.Duration, bool) {
	now := h.now()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.latest == nil {
		return 0, false
	}
	return now.Sub(h.receivedAt), true
}
