package broadcast

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"frycast/internal/models"
)

// ErrClosed is returned by Next and Publish once the broadcaster is closed
var ErrClosed = errors.New("broadcaster closed")

const (
	// DefaultCapacity is the number of points kept in memory
	DefaultCapacity = 7200
	// MinCapacity is the smallest ring the broadcaster accepts
	MinCapacity = 300
	// DefaultWait is how long Next blocks before reporting a keep-alive
	DefaultWait = 15 * time.Second
)

// Broadcaster keeps a ring of recent metric points keyed by a monotonically
// increasing id and wakes blocked readers when a newer point arrives. Each publish
// closes the current notify channel and replaces it, so every waiter wakes once.
type Broadcaster struct {
	mu       sync.Mutex
	ring     []models.MetricPoint
	capacity int
	latestID uint
	notify   chan struct{}
	snapshot *models.Snapshot
	rec      *models.Recommendation
	closed   bool
}

// New creates a broadcaster keeping up to capacity points
func New(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	capacity = max(MinCapacity, capacity)
	return &Broadcaster{
		ring:     make([]models.MetricPoint, 0, 64),
		capacity: capacity,
		notify:   make(chan struct{}),
	}
}

// Capacity returns the ring size
func (b *Broadcaster) Capacity() int {
	return b.capacity
}

// Hydrate seeds the ring with durable points in ascending id order. Points at or below
// the current latest id are ignored, so it never rewinds the cursor.
func (b *Broadcaster) Hydrate(points []models.MetricPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range points {
		if p.ID <= b.latestID {
			continue
		}
		b.appendLocked(p)
	}
}

// Publish appends a durably stored point, caches the inputs it was built from and wakes
// every waiter. The point must carry the id assigned by the store.
func (b *Broadcaster) Publish(point models.MetricPoint, snapshot models.Snapshot, rec models.Recommendation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if point.ID > b.latestID {
		b.appendLocked(point)
	}
	b.snapshot = &snapshot
	b.rec = &rec

	close(b.notify)
	b.notify = make(chan struct{})
	return nil
}

// appendLocked must be called with b.mu held
func (b *Broadcaster) appendLocked(p models.MetricPoint) {
	b.ring = append(b.ring, p)
	if len(b.ring) > b.capacity {
		b.ring = b.ring[len(b.ring)-b.capacity:]
	}
	b.latestID = p.ID
}

// Next returns the first point with an id greater than afterID, waiting up to timeout
// for one to be published. ok is false when the wait timed out; callers should emit a
// keep-alive and call again.
func (b *Broadcaster) Next(ctx context.Context, afterID uint, timeout time.Duration) (point models.MetricPoint, ok bool, err error) {
	if timeout <= 0 {
		timeout = DefaultWait
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return models.MetricPoint{}, false, ErrClosed
		}
		if b.latestID > afterID {
			i := sort.Search(len(b.ring), func(i int) bool { return b.ring[i].ID > afterID })
			if i < len(b.ring) {
				point = b.ring[i]
				b.mu.Unlock()
				return point, true, nil
			}
		}
		wake := b.notify
		b.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return models.MetricPoint{}, false, nil
		case <-ctx.Done():
			return models.MetricPoint{}, false, ctx.Err()
		}
	}
}

// LatestID returns the id of the newest point
func (b *Broadcaster) LatestID() uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latestID
}

// Recent returns up to n of the newest points in ascending id order
func (b *Broadcaster) Recent(n int) []models.MetricPoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > len(b.ring) {
		n = len(b.ring)
	}
	out := make([]models.MetricPoint, n)
	copy(out, b.ring[len(b.ring)-n:])
	return out
}

// LatestSnapshot returns the snapshot behind the newest published point
func (b *Broadcaster) LatestSnapshot() (models.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snapshot == nil {
		return models.Snapshot{}, false
	}
	return *b.snapshot, true
}

// LatestRecommendation returns the recommendation behind the newest published point
func (b *Broadcaster) LatestRecommendation() (models.Recommendation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rec == nil {
		return models.Recommendation{}, false
	}
	return *b.rec, true
}

// Close wakes every waiter with ErrClosed
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}
