package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frycast/internal/models"
)

func point(id uint) models.MetricPoint {
	return models.MetricPoint{ID: id, TotalCustomers: float64(id), StreamStatus: models.StreamOK}
}

func publish(t *testing.T, b *Broadcaster, id uint) {
	t.Helper()
	require.NoError(t, b.Publish(point(id), models.Snapshot{StreamStatus: models.StreamOK}, models.Recommendation{}))
}

func TestNew_FloorsCapacity(t *testing.T) {
	assert.Equal(t, MinCapacity, New(10).Capacity())
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, 1000, New(1000).Capacity())
}

func TestNext_ReturnsBufferedPoint(t *testing.T) {
	b := New(0)
	publish(t, b, 1)
	publish(t, b, 2)
	publish(t, b, 3)

	p, ok, err := b.Next(context.Background(), 1, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint(2), p.ID)

	p, ok, err = b.Next(context.Background(), 0, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint(1), p.ID)
}

func TestNext_TimesOutAsKeepAlive(t *testing.T) {
	b := New(0)
	publish(t, b, 1)

	start := time.Now()
	_, ok, err := b.Next(context.Background(), 1, 50*time.Millisecond)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestNext_WakesAllWaiters(t *testing.T) {
	b := New(0)
	publish(t, b, 1)

	const waiters = 5
	var wg sync.WaitGroup
	got := make([]uint, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, ok, err := b.Next(context.Background(), 1, 5*time.Second)
			if err == nil && ok {
				got[i] = p.ID
			}
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	publish(t, b, 2)
	wg.Wait()

	for i := range got {
		assert.Equal(t, uint(2), got[i])
	}
}

func TestNext_ContextCancelled(t *testing.T) {
	b := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := b.Next(ctx, 0, time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose(t *testing.T) {
	b := New(0)
	done := make(chan error, 1)
	go func() {
		_, _, err := b.Next(context.Background(), 0, 5*time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()
	b.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Close")
	}
	assert.ErrorIs(t, b.Publish(point(1), models.Snapshot{}, models.Recommendation{}), ErrClosed)
}

func TestRing_EvictsOldest(t *testing.T) {
	b := New(MinCapacity)
	for id := uint(1); id <= MinCapacity+50; id++ {
		publish(t, b, id)
	}

	recent := b.Recent(0)
	require.Len(t, recent, MinCapacity)
	assert.Equal(t, uint(51), recent[0].ID)
	assert.Equal(t, uint(MinCapacity+50), recent[len(recent)-1].ID)
	assert.Equal(t, uint(MinCapacity+50), b.LatestID())

	// a cursor older than the ring resumes from the oldest retained point
	p, ok, err := b.Next(context.Background(), 3, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint(51), p.ID)

	assert.Len(t, b.Recent(10), 10)
}

func TestHydrate(t *testing.T) {
	b := New(0)
	b.Hydrate([]models.MetricPoint{point(4), point(7), point(9)})
	assert.Equal(t, uint(9), b.LatestID())

	// older points never rewind the cursor
	b.Hydrate([]models.MetricPoint{point(2)})
	assert.Equal(t, uint(9), b.LatestID())
	assert.Len(t, b.Recent(0), 3)

	_, ok := b.LatestSnapshot()
	assert.False(t, ok)
	_, ok = b.LatestRecommendation()
	assert.False(t, ok)

	publish(t, b, 10)
	snap, ok := b.LatestSnapshot()
	assert.True(t, ok)
	assert.Equal(t, models.StreamOK, snap.StreamStatus)
}
