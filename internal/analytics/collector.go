package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"frycast/internal/evaluation"
	"frycast/internal/models"
)

// Sampling interval bounds
const (
	DefaultSampleInterval = time.Second
	MinSampleInterval     = 500 * time.Millisecond
	DefaultSweepInterval  = 30 * time.Second
)

// SnapshotSource provides the latest business snapshot
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// Planner turns a snapshot into a recommendation
type Planner interface {
	Generate(snapshot models.Snapshot) models.Recommendation
}

// MetricAppender durably stores a metric point and assigns its id
type MetricAppender interface {
	AppendMetric(point *models.MetricPoint) error
}

// Publisher receives every durably stored point
type Publisher interface {
	Publish(point models.MetricPoint, snapshot models.Snapshot, rec models.Recommendation) error
}

// TickObserver is told about every tick outcome
type TickObserver interface {
	ObserveTick(point models.MetricPoint, rec models.Recommendation)
	ObserveTickError(err error)
}

// Sweeper evaluates feedback outcomes whose horizon has elapsed
type Sweeper interface {
	Sweep() (evaluation.SweepResult, error)
}

// CollectorConfig wires a Collector. Without a Sweeper outcomes are only evaluated
// when feedback is recorded or summarized.
type CollectorConfig struct {
	Source        SnapshotSource
	Planner       Planner
	Store         MetricAppender
	Publishers    []Publisher
	Observers     []TickObserver
	Interval      time.Duration
	Sweeper       Sweeper
	SweepInterval time.Duration
}

// Collector is the background sampling loop. Each tick plans from the latest snapshot,
// stores the resulting point and only then publishes it, so a storage failure never
// reaches subscribers.
type Collector struct {
	source        SnapshotSource
	planner       Planner
	store         MetricAppender
	publishers    []Publisher
	observers     []TickObserver
	interval      time.Duration
	sweeper       Sweeper
	sweepInterval time.Duration
	logger        zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollector creates a collector. Interval is floored at MinSampleInterval.
func NewCollector(cfg CollectorConfig, logger zerolog.Logger) *Collector {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Collector{
		source:        cfg.Source,
		planner:       cfg.Planner,
		store:         cfg.Store,
		publishers:    cfg.Publishers,
		observers:     cfg.Observers,
		interval:      max(MinSampleInterval, interval),
		sweeper:       cfg.Sweeper,
		sweepInterval: max(MinSampleInterval, sweepInterval),
		logger:        logger.With().Str("component", "collector").Logger(),
	}
}

// Interval returns the sampling interval
func (c *Collector) Interval() time.Duration {
	return c.interval
}

// Tick runs one sampling cycle
func (c *Collector) Tick() (models.MetricPoint, error) {
	snapshot := c.source.Snapshot()
	rec := c.planner.Generate(snapshot)
	point := models.NewMetricPoint(snapshot, rec)

	if err := c.store.AppendMetric(&point); err != nil {
		for _, o := range c.observers {
			o.ObserveTickError(err)
		}
		return models.MetricPoint{}, fmt.Errorf("sampling tick failed: %w", err)
	}

	for _, p := range c.publishers {
		if err := p.Publish(point, snapshot, rec); err != nil {
			c.logger.Warn().Err(err).Uint("id", point.ID).Msg("failed to publish metric point")
		}
	}
	for _, o := range c.observers {
		o.ObserveTick(point, rec)
	}
	return point, nil
}

// Sweep runs one outcome evaluation pass. It is a no-op without a Sweeper.
func (c *Collector) Sweep() (evaluation.SweepResult, error) {
	if c.sweeper == nil {
		return evaluation.SweepResult{}, nil
	}
	result, err := c.sweeper.Sweep()
	if err != nil {
		return result, fmt.Errorf("outcome sweep failed: %w", err)
	}
	if result.Evaluated+result.Insufficient > 0 {
		c.logger.Debug().
			Int("evaluated", result.Evaluated).
			Int("insufficient", result.Insufficient).
			Msg("outcomes swept")
	}
	return result, nil
}

// Start launches the sampling loop. Calling Start on a running collector is a no-op.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, c.done)
	c.logger.Info().Dur("interval", c.interval).Msg("collector started")
}

func (c *Collector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var sweeps <-chan time.Time
	if c.sweeper != nil {
		sweepTicker := time.NewTicker(c.sweepInterval)
		defer sweepTicker.Stop()
		sweeps = sweepTicker.C
	}

	c.tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		case <-sweeps:
			if _, err := c.Sweep(); err != nil {
				c.logger.Error().Err(err).Msg("analytics collector error")
			}
		}
	}
}

func (c *Collector) tick() {
	if _, err := c.Tick(); err != nil {
		c.logger.Error().Err(err).Msg("analytics collector error")
	}
}

// Stop cancels the loop and waits for the current tick to finish
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info().Msg("collector stopped")
}
