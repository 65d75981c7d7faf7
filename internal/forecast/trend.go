package forecast

import (
	"time"

	"frycast/internal/models"
)

// Sample is one observation of customer load
type Sample struct {
	Timestamp time.Time
	Customers float64
}

// Estimator keeps a bounded, time-ordered history of customer counts and derives
// a linear trend and a smoothed load from it. It is not safe for concurrent use.
type Estimator struct {
	history  []Sample
	capacity int
	window   int
}

// NewEstimator creates an estimator keeping at most capacity samples and smoothing
// over the last window samples
func NewEstimator(capacity, window int) *Estimator {
	if capacity < 2 {
		capacity = 2
	}
	if window < 1 {
		window = 1
	}
	return &Estimator{
		history:  make([]Sample, 0, capacity),
		capacity: capacity,
		window:   window,
	}
}

// Observe appends a sample, evicting the oldest once the history is full. A sample
// older than the newest one held restarts the history.
func (e *Estimator) Observe(ts time.Time, customers float64) {
	if n := len(e.history); n > 0 && ts.Before(e.history[n-1].Timestamp) {
		e.history = e.history[:0]
	}
	if len(e.history) == e.capacity {
		copy(e.history, e.history[1:])
		e.history = e.history[:len(e.history)-1]
	}
	e.history = append(e.history, Sample{Timestamp: ts, Customers: customers})
}

// Len returns the number of samples held
func (e *Estimator) Len() int {
	return len(e.history)
}

// Reset drops the whole history
func (e *Estimator) Reset() {
	e.history = e.history[:0]
}

// TrendPerMinute returns the customers-per-minute slope between the oldest and
// newest samples. It is 0 with fewer than two samples or a non-positive time span.
func (e *Estimator) TrendPerMinute() float64 {
	if len(e.history) < 2 {
		return 0
	}
	oldest := e.history[0]
	newest := e.history[len(e.history)-1]
	minutes := newest.Timestamp.Sub(oldest.Timestamp).Minutes()
	if minutes <= 0 {
		return 0
	}
	return (newest.Customers - oldest.Customers) / minutes
}

// StabilizedLoad blends the trailing average of recent samples with the current count
func (e *Estimator) StabilizedLoad(current float64) float64 {
	if len(e.history) == 0 {
		return max(0, current)
	}
	start := len(e.history) - e.window
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, s := range e.history[start:] {
		sum += s.Customers
	}
	avg := sum / float64(len(e.history)-start)
	// 0.65*avg + 0.35*current, exact when the two agree
	return max(0, current+0.65*(avg-current))
}

// ByQueue holds one policy value per queue state
type ByQueue struct {
	Surging float64 `yaml:"surging"`
	Steady  float64 `yaml:"steady"`
	Falling float64 `yaml:"falling"`
}

// For returns the value for state. Unavailable uses the steady value.
func (b ByQueue) For(state models.QueueState) float64 {
	switch state {
	case models.QueueSurging:
		return b.Surging
	case models.QueueFalling:
		return b.Falling
	default:
		return b.Steady
	}
}

// Policy holds the empirically chosen forecasting constants
type Policy struct {
	SurgeThreshold   float64 `yaml:"surge_threshold"`
	FallThreshold    float64 `yaml:"fall_threshold"`
	TrendBoost       ByQueue `yaml:"trend_boost"`
	SafetyRatio      ByQueue `yaml:"safety_ratio"`
	HistorySize      int     `yaml:"history_size"`
	StabilizerWindow int     `yaml:"stabilizer_window"`
}

// DefaultPolicy returns the demo calibration
func DefaultPolicy() Policy {
	return Policy{
		SurgeThreshold:   0.85,
		FallThreshold:    -0.75,
		TrendBoost:       ByQueue{Surging: 0.9, Steady: 0.7, Falling: 0.5},
		SafetyRatio:      ByQueue{Surging: 0.35, Steady: 0.22, Falling: 0.12},
		HistorySize:      90,
		StabilizerWindow: 12,
	}
}

// QueueState classifies a trend
func (p Policy) QueueState(trend float64) models.QueueState {
	switch {
	case trend >= p.SurgeThreshold:
		return models.QueueSurging
	case trend <= p.FallThreshold:
		return models.QueueFalling
	default:
		return models.QueueSteady
	}
}

// Project extrapolates the stabilized load over the horizon, floored at 0
func (p Policy) Project(stabilized, trend, horizonMin float64, state models.QueueState) float64 {
	return max(0, stabilized+trend*horizonMin*p.TrendBoost.For(state))
}

// Confidence scores the forecast from the history depth and inference throughput
func Confidence(samples int, processingFPS float64) float64 {
	history := Clamp(float64(samples)/18, 0, 1)
	fps := Clamp(processingFPS/15, 0, 1)
	return models.Round(Clamp(0.45+0.35*history+0.2*fps, 0.45, 0.95), 2)
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
