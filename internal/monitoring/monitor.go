package monitoring

import (
	"sync"
	"time"

	"frycast/internal/evaluation"
	"frycast/internal/models"
)

// Monitor keeps a small set of runtime counters for the status endpoint
type Monitor struct {
	metrics      map[string]interface{}
	metricsMutex sync.RWMutex
	startTime    time.Time
	now          func() time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		metrics:   make(map[string]interface{}),
		startTime: time.Now(),
		now:       time.Now,
	}
}

// RecordMetric records a metric value
func (m *Monitor) RecordMetric(name string, value interface{}) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] = value
}

// GetMetrics returns a copy of the current metrics plus uptime
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	metrics := make(map[string]interface{}, len(m.metrics)+1)
	for k, v := range m.metrics {
		metrics[k] = v
	}
	metrics["uptime_seconds"] = time.Since(m.startTime).Seconds()

	return metrics
}

// ObserveTick counts a stored sampling tick
func (m *Monitor) ObserveTick(point models.MetricPoint, _ models.Recommendation) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	m.increment("samples_total", 1)
	m.metrics["last_sample_id"] = point.ID
	m.metrics["last_sample_at"] = point.Timestamp.UTC().Format(time.RFC3339)
	m.metrics["stream_status"] = string(point.StreamStatus)
	m.metrics["queue_state"] = string(point.QueueState)
}

// ObserveSweep accumulates evaluator results
func (m *Monitor) ObserveSweep(result evaluation.SweepResult) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	m.increment("outcomes_evaluated_total", result.Evaluated)
	m.increment("outcomes_insufficient_total", result.Insufficient)
	m.metrics["last_sweep_at"] = m.now().UTC().Format(time.RFC3339)
}

// RecordError counts a failure in component and keeps its last message
func (m *Monitor) RecordError(component string, err error) {
	if err == nil {
		return
	}
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	m.increment(component+"_errors_total", 1)
	m.metrics[component+"_last_error"] = err.Error()
	m.metrics[component+"_last_error_at"] = m.now().UTC().Format(time.RFC3339)
}

// ObserveTickError records a failed sampling tick
func (m *Monitor) ObserveTickError(err error) {
	m.RecordError("sampler", err)
}

// increment must be called with metricsMutex held
func (m *Monitor) increment(name string, delta int) {
	current, _ := m.metrics[name].(int)
	m.metrics[name] = current + delta
}
