package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"frycast/internal/evaluation"
	"frycast/internal/models"
)

const namespace = "frycast"

// MetricsCollector exposes planner, feedback and outcome metrics on a private registry
type MetricsCollector struct {
	registry *prometheus.Registry
	metrics  map[string]prometheus.Collector
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	samples := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Sampling ticks by stream status",
		},
		[]string{"stream_status"},
	)

	decisionTicks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_ticks_total",
			Help:      "Planner ticks that were allowed to change quantities",
		},
	)

	recommendedUnits := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recommended_units",
			Help:      "Latest recommended drop per item",
		},
		[]string{"item"},
	)

	shortfall := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shortfall_ratio",
			Help:      "Latest projected shortfall ratio per item",
		},
		[]string{"item"},
	)

	projected := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projected_customers",
			Help:      "Projected customers over the forecast horizon",
		},
	)

	multiplier := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feedback_multiplier",
			Help:      "Operator feedback multiplier per item",
		},
		[]string{"item"},
	)

	feedback := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_events_total",
			Help:      "Operator feedback events by action",
		},
		[]string{"action"},
	)

	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Feedback records that reached a terminal outcome",
		},
		[]string{"status"},
	)

	samplerErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampler_errors_total",
			Help:      "Sampling ticks that failed",
		},
	)

	subscribers := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Connected live stream subscribers by transport",
		},
		[]string{"transport"},
	)

	metrics := map[string]prometheus.Collector{
		"samples":     samples,
		"decisions":   decisionTicks,
		"units":       recommendedUnits,
		"shortfall":   shortfall,
		"projected":   projected,
		"multiplier":  multiplier,
		"feedback":    feedback,
		"outcomes":    outcomes,
		"errors":      samplerErrors,
		"subscribers": subscribers,
	}

	for _, metric := range metrics {
		registry.MustRegister(metric)
	}

	return &MetricsCollector{
		registry: registry,
		metrics:  metrics,
	}
}

// Registry returns the private registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the registry in the Prometheus exposition format
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// ObserveTick records one stored sampling tick and the recommendation made from it
func (mc *MetricsCollector) ObserveTick(point models.MetricPoint, rec models.Recommendation) {
	if counter, ok := mc.metrics["samples"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(string(point.StreamStatus)).Inc()
	}
	if gauge, ok := mc.metrics["projected"].(prometheus.Gauge); ok {
		gauge.Set(rec.Forecast.ProjectedCustomers)
	}

	due := false
	units, _ := mc.metrics["units"].(*prometheus.GaugeVec)
	shortfall, _ := mc.metrics["shortfall"].(*prometheus.GaugeVec)
	multiplier, _ := mc.metrics["multiplier"].(*prometheus.GaugeVec)
	for _, item := range rec.Recommendations {
		if !item.DecisionLocked {
			due = true
		}
		if units != nil {
			units.WithLabelValues(item.Item).Set(float64(item.RecommendedUnits))
		}
		if shortfall != nil {
			shortfall.WithLabelValues(item.Item).Set(item.ShortfallRatio)
		}
		if multiplier != nil {
			multiplier.WithLabelValues(item.Item).Set(item.FeedbackMultiplier)
		}
	}
	if counter, ok := mc.metrics["decisions"].(prometheus.Counter); ok && due {
		counter.Inc()
	}
}

// ObserveTickError records a failed sampling tick
func (mc *MetricsCollector) ObserveTickError(error) {
	if counter, ok := mc.metrics["errors"].(prometheus.Counter); ok {
		counter.Inc()
	}
}

// ObserveFeedback records an operator action and the item's new multiplier
func (mc *MetricsCollector) ObserveFeedback(item string, action models.FeedbackAction, multiplier float64) {
	if counter, ok := mc.metrics["feedback"].(*prometheus.CounterVec); ok {
		counter.WithLabelValues(string(action)).Inc()
	}
	if gauge, ok := mc.metrics["multiplier"].(*prometheus.GaugeVec); ok {
		gauge.WithLabelValues(item).Set(multiplier)
	}
}

// ObserveSweep records the outcomes reached by one evaluator sweep
func (mc *MetricsCollector) ObserveSweep(result evaluation.SweepResult) {
	counter, ok := mc.metrics["outcomes"].(*prometheus.CounterVec)
	if !ok {
		return
	}
	counter.WithLabelValues(string(models.OutcomeEvaluated)).Add(float64(result.Evaluated))
	counter.WithLabelValues(string(models.OutcomeInsufficientData)).Add(float64(result.Insufficient))
}

// SubscriberConnected tracks a live stream subscriber
func (mc *MetricsCollector) SubscriberConnected(transport string) {
	if gauge, ok := mc.metrics["subscribers"].(*prometheus.GaugeVec); ok {
		gauge.WithLabelValues(transport).Inc()
	}
}

// SubscriberDisconnected releases a live stream subscriber
func (mc *MetricsCollector) SubscriberDisconnected(transport string) {
	if gauge, ok := mc.metrics["subscribers"].(*prometheus.GaugeVec); ok {
		gauge.WithLabelValues(transport).Dec()
	}
}

// ResetItems drops per-item series, used after the menu changes
func (mc *MetricsCollector) ResetItems() {
	for _, name := range []string{"units", "shortfall", "multiplier"} {
		if gauge, ok := mc.metrics[name].(*prometheus.GaugeVec); ok {
			gauge.Reset()
		}
	}
}
