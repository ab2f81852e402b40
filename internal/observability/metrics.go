package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges shared by
// the pipeline services. Each service touches only its own subset.
type Metrics struct {
	// Collector metrics.
	FetchRequests   *prometheus.CounterVec // labels: source={weather,pollution}, outcome={success,error}
	RawPublished    prometheus.Counter
	CollectionCycle prometheus.Histogram

	// Join processor metrics.
	EventsConsumed  prometheus.Counter
	MergesProduced  prometheus.Counter
	NormalizeErrors prometheus.Counter
	PendingStates   prometheus.Gauge
	StaleDiscarded  prometheus.Counter

	// Predictor metrics.
	PredictionsMade  prometheus.Counter
	PredictionErrors prometheus.Counter
	AlertsSent       prometheus.Counter
	TrainingRuns     *prometheus.CounterVec // labels: outcome={ok,insufficient,error}
	TrainingDuration prometheus.Histogram
	PipelineRunning  prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.RawPublished,
		m.CollectionCycle,
		m.EventsConsumed,
		m.MergesProduced,
		m.NormalizeErrors,
		m.PendingStates,
		m.StaleDiscarded,
		m.PredictionsMade,
		m.PredictionErrors,
		m.AlertsSent,
		m.TrainingRuns,
		m.TrainingDuration,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "fetch_requests_total",
			Help:      "Provider fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		RawPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "raw_events_published_total",
			Help:      "Raw events published to the raw topic.",
		}),
		CollectionCycle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aq_pipeline",
			Name:      "collection_cycle_duration_seconds",
			Help:      "Duration of a full sweep over active locations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "raw_events_consumed_total",
			Help:      "Raw events read from the raw topic.",
		}),
		MergesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "merged_records_produced_total",
			Help:      "Merged records persisted and published.",
		}),
		NormalizeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "normalize_errors_total",
			Help:      "Raw events rejected at normalization.",
		}),
		PendingStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aq_pipeline",
			Name:      "pending_join_states",
			Help:      "Locations currently holding a half-filled join state.",
		}),
		StaleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "stale_join_states_discarded_total",
			Help:      "Half-filled join states discarded by the stale sweep.",
		}),
		PredictionsMade: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "predictions_total",
			Help:      "Predictions persisted.",
		}),
		PredictionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "prediction_errors_total",
			Help:      "Prediction attempts that failed.",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "alerts_sent_total",
			Help:      "Threshold alerts handed to the notifier.",
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_pipeline",
			Name:      "training_runs_total",
			Help:      "Training invocations by outcome.",
		}, []string{"outcome"}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aq_pipeline",
			Name:      "training_duration_seconds",
			Help:      "Duration of a training run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 600},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aq_pipeline",
			Name:      "pipeline_running",
			Help:      "1 when the service loop is active, 0 when shut down.",
		}),
	}
}
