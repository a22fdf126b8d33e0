package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crash_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// prediction service.
type Metrics struct {
	PredictionRequests   *prometheus.CounterVec // labels: outcome={hit,computed,coalesced,invalid,not_found,error,abandoned}
	ComputationDuration  prometheus.Histogram
	ComputationsInFlight prometheus.Gauge

	// Cache metrics.
	CacheLookups     *prometheus.CounterVec // labels: tier={fast,persistent}, result={hit,miss,error,invalid}
	CacheWriteErrors *prometheus.CounterVec // labels: tier={fast,persistent}

	// Scoring metrics.
	ScoringInvocations *prometheus.CounterVec // labels: provenance={probability,regression,synthetic}
	ScoringFailures    *prometheus.CounterVec // labels: kind={timeout,canceled,exit,start,malformed,shape}
	ScoringDuration    prometheus.Histogram

	PredictionsDropped *prometheus.CounterVec // labels: reason={envelope,missing_location,non_finite,out_of_range}

	// Enrichment and publishing.
	GeocodeCache  *prometheus.CounterVec // labels: result={hit,miss}
	PublishErrors prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PredictionRequests,
		m.ComputationDuration,
		m.ComputationsInFlight,
		m.CacheLookups,
		m.CacheWriteErrors,
		m.ScoringInvocations,
		m.ScoringFailures,
		m.ScoringDuration,
		m.PredictionsDropped,
		m.GeocodeCache,
		m.PublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PredictionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_requests_total",
			Help:      "Prediction requests by outcome.",
		}, []string{"outcome"}),
		ComputationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "computation_duration_seconds",
			Help:      "Duration of a full generate-score-normalize computation for one date.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		ComputationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "computations_in_flight",
			Help:      "Prediction computations currently running.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		CacheWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_errors_total",
			Help:      "Failed cache writes by tier.",
		}, []string{"tier"}),
		ScoringInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_invocations_total",
			Help:      "Scoring batches by the provenance of the returned scores.",
		}, []string{"provenance"}),
		ScoringFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_failures_total",
			Help:      "External scorer failures recovered with synthetic scores, by kind.",
		}, []string{"kind"}),
		ScoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Wall-clock duration of external scorer invocations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		PredictionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_dropped_total",
			Help:      "Scores or stored predictions discarded for breaking prediction invariants, by reason.",
		}, []string{"reason"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Reverse geocoding cache lookups by result.",
		}, []string{"result"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed prediction-set event publications.",
		}),
	}
}
