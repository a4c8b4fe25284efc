// Package metrics exports answer-engine counters and histograms in
// Prometheus format on a private registry.
package metrics

// #region imports
import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// #endregion imports

// #region recorder

const namespace = "answer_engine"

// Recorder holds every metric the engine emits. A nil *Recorder is valid and
// records nothing, so components can take one optionally.
type Recorder struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	remoteCalls   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec
	trainingRuns  *prometheus.CounterVec
	trainingScore *prometheus.GaugeVec
	modelLoads    *prometheus.CounterVec
}

// LatencyBuckets are the remote-call latency buckets in seconds.
var LatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16}

// New creates a Recorder on a fresh registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "decisions_total",
			Help:      "Resolved questions by decision source",
		},
		[]string{"source", "cached"},
	)
	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)
	r.remoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Remote generative calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)
	r.remoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "latency_seconds",
			Help:      "Remote generative call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"op", "backend"},
	)
	r.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "breaker_state",
			Help:      "1 for the circuit breaker's current state, 0 otherwise",
		},
		[]string{"state"},
	)
	r.trainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "runs_total",
			Help:      "Training runs by outcome",
		},
		[]string{"outcome"},
	)
	r.trainingScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "best_score",
			Help:      "Best cross-validation accuracy of the latest run per agent",
		},
		[]string{"agent_id"},
	)
	r.modelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "model_loads_total",
			Help:      "Artifact loads into the in-memory model cache by outcome",
		},
		[]string{"outcome"},
	)

	r.registry.MustRegister(
		r.decisions, r.cacheLookups, r.remoteCalls, r.remoteLatency,
		r.breakerState, r.trainingRuns, r.trainingScore, r.modelLoads,
	)
	return r
}

// Registry exposes the private registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// #endregion recorder

// #region record

// Decision counts one resolved question.
func (r *Recorder) Decision(source string, cached bool) {
	if r == nil {
		return
	}
	c := "false"
	if cached {
		c = "true"
	}
	r.decisions.WithLabelValues(source, c).Inc()
}

// CacheLookup counts one cache read. kind is "decision" or "enhancement".
func (r *Recorder) CacheLookup(kind string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RemoteCall counts one remote call and observes its latency.
func (r *Recorder) RemoteCall(op, backend, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.remoteCalls.WithLabelValues(op, outcome).Inc()
	if elapsed > 0 {
		r.remoteLatency.WithLabelValues(op, backend).Observe(elapsed.Seconds())
	}
}

// BreakerState marks state as the breaker's current state.
func (r *Recorder) BreakerState(state string, all []string) {
	if r == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		r.breakerState.WithLabelValues(s).Set(v)
	}
}

// TrainingRun counts one training attempt.
func (r *Recorder) TrainingRun(outcome string) {
	if r == nil {
		return
	}
	r.trainingRuns.WithLabelValues(outcome).Inc()
}

// TrainingScore records the best CV score of an agent's latest artifact.
func (r *Recorder) TrainingScore(agentID string, score float64) {
	if r == nil {
		return
	}
	r.trainingScore.WithLabelValues(agentID).Set(score)
}

// ModelLoad counts one artifact load attempt.
func (r *Recorder) ModelLoad(outcome string) {
	if r == nil {
		return
	}
	r.modelLoads.WithLabelValues(outcome).Inc()
}

// #endregion record
