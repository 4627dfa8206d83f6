package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jordanhubbard/gauntlet/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine
type Metrics struct {
	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	AgentsInFlight    prometheus.Gauge

	// Responder metrics
	ResponderCalls   *prometheus.CounterVec
	ResponderLatency *prometheus.HistogramVec

	// Evaluation metrics
	ResultsTotal       *prometheus.CounterVec
	ResultScore        *prometheus.HistogramVec
	LowConfidenceTotal *prometheus.CounterVec

	// Learning metrics
	TierAdvances        *prometheus.CounterVec
	LevelUps            prometheus.Counter
	PersistenceFailures prometheus.Counter

	// System metrics
	EventsPublished *prometheus.CounterVec
	PipelineErrors  *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics. Repeated calls
// return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			ExecutionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gauntlet_executions_total",
					Help: "Scenario executions by terminal status",
				},
				[]string{"category", "tier", "status"},
			),
			ExecutionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gauntlet_execution_duration_seconds",
					Help:    "Wall time of scenario executions",
					Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3h
				},
				[]string{"category", "status"},
			),
			AgentsInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "gauntlet_agents_in_flight",
					Help: "Agents currently holding an execution lease",
				},
			),
			ResponderCalls: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gauntlet_responder_calls_total",
					Help: "Responder calls by phase and outcome",
				},
				[]string{"phase", "outcome"},
			),
			ResponderLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gauntlet_responder_latency_seconds",
					Help:    "Responder call latency",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
				},
				[]string{"phase"},
			),
			ResultsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gauntlet_results_total",
					Help: "Evaluation results by category, tier and pass/fail",
				},
				[]string{"category", "tier", "passed"},
			),
			ResultScore: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gauntlet_result_score",
					Help:    "Aggregate evaluation scores",
					Buckets: prometheus.LinearBuckets(10, 10, 10),
				},
				[]string{"category"},
			),
			LowConfidenceTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gauntlet_low_confidence_results_total",
					Help: "Results scored at least partly by the heuristic fallback",
				},
				[]string{"category"},
			),
			TierAdvances: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gauntlet_tier_advances_total",
					Help: "Agent tier advances",
				},
				[]string{"to"},
			),
			LevelUps: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "gauntlet_level_ups_total",
					Help: "Agent level increases",
				},
			),
			PersistenceFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "gauntlet_persistence_failures_total",
					Help: "Results that could not be durably recorded",
				},
			),
			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gauntlet_events_published_total",
					Help: "Messages published to the bus",
				},
				[]string{"event_type", "success"},
			),
			PipelineErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gauntlet_pipeline_errors_total",
					Help: "Synchronous pipeline errors returned to callers",
				},
				[]string{"kind"},
			),
		}
	})

	return sharedMetrics
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResponse records one responder call.
func (m *Metrics) ObserveResponse(agentID string, phase models.Phase, d time.Duration, err error) {
	p := string(phase)
	if p == "" {
		p = "single"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ResponderCalls.WithLabelValues(p, outcome).Inc()
	m.ResponderLatency.WithLabelValues(p).Observe(d.Seconds())
}

// RecordExecution records a finished execution.
func (m *Metrics) RecordExecution(sc *models.TestScenario, ex *models.TestExecution) {
	m.ExecutionsTotal.WithLabelValues(string(sc.Category), string(sc.Tier), string(ex.Status)).Inc()
	m.ExecutionDuration.WithLabelValues(string(sc.Category), string(ex.Status)).Observe(ex.Duration().Seconds())
}

// RecordResult records one participant's evaluation.
func (m *Metrics) RecordResult(sc *models.TestScenario, res *models.EvaluationResult) {
	m.ResultsTotal.WithLabelValues(string(sc.Category), string(sc.Tier), strconv.FormatBool(res.Passed)).Inc()
	m.ResultScore.WithLabelValues(string(sc.Category)).Observe(res.AggregateScore)
	if res.LowConfidence {
		m.LowConfidenceTotal.WithLabelValues(string(sc.Category)).Inc()
	}
}

// RecordAdvance records a tier advance.
func (m *Metrics) RecordAdvance(to models.Tier) {
	m.TierAdvances.WithLabelValues(string(to)).Inc()
}

// RecordEventPublished records a publish attempt.
func (m *Metrics) RecordEventPublished(eventType string, err error) {
	m.EventsPublished.WithLabelValues(eventType, strconv.FormatBool(err == nil)).Inc()
}

// RecordPipelineError records a synchronous error by kind.
func (m *Metrics) RecordPipelineError(kind string) {
	m.PipelineErrors.WithLabelValues(kind).Inc()
}
