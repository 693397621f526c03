// Package observability provides Prometheus metrics and OpenTelemetry tracing for the negotiation engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// ROUND METRICS
// =============================================================================

var (
	roundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_rounds_total",
			Help: "Total number of negotiation rounds evaluated",
		},
		[]string{"mode", "outcome"}, // mode: general, comparison; outcome: converged, open
	)

	roundDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consensus_round_duration_seconds",
			Help:    "Negotiation round duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	roundsToConvergence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consensus_rounds_to_convergence",
			Help:    "Number of rounds a negotiation took to converge",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
		},
		[]string{"mode"},
	)
)

// =============================================================================
// AGENT METRICS
// =============================================================================

var (
	agentEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_agent_evaluations_total",
			Help: "Total number of agent evaluations",
		},
		[]string{"role", "source", "decision"}, // source: oracle, fallback
	)

	coordinatorSynthesesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_coordinator_syntheses_total",
			Help: "Total number of coordinator syntheses",
		},
		[]string{"source"}, // source: oracle, fallback
	)
)

// =============================================================================
// ORACLE & LLM METRICS
// =============================================================================

var (
	oracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_oracle_calls_total",
			Help: "Total number of reasoning oracle calls",
		},
		[]string{"kind", "status"}, // kind: agent, coordinator; status: success, error, malformed
	)

	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_llm_calls_total",
			Help: "Total number of LLM API calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error, rate_limited
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consensus_llm_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)
)

// =============================================================================
// GRPC METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"}, // status: OK, InvalidArgument, Internal, etc.
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consensus_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)
)

// =============================================================================
// SESSION METRICS
// =============================================================================

var activeSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "consensus_active_sessions",
		Help: "Number of negotiation sessions held by the kernel",
	},
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordRound records one evaluated round.
func RecordRound(mode string, converged bool, durationMS int) {
	outcome := "open"
	if converged {
		outcome = "converged"
	}
	roundsTotal.WithLabelValues(mode, outcome).Inc()
	roundDurationSeconds.WithLabelValues(mode).Observe(float64(durationMS) / 1000.0)
}

// RecordConvergence records how many rounds a negotiation needed.
func RecordConvergence(mode string, rounds int) {
	roundsToConvergence.WithLabelValues(mode).Observe(float64(rounds))
}

// RecordAgentEvaluation records one agent evaluation.
func RecordAgentEvaluation(role string, source string, decision string) {
	agentEvaluationsTotal.WithLabelValues(role, source, decision).Inc()
}

// RecordCoordinatorSynthesis records one coordinator step.
func RecordCoordinatorSynthesis(source string) {
	coordinatorSynthesesTotal.WithLabelValues(source).Inc()
}

// RecordOracleCall records one oracle call.
func RecordOracleCall(kind string, status string) {
	oracleCallsTotal.WithLabelValues(kind, status).Inc()
}

// RecordLLMCall records LLM call metrics.
// This should be called after LLM generation completes.
func RecordLLMCall(provider string, model string, status string, durationMS int) {
	llmCallsTotal.WithLabelValues(provider, model, status).Inc()
	llmDurationSeconds.WithLabelValues(provider, model).Observe(float64(durationMS) / 1000.0)
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}

// SetActiveSessions sets the session gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
