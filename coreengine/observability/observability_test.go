package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// METRICS TESTS
// =============================================================================

func TestRecordRound(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		converged bool
		outcome   string
	}{
		{"open general round", "general", false, "open"},
		{"converged general round", "general", true, "converged"},
		{"converged comparison round", "comparison", true, "converged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(roundsTotal.WithLabelValues(tt.mode, tt.outcome))
			RecordRound(tt.mode, tt.converged, 120)
			after := testutil.ToFloat64(roundsTotal.WithLabelValues(tt.mode, tt.outcome))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestRecordAgentEvaluation(t *testing.T) {
	RecordAgentEvaluation("budget", "fallback", "reject")
	RecordAgentEvaluation("budget", "oracle", "accept")

	assert.Greater(t, testutil.ToFloat64(agentEvaluationsTotal.WithLabelValues("budget", "fallback", "reject")), 0.0)
	assert.Greater(t, testutil.ToFloat64(agentEvaluationsTotal.WithLabelValues("budget", "oracle", "accept")), 0.0)
}

func TestRecordCoordinatorAndOracle(t *testing.T) {
	RecordCoordinatorSynthesis("fallback")
	RecordOracleCall("coordinator", "malformed")

	assert.Greater(t, testutil.ToFloat64(coordinatorSynthesesTotal.WithLabelValues("fallback")), 0.0)
	assert.Greater(t, testutil.ToFloat64(oracleCallsTotal.WithLabelValues("coordinator", "malformed")), 0.0)
}

func TestRecordLLMCall(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		model      string
		status     string
		durationMS int
	}{
		{"successful groq call", "groq", "llama-3.3-70b-versatile", "success", 2000},
		{"successful gemini call", "gemini", "gemini-1.5-flash", "success", 1500},
		{"failed call", "groq", "llama-3.3-70b-versatile", "error", 100},
		{"rate limited call", "groq", "llama-3.3-70b-versatile", "rate_limited", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordLLMCall(tt.provider, tt.model, tt.status, tt.durationMS)

			count := testutil.ToFloat64(llmCallsTotal.WithLabelValues(tt.provider, tt.model, tt.status))
			assert.Greater(t, count, 0.0)
		})
	}
}

func TestRecordGRPCRequest(t *testing.T) {
	RecordGRPCRequest("/consensus.v1.NegotiationService/EvaluateRound", "OK", 10)
	RecordGRPCRequest("/consensus.v1.NegotiationService/GetSession", "NotFound", 1)

	assert.Greater(t, testutil.ToFloat64(grpcRequestsTotal.WithLabelValues("/consensus.v1.NegotiationService/EvaluateRound", "OK")), 0.0)
	assert.Greater(t, testutil.ToFloat64(grpcRequestsTotal.WithLabelValues("/consensus.v1.NegotiationService/GetSession", "NotFound")), 0.0)
}

func TestSetActiveSessions(t *testing.T) {
	SetActiveSessions(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(activeSessions))
	SetActiveSessions(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(activeSessions))
}

func TestMetrics_Concurrent(t *testing.T) {
	const goroutines = 10
	const iterations = 100

	before := testutil.ToFloat64(agentEvaluationsTotal.WithLabelValues("concurrent-role", "oracle", "accept"))
	done := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			for j := 0; j < iterations; j++ {
				RecordAgentEvaluation("concurrent-role", "oracle", "accept")
				RecordRound("concurrent", false, 5)
				RecordConvergence("concurrent", 3)
			}
			done <- true
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	after := testutil.ToFloat64(agentEvaluationsTotal.WithLabelValues("concurrent-role", "oracle", "accept"))
	assert.Equal(t, float64(goroutines*iterations), after-before)
}

// =============================================================================
// TRACING TESTS
// =============================================================================

func TestInitTracer_EmptyEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracerConfig{ServiceName: "test-service"})

	require.Error(t, err)
	assert.Nil(t, shutdown)
	assert.True(t, errors.Is(err, ErrNoEndpoint))
	assert.Contains(t, err.Error(), "failed to create trace exporter")
}

func TestInitTracer_LazyExporter(t *testing.T) {
	// The gRPC exporter connects lazily, so construction succeeds without a collector.
	shutdown, err := InitTracer(context.Background(), TracerConfig{
		ServiceName: "consensusai-test",
		Endpoint:    "localhost:4317",
		SampleRatio: 0.5,
	})
	if err != nil {
		assert.Contains(t, err.Error(), "failed to")
		return
	}
	require.NotNil(t, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
