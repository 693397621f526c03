package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/jeeves-cluster-organization/consensusai/commbus"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/config"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/testutil"
)

const bufSize = 1024 * 1024

type harness struct {
	kernel *kernel.Kernel
	client *Client
	logger *testutil.MockLogger
}

// startServer serves a kernel with a bus over bufconn.
func startServer(t *testing.T, oracle negotiation.Oracle) *harness {
	t.Helper()

	logger := testutil.NewMockLogger()
	bus := commbus.NewInMemoryCommBus(time.Second, logger)
	cfg := kernel.DefaultKernelConfig()
	cfg.Negotiation = config.DefaultNegotiationConfig()
	k := kernel.NewKernel(logger, bus, cfg)

	srv := NewGracefulServer(NewNegotiationServer(k, oracle, logger), "bufnet")
	lis := bufconn.Listen(bufSize)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		_ = srv.Serve(ctx, lis)
		close(served)
	}()

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		_ = k.Shutdown(context.Background())
		cancel()
		<-served
	})
	return &harness{kernel: k, client: client, logger: logger}
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// SESSION RPC TESTS
// =============================================================================

func TestCreateAndGetSession(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	created, err := h.client.CreateSession(ctx, &CreateSessionRequest{Scenario: testutil.GeneralScenario()})
	require.NoError(t, err)
	assert.NotEmpty(t, created.Session.ID)
	assert.Equal(t, kernel.SessionStateIdle, created.Session.State)
	assert.Equal(t, "Cloud Migration", created.Session.Title)
	assert.Equal(t, negotiation.StateIdle, created.Snapshot.State)
	assert.Len(t, created.Snapshot.Agents, 4)

	got, err := h.client.GetSession(ctx, created.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Session.ID, got.Snapshot.SessionID)
}

func TestCreateSession_InvalidScenario(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	_, err := h.client.CreateSession(ctx, &CreateSessionRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	scn := testutil.GeneralScenario()
	scn.Title = " "
	_, err = h.client.CreateSession(ctx, &CreateSessionRequest{Scenario: scn})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "title is required")
}

func TestUnknownSession(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	tests := []struct {
		name string
		call func() error
	}{
		{"GetSession", func() error { _, err := h.client.GetSession(ctx, "missing"); return err }},
		{"EvaluateRound", func() error { _, err := h.client.EvaluateRound(ctx, "missing"); return err }},
		{"GetSummary", func() error { _, err := h.client.GetSummary(ctx, "missing"); return err }},
		{"GetRankings", func() error { _, err := h.client.GetRankings(ctx, "missing"); return err }},
		{"DeleteSession", func() error { _, err := h.client.DeleteSession(ctx, "missing"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, codes.NotFound, status.Code(tt.call()))
		})
	}
}

func TestMissingSessionID(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())

	_, err := h.client.GetSession(callCtx(t), "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "session_id is required")
}

func TestEvaluateRound_ConvergesThenFailsPrecondition(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	created, err := h.client.CreateSession(ctx, &CreateSessionRequest{Scenario: testutil.GeneralScenario()})
	require.NoError(t, err)
	id := created.Session.ID

	round, err := h.client.EvaluateRound(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, round.Result.Round)
	assert.True(t, round.Result.Converged)
	assert.Equal(t, kernel.SessionStateConverged, round.Session.State)

	_, err = h.client.EvaluateRound(ctx, id)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	summary, err := h.client.GetSummary(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.Summary)
	assert.GreaterOrEqual(t, summary.Confidence, 10)
}

func TestGetRankings(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	general, err := h.client.CreateSession(ctx, &CreateSessionRequest{Scenario: testutil.GeneralScenario()})
	require.NoError(t, err)
	_, err = h.client.GetRankings(ctx, general.Session.ID)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err), "general mode has no rankings")

	vendor, err := h.client.CreateSession(ctx, &CreateSessionRequest{Scenario: testutil.VendorScenario()})
	require.NoError(t, err)
	_, err = h.client.GetRankings(ctx, vendor.Session.ID)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err), "no rankings before the first round")

	_, err = h.client.EvaluateRound(ctx, vendor.Session.ID)
	require.NoError(t, err)

	rankings, err := h.client.GetRankings(ctx, vendor.Session.ID)
	require.NoError(t, err)
	require.Len(t, rankings.Rankings, 3)
	for i, r := range rankings.Rankings {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestDeleteSession(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	created, err := h.client.CreateSession(ctx, &CreateSessionRequest{Scenario: testutil.GeneralScenario()})
	require.NoError(t, err)

	resp, err := h.client.DeleteSession(ctx, created.Session.ID)
	require.NoError(t, err)
	assert.True(t, resp.Deleted)
	assert.Equal(t, 0, h.kernel.SessionCount())

	_, err = h.client.GetSession(ctx, created.Session.ID)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

// =============================================================================
// WATCH TESTS
// =============================================================================

func TestWatchSession_StreamsRoundUntilConvergence(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	created, err := h.client.CreateSession(ctx, &CreateSessionRequest{Scenario: testutil.GeneralScenario()})
	require.NoError(t, err)
	id := created.Session.ID

	stream, err := h.client.WatchSession(ctx, id)
	require.NoError(t, err)

	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, EventSnapshot, first.Type)
	assert.Equal(t, id, first.SessionID)

	_, err = h.client.EvaluateRound(ctx, id)
	require.NoError(t, err)

	var types []string
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, id, ev.SessionID)
		types = append(types, ev.Type)
	}

	require.NotEmpty(t, types)
	assert.Equal(t, commbus.TypeRoundStarted, types[0])
	assert.Equal(t, commbus.TypeNegotiationConverged, types[len(types)-1])
	assert.Contains(t, types, commbus.TypeRoundCompleted)
	count := 0
	for _, et := range types {
		if et == commbus.TypeAgentEvaluated {
			count++
		}
	}
	assert.Equal(t, 4, count)
}

func TestWatchSession_EndsOnClose(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	created, err := h.client.CreateSession(ctx, &CreateSessionRequest{Scenario: testutil.GeneralScenario()})
	require.NoError(t, err)

	stream, err := h.client.WatchSession(ctx, created.Session.ID)
	require.NoError(t, err)
	_, err = stream.Recv()
	require.NoError(t, err)

	require.NoError(t, h.kernel.CloseSession(created.Session.ID))

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, commbus.TypeSessionClosed, ev.Type)
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWatchSession_TerminalSessionSendsOnlySnapshot(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	created, err := h.client.CreateSession(ctx, &CreateSessionRequest{Scenario: testutil.GeneralScenario()})
	require.NoError(t, err)
	_, err = h.client.EvaluateRound(ctx, created.Session.ID)
	require.NoError(t, err)

	stream, err := h.client.WatchSession(ctx, created.Session.ID)
	require.NoError(t, err)
	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, EventSnapshot, first.Type)
	assert.Contains(t, string(first.Payload), `"state":"converged"`)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWatchSession_UnknownSession(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())
	ctx := callCtx(t)

	stream, err := h.client.WatchSession(ctx, "missing")
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.NotFound, status.Code(err))
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", fmt.Errorf("wrap: %w", kernel.ErrSessionNotFound), codes.NotFound},
		{"invalid scenario", kernel.ErrInvalidScenario, codes.InvalidArgument},
		{"session limit", kernel.ErrTooManySessions, codes.ResourceExhausted},
		{"converged", negotiation.ErrConverged, codes.FailedPrecondition},
		{"not started", negotiation.ErrNotStarted, codes.FailedPrecondition},
		{"not comparison", negotiation.ErrNotComparisonMode, codes.FailedPrecondition},
		{"closed", kernel.ErrSessionClosed, codes.FailedPrecondition},
		{"canceled", context.Canceled, codes.Canceled},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"already a status", status.Error(codes.Unavailable, "down"), codes.Unavailable},
		{"unknown", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(toStatus("op", "id", tt.err)))
		})
	}
	assert.NoError(t, toStatus("op", "id", nil))
}

// =============================================================================
// INTERCEPTOR TESTS
// =============================================================================

func TestRecoveryInterceptor(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := RecoveryInterceptor(logger, nil)
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("GetSession")}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("kaboom")
	})

	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, err.Error(), "kaboom")
	assert.True(t, logger.HasLog("error", "grpc_panic_recovered"))
}

func TestStreamRecoveryInterceptor_CustomHandler(t *testing.T) {
	logger := testutil.NewMockLogger()
	custom := func(p any) error { return status.Errorf(codes.Aborted, "custom: %v", p) }
	interceptor := StreamRecoveryInterceptor(logger, custom)
	info := &grpc.StreamServerInfo{FullMethod: fullMethod("WatchSession"), IsServerStream: true}

	err := interceptor(nil, nil, info, func(any, grpc.ServerStream) error {
		panic("stream kaboom")
	})

	assert.Equal(t, codes.Aborted, status.Code(err))
	assert.True(t, logger.HasLog("error", "grpc_stream_panic_recovered"))
}

func TestLoggingInterceptor(t *testing.T) {
	logger := testutil.NewMockLogger()
	interceptor := LoggingInterceptor(logger)
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("EvaluateRound")}

	_, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.True(t, logger.HasLog("debug", "grpc_request_completed"))

	_, err = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, NotFound("session", "x")
	})
	assert.Error(t, err)
	assert.True(t, logger.HasLog("error", "grpc_request_failed"))
}

func TestServerLogsFailedCalls(t *testing.T) {
	h := startServer(t, testutil.NewMockOracle())

	_, err := h.client.GetSession(callCtx(t), "missing")
	require.Error(t, err)
	assert.True(t, h.logger.HasLog("error", "grpc_request_failed"))
}

// =============================================================================
// GRACEFUL SERVER TESTS
// =============================================================================

func TestGracefulServer_StopIsIdempotent(t *testing.T) {
	k := kernel.NewKernel(nil, nil, nil)
	srv := NewGracefulServer(NewNegotiationServer(k, testutil.NewMockOracle(), nil), "127.0.0.1:0")

	assert.Equal(t, "127.0.0.1:0", srv.Address())
	assert.NotNil(t, srv.GRPCServer())

	srv.GracefulStop()
	srv.GracefulStop()
	srv.Stop()
}

func TestGracefulServer_StartStopsOnCancel(t *testing.T) {
	k := kernel.NewKernel(nil, nil, nil)
	srv := NewGracefulServer(NewNegotiationServer(k, testutil.NewMockOracle(), nil), "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWatchSession_NoBus(t *testing.T) {
	k := kernel.NewKernel(nil, nil, nil)
	srv := NewNegotiationServer(k, testutil.NewMockOracle(), nil)

	err := srv.WatchSession(&SessionRequest{SessionID: "any"}, nil)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}
