// Package grpc exposes the negotiation kernel as consensus.v1.NegotiationService.
//
// Messages are plain Go structs carried by a JSON codec, so clients must
// dial with grpc.CallContentSubtype("json") (see Dial).
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/jeeves-cluster-organization/consensusai/commbus"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
)

// watchBuffer bounds how many events a slow WatchSession client may lag.
const watchBuffer = 64

// NegotiationServer implements NegotiationServiceServer on top of a kernel.
// Every session it creates is driven by the same oracle.
type NegotiationServer struct {
	kernel *kernel.Kernel
	oracle negotiation.Oracle
	logger logging.Logger
}

// NewNegotiationServer creates a server.
func NewNegotiationServer(k *kernel.Kernel, oracle negotiation.Oracle, logger logging.Logger) *NegotiationServer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &NegotiationServer{
		kernel: k,
		oracle: oracle,
		logger: logger.Bind("component", "grpc"),
	}
}

var _ NegotiationServiceServer = (*NegotiationServer)(nil)

// =============================================================================
// Session Operations
// =============================================================================

// CreateSession registers a negotiation for req.Scenario.
func (s *NegotiationServer) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	if req.Scenario == nil {
		return nil, InvalidArgument("scenario")
	}
	sess, err := s.kernel.CreateSession(req.Scenario, s.oracle)
	if err != nil {
		return nil, toStatus("create session", "", err)
	}
	s.logger.Debug("session_created_via_grpc", "session_id", sess.ID())
	return sessionResponse(sess), nil
}

// GetSession returns the session and its engine snapshot.
func (s *NegotiationServer) GetSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	return sessionResponse(sess), nil
}

// EvaluateRound runs one round.
func (s *NegotiationServer) EvaluateRound(ctx context.Context, req *SessionRequest) (*RoundResponse, error) {
	if err := validateRequired(req.SessionID, "session_id"); err != nil {
		return nil, err
	}
	result, err := s.kernel.EvaluateRound(ctx, req.SessionID)
	if err != nil {
		return nil, toStatus("evaluate round", req.SessionID, err)
	}
	sess, err := s.kernel.GetSession(req.SessionID)
	if err != nil {
		return nil, toStatus("evaluate round", req.SessionID, err)
	}
	return &RoundResponse{Session: sess.Info(), Result: result}, nil
}

// GetSummary renders the executive summary.
func (s *NegotiationServer) GetSummary(ctx context.Context, req *SessionRequest) (*SummaryResponse, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	engine := sess.Engine()
	return &SummaryResponse{
		SessionID:  sess.ID(),
		Summary:    engine.ExecutiveSummary(),
		Confidence: engine.ConfidenceScore(),
	}, nil
}

// GetRankings returns vendor rankings of a comparison session.
func (s *NegotiationServer) GetRankings(ctx context.Context, req *SessionRequest) (*RankingsResponse, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	rankings, err := sess.Engine().VendorRankings()
	if err != nil {
		return nil, toStatus("get rankings", req.SessionID, err)
	}
	return &RankingsResponse{SessionID: sess.ID(), Rankings: rankings}, nil
}

// DeleteSession closes and removes a session.
func (s *NegotiationServer) DeleteSession(ctx context.Context, req *SessionRequest) (*DeleteSessionResponse, error) {
	if err := validateRequired(req.SessionID, "session_id"); err != nil {
		return nil, err
	}
	if err := s.kernel.DeleteSession(req.SessionID); err != nil {
		return nil, toStatus("delete session", req.SessionID, err)
	}
	return &DeleteSessionResponse{SessionID: req.SessionID, Deleted: true}, nil
}

func (s *NegotiationServer) session(req *SessionRequest) (*kernel.Session, error) {
	if err := validateRequired(req.SessionID, "session_id"); err != nil {
		return nil, err
	}
	sess, err := s.kernel.GetSession(req.SessionID)
	if err != nil {
		return nil, toStatus("get session", req.SessionID, err)
	}
	return sess, nil
}

func sessionResponse(sess *kernel.Session) *SessionResponse {
	return &SessionResponse{Session: sess.Info(), Snapshot: sess.Engine().Snapshot()}
}

// =============================================================================
// Event Streaming
// =============================================================================

// WatchSession streams a snapshot followed by every event of the session
// until it converges, is closed, or the client goes away.
func (s *NegotiationServer) WatchSession(req *SessionRequest, stream WatchSessionServer) error {
	if err := validateRequired(req.SessionID, "session_id"); err != nil {
		return err
	}
	sess, sub, err := s.kernel.Watch(req.SessionID, watchBuffer)
	if errors.Is(err, kernel.ErrNoBus) {
		return FailedPrecondition("watch session", err)
	}
	if err != nil {
		return toStatus("watch session", req.SessionID, err)
	}
	defer sub.Close()

	snapshot, err := json.Marshal(sessionResponse(sess))
	if err != nil {
		return Internal("watch session", err)
	}
	if err := stream.Send(&WatchEvent{Type: EventSnapshot, SessionID: sess.ID(), Payload: snapshot}); err != nil {
		return err
	}
	if sess.State().IsTerminal() {
		return nil
	}

	ctx := stream.Context()
	s.logger.Debug("watch_started", "session_id", req.SessionID)
	for {
		select {
		case <-ctx.Done():
			return toStatus("watch session", req.SessionID, ctx.Err())
		case msg := <-sub.Events():
			eventType := commbus.GetMessageType(msg)
			payload, err := json.Marshal(msg)
			if err != nil {
				return Internal("watch session", err)
			}
			if err := stream.Send(&WatchEvent{Type: eventType, SessionID: req.SessionID, Payload: payload}); err != nil {
				return err
			}
			if commbus.IsTerminalEvent(eventType) {
				s.logger.Debug("watch_completed", "session_id", req.SessionID, "last_event", eventType)
				return nil
			}
		}
	}
}

// =============================================================================
// Graceful Server
// =============================================================================

// GracefulServer wraps a gRPC server with graceful shutdown support.
type GracefulServer struct {
	grpcServer *grpc.Server
	logger     logging.Logger
	address    string
	listener   net.Listener
	shutdownMu sync.Mutex
	isShutdown bool
}

// NewGracefulServer registers srv on a new grpc.Server. Without opts the
// ServerOptions chain is installed.
func NewGracefulServer(srv *NegotiationServer, address string, opts ...grpc.ServerOption) *GracefulServer {
	if len(opts) == 0 {
		opts = ServerOptions(srv.logger)
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterNegotiationServiceServer(grpcServer, srv)

	return &GracefulServer{
		grpcServer: grpcServer,
		logger:     srv.logger,
		address:    address,
	}
}

// Start listens on the configured address and serves until ctx is
// cancelled, then stops gracefully.
func (s *GracefulServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve is Start on an existing listener.
func (s *GracefulServer) Serve(ctx context.Context, lis net.Listener) error {
	s.listener = lis
	s.logger.Info("grpc_server_started", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("grpc_graceful_shutdown_initiated", "reason", ctx.Err().Error())
		s.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// GracefulStop stops accepting connections and waits for in-flight calls.
// Open WatchSession streams end when their sessions close.
func (s *GracefulServer) GracefulStop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return
	}
	s.isShutdown = true

	s.logger.Info("grpc_graceful_stop_started")
	s.grpcServer.GracefulStop()
	s.logger.Info("grpc_graceful_stop_completed")
}

// Stop immediately stops the server.
func (s *GracefulServer) Stop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return
	}
	s.isShutdown = true

	s.logger.Warn("grpc_immediate_stop")
	s.grpcServer.Stop()
}

// ShutdownWithTimeout stops gracefully, forcing an immediate stop after timeout.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("grpc_graceful_shutdown_timeout", "timeout_ms", timeout.Milliseconds())
		s.grpcServer.Stop()
	}
}

// GRPCServer returns the underlying grpc.Server.
func (s *GracefulServer) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// Address returns the configured address.
func (s *GracefulServer) Address() string {
	return s.address
}
