package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/scenario"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "consensus.v1.NegotiationService"

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// =============================================================================
// MESSAGES
// =============================================================================

// CreateSessionRequest registers a negotiation for a scenario.
type CreateSessionRequest struct {
	Scenario *scenario.Scenario `json:"scenario"`
}

// SessionRequest addresses one session.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// SessionResponse describes a session and its full engine state.
type SessionResponse struct {
	Session  kernel.SessionInfo   `json:"session"`
	Snapshot negotiation.Snapshot `json:"snapshot"`
}

// RoundResponse is the outcome of one evaluated round.
type RoundResponse struct {
	Session kernel.SessionInfo       `json:"session"`
	Result  *negotiation.RoundResult `json:"result"`
}

// SummaryResponse carries the executive summary.
type SummaryResponse struct {
	SessionID  string `json:"session_id"`
	Summary    string `json:"summary"`
	Confidence int    `json:"confidence"`
}

// RankingsResponse carries vendor rankings.
type RankingsResponse struct {
	SessionID string                      `json:"session_id"`
	Rankings  []negotiation.VendorRanking `json:"rankings"`
}

// DeleteSessionResponse acknowledges a deletion.
type DeleteSessionResponse struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
}

// WatchEvent is one streamed session event. Type is a commbus event type or
// "Snapshot" for the first message.
type WatchEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
}

// EventSnapshot is the type of the first WatchSession message.
const EventSnapshot = "Snapshot"

// =============================================================================
// SERVICE DESCRIPTOR
// =============================================================================

// NegotiationServiceServer is the server API of NegotiationService.
type NegotiationServiceServer interface {
	CreateSession(context.Context, *CreateSessionRequest) (*SessionResponse, error)
	GetSession(context.Context, *SessionRequest) (*SessionResponse, error)
	EvaluateRound(context.Context, *SessionRequest) (*RoundResponse, error)
	GetSummary(context.Context, *SessionRequest) (*SummaryResponse, error)
	GetRankings(context.Context, *SessionRequest) (*RankingsResponse, error)
	DeleteSession(context.Context, *SessionRequest) (*DeleteSessionResponse, error)
	WatchSession(*SessionRequest, WatchSessionServer) error
}

// WatchSessionServer is the server side of the WatchSession stream.
type WatchSessionServer interface {
	Send(*WatchEvent) error
	grpc.ServerStream
}

type watchSessionServer struct {
	grpc.ServerStream
}

func (s *watchSessionServer) Send(e *WatchEvent) error {
	return s.ServerStream.SendMsg(e)
}

func unaryHandler[Req, Resp any](method string, call func(NegotiationServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(NegotiationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(NegotiationServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchSessionHandler(srv any, stream grpc.ServerStream) error {
	in := new(SessionRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(NegotiationServiceServer).WatchSession(in, &watchSessionServer{stream})
}

// NegotiationServiceDesc describes NegotiationService for grpc.Server.RegisterService.
var NegotiationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NegotiationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: unaryHandler("CreateSession", NegotiationServiceServer.CreateSession)},
		{MethodName: "GetSession", Handler: unaryHandler("GetSession", NegotiationServiceServer.GetSession)},
		{MethodName: "EvaluateRound", Handler: unaryHandler("EvaluateRound", NegotiationServiceServer.EvaluateRound)},
		{MethodName: "GetSummary", Handler: unaryHandler("GetSummary", NegotiationServiceServer.GetSummary)},
		{MethodName: "GetRankings", Handler: unaryHandler("GetRankings", NegotiationServiceServer.GetRankings)},
		{MethodName: "DeleteSession", Handler: unaryHandler("DeleteSession", NegotiationServiceServer.DeleteSession)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchSession", Handler: watchSessionHandler, ServerStreams: true},
	},
	Metadata: "consensus/v1/negotiation.proto",
}

// RegisterNegotiationServiceServer registers srv on s.
func RegisterNegotiationServiceServer(s grpc.ServiceRegistrar, srv NegotiationServiceServer) {
	s.RegisterService(&NegotiationServiceDesc, srv)
}
