package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a NegotiationService client.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to target using the JSON codec. Without opts the connection
// is insecure.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)))

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// CreateSession calls NegotiationService.CreateSession.
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	out := new(SessionResponse)
	if err := c.conn.Invoke(ctx, fullMethod("CreateSession"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession calls NegotiationService.GetSession.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionResponse, error) {
	out := new(SessionResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetSession"), &SessionRequest{SessionID: sessionID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateRound calls NegotiationService.EvaluateRound.
func (c *Client) EvaluateRound(ctx context.Context, sessionID string) (*RoundResponse, error) {
	out := new(RoundResponse)
	if err := c.conn.Invoke(ctx, fullMethod("EvaluateRound"), &SessionRequest{SessionID: sessionID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSummary calls NegotiationService.GetSummary.
func (c *Client) GetSummary(ctx context.Context, sessionID string) (*SummaryResponse, error) {
	out := new(SummaryResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetSummary"), &SessionRequest{SessionID: sessionID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRankings calls NegotiationService.GetRankings.
func (c *Client) GetRankings(ctx context.Context, sessionID string) (*RankingsResponse, error) {
	out := new(RankingsResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetRankings"), &SessionRequest{SessionID: sessionID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSession calls NegotiationService.DeleteSession.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (*DeleteSessionResponse, error) {
	out := new(DeleteSessionResponse)
	if err := c.conn.Invoke(ctx, fullMethod("DeleteSession"), &SessionRequest{SessionID: sessionID}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchStream receives WatchSession events.
type WatchStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF after the last one.
func (w *WatchStream) Recv() (*WatchEvent, error) {
	ev := new(WatchEvent)
	if err := w.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// WatchSession opens the server stream of session events.
func (c *Client) WatchSession(ctx context.Context, sessionID string) (*WatchStream, error) {
	desc := &NegotiationServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, fullMethod("WatchSession"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&SessionRequest{SessionID: sessionID}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchStream{stream: stream}, nil
}
