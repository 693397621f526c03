package oracle

import (
	"context"
	"fmt"

	"github.com/jeeves-cluster-organization/consensusai/commbus"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/agents"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
)

// Query message types.
const (
	TypeEvaluateAgentQuery   = "EvaluateAgentQuery"
	TypeSynthesizeRoundQuery = "SynthesizeRoundQuery"
)

// EvaluateAgentQuery asks the registered backend to evaluate one agent.
type EvaluateAgentQuery struct {
	Request negotiation.AgentRequest `json:"request"`
}

func (q *EvaluateAgentQuery) Category() string    { return string(commbus.MessageCategoryQuery) }
func (q *EvaluateAgentQuery) MessageType() string { return TypeEvaluateAgentQuery }
func (q *EvaluateAgentQuery) IsQuery()            {}

// SynthesizeRoundQuery asks the registered backend to synthesize one round.
type SynthesizeRoundQuery struct {
	Request negotiation.CoordinatorRequest `json:"request"`
}

func (q *SynthesizeRoundQuery) Category() string    { return string(commbus.MessageCategoryQuery) }
func (q *SynthesizeRoundQuery) MessageType() string { return TypeSynthesizeRoundQuery }
func (q *SynthesizeRoundQuery) IsQuery()            {}

// BusOracle routes oracle calls through a CommBus, so the bus timeout and
// middleware (logging, circuit breaker) apply to every call.
type BusOracle struct {
	bus commbus.CommBus
}

// NewBusOracle creates an oracle that queries bus.
func NewBusOracle(bus commbus.CommBus) *BusOracle {
	return &BusOracle{bus: bus}
}

// EvaluateAgent implements negotiation.Oracle.
func (o *BusOracle) EvaluateAgent(ctx context.Context, req negotiation.AgentRequest) (agents.Response, error) {
	result, err := o.bus.QuerySync(ctx, &EvaluateAgentQuery{Request: req})
	if err != nil {
		return agents.Response{}, err
	}
	resp, ok := result.(agents.Response)
	if !ok {
		return agents.Response{}, fmt.Errorf("%w: unexpected agent result %T", negotiation.ErrMalformedResponse, result)
	}
	return resp, nil
}

// SynthesizeRound implements negotiation.Oracle.
func (o *BusOracle) SynthesizeRound(ctx context.Context, req negotiation.CoordinatorRequest) (negotiation.Verdict, error) {
	result, err := o.bus.QuerySync(ctx, &SynthesizeRoundQuery{Request: req})
	if err != nil {
		return negotiation.Verdict{}, err
	}
	verdict, ok := result.(negotiation.Verdict)
	if !ok {
		return negotiation.Verdict{}, fmt.Errorf("%w: unexpected coordinator result %T", negotiation.ErrMalformedResponse, result)
	}
	return verdict, nil
}

// RegisterHandlers installs backend as the handler of both oracle queries.
func RegisterHandlers(bus commbus.CommBus, backend negotiation.Oracle) error {
	if err := bus.RegisterHandler(TypeEvaluateAgentQuery, func(ctx context.Context, msg commbus.Message) (any, error) {
		q, ok := msg.(*EvaluateAgentQuery)
		if !ok {
			return nil, fmt.Errorf("unexpected message %T", msg)
		}
		return backend.EvaluateAgent(ctx, q.Request)
	}); err != nil {
		return err
	}
	return bus.RegisterHandler(TypeSynthesizeRoundQuery, func(ctx context.Context, msg commbus.Message) (any, error) {
		q, ok := msg.(*SynthesizeRoundQuery)
		if !ok {
			return nil, fmt.Errorf("unexpected message %T", msg)
		}
		return backend.SynthesizeRound(ctx, q.Request)
	})
}

var _ negotiation.Oracle = (*BusOracle)(nil)
