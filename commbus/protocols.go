package commbus

import (
	"context"
)

// =============================================================================
// COMMBUS PROTOCOLS
// =============================================================================

// Message is the protocol for all commbus messages.
type Message interface {
	// Category returns the message category: "event" or "query".
	Category() string
}

// TypedMessage is implemented by messages that name their own routing type.
// Messages defined outside this package must implement it.
type TypedMessage interface {
	Message
	MessageType() string
}

// Query is the protocol for query messages that expect a response.
type Query interface {
	Message
	// IsQuery is a marker method to distinguish queries from events.
	IsQuery()
}

// SessionEvent is implemented by events scoped to one negotiation session.
type SessionEvent interface {
	Message
	Session() string
}

// HandlerFunc processes a message and returns a response for queries.
type HandlerFunc func(ctx context.Context, message Message) (any, error)

// Middleware intercepts messages before and after handling.
type Middleware interface {
	// Before is called before the message is handled.
	// Returns the message to continue with, nil to drop an event silently,
	// or an error to reject it.
	Before(ctx context.Context, message Message) (Message, error)

	// After is called after the message is handled, in reverse order.
	After(ctx context.Context, message Message, result any, err error) (any, error)
}

// CommBus is the communication bus used by the engine, the oracle and the
// transports.
//
//   - Publish(event): fire-and-forget, fan-out to all subscribers
//   - QuerySync(query): request-response with a timeout
type CommBus interface {
	Publish(ctx context.Context, event Message) error
	QuerySync(ctx context.Context, query Query) (any, error)

	// Subscribe returns an unsubscribe function.
	Subscribe(eventType string, handler HandlerFunc) func()
	RegisterHandler(messageType string, handler HandlerFunc) error
	AddMiddleware(middleware Middleware)

	HasHandler(messageType string) bool
	SubscriberCount(eventType string) int
	Clear()
}
