package commbus

import (
	"context"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/recovery"
)

type subscription struct {
	id      uint64
	handler HandlerFunc
}

// InMemoryCommBus is a thread-safe, single-process CommBus.
//
// Usage:
//
//	bus := NewInMemoryCommBus(60*time.Second, logger)
//	bus.RegisterHandler("EvaluateAgentQuery", handler)
//	unsubscribe := bus.Subscribe(TypeRoundCompleted, onRound)
//	defer unsubscribe()
//
//	bus.Publish(ctx, &RoundCompleted{...})
//	verdict, err := bus.QuerySync(ctx, query)
type InMemoryCommBus struct {
	handlers     map[string]HandlerFunc
	subscribers  map[string][]subscription
	middleware   []Middleware
	queryTimeout time.Duration
	nextID       uint64
	logger       logging.Logger
	mu           sync.RWMutex
}

// NewInMemoryCommBus creates a new InMemoryCommBus. A nil logger discards output.
func NewInMemoryCommBus(queryTimeout time.Duration, logger logging.Logger) *InMemoryCommBus {
	if logger == nil {
		logger = logging.Nop()
	}
	return &InMemoryCommBus{
		handlers:     make(map[string]HandlerFunc),
		subscribers:  make(map[string][]subscription),
		middleware:   make([]Middleware, 0),
		queryTimeout: queryTimeout,
		logger:       logger.Bind("component", "commbus"),
	}
}

// QueryTimeout returns the per-query deadline.
func (b *InMemoryCommBus) QueryTimeout() time.Duration {
	return b.queryTimeout
}

// =============================================================================
// MESSAGING
// =============================================================================

// Publish delivers an event to all subscribers concurrently and waits for them.
// Subscriber errors and panics are logged and never stop other subscribers.
func (b *InMemoryCommBus) Publish(ctx context.Context, event Message) error {
	eventType := GetMessageType(event)

	processedEvent, err := b.runMiddlewareBefore(ctx, event)
	if err != nil {
		return err
	}
	if processedEvent == nil {
		b.logger.Debug("event_dropped_by_middleware", "event_type", eventType)
		return nil
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subscribers[eventType]))
	copy(subs, b.subscribers[eventType])
	b.mu.RUnlock()

	if len(subs) == 0 {
		_, _ = b.runMiddlewareAfter(ctx, event, nil, nil)
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(subs))

	for i, sub := range subs {
		wg.Add(1)
		go func(idx int, s subscription) {
			defer wg.Done()
			errs[idx] = recovery.SafeExecute(b.logger, "subscriber:"+eventType, func() error {
				_, herr := s.handler(ctx, processedEvent)
				return herr
			})
			if errs[idx] != nil {
				b.logger.Warn("subscriber_failed",
					"event_type", eventType,
					"subscription", s.id,
					"error", errs[idx].Error(),
				)
			}
		}(i, sub)
	}

	wg.Wait()

	var firstError error
	for _, e := range errs {
		if e != nil {
			firstError = e
			break
		}
	}

	_, _ = b.runMiddlewareAfter(ctx, event, nil, firstError)
	return nil
}

// QuerySync sends a query to its handler and waits for the response,
// bounded by the bus query timeout and ctx.
func (b *InMemoryCommBus) QuerySync(ctx context.Context, query Query) (any, error) {
	messageType := GetMessageType(query)

	processed, err := b.runMiddlewareBefore(ctx, query)
	if err != nil {
		return nil, err
	}
	if processed == nil {
		return nil, NewNoHandlerError(messageType)
	}

	b.mu.RLock()
	handler, exists := b.handlers[messageType]
	b.mu.RUnlock()

	if !exists {
		err := NewNoHandlerError(messageType)
		_, _ = b.runMiddlewareAfter(ctx, query, nil, err)
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.queryTimeout)
	defer cancel()

	type result struct {
		value any
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		v, e := recovery.SafeExecuteWithResult(b.logger, "query:"+messageType, func() (any, error) {
			return handler(timeoutCtx, processed)
		})
		resultCh <- result{value: v, err: e}
	}()

	select {
	case <-timeoutCtx.Done():
		var err error = NewQueryTimeoutError(messageType, b.queryTimeout)
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		_, _ = b.runMiddlewareAfter(ctx, query, nil, err)
		return nil, err
	case res := <-resultCh:
		finalResult, middlewareErr := b.runMiddlewareAfter(ctx, query, res.value, res.err)
		if middlewareErr != nil {
			return finalResult, middlewareErr
		}
		return finalResult, res.err
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Subscribe subscribes to an event type and returns an unsubscribe function.
// Calling the returned function more than once is a no-op.
func (b *InMemoryCommBus) Subscribe(eventType string, handler HandlerFunc) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("subscribed", "event_type", eventType, "subscription", id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subs := b.subscribers[eventType]
			for i, s := range subs {
				if s.id == id {
					b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subscribers[eventType]) == 0 {
				delete(b.subscribers, eventType)
			}
		})
	}
}

// RegisterHandler registers the single handler for a query type.
func (b *InMemoryCommBus) RegisterHandler(messageType string, handler HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[messageType]; exists {
		return NewHandlerAlreadyRegisteredError(messageType)
	}

	b.handlers[messageType] = handler
	b.logger.Debug("handler_registered", "message_type", messageType)
	return nil
}

// AddMiddleware adds middleware to the bus.
// Middleware is executed in registration order.
func (b *InMemoryCommBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// HasHandler checks if a handler is registered for a message type.
func (b *InMemoryCommBus) HasHandler(messageType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.handlers[messageType]
	return exists
}

// SubscriberCount returns the number of live subscriptions for an event type.
func (b *InMemoryCommBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Clear removes all handlers, subscribers, and middleware.
func (b *InMemoryCommBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[string]HandlerFunc)
	b.subscribers = make(map[string][]subscription)
	b.middleware = make([]Middleware, 0)
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (b *InMemoryCommBus) middlewareSnapshot() []Middleware {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Middleware, len(b.middleware))
	copy(out, b.middleware)
	return out
}

// runMiddlewareBefore runs the before chain in registration order.
func (b *InMemoryCommBus) runMiddlewareBefore(ctx context.Context, message Message) (Message, error) {
	current := message
	for _, mw := range b.middlewareSnapshot() {
		result, err := mw.Before(ctx, current)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		current = result
	}
	return current, nil
}

// runMiddlewareAfter runs the after chain in reverse order.
func (b *InMemoryCommBus) runMiddlewareAfter(ctx context.Context, message Message, result any, err error) (any, error) {
	middleware := b.middlewareSnapshot()

	currentResult := result
	var afterErr error
	for i := len(middleware) - 1; i >= 0; i-- {
		r, e := middleware[i].After(ctx, message, currentResult, err)
		if e != nil {
			afterErr = e
			err = e
		}
		if r != nil {
			currentResult = r
		}
	}
	return currentResult, afterErr
}

var _ CommBus = (*InMemoryCommBus)(nil)
